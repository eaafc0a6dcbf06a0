package loader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestValidateMatched(t *testing.T) {
	repo := &MockBhavcopyRepository{}
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(35100), nil)

	date := time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)
	outcome, err := NewValidator(repo).Validate(context.Background(), date, 35100, 1)
	require.NoError(t, err)

	assert.True(t, outcome.Matched)
	assert.Equal(t, int64(35100), outcome.SourceCount)
	assert.Equal(t, int64(35100), outcome.PersistedCount)
	assert.Equal(t, 1, outcome.AttemptNumber)
}

func TestValidateMismatchHasNoToleranceBand(t *testing.T) {
	repo := &MockBhavcopyRepository{}
	repo.On("CountByDate", mock.Anything, 20250210).Return(int64(36486), nil)

	date := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	outcome, err := NewValidator(repo).Validate(context.Background(), date, 36487, 2)
	require.NoError(t, err)

	assert.False(t, outcome.Matched, "off by one must not match")
	assert.Equal(t, 2, outcome.AttemptNumber)
}

func TestValidatePropagatesRepositoryError(t *testing.T) {
	repo := &MockBhavcopyRepository{}
	repo.On("CountByDate", mock.Anything, mock.Anything).Return(int64(0), assert.AnError)

	date := time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC)
	_, err := NewValidator(repo).Validate(context.Background(), date, 10, 1)
	assert.Error(t, err)
}
