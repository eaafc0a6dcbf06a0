// Package loader drives the day-by-day F&O reconciliation cycle: read the
// archive, normalize, replace the date's rows, and validate exact count
// parity between source and store.
package loader

import (
	"context"
	"time"

	"github.com/yourusername/nse-analytics/internal/models"
	"github.com/yourusername/nse-analytics/internal/repository"
)

// DateKey converts a trading date to its 8-digit YYYYMMDD storage form.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Validator reconciles the source record count against the persisted row
// count for a date. Read-only.
type Validator struct {
	repo repository.BhavcopyRepository
}

// NewValidator creates a validator over the given repository.
func NewValidator(repo repository.BhavcopyRepository) *Validator {
	return &Validator{repo: repo}
}

// Validate computes the persisted count and compares it to sourceCount.
// Matched requires exact equality; this is a reconciliation guarantee, not a
// statistical check.
func (v *Validator) Validate(ctx context.Context, date time.Time, sourceCount int64, attempt int) (*models.ValidationOutcome, error) {
	persisted, err := v.repo.CountByDate(ctx, DateKey(date))
	if err != nil {
		return nil, err
	}

	return &models.ValidationOutcome{
		TradeDate:      date,
		SourceCount:    sourceCount,
		PersistedCount: persisted,
		Matched:        sourceCount == persisted,
		AttemptNumber:  attempt,
	}, nil
}
