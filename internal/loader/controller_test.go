package loader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/nse-analytics/internal/archive"
	"github.com/yourusername/nse-analytics/internal/logger"
	"github.com/yourusername/nse-analytics/internal/models"
	"github.com/yourusername/nse-analytics/internal/normalize"
)

// MockBhavcopyRepository mocks the bhavcopy repository
type MockBhavcopyRepository struct {
	mock.Mock
}

func (m *MockBhavcopyRepository) ReplaceDay(ctx context.Context, tradeDate int, records []models.DerivativeRecord) (int64, error) {
	args := m.Called(ctx, tradeDate, records)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBhavcopyRepository) CountByDate(ctx context.Context, tradeDate int) (int64, error) {
	args := m.Called(ctx, tradeDate)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBhavcopyRepository) MonthlyAggregates(ctx context.Context, year, month int) ([]models.MonthlyAggregate, error) {
	args := m.Called(ctx, year, month)
	return args.Get(0).([]models.MonthlyAggregate), args.Error(1)
}

func (m *MockBhavcopyRepository) TradedDates(ctx context.Context, year, month int) ([]int, error) {
	args := m.Called(ctx, year, month)
	return args.Get(0).([]int), args.Error(1)
}

// fakeStream replays fixed rows as a RowStream
type fakeStream struct {
	rows   []archive.RawRow
	idx    int
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.rows) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeStream) Row() archive.RawRow { return s.rows[s.idx-1] }
func (s *fakeStream) Err() error          { return nil }
func (s *fakeStream) Close() error        { s.closed = true; return nil }

// fakeSource serves per-date row sets or errors and records which dates were
// opened.
type fakeSource struct {
	files  map[int][]archive.RawRow
	errs   map[int]error
	opened []int
}

func (f *fakeSource) Open(date time.Time) (RowStream, error) {
	key := DateKey(date)
	f.opened = append(f.opened, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	rows, ok := f.files[key]
	if !ok {
		return nil, models.NewMissingSourceError(date, "no archive")
	}
	return &fakeStream{rows: rows}, nil
}

func rawRow(symbol, optionType string) archive.RawRow {
	return archive.RawRow{
		"TradDt":      "2025-02-04",
		"FinInstrmTp": "OPTIDX",
		"TckrSymb":    symbol,
		"XpryDt":      "2025-02-27",
		"StrkPric":    "22500",
		"OptnTp":      optionType,
		"OpnIntrst":   "1000",
		"TtlTradgVol": "500",
		"TtlTrfVal":   "12345.50",
	}
}

func newTestController(source SourceReader, repo *MockBhavcopyRepository, retryBound int) *Controller {
	log := logger.New("error", "development")
	return NewController(source, normalize.New(0.5, log), repo, retryBound, log)
}

var (
	tue = time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC) // Tuesday
	wed = time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC)
	thu = time.Date(2025, 2, 6, 0, 0, 0, 0, time.UTC)
	fri = time.Date(2025, 2, 7, 0, 0, 0, 0, time.UTC)
	mon = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
)

func TestRunValidatedFirstTry(t *testing.T) {
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {rawRow("NIFTY", "CE"), rawRow("NIFTY", "PE"), rawRow("BANKNIFTY", "CE")},
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).Return(int64(3), nil).Once()
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(3), nil).Once()

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, models.StatusValidatedFirstTry, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int64(3), outcome.RecordCount)
	assert.True(t, report.AllSucceeded())
	assert.False(t, report.Halted)
	repo.AssertExpectations(t)
}

func TestRunRetriesOnMismatchThenSucceeds(t *testing.T) {
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {rawRow("NIFTY", "CE"), rawRow("NIFTY", "PE")},
	}}
	repo := &MockBhavcopyRepository{}
	// Attempt 1: short insert surfaces as a count mismatch.
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).Return(int64(1), nil).Once()
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(1), nil).Once()
	// Attempt 2: full cycle lands everything.
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).Return(int64(2), nil).Once()
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(2), nil).Once()

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, models.StatusValidatedAfterRetry, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, int64(2), outcome.RecordCount)
	repo.AssertExpectations(t)
}

func TestRunMissingSourceIsTerminalAfterOneAttempt(t *testing.T) {
	source := &fakeSource{}
	repo := &MockBhavcopyRepository{}

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, models.StatusFailedMissing, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Len(t, source.opened, 1, "missing source must not be retried")
	assert.False(t, report.AllSucceeded())
	repo.AssertNotCalled(t, "ReplaceDay", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCorruptSourceIsTerminal(t *testing.T) {
	source := &fakeSource{errs: map[int]error{
		20250204: models.NewCorruptSourceError(tue, "bad zip"),
	}}
	repo := &MockBhavcopyRepository{}

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.StatusFailedCorrupt, report.Outcomes[0].Status)
	assert.Equal(t, 1, report.Outcomes[0].Attempts)
}

func TestRunHaltsAfterTerminalFailure(t *testing.T) {
	rows := []archive.RawRow{rawRow("NIFTY", "CE")}
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: rows,
		20250205: rows,
		// 20250206 missing
		20250207: rows,
		20250210: rows,
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
	repo.On("CountByDate", mock.Anything, mock.Anything).Return(int64(1), nil)

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, mon)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, models.StatusValidatedFirstTry, report.Outcomes[0].Status)
	assert.Equal(t, models.StatusValidatedFirstTry, report.Outcomes[1].Status)
	assert.Equal(t, models.StatusFailedMissing, report.Outcomes[2].Status)
	assert.True(t, report.Halted)
	assert.False(t, report.AllSucceeded())
	assert.Equal(t, []int{20250204, 20250205, 20250206}, source.opened,
		"dates after the failure must never be attempted")
}

func TestRunExhaustsRetryBound(t *testing.T) {
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {rawRow("NIFTY", "CE"), rawRow("NIFTY", "PE")},
	}}
	repo := &MockBhavcopyRepository{}
	// Persisted count never matches the two-row source.
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).Return(int64(1), nil).Times(3)
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(1), nil).Times(3)

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, models.StatusFailedExhausted, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Len(t, source.opened, 3, "each attempt re-reads the archive")
	repo.AssertExpectations(t)
}

func TestRunWriteFailureConsumesAttempt(t *testing.T) {
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {rawRow("NIFTY", "CE")},
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).
		Return(int64(0), assert.AnError).Once()
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).
		Return(int64(1), nil).Once()
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(1), nil).Once()

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.StatusValidatedAfterRetry, report.Outcomes[0].Status)
	assert.Equal(t, 2, report.Outcomes[0].Attempts)
	repo.AssertExpectations(t)
}

func TestRunSkipsWeekends(t *testing.T) {
	rows := []archive.RawRow{rawRow("NIFTY", "CE")}
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250207: rows,
		20250210: rows,
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, mock.Anything, mock.Anything).Return(int64(1), nil)
	repo.On("CountByDate", mock.Anything, mock.Anything).Return(int64(1), nil)

	report, err := newTestController(source, repo, 3).Run(context.Background(), fri, mon)
	require.NoError(t, err)

	assert.Len(t, report.Outcomes, 2)
	assert.Equal(t, []int{20250207, 20250210}, source.opened)
	assert.True(t, report.AllSucceeded())
}

func TestRunDroppedRowReducesExpectedCount(t *testing.T) {
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {
			rawRow("NIFTY", "CE"),
			rawRow("NIFTY", "XX"), // unrecognized option type, dropped
			rawRow("NIFTY", "PE"),
		},
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.MatchedBy(func(recs []models.DerivativeRecord) bool {
		return len(recs) == 2
	})).Return(int64(2), nil).Once()
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(2), nil).Once()

	report, err := newTestController(source, repo, 3).Run(context.Background(), tue, tue)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, models.StatusValidatedFirstTry, outcome.Status)
	assert.Equal(t, int64(2), outcome.RecordCount)
	assert.Equal(t, int64(1), outcome.DroppedRows)
	repo.AssertExpectations(t)
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &fakeSource{}
	repo := &MockBhavcopyRepository{}

	report, err := newTestController(source, repo, 3).Run(ctx, tue, wed)
	assert.Error(t, err)
	assert.Empty(t, report.Outcomes)
	assert.True(t, report.Halted)
}

func TestRunRerunIsIdempotentPerDate(t *testing.T) {
	// Two full runs over the same date both replace and validate; the
	// second run sees the same counts because ReplaceDay deletes first.
	source := &fakeSource{files: map[int][]archive.RawRow{
		20250204: {rawRow("NIFTY", "CE")},
	}}
	repo := &MockBhavcopyRepository{}
	repo.On("ReplaceDay", mock.Anything, 20250204, mock.Anything).Return(int64(1), nil).Times(2)
	repo.On("CountByDate", mock.Anything, 20250204).Return(int64(1), nil).Times(2)

	ctrl := newTestController(source, repo, 3)
	first, err := ctrl.Run(context.Background(), tue, tue)
	require.NoError(t, err)
	second, err := ctrl.Run(context.Background(), tue, tue)
	require.NoError(t, err)

	assert.Equal(t, first.Outcomes[0].RecordCount, second.Outcomes[0].RecordCount)
	repo.AssertExpectations(t)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, 20250204, DateKey(tue))
	assert.Equal(t, 20250210, DateKey(mon))
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, isTradingDay(thu))
	assert.False(t, isTradingDay(time.Date(2025, 2, 8, 0, 0, 0, 0, time.UTC)))
}
