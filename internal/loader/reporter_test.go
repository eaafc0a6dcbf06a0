package loader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/nse-analytics/internal/logger"
	"github.com/yourusername/nse-analytics/internal/models"
)

func outcomeFor(day int, status models.DateStatus, count int64) models.DateOutcome {
	return models.DateOutcome{
		TradeDate:   time.Date(2025, 2, day, 0, 0, 0, 0, time.UTC),
		Status:      status,
		Attempts:    1,
		RecordCount: count,
	}
}

func newTestReporter() *Reporter {
	return NewReporter(logger.New("error", "development"))
}

func TestReporterAllSucceeded(t *testing.T) {
	r := newTestReporter()
	r.Record(outcomeFor(4, models.StatusValidatedFirstTry, 35100))
	r.Record(outcomeFor(5, models.StatusValidatedAfterRetry, 36487))

	report := r.Finalize()
	assert.True(t, report.AllSucceeded())
	assert.False(t, report.Halted)
	assert.Len(t, report.Outcomes, 2)
	assert.Empty(t, report.FailedDates())
}

func TestReporterDistinguishesHalt(t *testing.T) {
	r := newTestReporter()
	r.Record(outcomeFor(4, models.StatusValidatedFirstTry, 35100))
	r.Record(outcomeFor(5, models.StatusFailedExhausted, 0))
	r.MarkHalted()

	report := r.Finalize()
	assert.False(t, report.AllSucceeded())
	assert.True(t, report.Halted)
	assert.Len(t, report.FailedDates(), 1)
}

func TestReporterIgnoresDuplicateDate(t *testing.T) {
	r := newTestReporter()
	r.Record(outcomeFor(4, models.StatusValidatedFirstTry, 100))
	r.Record(outcomeFor(4, models.StatusFailedExhausted, 0))

	report := r.Finalize()
	assert.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.StatusValidatedFirstTry, report.Outcomes[0].Status)
}

func TestReporterEmptyRunSucceeds(t *testing.T) {
	report := newTestReporter().Finalize()
	assert.True(t, report.AllSucceeded())
}

func TestSummarizeShowsPerDateOutcomes(t *testing.T) {
	r := newTestReporter()
	r.Record(outcomeFor(4, models.StatusValidatedFirstTry, 35100))
	r.Record(models.DateOutcome{
		TradeDate:   time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC),
		Status:      models.StatusValidatedAfterRetry,
		Attempts:    2,
		RecordCount: 36487,
		DroppedRows: 1,
	})
	r.Record(outcomeFor(6, models.StatusFailedMissing, 0))
	r.MarkHalted()

	summary := Summarize(r.Finalize())
	assert.Contains(t, summary, "validated-first-try, 35100")
	assert.Contains(t, summary, "validated-after-retry(2), 36487")
	assert.Contains(t, summary, "failed-missing")
	assert.Contains(t, summary, "data quality: 1 rows dropped")
	assert.Contains(t, summary, "halted")
}
