package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nse-analytics/internal/archive"
	"github.com/yourusername/nse-analytics/internal/metrics"
	"github.com/yourusername/nse-analytics/internal/models"
	"github.com/yourusername/nse-analytics/internal/normalize"
	"github.com/yourusername/nse-analytics/internal/repository"
)

// DefaultRetryBound is the hard ceiling on full-cycle attempts per date.
const DefaultRetryBound = 3

// RowStream is a one-shot stream of raw source rows.
type RowStream interface {
	Next() bool
	Row() archive.RawRow
	Err() error
	Close() error
}

// SourceReader opens the archive row stream for a trading date.
type SourceReader interface {
	Open(date time.Time) (RowStream, error)
}

type archiveSource struct {
	reader *archive.Reader
}

func (a archiveSource) Open(date time.Time) (RowStream, error) {
	rows, err := a.reader.Open(date)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// NewArchiveSource adapts an archive.Reader to the SourceReader contract.
func NewArchiveSource(r *archive.Reader) SourceReader {
	return archiveSource{reader: r}
}

// Controller is the per-date retry state machine. It processes trading dates
// strictly in ascending order, one at a time, and never begins a date before
// the previous one is terminal.
type Controller struct {
	source     SourceReader
	normalizer *normalize.Normalizer
	repo       repository.BhavcopyRepository
	validator  *Validator
	retryBound int
	logger     *logrus.Logger
	log        *logrus.Entry
}

// NewController creates a controller. retryBound <= 0 selects the default.
func NewController(
	source SourceReader,
	normalizer *normalize.Normalizer,
	repo repository.BhavcopyRepository,
	retryBound int,
	log *logrus.Logger,
) *Controller {
	if retryBound <= 0 {
		retryBound = DefaultRetryBound
	}
	return &Controller{
		source:     source,
		normalizer: normalizer,
		repo:       repo,
		validator:  NewValidator(repo),
		retryBound: retryBound,
		logger:     log,
		log:        log.WithField("component", "loader"),
	}
}

// Run processes every trading date in [start, end] ascending and returns the
// run report. Failures are conveyed in the report; the returned error is
// non-nil only for context cancellation. Partial progress committed for
// validated dates is retained when the run halts.
func (c *Controller) Run(ctx context.Context, start, end time.Time) (*models.RunReport, error) {
	reporter := NewReporter(c.logger)

	c.log.WithFields(logrus.Fields{
		"start":       start.Format("2006-01-02"),
		"end":         end.Format("2006-01-02"),
		"retry_bound": c.retryBound,
	}).Info("Starting reconciliation run")

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if !isTradingDay(date) {
			continue
		}
		if err := ctx.Err(); err != nil {
			reporter.MarkHalted()
			return finishRun(reporter), err
		}

		outcome := c.processDate(ctx, date)
		reporter.Record(outcome)
		metrics.DatesProcessedTotal.WithLabelValues(string(outcome.Status)).Inc()

		if !outcome.Status.Succeeded() {
			c.log.WithFields(logrus.Fields{
				"date":   date.Format("2006-01-02"),
				"status": outcome.Status,
			}).Error("Date reached terminal failure, halting run")
			if hasTradingDayAfter(date, end) {
				reporter.MarkHalted()
			}
			break
		}

		metrics.LastValidatedDate.Set(float64(DateKey(date)))
		c.log.WithFields(logrus.Fields{
			"date":     date.Format("2006-01-02"),
			"status":   outcome.Status,
			"attempts": outcome.Attempts,
			"rows":     outcome.RecordCount,
		}).Info("Date validated")
	}

	return finishRun(reporter), nil
}

func finishRun(reporter *Reporter) *models.RunReport {
	report := reporter.Finalize()
	if report.AllSucceeded() && !report.Halted {
		metrics.LastRunSuccess.Set(1)
	} else {
		metrics.LastRunSuccess.Set(0)
	}
	return report
}

// processDate drives one date to a terminal outcome, retrying the full
// read-normalize-write-validate cycle up to the retry bound. Missing or
// corrupt sources are terminal on the first attempt: retrying cannot fix a
// missing file.
func (c *Controller) processDate(ctx context.Context, date time.Time) models.DateOutcome {
	timer := prometheus.NewTimer(metrics.DateLoadDuration)
	defer timer.ObserveDuration()

	var lastErr error
	for attempt := 1; attempt <= c.retryBound; attempt++ {
		res, validation, err := c.attempt(ctx, date, attempt)

		switch {
		case err != nil && errors.Is(err, models.ErrMissingSource):
			return models.DateOutcome{
				TradeDate: date, Status: models.StatusFailedMissing,
				Attempts: attempt, Err: err,
			}

		case err != nil && errors.Is(err, models.ErrCorruptSource):
			return models.DateOutcome{
				TradeDate: date, Status: models.StatusFailedCorrupt,
				Attempts: attempt, Err: err,
			}

		case err != nil:
			// Write or count failure: consumes the attempt.
			lastErr = err
			c.log.WithFields(logrus.Fields{
				"date":    date.Format("2006-01-02"),
				"attempt": attempt,
			}).WithError(err).Warn("Attempt failed")

		case validation.Matched:
			status := models.StatusValidatedFirstTry
			if attempt > 1 {
				status = models.StatusValidatedAfterRetry
			}
			return models.DateOutcome{
				TradeDate: date, Status: status, Attempts: attempt,
				RecordCount: validation.PersistedCount, DroppedRows: res.Dropped,
			}

		default:
			metrics.CountMismatchesTotal.Inc()
			lastErr = fmt.Errorf("count mismatch: source=%d persisted=%d",
				validation.SourceCount, validation.PersistedCount)
			c.log.WithFields(logrus.Fields{
				"date":      date.Format("2006-01-02"),
				"attempt":   attempt,
				"source":    validation.SourceCount,
				"persisted": validation.PersistedCount,
			}).Warn("Count mismatch")
		}

		if attempt < c.retryBound {
			metrics.RetriesTotal.Inc()
		}
	}

	return models.DateOutcome{
		TradeDate: date, Status: models.StatusFailedExhausted,
		Attempts: c.retryBound, Err: lastErr,
	}
}

// attempt runs one full cycle for a date. Missing/corrupt source errors come
// back unwrapped for classification; any other error means the attempt is
// lost but the date may be retried.
func (c *Controller) attempt(ctx context.Context, date time.Time, attempt int) (*normalize.Result, *models.ValidationOutcome, error) {
	rows, err := c.source.Open(date)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	res, err := c.normalizer.NormalizeAll(date, rows)
	if err != nil {
		return nil, nil, err
	}

	inserted, err := c.repo.ReplaceDay(ctx, DateKey(date), res.Records)
	if err != nil {
		return res, nil, fmt.Errorf("write failed for %s: %w", date.Format("2006-01-02"), err)
	}
	metrics.RowsInsertedTotal.Add(float64(inserted))
	metrics.RowsDroppedTotal.Add(float64(res.Dropped))

	validation, err := c.validator.Validate(ctx, date, res.SourceCount, attempt)
	if err != nil {
		return res, nil, fmt.Errorf("validation read failed for %s: %w", date.Format("2006-01-02"), err)
	}

	return res, validation, nil
}

// isTradingDay filters the exchange's weekly closure. Holidays are not
// modelled; a holiday inside the requested range surfaces as a missing
// source, which is the operator's cue to narrow the range.
func isTradingDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

func hasTradingDayAfter(date, end time.Time) bool {
	for d := date.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if isTradingDay(d) {
			return true
		}
	}
	return false
}
