package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateStatus is the terminal outcome of one trading date.
type DateStatus string

const (
	StatusValidatedFirstTry   DateStatus = "validated-first-try"
	StatusValidatedAfterRetry DateStatus = "validated-after-retry"
	StatusFailedMissing       DateStatus = "failed-missing"
	StatusFailedCorrupt       DateStatus = "failed-corrupt"
	StatusFailedExhausted     DateStatus = "failed-exhausted-retries"
)

// Succeeded reports whether the status is a validated outcome.
func (s DateStatus) Succeeded() bool {
	return s == StatusValidatedFirstTry || s == StatusValidatedAfterRetry
}

// ValidationOutcome is the result of comparing source and persisted counts
// for one attempt. Computed fresh every attempt, never persisted.
type ValidationOutcome struct {
	TradeDate      time.Time
	SourceCount    int64
	PersistedCount int64
	Matched        bool
	AttemptNumber  int
}

// DateOutcome is the terminal record for one trading date in a run.
type DateOutcome struct {
	TradeDate   time.Time
	Status      DateStatus
	Attempts    int
	RecordCount int64
	DroppedRows int64
	Err         error
}

// Describe renders the outcome the way operators read it in the run summary.
func (o DateOutcome) Describe() string {
	switch o.Status {
	case StatusValidatedAfterRetry:
		return fmt.Sprintf("%s(%d), %d", o.Status, o.Attempts, o.RecordCount)
	case StatusValidatedFirstTry:
		return fmt.Sprintf("%s, %d", o.Status, o.RecordCount)
	default:
		return string(o.Status)
	}
}

// RunReport is the aggregate outcome of a loader run. Outcomes are ordered by
// processing order, which is ascending trade date.
type RunReport struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []DateOutcome
	Halted     bool
}

// AllSucceeded is true only when every processed date validated.
func (r *RunReport) AllSucceeded() bool {
	if len(r.Outcomes) == 0 {
		return true
	}
	for _, o := range r.Outcomes {
		if !o.Status.Succeeded() {
			return false
		}
	}
	return true
}

// FailedDates returns the dates needing manual intervention.
func (r *RunReport) FailedDates() []DateOutcome {
	var failed []DateOutcome
	for _, o := range r.Outcomes {
		if !o.Status.Succeeded() {
			failed = append(failed, o)
		}
	}
	return failed
}
