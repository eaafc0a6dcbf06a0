package loader

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/nse-analytics/internal/models"
)

// Reporter accumulates per-date terminal outcomes during a run. Append-only:
// a date is recorded once, when it reaches a terminal state.
type Reporter struct {
	runID     uuid.UUID
	startedAt time.Time
	outcomes  []models.DateOutcome
	recorded  map[int]bool
	halted    bool
	log       *logrus.Entry
}

// NewReporter creates a reporter for one run.
func NewReporter(log *logrus.Logger) *Reporter {
	return &Reporter{
		runID:     uuid.New(),
		startedAt: time.Now(),
		recorded:  map[int]bool{},
		log:       log.WithField("component", "reporter"),
	}
}

// Record appends a terminal outcome. A second record for the same date is a
// programming error upstream and is dropped with a warning.
func (r *Reporter) Record(outcome models.DateOutcome) {
	key := DateKey(outcome.TradeDate)
	if r.recorded[key] {
		r.log.WithField("date", outcome.TradeDate.Format("2006-01-02")).
			Warn("Duplicate terminal outcome ignored")
		return
	}
	r.recorded[key] = true
	r.outcomes = append(r.outcomes, outcome)
}

// MarkHalted notes that the run stopped before exhausting the requested range.
func (r *Reporter) MarkHalted() {
	r.halted = true
}

// Finalize produces the run report. The reporter can keep recording only for
// the same run id; callers treat the returned report as immutable.
func (r *Reporter) Finalize() *models.RunReport {
	report := &models.RunReport{
		RunID:      r.runID,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
		Outcomes:   append([]models.DateOutcome(nil), r.outcomes...),
		Halted:     r.halted,
	}
	return report
}

// Summarize renders the report the way operators read it: one line per date,
// then the overall verdict.
func Summarize(report *models.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d dates processed\n", report.RunID, len(report.Outcomes))
	for _, o := range report.Outcomes {
		fmt.Fprintf(&b, "  %s  %s\n", o.TradeDate.Format("2006-01-02"), o.Describe())
		if o.DroppedRows > 0 {
			fmt.Fprintf(&b, "    data quality: %d rows dropped\n", o.DroppedRows)
		}
	}
	switch {
	case report.AllSucceeded() && !report.Halted:
		b.WriteString("all dates validated")
	case report.Halted:
		b.WriteString("run halted: remaining dates were not attempted")
	default:
		b.WriteString("run completed with failures")
	}
	return b.String()
}
