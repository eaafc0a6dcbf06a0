// Package scheduler runs the daily download-and-load job after market close.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DailyJob processes one trading date end to end (download then load).
type DailyJob func(ctx context.Context, date time.Time) error

// Scheduler triggers the daily job on a cron expression evaluated in
// exchange time (Asia/Kolkata).
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	job        DailyJob
	jobTimeout time.Duration
	log        *logrus.Entry
	mu         sync.Mutex
	isRunning  bool
}

// New creates a scheduler. The cron spec uses the standard five-field form.
func New(spec string, job DailyJob, log *logrus.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange timezone: %w", err)
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(loc)),
		spec:       spec,
		job:        job,
		jobTimeout: 30 * time.Minute,
		log:        log.WithField("component", "scheduler"),
	}, nil
}

// Start schedules the daily job and begins the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		date := time.Now().In(s.cron.Location())
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

		s.log.WithField("date", day.Format("2006-01-02")).Info("Starting scheduled daily load")
		if err := s.job(ctx, day); err != nil {
			s.log.WithError(err).Error("Scheduled daily load failed")
			return
		}
		s.log.WithField("date", day.Format("2006-01-02")).Info("Scheduled daily load complete")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule daily job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true
	s.log.WithField("spec", s.spec).Info("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running job up to the timeout.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for running job: %w", ctx.Err())
	}

	s.isRunning = false
	s.log.Info("Scheduler stopped")
	return nil
}
