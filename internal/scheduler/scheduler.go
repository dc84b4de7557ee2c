// Package scheduler runs the extract and load stages on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/models"
	"dzs/taxi-etl/internal/pipeline"
)

// Extractor is the extract stage.
type Extractor interface {
	Extract(ctx context.Context, day time.Time) (pipeline.ExtractResult, error)
}

// Loader is the load stage.
type Loader interface {
	Load(ctx context.Context) (*pipeline.RunReport, error)
}

// Config controls the job schedule.
type Config struct {
	Cron      string
	LagMonths int
	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
}

// Scheduler periodically extracts the lagged day and loads everything pending.
type Scheduler struct {
	scheduler *gocron.Scheduler
	extractor Extractor
	loader    Loader
	cfg       Config
	logger    logging.Logger
	now       func() time.Time

	mu   sync.RWMutex
	last *pipeline.RunReport
}

// New creates a new Scheduler.
func New(cfg Config, extractor Extractor, loader Loader, logger logging.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		extractor: extractor,
		loader:    loader,
		cfg:       cfg,
		logger:    logging.Component(logger, "scheduler"),
		now:       time.Now,
	}
}

// Start schedules the job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Cron(s.cfg.Cron).Do(s.run); err != nil {
		return fmt.Errorf("schedule %q: %w", s.cfg.Cron, err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started", logging.Field{Key: "cron", Value: s.cfg.Cron})
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// LastReport returns the report of the most recent load, or nil.
func (s *Scheduler) LastReport() *pipeline.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled run failed")
	}
}

// RunOnce extracts the lagged day and then loads every pending object.
// An extraction failure is logged and the load still runs, so objects left
// by earlier runs are not held back.
func (s *Scheduler) RunOnce(ctx context.Context) (*pipeline.RunReport, error) {
	day := pipeline.DefaultDay(s.now(), s.cfg.LagMonths)
	logger := s.logger.WithFields(logging.Field{Key: logging.FieldDay, Value: day.Format(models.DayLayout)})

	if _, err := s.extractor.Extract(ctx, day); err != nil {
		logger.WithError(err).Warn("Extraction failed")
	}

	report, err := s.loader.Load(ctx)
	if report != nil {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}
	if err != nil {
		return report, fmt.Errorf("load: %w", err)
	}
	logger.Info("Scheduled run completed",
		logging.Field{Key: logging.FieldRunID, Value: report.RunID},
		logging.Field{Key: "files", Value: len(report.Files)},
		logging.Field{Key: "failed", Value: report.Failed()})
	return report, nil
}
