package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

// Scheduler runs the periodic ingestion cycle and the daily retention prune.
// Both jobs run in singleton mode: a firing that overlaps a still-running
// instance of the same job is skipped, so at most one instance of each job
// executes at a time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *telemetry.Service

	interval     time.Duration
	cycleTimeout time.Duration
	retention    int
	pruneAt      string
	logger       zerolog.Logger
}

// Config bundles scheduler settings.
type Config struct {
	Service *telemetry.Service

	// Interval between cycle firings.
	Interval time.Duration

	// CycleTimeout bounds one whole cycle, fetches included.
	CycleTimeout time.Duration

	// Retention horizon in hours and the local wall-clock prune time
	// ("HH:MM").
	RetentionHours int
	PruneAt        string

	Location *time.Location
	Logger   zerolog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		scheduler:    gocron.NewScheduler(loc),
		service:      cfg.Service,
		interval:     cfg.Interval,
		cycleTimeout: cfg.CycleTimeout,
		retention:    cfg.RetentionHours,
		pruneAt:      cfg.PruneAt,
		logger:       cfg.Logger,
	}
}

// Start schedules both jobs and starts the underlying scheduler. The first
// cycle runs immediately.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().
		SingletonMode().
		StartImmediately().
		Do(s.runCycle)
	if err != nil {
		return err
	}

	_, err = s.scheduler.Every(1).Day().At(s.pruneAt).
		SingletonMode().
		Do(s.runPrune)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	s.logger.Debug().Msg("scheduler: running ingestion cycle")
	if err := s.service.RunCycle(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduler: ingestion cycle failed")
	}
}

func (s *Scheduler) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	if _, err := s.service.PruneRetention(ctx, s.retention); err != nil {
		s.logger.Error().Err(err).Msg("scheduler: prune failed")
	}
}
