package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/metrics"
)

// Job is one scheduled pipeline run
type Job func(ctx context.Context) error

// Scheduler runs the nightly backfill on a cron schedule.
// A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	schedule   string
	job        Job
	runOnStart bool
	cron       *cron.Cron

	// held while the job runs; the startup run and cron ticks share it
	running sync.Mutex
}

// NewScheduler creates a scheduler for a standard five-field cron expression
func NewScheduler(schedule string, job Job, runOnStart bool) *Scheduler {
	logger := cronLogger{log.Logger.With().Str("component", "scheduler").Logger()}
	return &Scheduler{
		schedule:   schedule,
		job:        job,
		runOnStart: runOnStart,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Run schedules the job and blocks until ctx is cancelled, then waits for a
// running job to finish
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	entryID, err := s.cron.AddFunc(s.schedule, func() { s.execute(ctx, "cron") })
	if err != nil {
		return fmt.Errorf("failed to schedule backfill %q: %w", s.schedule, err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.schedule).
		Time("next_run", s.cron.Entry(entryID).Next).
		Msg("Nightly backfill scheduled")

	if s.runOnStart {
		s.execute(ctx, "startup")
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops the cron loop and waits for a running job
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) execute(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		log.Warn().Str("trigger", trigger).Msg("Previous backfill still running, skipping")
		return
	}
	defer s.running.Unlock()

	start := time.Now()
	log.Info().Str("trigger", trigger).Msg("Running scheduled backfill...")

	if err := s.job(ctx); err != nil {
		metrics.RecordError("scheduler", "job")
		log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Scheduled backfill failed")
		return
	}

	log.Info().
		Dur("duration", time.Since(start)).
		Msg("Scheduled backfill finished")
}

// cronLogger routes robfig/cron logging through zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
