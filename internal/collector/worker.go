// Package collector drives each calendar date through fetch, normalize and
// upsert with bounded retries, and records the outcome in the checkpoint.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeffconboy/StatEdge/internal/client"
	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/lease"
	"github.com/jeffconboy/StatEdge/internal/metrics"
	"github.com/jeffconboy/StatEdge/internal/models"
	"github.com/jeffconboy/StatEdge/internal/normalize"
)

// ErrCheckpoint wraps failures to persist progress. They end the run.
var ErrCheckpoint = errors.New("checkpoint write failed")

// Fetcher returns the raw upstream rows for one date
type Fetcher interface {
	FetchEventsForDate(ctx context.Context, date time.Time) ([]models.RawRecord, error)
}

// Store receives normalized events
type Store interface {
	Upsert(ctx context.Context, events []*models.Event) (int, error)
}

// Checkpoint persists terminal date outcomes
type Checkpoint interface {
	MarkComplete(date string, attempts, records int) error
	MarkFailed(date string, attempts int, reason string) error
}

// RetryPolicy bounds attempts per date. A date is tried 1+MaxRetries times.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay returns the wait before retry n (1-based): BaseDelay doubled per retry, capped at MaxDelay
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Outcome is the result of processing one date
type Outcome struct {
	Date     string
	State    models.DateState
	Attempts int
	Records  int
	Dropped  []models.DroppedRecord
	Err      error
}

// Worker processes single dates
type Worker struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	store      Store
	checkpoint Checkpoint
	leaser     lease.Leaser
	policy     RetryPolicy
	logger     zerolog.Logger

	sleep   func(ctx context.Context, d time.Duration) error
	observe func(date string, state models.DateState)
}

// NewWorker creates a worker. A nil leaser falls back to an in-process one.
func NewWorker(fetcher Fetcher, store Store, checkpoint Checkpoint, leaser lease.Leaser, policy RetryPolicy, logger zerolog.Logger) *Worker {
	if leaser == nil {
		leaser = lease.NewLocalLeaser()
	}
	return &Worker{
		fetcher:    fetcher,
		normalizer: normalize.New(),
		store:      store,
		checkpoint: checkpoint,
		leaser:     leaser,
		policy:     policy,
		logger:     logger.With().Str("component", "collector").Logger(),
		sleep:      sleepContext,
		observe:    func(string, models.DateState) {},
	}
}

// Process runs one date to a terminal state. Committed and Failed dates are
// written to the checkpoint; Interrupted and Skipped dates are not.
func (w *Worker) Process(ctx context.Context, date time.Time) Outcome {
	started := time.Now()
	out := Outcome{Date: daterange.Key(date)}
	w.transition(&out, models.StateScheduled)

	out = w.process(ctx, date, out)

	metrics.RecordDate(string(out.State), time.Since(started).Seconds())
	return out
}

func (w *Worker) process(ctx context.Context, date time.Time, out Outcome) Outcome {
	log := w.logger.With().Str("date", out.Date).Logger()

	if ctx.Err() != nil {
		return w.interrupted(out, ctx.Err())
	}

	release, ok, err := w.leaser.Acquire(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return w.interrupted(out, ctx.Err())
		}
		log.Error().Err(err).Msg("Failed to acquire date lease")
		metrics.RecordError("collector", "lease")
		out.Err = err
		w.transition(&out, models.StateSkipped)
		return out
	}
	if !ok {
		log.Info().Msg("Date leased by another worker, skipping")
		w.transition(&out, models.StateSkipped)
		return out
	}
	defer release()

	var (
		lastErr  error
		lastStep string
	)
	for attempt := 1; attempt <= 1+w.policy.MaxRetries; attempt++ {
		out.Attempts = attempt

		if attempt > 1 {
			w.transition(&out, models.StateRetrying)
			backoff := w.policy.Delay(attempt - 1)
			metrics.RecordRetry(lastStep)
			log.Warn().
				Err(lastErr).
				Str("step", lastStep).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying date after backoff")

			if err := w.sleep(ctx, backoff); err != nil {
				return w.interrupted(out, err)
			}
		}

		w.transition(&out, models.StateFetching)
		raw, err := w.fetcher.FetchEventsForDate(ctx, date)
		if err != nil {
			if ctx.Err() != nil {
				return w.interrupted(out, ctx.Err())
			}
			lastErr, lastStep = err, "fetch"
			metrics.RecordError("collector", "fetch")
			if !client.IsRetryable(err) {
				log.Error().Err(err).Msg("Non-retryable upstream failure")
				break
			}
			continue
		}

		w.transition(&out, models.StateNormalizing)
		events, dropped := w.normalize(out.Date, raw)
		out.Dropped = dropped

		w.transition(&out, models.StateUpserting)
		n := 0
		if len(events) > 0 {
			n, err = w.store.Upsert(ctx, events)
			if err != nil {
				if ctx.Err() != nil {
					return w.interrupted(out, ctx.Err())
				}
				lastErr, lastStep = err, "upsert"
				metrics.RecordError("collector", "upsert")
				continue
			}
		}

		if err := w.checkpoint.MarkComplete(out.Date, attempt, n); err != nil {
			out.Err = fmt.Errorf("%w: %v", ErrCheckpoint, err)
			w.transition(&out, models.StateFailed)
			return out
		}

		out.Records = n
		w.transition(&out, models.StateCommitted)
		metrics.RecordUpserted(n)
		metrics.RecordDropped(len(dropped))

		log.Info().
			Int("records", n).
			Int("dropped", len(dropped)).
			Int("attempts", attempt).
			Msg("Date committed")
		return out
	}

	out.Err = lastErr
	if err := w.checkpoint.MarkFailed(out.Date, out.Attempts, lastErr.Error()); err != nil {
		out.Err = fmt.Errorf("%w: %v", ErrCheckpoint, err)
	}
	w.transition(&out, models.StateFailed)

	log.Error().
		Err(lastErr).
		Int("attempts", out.Attempts).
		Msg("Date failed")
	return out
}

// normalize converts raw rows, dropping and logging the malformed ones
func (w *Worker) normalize(date string, raw []models.RawRecord) ([]*models.Event, []models.DroppedRecord) {
	events := make([]*models.Event, 0, len(raw))
	var dropped []models.DroppedRecord

	for i, rec := range raw {
		event, err := w.normalizer.Normalize(rec)
		if err != nil {
			dropped = append(dropped, models.DroppedRecord{Date: date, Index: i, Reason: err.Error()})
			w.logger.Warn().
				Err(err).
				Str("date", date).
				Int("index", i).
				Msg("Dropping malformed record")
			continue
		}
		events = append(events, event)
	}

	return events, dropped
}

func (w *Worker) interrupted(out Outcome, err error) Outcome {
	out.Err = err
	w.transition(&out, models.StateInterrupted)
	w.logger.Info().Str("date", out.Date).Msg("Date interrupted, left for the next run")
	return out
}

func (w *Worker) transition(out *Outcome, state models.DateState) {
	out.State = state
	w.observe(out.Date, state)
	w.logger.Debug().Str("date", out.Date).Str("state", string(state)).Msg("Date state changed")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
