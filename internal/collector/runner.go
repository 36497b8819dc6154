package collector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/models"
)

// Totaler reports overall store coverage for progress logging
type Totaler interface {
	Totals(ctx context.Context, start, end time.Time) (models.StoreTotals, error)
}

// Runner processes a list of dates in batches with bounded concurrency
type Runner struct {
	worker      *Worker
	totals      Totaler
	batchSize   int
	concurrency int
	logger      zerolog.Logger
}

// NewRunner creates a runner. totals may be nil to skip coverage logging.
func NewRunner(worker *Worker, totals Totaler, batchSize, concurrency int, logger zerolog.Logger) *Runner {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		worker:      worker,
		totals:      totals,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "runner").Logger(),
	}
}

// Run processes dates and returns the aggregate outcome. The error is non-nil
// only when progress could not be persisted; cancellation is reported through
// RunStats.Cancelled so callers can still write a report.
func (r *Runner) Run(ctx context.Context, dates []time.Time) (models.RunStats, error) {
	stats := models.RunStats{
		Scheduled: len(dates),
		StartedAt: time.Now().UTC(),
	}
	if len(dates) == 0 {
		stats.FinishedAt = time.Now().UTC()
		r.logger.Info().Msg("No dates to collect")
		return stats, nil
	}

	first, last := dates[0], dates[len(dates)-1]
	r.logger.Info().
		Str("start", daterange.Key(first)).
		Str("end", daterange.Key(last)).
		Int("dates", len(dates)).
		Int("batch_size", r.batchSize).
		Int("concurrency", r.concurrency).
		Msg("Starting collection")

	var (
		mu       sync.Mutex
		done     int
		fatalErr error
	)
	record := func(out Outcome) {
		mu.Lock()
		defer mu.Unlock()
		done++
		switch out.State {
		case models.StateCommitted:
			stats.Committed++
			stats.RecordsUpserted += out.Records
		case models.StateFailed:
			stats.Failed++
			stats.FailedDates = append(stats.FailedDates, out.Date)
		case models.StateSkipped:
			stats.Skipped++
		case models.StateInterrupted:
			stats.Interrupted++
		}
		stats.Dropped = append(stats.Dropped, out.Dropped...)
	}

	batches := daterange.Batches(dates, r.batchSize)
	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)

		for _, date := range batch {
			date := date
			g.Go(func() error {
				out := r.worker.Process(gctx, date)
				record(out)
				if errors.Is(out.Err, ErrCheckpoint) {
					return out.Err
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			fatalErr = err
			break
		}

		r.logProgress(ctx, i+1, len(batches), done, len(dates), &stats, first, last)
	}

	// dates never handed to a worker
	if rest := len(dates) - done; rest > 0 {
		stats.Interrupted += rest
	}
	stats.Cancelled = ctx.Err() != nil
	stats.FinishedAt = time.Now().UTC()
	sort.Strings(stats.FailedDates)
	sort.SliceStable(stats.Dropped, func(i, j int) bool {
		if stats.Dropped[i].Date != stats.Dropped[j].Date {
			return stats.Dropped[i].Date < stats.Dropped[j].Date
		}
		return stats.Dropped[i].Index < stats.Dropped[j].Index
	})

	evt := r.logger.Info()
	if stats.Cancelled {
		evt = r.logger.Warn()
	}
	evt.
		Int("committed", stats.Committed).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("interrupted", stats.Interrupted).
		Int("records", stats.RecordsUpserted).
		Int("dropped", len(stats.Dropped)).
		Bool("cancelled", stats.Cancelled).
		Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("Collection finished")

	return stats, fatalErr
}

func (r *Runner) logProgress(ctx context.Context, batch, batches, done, total int, stats *models.RunStats, start, end time.Time) {
	evt := r.logger.Info().
		Int("batch", batch).
		Int("batches", batches).
		Int("done", done).
		Int("total", total).
		Int("committed", stats.Committed).
		Int("failed", stats.Failed)

	if r.totals != nil && ctx.Err() == nil {
		t, err := r.totals.Totals(ctx, start, end)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Failed to read store totals")
		} else {
			evt = evt.
				Int64("stored_pitches", t.Records).
				Int64("stored_games", t.Games).
				Int64("dates_with_data", t.DatesWithData)
		}
	}

	evt.Msg("Batch complete")
}
