// Package validation compares stored coverage against the upstream source
// for sampled dates and key entities.
package validation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/models"
	"github.com/jeffconboy/StatEdge/internal/normalize"
)

// Fetcher returns the authoritative upstream rows for one date
type Fetcher interface {
	FetchEventsForDate(ctx context.Context, date time.Time) ([]models.RawRecord, error)
}

// Store exposes the stored counts being validated
type Store interface {
	CountByDate(ctx context.Context, date time.Time) (int, error)
	CountGamesByDate(ctx context.Context, date time.Time) (int, error)
	CountByEntity(ctx context.Context, entity int64, start, end time.Time) (models.EntityCoverage, error)
}

// Engine runs date and entity validation. It never writes to the store.
type Engine struct {
	fetcher     Fetcher
	store       Store
	thresholds  Thresholds
	concurrency int
	logger      zerolog.Logger
}

// NewEngine creates an engine fetching at most concurrency dates at once
func NewEngine(fetcher Fetcher, store Store, thresholds Thresholds, concurrency int, logger zerolog.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		fetcher:     fetcher,
		store:       store,
		thresholds:  thresholds,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "validation").Logger(),
	}
}

// ValidateDates checks each date's stored record count against the upstream
// count. Results are returned in the order of dates.
func (e *Engine) ValidateDates(ctx context.Context, dates []time.Time) []models.ValidationResult {
	results := make([]models.ValidationResult, len(dates))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			results[i] = e.validateDate(ctx, date)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) validateDate(ctx context.Context, date time.Time) models.ValidationResult {
	key := daterange.Key(date)
	res := models.ValidationResult{Kind: models.ValidationKindDate, SubjectKey: key}

	raw, err := e.fetcher.FetchEventsForDate(ctx, date)
	if err != nil {
		e.logger.Error().Err(err).Str("date", key).Msg("Upstream fetch failed during validation")
		return errorResult(res, err)
	}
	res.ExpectedCount = len(raw)
	res.ExpectedGames = distinctGames(raw)

	if res.ActualCount, err = e.store.CountByDate(ctx, date); err != nil {
		return errorResult(res, err)
	}
	if res.ActualGames, err = e.store.CountGamesByDate(ctx, date); err != nil {
		return errorResult(res, err)
	}

	res.CompletenessPct, res.Status = Classify(res.ActualCount, res.ExpectedCount, e.thresholds.Date)
	if !res.Status.Passed() {
		res.Message = fmt.Sprintf("Missing %d records", res.ExpectedCount-res.ActualCount)
		e.logger.Warn().
			Str("date", key).
			Int("expected", res.ExpectedCount).
			Int("actual", res.ActualCount).
			Float64("completeness", res.CompletenessPct).
			Msg("Date incomplete")
	} else {
		e.logger.Info().
			Str("date", key).
			Int("records", res.ActualCount).
			Str("status", string(res.Status)).
			Msg("Date validated")
	}

	return res
}

// entityTally accumulates upstream rows for one entity
type entityTally struct {
	count       int
	dates       map[string]struct{}
	first, last time.Time
}

func (t *entityTally) add(day time.Time) {
	t.count++
	t.dates[daterange.Key(day)] = struct{}{}
	if t.first.IsZero() || day.Before(t.first) {
		t.first = day
	}
	if day.After(t.last) {
		t.last = day
	}
}

// ValidateEntities walks [start, end] upstream once, tallies the rows of each
// entity and compares them with the stored footprint. If the walk fails every
// entity is reported as error.
func (e *Engine) ValidateEntities(ctx context.Context, entities []Entity, start, end time.Time) []models.ValidationResult {
	results := make([]models.ValidationResult, len(entities))
	for i, ent := range entities {
		results[i] = models.ValidationResult{
			Kind:        models.ValidationKindEntity,
			SubjectKey:  strconv.FormatInt(ent.ID, 10),
			SubjectName: ent.Name,
		}
	}
	if len(entities) == 0 {
		return results
	}

	tallies, err := e.walkUpstream(ctx, entities, start, end)
	if err != nil {
		e.logger.Error().Err(err).Msg("Upstream walk failed during entity validation")
		for i := range results {
			results[i] = errorResult(results[i], err)
		}
		return results
	}

	for i, ent := range entities {
		results[i] = e.compareEntity(ctx, results[i], ent, tallies[ent.ID], start, end)
	}
	return results
}

func (e *Engine) walkUpstream(ctx context.Context, entities []Entity, start, end time.Time) (map[int64]*entityTally, error) {
	tallies := make(map[int64]*entityTally, len(entities))
	for _, ent := range entities {
		tallies[ent.ID] = &entityTally{dates: map[string]struct{}{}}
	}

	dates := daterange.All(start, end)
	e.logger.Info().
		Int("entities", len(entities)).
		Int("dates", len(dates)).
		Msg("Walking upstream range for entity validation")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, date := range dates {
		date := date
		g.Go(func() error {
			raw, err := e.fetcher.FetchEventsForDate(gctx, date)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", daterange.Key(date), err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, rec := range raw {
				batter, ok, err := normalize.Int64(rec[normalize.ColBatter])
				if err != nil || !ok {
					continue
				}
				t, tracked := tallies[batter]
				if !tracked {
					continue
				}
				day, err := normalize.ParseCalendarDate(rec[normalize.ColGameDate])
				if err != nil {
					day = date
				}
				t.add(day)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tallies, nil
}

func (e *Engine) compareEntity(ctx context.Context, res models.ValidationResult, ent Entity, tally *entityTally, start, end time.Time) models.ValidationResult {
	res.ExpectedCount = tally.count
	res.ExpectedGames = len(tally.dates)
	if !tally.first.IsZero() {
		res.ExpectedFirstDate = daterange.Key(tally.first)
		res.ExpectedLastDate = daterange.Key(tally.last)
	}

	cov, err := e.store.CountByEntity(ctx, ent.ID, start, end)
	if err != nil {
		return errorResult(res, err)
	}
	res.ActualCount = cov.Count
	res.ActualGames = cov.Dates
	if !cov.FirstDate.IsZero() {
		res.ActualFirstDate = daterange.Key(cov.FirstDate)
		res.ActualLastDate = daterange.Key(cov.LastDate)
	}

	res.CompletenessPct, res.Status = Classify(res.ActualCount, res.ExpectedCount, e.thresholds.Entity)
	if !res.Status.Passed() {
		res.Message = fmt.Sprintf("Missing %d records", res.ExpectedCount-res.ActualCount)
	}

	if res.ActualCount > 0 && res.ExpectedCount > 0 &&
		(res.ActualFirstDate != res.ExpectedFirstDate || res.ActualLastDate != res.ExpectedLastDate) {
		note := fmt.Sprintf("stored range %s..%s differs from upstream %s..%s (edge truncation)",
			res.ActualFirstDate, res.ActualLastDate, res.ExpectedFirstDate, res.ExpectedLastDate)
		if res.Message != "" {
			res.Message += "; " + note
		} else {
			res.Message = note
		}
	}

	evt := e.logger.Info()
	if !res.Status.Passed() {
		evt = e.logger.Warn()
	}
	evt.
		Str("entity", ent.Name).
		Int64("id", ent.ID).
		Int("expected", res.ExpectedCount).
		Int("actual", res.ActualCount).
		Float64("completeness", res.CompletenessPct).
		Str("status", string(res.Status)).
		Msg("Entity validated")

	return res
}

func errorResult(res models.ValidationResult, err error) models.ValidationResult {
	res.Status = models.ValidationError
	res.CompletenessPct = 0
	res.Error = err.Error()
	return res
}

func distinctGames(raw []models.RawRecord) int {
	games := make(map[int64]struct{})
	for _, rec := range raw {
		if pk, ok, err := normalize.Int64(rec[normalize.ColGamePK]); err == nil && ok {
			games[pk] = struct{}{}
		}
	}
	return len(games)
}
