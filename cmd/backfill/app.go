package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/checkpoint"
	"github.com/jeffconboy/StatEdge/internal/client"
	"github.com/jeffconboy/StatEdge/internal/collector"
	"github.com/jeffconboy/StatEdge/internal/config"
	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/lease"
	"github.com/jeffconboy/StatEdge/internal/metrics"
	"github.com/jeffconboy/StatEdge/internal/models"
	"github.com/jeffconboy/StatEdge/internal/report"
	"github.com/jeffconboy/StatEdge/internal/repository"
	"github.com/jeffconboy/StatEdge/internal/validation"
)

// finishTimeout bounds the work done after cancellation: totals, report, push
const finishTimeout = 30 * time.Second

// app holds the wired pipeline for one season
type app struct {
	cfg     *config.Config
	savant  *client.SavantClient
	store   repository.Store
	tracker *checkpoint.Tracker
	leaser  lease.Leaser
	rdb     *redis.Client
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{
		cfg: cfg,
		savant: client.NewSavantClient(
			cfg.SavantBaseURL,
			cfg.SavantUserAgent,
			cfg.SavantTimeout,
			cfg.SavantMaxConcurrent,
		),
	}

	tracker, err := checkpoint.NewTracker(checkpoint.NewFile(cfg.CheckpointDir, cfg.Season), log.Logger)
	if err != nil {
		return nil, err
	}
	a.tracker = tracker

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if cfg.LeaseBackend == config.LeaseRedis {
		rdb, err := lease.NewRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}
	a.leaser = newLeaser(cfg, a.rdb)

	return a, nil
}

// newLeaser returns a Redis leaser scoped to the season when a client is
// connected and an in-process one otherwise
func newLeaser(cfg *config.Config, rdb *redis.Client) lease.Leaser {
	if rdb == nil {
		return lease.NewLocalLeaser()
	}
	return lease.NewRedisLeaser(rdb, cfg.Season, cfg.LeaseTTL)
}

// followSeason moves a long-running app to the season in play on today.
// A season pinned by SEASON or --season never changes.
func (a *app) followSeason(today time.Time) error {
	if !a.cfg.FollowsCurrentSeason() {
		return nil
	}
	season := daterange.CurrentSeason(today)
	if season == a.cfg.Season {
		return nil
	}

	next, err := a.cfg.ForSeason(season)
	if err != nil {
		return err
	}
	tracker, err := checkpoint.NewTracker(checkpoint.NewFile(next.CheckpointDir, season), log.Logger)
	if err != nil {
		return err
	}

	log.Info().
		Int("previous", a.cfg.Season).
		Int("season", season).
		Msg("Switching to the current season")
	a.cfg, a.tracker, a.leaser = next, tracker, newLeaser(next, a.rdb)
	return nil
}

// sampleSeed returns the validation sample seed for the nth run of this
// process. A fixed --seed gives a reproducible sequence that still moves on
// between scheduled runs.
func sampleSeed(run int) int64 {
	if flagSeed == 0 {
		return time.Now().UnixNano()
	}
	return flagSeed + int64(run)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return repository.OpenSQLite(ctx, cfg.SQLitePath)
	}

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the store and lease connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// collect runs one collection pass over the dates the checkpoint has not
// completed. The error is non-nil only when progress could not be saved.
func (a *app) collect(ctx context.Context) (models.RunStats, error) {
	start, end, err := a.cfg.SeasonRange()
	if err != nil {
		return models.RunStats{}, err
	}
	dates := daterange.Remaining(start, end, time.Now().UTC(), a.tracker.Completed())

	worker := collector.NewWorker(a.savant, a.store, a.tracker, a.leaser, collector.RetryPolicy{
		MaxRetries: a.cfg.MaxRetries,
		BaseDelay:  a.cfg.RetryBaseDelay,
		MaxDelay:   a.cfg.RetryMaxDelay,
	}, log.Logger)
	runner := collector.NewRunner(worker, a.store, a.cfg.BatchSizeDays, a.cfg.WorkerConcurrency, log.Logger)

	return runner.Run(ctx, dates)
}

// validate checks a sample of dates and the key entities, then writes and
// prints the report. collection is nil for validate-only runs.
func (a *app) validate(ctx context.Context, collection *models.RunStats, seed int64) (*report.Report, error) {
	start, end, err := a.cfg.SeasonRange()
	if err != nil {
		return nil, err
	}
	end = daterange.Cap(end, time.Now().UTC())

	thresholds := validation.Thresholds{Date: a.cfg.SampleThreshold, Entity: a.cfg.EntityThreshold}
	engine := validation.NewEngine(a.savant, a.store, thresholds, a.cfg.WorkerConcurrency, log.Logger)

	sample := validation.SampleDates(rand.New(rand.NewSource(seed)), start, end, a.cfg.SampleSize)
	log.Info().
		Int("sampled", len(sample)).
		Int64("seed", seed).
		Msg("Validating sampled dates")

	dateResults := engine.ValidateDates(ctx, sample)
	entityResults := engine.ValidateEntities(ctx, validation.Entities(a.cfg.KeyEntityIDs), start, end)

	// a cancelled run still gets its report
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	totals, err := a.store.Totals(finishCtx, start, end)
	if err != nil {
		return nil, err
	}

	rep := report.Build(report.Input{
		Season:     a.cfg.Season,
		Start:      start,
		End:        end,
		Totals:     totals,
		Collection: collection,
		Dates:      dateResults,
		Entities:   entityResults,
		Thresholds: thresholds,
	})

	path, err := rep.Write(a.cfg.ReportDir)
	if err != nil {
		return nil, err
	}
	metrics.RecordValidation(rep.SampleCompleteness, rep.EntityCompleteness, totals.Records)

	log.Info().
		Str("status", string(rep.Status)).
		Float64("sample_completeness", rep.SampleCompleteness).
		Float64("entity_completeness", rep.EntityCompleteness).
		Int("issues", len(rep.Issues)).
		Str("path", path).
		Msg("Validation report written")

	rep.Render(os.Stdout)
	return rep, nil
}

// pipeline runs collection then validation, as the run command and each
// scheduled tick do
func (a *app) pipeline(ctx context.Context, seed int64) (*report.Report, error) {
	stats, err := a.collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect season %d: %w", a.cfg.Season, err)
	}
	return a.validate(ctx, &stats, seed)
}

// finishRun records run metrics and pushes them when a Pushgateway is configured
func finishRun(ctx context.Context, command, status string, started time.Time) {
	metrics.RecordRun(command, status, time.Since(started).Seconds())

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := metrics.Push(pushCtx, cfg.PushgatewayURL, "statedge_backfill"); err != nil {
		log.Warn().Err(err).Msg("Failed to push metrics")
	}
}
