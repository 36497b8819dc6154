package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/metrics"
	"github.com/jeffconboy/StatEdge/internal/models"
)

// EventRepository handles pitch event database operations
type EventRepository struct {
	db *Database
}

const upsertEventQuery = `
	INSERT INTO statcast_pitches (
		pitch_id, game_pk, game_date, batter_id, pitcher_id,
		events, pitch_type, release_speed, launch_speed, launch_angle, hit_distance_sc,
		statcast_data
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (pitch_id) DO UPDATE SET
		game_pk = EXCLUDED.game_pk,
		game_date = EXCLUDED.game_date,
		batter_id = EXCLUDED.batter_id,
		pitcher_id = EXCLUDED.pitcher_id,
		events = EXCLUDED.events,
		pitch_type = EXCLUDED.pitch_type,
		release_speed = EXCLUDED.release_speed,
		launch_speed = EXCLUDED.launch_speed,
		launch_angle = EXCLUDED.launch_angle,
		hit_distance_sc = EXCLUDED.hit_distance_sc,
		statcast_data = EXCLUDED.statcast_data,
		updated_at = NOW()
`

// Upsert inserts or updates events keyed by pitch_id inside one transaction.
// Invalid events are skipped; any write error rolls back the whole call.
// Returns the number of events written.
func (r *EventRepository) Upsert(ctx context.Context, events []*models.Event) (int, error) {
	valid := validEvents(events)
	if len(valid) == 0 {
		return 0, nil
	}

	start := time.Now()
	n, err := r.upsert(ctx, valid)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDBQuery("upsert", pitchesTable, status, time.Since(start).Seconds())

	return n, err
}

func (r *EventRepository) upsert(ctx context.Context, events []*models.Event) (int, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(upsertEventQuery,
			e.NaturalKey, e.GamePK, e.GameDate, e.BatterID, e.PitcherID,
			e.EventCode, e.PitchType, e.ReleaseSpeed, e.LaunchSpeed, e.LaunchAngle, e.HitDistanceSC,
			string(e.Payload),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range events {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("failed to upsert event %s: %w", events[i].NaturalKey, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}

	log.Debug().
		Int("count", len(events)).
		Str("date", events[0].DateKey()).
		Msg("Events upserted")

	return len(events), nil
}

// CountByDate returns the number of stored events on date
func (r *EventRepository) CountByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM statcast_pitches WHERE game_date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for %s: %w", date.Format(models.DateLayout), err)
	}
	return count, nil
}

// CountGamesByDate returns the number of distinct games stored on date
func (r *EventRepository) CountGamesByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT game_pk) FROM statcast_pitches WHERE game_date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count games for %s: %w", date.Format(models.DateLayout), err)
	}
	return count, nil
}

// CountByEntity returns how many pitches a batter saw inside [start, end]
// and the first and last dates they appear on
func (r *EventRepository) CountByEntity(ctx context.Context, entity int64, start, end time.Time) (models.EntityCoverage, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT game_date), MIN(game_date), MAX(game_date)
		FROM statcast_pitches
		WHERE batter_id = $1 AND game_date BETWEEN $2 AND $3
	`

	var (
		cov         models.EntityCoverage
		first, last *time.Time
	)
	if err := r.db.Pool.QueryRow(ctx, query, entity, start, end).Scan(&cov.Count, &cov.Dates, &first, &last); err != nil {
		return cov, fmt.Errorf("failed to count events for entity %d: %w", entity, err)
	}
	if first != nil {
		cov.FirstDate = first.UTC()
	}
	if last != nil {
		cov.LastDate = last.UTC()
	}

	return cov, nil
}

// Totals returns overall stored coverage inside [start, end]
func (r *EventRepository) Totals(ctx context.Context, start, end time.Time) (models.StoreTotals, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT game_pk),
			COUNT(DISTINCT batter_id),
			COUNT(DISTINCT pitcher_id),
			COUNT(DISTINCT game_date),
			MIN(game_date),
			MAX(game_date)
		FROM statcast_pitches
		WHERE game_date BETWEEN $1 AND $2
	`

	var (
		t           models.StoreTotals
		first, last *time.Time
	)
	err := r.db.Pool.QueryRow(ctx, query, start, end).Scan(
		&t.Records, &t.Games, &t.Batters, &t.Pitchers, &t.DatesWithData, &first, &last,
	)
	if err != nil {
		return t, fmt.Errorf("failed to query store totals: %w", err)
	}
	if first != nil {
		t.EarliestDate = first.Format(models.DateLayout)
	}
	if last != nil {
		t.LatestDate = last.Format(models.DateLayout)
	}

	return t, nil
}
