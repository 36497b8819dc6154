package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/jeffconboy/StatEdge/internal/metrics"
	"github.com/jeffconboy/StatEdge/internal/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS statcast_pitches (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		pitch_id        TEXT NOT NULL UNIQUE,
		game_pk         INTEGER NOT NULL,
		game_date       TEXT NOT NULL,
		batter_id       INTEGER NOT NULL,
		pitcher_id      INTEGER NOT NULL,
		events          TEXT,
		pitch_type      TEXT,
		release_speed   REAL,
		launch_speed    REAL,
		launch_angle    REAL,
		hit_distance_sc REAL,
		statcast_data   TEXT NOT NULL,
		created_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_statcast_pitches_game_date ON statcast_pitches (game_date);
	CREATE INDEX IF NOT EXISTS idx_statcast_pitches_batter_date ON statcast_pitches (batter_id, game_date);
`

const sqliteUpsertQuery = `
	INSERT INTO statcast_pitches (
		pitch_id, game_pk, game_date, batter_id, pitcher_id,
		events, pitch_type, release_speed, launch_speed, launch_angle, hit_distance_sc,
		statcast_data
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (pitch_id) DO UPDATE SET
		game_pk = excluded.game_pk,
		game_date = excluded.game_date,
		batter_id = excluded.batter_id,
		pitcher_id = excluded.pitcher_id,
		events = excluded.events,
		pitch_type = excluded.pitch_type,
		release_speed = excluded.release_speed,
		launch_speed = excluded.launch_speed,
		launch_angle = excluded.launch_angle,
		hit_distance_sc = excluded.hit_distance_sc,
		statcast_data = excluded.statcast_data,
		updated_at = CURRENT_TIMESTAMP
`

// SQLiteStore keeps pitch events in a local SQLite file.
// Dates are stored as YYYY-MM-DD text so comparisons stay lexical.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection serialises access
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure sqlite schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened sqlite store")

	return &SQLiteStore{db: conn, path: path}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to close sqlite store")
		return
	}
	log.Info().Str("path", s.path).Msg("Sqlite store closed")
}

// Health checks that the database file is reachable
func (s *SQLiteStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// Upsert inserts or updates events keyed by pitch_id inside one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, events []*models.Event) (int, error) {
	valid := validEvents(events)
	if len(valid) == 0 {
		return 0, nil
	}

	start := time.Now()
	n, err := s.upsert(ctx, valid)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDBQuery("upsert", pitchesTable, status, time.Since(start).Seconds())

	return n, err
}

func (s *SQLiteStore) upsert(ctx context.Context, events []*models.Event) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.NaturalKey, e.GamePK, e.DateKey(), e.BatterID, e.PitcherID,
			e.EventCode, e.PitchType, e.ReleaseSpeed, e.LaunchSpeed, e.LaunchAngle, e.HitDistanceSC,
			string(e.Payload),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert event %s: %w", e.NaturalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return len(events), nil
}

// CountByDate returns the number of stored events on date
func (s *SQLiteStore) CountByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM statcast_pitches WHERE game_date = ?`,
		date.Format(models.DateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for %s: %w", date.Format(models.DateLayout), err)
	}
	return count, nil
}

// CountGamesByDate returns the number of distinct games stored on date
func (s *SQLiteStore) CountGamesByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT game_pk) FROM statcast_pitches WHERE game_date = ?`,
		date.Format(models.DateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count games for %s: %w", date.Format(models.DateLayout), err)
	}
	return count, nil
}

// CountByEntity returns the stored footprint of one batter inside [start, end]
func (s *SQLiteStore) CountByEntity(ctx context.Context, entity int64, start, end time.Time) (models.EntityCoverage, error) {
	var (
		cov         models.EntityCoverage
		first, last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT game_date), MIN(game_date), MAX(game_date)
		FROM statcast_pitches
		WHERE batter_id = ? AND game_date BETWEEN ? AND ?`,
		entity, start.Format(models.DateLayout), end.Format(models.DateLayout),
	).Scan(&cov.Count, &cov.Dates, &first, &last)
	if err != nil {
		return cov, fmt.Errorf("failed to count events for entity %d: %w", entity, err)
	}

	if first.Valid {
		if cov.FirstDate, err = parseDateKey(first.String); err != nil {
			return cov, fmt.Errorf("failed to parse first date for entity %d: %w", entity, err)
		}
	}
	if last.Valid {
		if cov.LastDate, err = parseDateKey(last.String); err != nil {
			return cov, fmt.Errorf("failed to parse last date for entity %d: %w", entity, err)
		}
	}

	return cov, nil
}

// Totals returns overall stored coverage inside [start, end]
func (s *SQLiteStore) Totals(ctx context.Context, start, end time.Time) (models.StoreTotals, error) {
	var (
		t           models.StoreTotals
		first, last sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT game_pk),
			COUNT(DISTINCT batter_id),
			COUNT(DISTINCT pitcher_id),
			COUNT(DISTINCT game_date),
			MIN(game_date),
			MAX(game_date)
		FROM statcast_pitches
		WHERE game_date BETWEEN ? AND ?`,
		start.Format(models.DateLayout), end.Format(models.DateLayout),
	).Scan(&t.Records, &t.Games, &t.Batters, &t.Pitchers, &t.DatesWithData, &first, &last)
	if err != nil {
		return t, fmt.Errorf("failed to query store totals: %w", err)
	}

	t.EarliestDate = first.String
	t.LatestDate = last.String
	return t, nil
}
