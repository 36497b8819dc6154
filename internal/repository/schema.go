package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS statcast_pitches (
		id              BIGSERIAL PRIMARY KEY,
		pitch_id        TEXT NOT NULL UNIQUE,
		game_pk         BIGINT NOT NULL,
		game_date       DATE NOT NULL,
		batter_id       BIGINT NOT NULL,
		pitcher_id      BIGINT NOT NULL,
		events          TEXT,
		pitch_type      TEXT,
		release_speed   DOUBLE PRECISION,
		launch_speed    DOUBLE PRECISION,
		launch_angle    DOUBLE PRECISION,
		hit_distance_sc DOUBLE PRECISION,
		statcast_data   JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_statcast_pitches_game_date ON statcast_pitches (game_date);
	CREATE INDEX IF NOT EXISTS idx_statcast_pitches_batter_date ON statcast_pitches (batter_id, game_date);
	CREATE INDEX IF NOT EXISTS idx_statcast_pitches_pitcher ON statcast_pitches (pitcher_id);
`

// EnsureSchema creates the pitch table and its indexes if they do not exist
func (db *Database) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	log.Debug().Str("table", pitchesTable).Msg("Schema ready")
	return nil
}
