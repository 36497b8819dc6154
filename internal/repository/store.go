package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/models"
)

const pitchesTable = "statcast_pitches"

// Store is the keyed event store the collector and validator work against.
// Both *Database (PostgreSQL) and *SQLiteStore satisfy it.
type Store interface {
	Upsert(ctx context.Context, events []*models.Event) (int, error)
	CountByDate(ctx context.Context, date time.Time) (int, error)
	CountGamesByDate(ctx context.Context, date time.Time) (int, error)
	CountByEntity(ctx context.Context, entity int64, start, end time.Time) (models.EntityCoverage, error)
	Totals(ctx context.Context, start, end time.Time) (models.StoreTotals, error)
	Close()
}

var (
	_ Store = (*Database)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// validEvents drops events the store cannot key and logs each one
func validEvents(events []*models.Event) []*models.Event {
	valid := make([]*models.Event, 0, len(events))
	for i, e := range events {
		if e == nil {
			log.Warn().Int("index", i).Msg("Skipping nil event")
			continue
		}
		if err := e.Validate(); err != nil {
			log.Warn().
				Err(err).
				Int("index", i).
				Str("pitch_id", e.NaturalKey).
				Msg("Skipping invalid event")
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

func parseDateKey(s string) (time.Time, error) {
	return time.Parse(models.DateLayout, s)
}
