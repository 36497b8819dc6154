package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for keys, checkpoints and reports
const DateLayout = "2006-01-02"

// ErrInvalidEvent is returned by Event.Validate
var ErrInvalidEvent = errors.New("invalid event")

// RawRecord is one upstream row keyed by column name.
// Values are whatever the source produced (CSV cells arrive as strings).
type RawRecord map[string]any

// Event represents a single pitch stored in statcast_pitches.
// The batter is the primary entity of the event and the pitcher the secondary one.
type Event struct {
	ID         int64     `db:"id"`
	NaturalKey string    `db:"pitch_id"`
	GamePK     int64     `db:"game_pk"`
	GameDate   time.Time `db:"game_date"`
	BatterID   int64     `db:"batter_id"`
	PitcherID  int64     `db:"pitcher_id"`

	// Indexed scalar fields
	EventCode     sql.NullString  `db:"events"`
	PitchType     sql.NullString  `db:"pitch_type"`
	ReleaseSpeed  sql.NullFloat64 `db:"release_speed"`
	LaunchSpeed   sql.NullFloat64 `db:"launch_speed"`
	LaunchAngle   sql.NullFloat64 `db:"launch_angle"`
	HitDistanceSC sql.NullFloat64 `db:"hit_distance_sc"`

	// Full upstream row with missing values encoded as null
	Payload json.RawMessage `db:"statcast_data"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// DateKey returns the game date formatted with DateLayout
func (e *Event) DateKey() string {
	return e.GameDate.Format(DateLayout)
}

// Validate checks the fields the store relies on for keyed upserts
func (e *Event) Validate() error {
	if e.NaturalKey == "" {
		return fmt.Errorf("%w: empty natural key", ErrInvalidEvent)
	}
	if e.GameDate.IsZero() {
		return fmt.Errorf("%w: missing game date for %s", ErrInvalidEvent, e.NaturalKey)
	}
	if e.GamePK <= 0 {
		return fmt.Errorf("%w: missing game_pk for %s", ErrInvalidEvent, e.NaturalKey)
	}
	if len(e.Payload) > 0 && !json.Valid(e.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON for %s", ErrInvalidEvent, e.NaturalKey)
	}
	return nil
}

// StoreTotals summarises stored coverage over a date range
type StoreTotals struct {
	Records       int64  `json:"totalPitches"`
	Games         int64  `json:"uniqueGames"`
	Batters       int64  `json:"uniqueBatters"`
	Pitchers      int64  `json:"uniquePitchers"`
	DatesWithData int64  `json:"datesWithData"`
	EarliestDate  string `json:"earliestDate,omitempty"`
	LatestDate    string `json:"latestDate,omitempty"`
}

// EntityCoverage is the stored footprint of one entity inside a date range.
// FirstDate and LastDate are zero when Count is zero.
type EntityCoverage struct {
	Count     int
	Dates     int
	FirstDate time.Time
	LastDate  time.Time
}
