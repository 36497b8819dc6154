// Package normalize turns raw Statcast rows into storable pitch events.
//
// Every ingestion path goes through ParseCalendarDate for dates and
// NaturalKey for identity, so re-ingesting a row always produces the same
// key and the store can upsert instead of duplicating.
package normalize

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// ErrMalformedRecord marks a raw row that cannot be stored
var ErrMalformedRecord = errors.New("malformed record")

// Statcast CSV column names
const (
	ColGamePK       = "game_pk"
	ColGameDate     = "game_date"
	ColBatter       = "batter"
	ColPitcher      = "pitcher"
	ColPlayID       = "play_id"
	ColPitchNumber  = "pitch_number"
	ColAtBatNumber  = "at_bat_number"
	ColInning       = "inning"
	ColEvents       = "events"
	ColPitchType    = "pitch_type"
	ColReleaseSpeed = "release_speed"
	ColLaunchSpeed  = "launch_speed"
	ColLaunchAngle  = "launch_angle"
	ColHitDistance  = "hit_distance_sc"
)

// Normalizer converts raw rows into models.Event values
type Normalizer struct{}

// New creates a Normalizer
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize builds a canonical event from a raw upstream row
func (n *Normalizer) Normalize(raw models.RawRecord) (*models.Event, error) {
	key, err := NaturalKey(raw)
	if err != nil {
		return nil, err
	}

	gameDate, err := ParseCalendarDate(raw[ColGameDate])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColGameDate, err)
	}

	gamePK, err := requiredID(raw, ColGamePK)
	if err != nil {
		return nil, err
	}
	batter, err := requiredID(raw, ColBatter)
	if err != nil {
		return nil, err
	}
	pitcher, err := requiredID(raw, ColPitcher)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(Clean(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedRecord, err)
	}

	event := &models.Event{
		NaturalKey:    key,
		GamePK:        gamePK,
		GameDate:      gameDate,
		BatterID:      batter,
		PitcherID:     pitcher,
		EventCode:     nullString(raw[ColEvents]),
		PitchType:     nullString(raw[ColPitchType]),
		ReleaseSpeed:  nullFloat(raw[ColReleaseSpeed]),
		LaunchSpeed:   nullFloat(raw[ColLaunchSpeed]),
		LaunchAngle:   nullFloat(raw[ColLaunchAngle]),
		HitDistanceSC: nullFloat(raw[ColHitDistance]),
		Payload:       payload,
	}

	return event, nil
}

// NaturalKey derives the pitch identifier
// "{game_pk}_{play_id}_{pitch_number}_{at_bat_number}_{inning}".
// Missing components other than game_pk default to 0.
func NaturalKey(raw models.RawRecord) (string, error) {
	gamePK, err := requiredID(raw, ColGamePK)
	if err != nil {
		return "", err
	}

	parts := [4]string{}
	for i, col := range []string{ColPlayID, ColPitchNumber, ColAtBatNumber, ColInning} {
		parts[i] = keyPart(raw[col])
	}

	return fmt.Sprintf("%d_%s_%s_%s_%s", gamePK, parts[0], parts[1], parts[2], parts[3]), nil
}

// keyPart renders integral numbers without a fractional part so "3" and "3.0"
// produce the same key
func keyPart(v any) string {
	if IsMissing(v) {
		return "0"
	}
	if n, ok, err := Int64(v); err == nil && ok {
		return strconv.FormatInt(n, 10)
	}
	s, _ := String(v)
	return s
}

func requiredID(raw models.RawRecord, col string) (int64, error) {
	id, ok, err := Int64(raw[col])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, col, err)
	}
	if !ok || id <= 0 {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedRecord, col)
	}
	return id, nil
}

func nullString(v any) (ns sql.NullString) {
	if s, ok := String(v); ok {
		ns.String, ns.Valid = s, true
	}
	return ns
}

// Measurements that fail to parse are stored as null; the payload keeps the original text.
func nullFloat(v any) (nf sql.NullFloat64) {
	if f, ok, err := Float64(v); err == nil && ok {
		nf.Float64, nf.Valid = f, true
	}
	return nf
}
