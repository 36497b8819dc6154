package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffconboy/StatEdge/internal/models"
)

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testEvent(gamePK int64, day string, atBat, pitch int, batter int64) *models.Event {
	key := fmt.Sprintf("%d_0_%d_%d_1", gamePK, pitch, atBat)
	return &models.Event{
		NaturalKey:   key,
		GamePK:       gamePK,
		GameDate:     date(day),
		BatterID:     batter,
		PitcherID:    669203,
		PitchType:    sql.NullString{String: "FF", Valid: true},
		ReleaseSpeed: sql.NullFloat64{Float64: 95.1, Valid: true},
		Payload:      []byte(fmt.Sprintf(`{"game_pk":%d,"batter":%d,"pitch_number":%d}`, gamePK, batter, pitch)),
	}
}

func setupSQLite(t *testing.T) (*SQLiteStore, context.Context) {
	t.Helper()
	ctx := context.Background()

	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "statedge.db"))
	require.NoError(t, err, "Failed to open sqlite store")
	t.Cleanup(store.Close)

	return store, ctx
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	store, ctx := setupSQLite(t)

	events := []*models.Event{
		testEvent(778123, "2025-04-02", 1, 1, 592450),
		testEvent(778123, "2025-04-02", 1, 2, 592450),
		testEvent(778124, "2025-04-02", 1, 1, 545361),
	}

	n, err := store.Upsert(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// same keys again, one field changed
	events[0].PitchType = sql.NullString{String: "SL", Valid: true}
	n, err = store.Upsert(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := store.CountByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 3, count, "re-upserting must not duplicate")

	var pitchType string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT pitch_type FROM statcast_pitches WHERE pitch_id = ?`, events[0].NaturalKey,
	).Scan(&pitchType))
	assert.Equal(t, "SL", pitchType, "second write wins")

	games, err := store.CountGamesByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 2, games)
}

func TestSQLiteStore_SkipsInvalidEvents(t *testing.T) {
	store, ctx := setupSQLite(t)

	bad := testEvent(778123, "2025-04-02", 2, 1, 592450)
	bad.Payload = []byte(`{not json`)
	noKey := testEvent(778123, "2025-04-02", 3, 1, 592450)
	noKey.NaturalKey = ""

	n, err := store.Upsert(ctx, []*models.Event{
		testEvent(778123, "2025-04-02", 1, 1, 592450),
		bad,
		nil,
		noKey,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = store.Upsert(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_CountByEntity(t *testing.T) {
	store, ctx := setupSQLite(t)

	_, err := store.Upsert(ctx, []*models.Event{
		testEvent(1, "2025-03-30", 1, 1, 592450),
		testEvent(2, "2025-04-01", 1, 1, 592450),
		testEvent(2, "2025-04-01", 1, 2, 592450),
		testEvent(3, "2025-04-05", 4, 1, 592450),
		testEvent(3, "2025-04-05", 5, 1, 545361),
	})
	require.NoError(t, err)

	cov, err := store.CountByEntity(ctx, 592450, date("2025-04-01"), date("2025-04-30"))
	require.NoError(t, err)
	assert.Equal(t, 3, cov.Count)
	assert.Equal(t, 2, cov.Dates)
	assert.Equal(t, "2025-04-01", cov.FirstDate.Format(models.DateLayout))
	assert.Equal(t, "2025-04-05", cov.LastDate.Format(models.DateLayout))

	none, err := store.CountByEntity(ctx, 660271, date("2025-04-01"), date("2025-04-30"))
	require.NoError(t, err)
	assert.Zero(t, none.Count)
	assert.True(t, none.FirstDate.IsZero())
}

func TestSQLiteStore_Totals(t *testing.T) {
	store, ctx := setupSQLite(t)

	empty, err := store.Totals(ctx, date("2025-03-15"), date("2025-11-15"))
	require.NoError(t, err)
	assert.Zero(t, empty.Records)
	assert.Empty(t, empty.EarliestDate)

	_, err = store.Upsert(ctx, []*models.Event{
		testEvent(1, "2025-04-01", 1, 1, 592450),
		testEvent(1, "2025-04-01", 2, 1, 545361),
		testEvent(2, "2025-04-03", 1, 1, 592450),
		testEvent(9, "2024-09-30", 1, 1, 592450),
	})
	require.NoError(t, err)

	totals, err := store.Totals(ctx, date("2025-03-15"), date("2025-11-15"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Records)
	assert.Equal(t, int64(2), totals.Games)
	assert.Equal(t, int64(2), totals.Batters)
	assert.Equal(t, int64(1), totals.Pitchers)
	assert.Equal(t, int64(2), totals.DatesWithData)
	assert.Equal(t, "2025-04-01", totals.EarliestDate)
	assert.Equal(t, "2025-04-03", totals.LatestDate)
}

func TestSQLiteStore_Health(t *testing.T) {
	store, ctx := setupSQLite(t)
	assert.NoError(t, store.Health(ctx))
}

func TestSQLiteStore_FailedBatchRollsBack(t *testing.T) {
	store, ctx := setupSQLite(t)

	existing := testEvent(778123, "2025-04-02", 1, 1, 592450)
	_, err := store.Upsert(ctx, []*models.Event{existing})
	require.NoError(t, err)

	// the fourth row of the next batch is rejected by the database
	_, err = store.db.ExecContext(ctx, `
		CREATE TRIGGER reject_row BEFORE INSERT ON statcast_pitches
		WHEN NEW.pitch_id = 'rejected'
		BEGIN SELECT RAISE(ABORT, 'row rejected'); END`)
	require.NoError(t, err)

	changed := testEvent(778123, "2025-04-02", 1, 1, 592450)
	changed.PitchType = sql.NullString{String: "SL", Valid: true}
	rejected := testEvent(778124, "2025-04-02", 2, 1, 545361)
	rejected.NaturalKey = "rejected"

	batch := []*models.Event{
		changed,
		testEvent(778123, "2025-04-02", 1, 2, 592450),
		testEvent(778123, "2025-04-02", 1, 3, 592450),
		rejected,
		testEvent(778124, "2025-04-02", 2, 2, 545361),
	}
	n, err := store.Upsert(ctx, batch)
	require.Error(t, err)
	assert.Zero(t, n)

	count, err := store.CountByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "no row of the failed batch may remain")

	var pitchType string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT pitch_type FROM statcast_pitches WHERE pitch_id = ?`, existing.NaturalKey,
	).Scan(&pitchType))
	assert.Equal(t, "FF", pitchType, "updates in the failed batch are rolled back too")
}
