//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// Integration tests for database operations
// Run with: go test -v -tags=integration ./internal/repository/...

func setupTestDB(t *testing.T) (*Database, context.Context) {
	ctx := context.Background()

	cfg := Config{
		Host:     "localhost",
		Port:     "5432",
		Database: "statedge_test",
		User:     "statedge_user",
		Password: "statedge_password",
		SSLMode:  "disable",
	}

	db, err := NewDatabase(ctx, cfg)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, db.EnsureSchema(ctx))

	_, err = db.Pool.Exec(ctx, `TRUNCATE statcast_pitches`)
	require.NoError(t, err)

	return db, ctx
}

func teardownTestDB(t *testing.T, db *Database) {
	db.Close()
}

func TestDatabaseConnection(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	// Test health check
	err := db.Health(ctx)
	assert.NoError(t, err, "Database health check should pass")

	// Test stats
	stats := db.PoolStats()
	assert.NotNil(t, stats, "Should return connection pool stats")
	assert.GreaterOrEqual(t, stats["max_conns"].(int32), int32(1), "Should have at least 1 max connection")
}

func TestDatabasePing(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := db.Pool.Ping(ctx)
	assert.NoError(t, err, "Should successfully ping database")
}

func TestEventRepository_Upsert(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	events := []*models.Event{
		testEvent(778123, "2025-04-02", 1, 1, 592450),
		testEvent(778123, "2025-04-02", 1, 2, 592450),
		testEvent(778124, "2025-04-02", 2, 1, 545361),
	}

	n, err := db.Upsert(ctx, events)
	require.NoError(t, err, "Should insert events")
	assert.Equal(t, 3, n)

	n, err = db.Upsert(ctx, events)
	require.NoError(t, err, "Should update events")
	assert.Equal(t, 3, n)

	count, err := db.CountByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 3, count, "Upsert must not duplicate")

	games, err := db.CountGamesByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 2, games)

	var payload map[string]any
	require.NoError(t, db.Pool.QueryRow(ctx,
		`SELECT statcast_data FROM statcast_pitches WHERE pitch_id = $1`, events[0].NaturalKey,
	).Scan(&payload))
	assert.EqualValues(t, 592450, payload["batter"])
}

func TestEventRepository_FailedBatchRollsBack(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	_, err := db.Upsert(ctx, []*models.Event{testEvent(778123, "2025-04-02", 1, 1, 592450)})
	require.NoError(t, err)

	// valid JSON that jsonb refuses, so the third statement of the batch fails
	rejected := testEvent(778124, "2025-04-02", 2, 1, 545361)
	rejected.Payload = []byte(`{"des":"null \u0000 byte"}`)

	n, err := db.Upsert(ctx, []*models.Event{
		testEvent(778123, "2025-04-02", 1, 2, 592450),
		testEvent(778123, "2025-04-02", 1, 3, 592450),
		rejected,
		testEvent(778124, "2025-04-02", 2, 2, 545361),
	})
	require.Error(t, err, "jsonb must reject the NUL escape")
	assert.Zero(t, n)

	count, err := db.CountByDate(ctx, date("2025-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "No row of the failed batch may remain")
}

func TestEventRepository_Coverage(t *testing.T) {
	db, ctx := setupTestDB(t)
	defer teardownTestDB(t, db)

	_, err := db.Upsert(ctx, []*models.Event{
		testEvent(1, "2025-04-01", 1, 1, 592450),
		testEvent(2, "2025-04-03", 1, 1, 592450),
		testEvent(2, "2025-04-03", 2, 1, 545361),
	})
	require.NoError(t, err)

	cov, err := db.CountByEntity(ctx, 592450, date("2025-03-15"), date("2025-11-15"))
	require.NoError(t, err)
	assert.Equal(t, 2, cov.Count)
	assert.Equal(t, "2025-04-01", cov.FirstDate.Format(models.DateLayout))
	assert.Equal(t, "2025-04-03", cov.LastDate.Format(models.DateLayout))

	totals, err := db.Totals(ctx, date("2025-03-15"), date("2025-11-15"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.Records)
	assert.Equal(t, int64(2), totals.Games)
	assert.Equal(t, int64(2), totals.Batters)
	assert.Equal(t, int64(2), totals.DatesWithData)
	assert.Equal(t, "2025-04-01", totals.EarliestDate)
}
