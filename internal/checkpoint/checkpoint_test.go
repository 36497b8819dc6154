package checkpoint

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffconboy/StatEdge/internal/models"
)

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	f := NewFile(t.TempDir(), 2025)

	st, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, st.CompletedDates)
	assert.Empty(t, st.FailedDates)
	assert.Equal(t, "season_2025_progress.json", filepath.Base(f.Path()))
}

func TestLoad_CorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(dir, 2025)
	require.NoError(t, os.WriteFile(f.Path(), []byte(`{"completedDates": ["2025-04-01"`), 0o644))

	_, err := f.Load()
	assert.Error(t, err)
}

func TestLoad_MinimalDocument(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(dir, 2025)
	doc := `{"completedDates": ["2025-04-02", "2025-04-01", "2025-04-01"], "failedDates": ["2025-04-03", "2025-04-02"], "lastUpdate": "2025-04-04T06:00:00Z"}`
	require.NoError(t, os.WriteFile(f.Path(), []byte(doc), 0o644))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04-01", "2025-04-02"}, st.CompletedDates)
	assert.Equal(t, []string{"2025-04-03"}, st.FailedDates, "a date in both sets counts as complete")

	assert.Equal(t, models.ProgressComplete, st.Progress("2025-04-02").Status)
	assert.Equal(t, models.ProgressFailed, st.Progress("2025-04-03").Status)
	assert.Equal(t, models.ProgressPending, st.Progress("2025-04-04").Status)
}

func TestSave_RoundTripLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(dir, 2025)

	require.NoError(t, f.Save(State{CompletedDates: []string{"2025-04-01"}, TotalRecords: 512}))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04-01"}, st.CompletedDates)
	assert.Equal(t, int64(512), st.TotalRecords)
	assert.False(t, st.LastUpdate.IsZero())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "season_2025_progress.json", entries[0].Name())
}

func TestTracker_Transitions(t *testing.T) {
	f := NewFile(t.TempDir(), 2025)
	tr, err := NewTracker(f, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.MarkFailed("2025-04-02", 4, "upstream unavailable"))
	assert.Equal(t, models.ProgressFailed, tr.Progress("2025-04-02").Status)
	assert.Equal(t, 4, tr.Progress("2025-04-02").AttemptCount)

	require.NoError(t, tr.MarkComplete("2025-04-02", 1, 300))
	p := tr.Progress("2025-04-02")
	assert.Equal(t, models.ProgressComplete, p.Status)
	assert.Equal(t, 5, p.AttemptCount)
	assert.False(t, p.LastAttemptAt.IsZero())

	// completed dates are never demoted
	require.NoError(t, tr.MarkFailed("2025-04-02", 1, "late failure"))
	assert.Equal(t, models.ProgressComplete, tr.Progress("2025-04-02").Status)

	// every transition is on disk
	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04-02"}, st.CompletedDates)
	assert.Empty(t, st.FailedDates)
	assert.Equal(t, int64(300), st.TotalRecords)
	assert.True(t, tr.Completed()["2025-04-02"])
}

func TestTracker_RecollectedDateCountsOnce(t *testing.T) {
	f := NewFile(t.TempDir(), 2025)
	tr, err := NewTracker(f, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tr.MarkComplete("2025-04-01", 1, 300))
	require.NoError(t, tr.MarkComplete("2025-04-02", 1, 250))

	// an operator removes 2025-04-01 from completedDates to force a re-collect
	st := tr.Snapshot()
	st.CompletedDates = []string{"2025-04-02"}
	require.NoError(t, f.Save(st))

	tr, err = NewTracker(f, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(250), tr.Snapshot().TotalRecords)

	require.NoError(t, tr.MarkComplete("2025-04-01", 1, 310))

	loaded, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(560), loaded.TotalRecords)
	assert.Equal(t, int64(310), loaded.Records["2025-04-01"])
	assert.Equal(t, 2, loaded.Attempts["2025-04-01"].AttemptCount)
}

func TestTracker_SaveFailureKeepsState(t *testing.T) {
	sub := filepath.Join(t.TempDir(), "state")
	tr, err := NewTracker(NewFile(sub, 2025), zerolog.Nop())
	require.NoError(t, err)

	// a regular file where the checkpoint directory should be
	require.NoError(t, os.WriteFile(sub, []byte("x"), 0o644))

	assert.Error(t, tr.MarkComplete("2025-04-01", 1, 10))
	assert.False(t, tr.Completed()["2025-04-01"])
}

func TestTracker_Concurrent(t *testing.T) {
	f := NewFile(t.TempDir(), 2025)
	tr, err := NewTracker(f, zerolog.Nop())
	require.NoError(t, err)

	dates := []string{"2025-04-01", "2025-04-02", "2025-04-03", "2025-04-04", "2025-04-05", "2025-04-06"}
	var wg sync.WaitGroup
	for i, d := range dates {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, tr.MarkComplete(d, 1, 100))
			} else {
				assert.NoError(t, tr.MarkFailed(d, 4, "boom"))
			}
		}(i, d)
	}
	wg.Wait()

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-04-01", "2025-04-03", "2025-04-05"}, st.CompletedDates)
	assert.Equal(t, []string{"2025-04-02", "2025-04-04", "2025-04-06"}, st.FailedDates)
	assert.Equal(t, int64(300), st.TotalRecords)
}
