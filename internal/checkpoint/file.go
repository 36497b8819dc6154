// Package checkpoint persists per-date collection progress for a season.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// Attempt records how often a date was tried and when
type Attempt struct {
	AttemptCount  int       `json:"attemptCount"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

// State is the on-disk progress document.
// Only completedDates, failedDates and lastUpdate are required when loading.
type State struct {
	CompletedDates []string           `json:"completedDates"`
	FailedDates    []string           `json:"failedDates"`
	LastUpdate     time.Time          `json:"lastUpdate"`
	Attempts       map[string]Attempt `json:"attempts,omitempty"`
	Records        map[string]int64   `json:"records,omitempty"`
	TotalRecords   int64              `json:"totalRecords,omitempty"`
}

// Normalize sorts and de-duplicates both sets. A date present in both counts as complete.
// When per-date record counts are present, TotalRecords is their sum over completed dates.
func (s *State) Normalize() {
	completed := toSet(s.CompletedDates)
	failed := toSet(s.FailedDates)
	for d := range completed {
		delete(failed, d)
	}
	s.CompletedDates = sortedKeys(completed)
	s.FailedDates = sortedKeys(failed)
	if s.Attempts == nil {
		s.Attempts = map[string]Attempt{}
	}
	if s.Records == nil {
		s.Records = map[string]int64{}
	}
	if len(s.Records) > 0 {
		var total int64
		for _, d := range s.CompletedDates {
			total += s.Records[d]
		}
		s.TotalRecords = total
	}
}

// Completed returns the completed dates as a set
func (s *State) Completed() map[string]bool {
	return toSet(s.CompletedDates)
}

// Progress derives the status of one date from the state
func (s *State) Progress(date string) models.DateProgress {
	p := models.DateProgress{Date: date, Status: models.ProgressPending}
	if a, ok := s.Attempts[date]; ok {
		p.AttemptCount = a.AttemptCount
		p.LastAttemptAt = a.LastAttemptAt
	}
	switch {
	case contains(s.CompletedDates, date):
		p.Status = models.ProgressComplete
	case contains(s.FailedDates, date):
		p.Status = models.ProgressFailed
	}
	return p
}

// File reads and writes the progress document for one season
type File struct {
	path string
}

// NewFile returns the progress file season_<year>_progress.json inside dir
func NewFile(dir string, season int) *File {
	return &File{path: filepath.Join(dir, fmt.Sprintf("season_%d_progress.json", season))}
}

// Path returns the file location
func (f *File) Path() string {
	return f.path
}

// Load reads the progress document. A missing file yields an empty state;
// a file that exists but cannot be decoded is an error the caller must not ignore.
func (f *File) Load() (State, error) {
	var st State

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		st.Normalize()
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read checkpoint %s: %w", f.path, err)
	}

	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint %s: %w", f.path, err)
	}
	st.Normalize()

	return st, nil
}

// Save replaces the progress document atomically: a reader sees either the
// previous document or the new one, never a partial write.
func (f *File) Save(st State) error {
	st.Normalize()
	if st.LastUpdate.IsZero() {
		st.LastUpdate = time.Now().UTC()
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	return WriteFileAtomic(f.path, data)
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	// Persist the rename itself
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}

	return nil
}

func toSet(dates []string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		if d != "" {
			set[d] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func contains(sorted []string, date string) bool {
	i := sort.SearchStrings(sorted, date)
	return i < len(sorted) && sorted[i] == date
}
