package checkpoint

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// Tracker owns the checkpoint state for one run and persists every transition
// before returning. It is safe for concurrent use by workers.
type Tracker struct {
	mu     sync.Mutex
	file   *File
	state  State
	now    func() time.Time
	logger zerolog.Logger
}

// NewTracker loads the checkpoint file and returns a tracker over it
func NewTracker(file *File, logger zerolog.Logger) (*Tracker, error) {
	st, err := file.Load()
	if err != nil {
		return nil, err
	}

	return &Tracker{
		file:   file,
		state:  st,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "checkpoint").Logger(),
	}, nil
}

// Completed returns a copy of the completed date set
func (t *Tracker) Completed() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Completed()
}

// Progress returns the persisted status of one date
func (t *Tracker) Progress(date string) models.DateProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Progress(date)
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state
	st.CompletedDates = append([]string(nil), t.state.CompletedDates...)
	st.FailedDates = append([]string(nil), t.state.FailedDates...)
	st.Attempts = make(map[string]Attempt, len(t.state.Attempts))
	for k, v := range t.state.Attempts {
		st.Attempts[k] = v
	}
	st.Records = make(map[string]int64, len(t.state.Records))
	for k, v := range t.state.Records {
		st.Records[k] = v
	}
	return st
}

// MarkComplete moves date into completedDates and stores its record count,
// replacing the count from any earlier collection of the same date.
// attempts is added to the date's attempt count across runs.
func (t *Tracker) MarkComplete(date string, attempts, records int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.state
	next.CompletedDates = append(append([]string(nil), t.state.CompletedDates...), date)
	next.FailedDates = remove(t.state.FailedDates, date)
	next.Records = make(map[string]int64, len(t.state.Records)+1)
	for k, v := range t.state.Records {
		next.Records[k] = v
	}
	next.Records[date] = int64(records)
	next.Attempts = t.withAttempt(date, attempts)

	if err := t.persist(next); err != nil {
		return err
	}

	t.logger.Debug().Str("date", date).Int("records", records).Msg("Date marked complete")
	return nil
}

// MarkFailed records date in failedDates. A completed date is never demoted.
func (t *Tracker) MarkFailed(date string, attempts int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if contains(t.state.CompletedDates, date) {
		return nil
	}

	next := t.state
	next.CompletedDates = append([]string(nil), t.state.CompletedDates...)
	next.FailedDates = append(remove(t.state.FailedDates, date), date)
	next.Attempts = t.withAttempt(date, attempts)

	if err := t.persist(next); err != nil {
		return err
	}

	t.logger.Warn().Str("date", date).Int("attempts", attempts).Str("reason", reason).Msg("Date marked failed")
	return nil
}

// persist saves next and only then adopts it, so a failed write leaves the
// in-memory state matching the file. Callers hold t.mu.
func (t *Tracker) persist(next State) error {
	next.LastUpdate = t.now()
	next.Normalize()

	if err := t.file.Save(next); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	t.state = next
	return nil
}

func (t *Tracker) withAttempt(date string, attempts int) map[string]Attempt {
	out := make(map[string]Attempt, len(t.state.Attempts)+1)
	for k, v := range t.state.Attempts {
		out[k] = v
	}
	prev := out[date]
	out[date] = Attempt{AttemptCount: prev.AttemptCount + attempts, LastAttemptAt: t.now()}
	return out
}

func remove(dates []string, date string) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if d != date {
			out = append(out, d)
		}
	}
	return out
}
