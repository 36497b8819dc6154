// Package lease hands out exclusive ownership of a calendar date so that two
// workers, in this process or another, never collect the same date at once.
package lease

import (
	"context"
	"sync"
	"time"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// Leaser grants per-date leases. When ok is false the date is owned elsewhere
// and release is nil. release is safe to call more than once.
type Leaser interface {
	Acquire(ctx context.Context, date time.Time) (release func(), ok bool, err error)
}

// LocalLeaser guards dates within one process
type LocalLeaser struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLeaser creates an empty in-process leaser
func NewLocalLeaser() *LocalLeaser {
	return &LocalLeaser{held: make(map[string]struct{})}
}

// Acquire takes the lease for date if nobody in this process holds it
func (l *LocalLeaser) Acquire(ctx context.Context, date time.Time) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	key := date.Format(models.DateLayout)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[key]; taken {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, true, nil
}
