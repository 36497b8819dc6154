package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var april1 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

func TestLocalLeaser_Exclusive(t *testing.T) {
	l := NewLocalLeaser()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, april1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, april1)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire of a held date must fail")

	other, ok, err := l.Acquire(ctx, april1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, ok, "other dates are independent")
	other()

	release()
	release() // idempotent

	again, ok, err := l.Acquire(ctx, april1)
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestLocalLeaser_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := NewLocalLeaser().Acquire(ctx, april1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestLocalLeaser_OneWinner(t *testing.T) {
	l := NewLocalLeaser()
	var winners int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := l.Acquire(context.Background(), april1); err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestRedisLeaser_Key(t *testing.T) {
	l := NewRedisLeaser(nil, 2025, time.Minute)
	assert.Equal(t, "statedge:lease:2025:2025-04-01", l.Key(april1))
}
