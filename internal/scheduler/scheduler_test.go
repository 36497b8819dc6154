package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler("every night", func(context.Context) error { return nil }, false)
	assert.Error(t, s.Run(context.Background()))
}

func TestScheduler_RunOnStart(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler("0 6 * * *", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		cancel()
		return errors.New("upstream down")
	}, true)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestScheduler_SkipsWhenCancelled(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler("0 6 * * *", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, true)

	require.NoError(t, s.Run(ctx))
	assert.Zero(t, atomic.LoadInt32(&runs))
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	var runs int32
	release := make(chan struct{})
	started := make(chan struct{})

	s := NewScheduler("0 6 * * *", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
		return nil
	}, false)

	ctx := context.Background()
	go s.execute(ctx, "cron")
	<-started

	s.execute(ctx, "startup")
	close(release)

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}
