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

func TestAdd_InvalidSpec(t *testing.T) {
	s := New(nil)
	err := s.Add("learn", "not a cron spec", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Empty(t, s.Status())
}

func TestAdd_DuplicateName(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Add("learn", "@every 1h", noop))
	assert.Error(t, s.Add("learn", "@every 2h", noop))
}

func TestRunNow_RecordsResult(t *testing.T) {
	s := New(nil)
	calls := 0
	require.NoError(t, s.Add("label", "0 3 * * *", func(context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	}))

	assert.True(t, s.RunNow("label"))
	st := s.Status()
	require.Len(t, st, 1)
	assert.Equal(t, 1, st[0].Runs)
	assert.Empty(t, st[0].LastError)

	assert.True(t, s.RunNow("label"))
	st = s.Status()
	assert.Equal(t, 2, st[0].Runs)
	assert.Equal(t, "boom", st[0].LastError)

	assert.False(t, s.RunNow("missing"))
}

func TestRunNow_RecoversPanic(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Add("bad", "@every 1h", func(context.Context) error { panic("oops") }))
	assert.True(t, s.RunNow("bad"))
	assert.Contains(t, s.Status()[0].LastError, "oops")
}

func TestRunNow_SkipsOverlap(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Add("slow", "@every 1h", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan bool)
	go func() { done <- s.RunNow("slow") }()
	<-started
	assert.False(t, s.RunNow("slow"))
	assert.True(t, s.Status()[0].Running)
	close(release)
	assert.True(t, <-done)
}

func TestStartStop_FiresAndCancels(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop(2 * time.Second)
	assert.False(t, s.Status()[0].NextRunAt.IsZero())
}
