package alarmsvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSchedulerFiresOnceAtDeadline(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	var mu sync.Mutex
	fired := 0
	done := make(chan struct{})

	err := s.SetAlarm(context.Background(), "h1", time.Now().Add(50*time.Millisecond).UnixNano(), func(int64) {
		mu.Lock()
		fired++
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire within timeout")
	}

	// Give the scheduler a moment to see if it (incorrectly) fires again.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired, "a one-shot alarm must fire exactly once")
}

func TestCronSchedulerCancelPreventsFiring(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	fired := false
	err := s.SetAlarm(context.Background(), "h2", time.Now().Add(100*time.Millisecond).UnixNano(), func(int64) {
		fired = true
	})
	require.NoError(t, err)
	s.CancelAlarm("h2")

	time.Sleep(250 * time.Millisecond)
	assert.False(t, fired, "a cancelled alarm must not fire")
}

func TestCronSchedulerReplacesAlarmUnderSameHandle(t *testing.T) {
	s := NewCronScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var firedWith string
	done := make(chan struct{})

	require.NoError(t, s.SetAlarm(context.Background(), "h3", time.Now().Add(500*time.Millisecond).UnixNano(), func(int64) {
		mu.Lock()
		firedWith = "first"
		mu.Unlock()
	}))
	// Replace before the first ever fires, with a much sooner deadline.
	require.NoError(t, s.SetAlarm(context.Background(), "h3", time.Now().Add(20*time.Millisecond).UnixNano(), func(int64) {
		mu.Lock()
		firedWith = "second"
		mu.Unlock()
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement alarm did not fire within timeout")
	}
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "second", firedWith, "setting a new alarm under the same handle must replace, not add to, the previous one")
}
