package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWait struct {
	d  time.Duration
	ch chan time.Time
}

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits chan fakeWait
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, waits: make(chan fakeWait, 16)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.waits <- fakeWait{d: d, ch: ch}
	return ch
}

// nextWait returns the next timer requested by the loop.
func (c *fakeClock) nextWait(t *testing.T) fakeWait {
	t.Helper()
	select {
	case w := <-c.waits:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not start waiting")
		return fakeWait{}
	}
}

// fire advances the clock by the requested duration and releases the timer.
func (c *fakeClock) fire(w fakeWait) {
	c.mu.Lock()
	c.now = c.now.Add(w.d)
	now := c.now
	c.mu.Unlock()
	w.ch <- now
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for value")
		var zero T
		return zero
	}
}

func TestSchedulerFiresAtEachSlot(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
	spec := mustSpec(t, []string{"09:00", "18:00"}, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock))

	fired := make(chan time.Time, 4)
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		fired <- clock.Now()
		return nil
	}))

	w := clock.nextWait(t)
	assert.Equal(t, 3*time.Hour, w.d)
	next, ok := s.NextRun()
	require.True(t, ok)
	assert.Equal(t, utc("2026-01-10T09:00:00Z"), next)
	assert.Equal(t, SchedulerRunning, s.State())

	clock.fire(w)
	assert.Equal(t, utc("2026-01-10T09:00:00Z"), receive(t, fired))

	w = clock.nextWait(t)
	assert.Equal(t, 9*time.Hour, w.d)
	clock.fire(w)
	assert.Equal(t, utc("2026-01-10T18:00:00Z"), receive(t, fired))

	w = clock.nextWait(t)
	assert.Equal(t, 15*time.Hour, w.d)

	s.Stop()
	assert.Equal(t, SchedulerStopped, s.State())
	_, ok = s.NextRun()
	assert.False(t, ok)
}

func TestSchedulerRunsImmediatelyWhenSlotIsNow(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T09:00:00Z"))
	spec := mustSpec(t, []string{"09:00"}, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock))

	fired := make(chan struct{}, 2)
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	}))

	receive(t, fired)
	w := clock.nextWait(t)
	assert.Equal(t, 24*time.Hour, w.d)
	s.Stop()
	assert.Len(t, fired, 0)
}

func TestSchedulerStopDuringSleep(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
	spec := mustSpec(t, []string{"09:00"}, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock))

	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))
	clock.nextWait(t)

	s.Stop()

	assert.Equal(t, SchedulerStopped, s.State())
	assert.Zero(t, calls.Load())
}

func TestSchedulerStopWaitsForRunningCallback(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
	spec := mustSpec(t, []string{"09:00"}, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock))

	entered := make(chan struct{})
	release := make(chan struct{})
	ctxErr := make(chan error, 1)
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		close(entered)
		<-release
		ctxErr <- ctx.Err()
		return nil
	}))
	clock.fire(clock.nextWait(t))
	receive(t, entered)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while the callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	receive(t, stopped)
	assert.NoError(t, receive(t, ctxErr))
	assert.Equal(t, SchedulerStopped, s.State())
}

func TestSchedulerContinuesAfterCallbackFailure(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
	spec := mustSpec(t, []string{"09:00", "10:00", "11:00"}, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock))

	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			return errors.New("sheet unavailable")
		case 2:
			panic("boom")
		}
		return nil
	}))

	clock.fire(clock.nextWait(t))
	clock.fire(clock.nextWait(t))
	clock.fire(clock.nextWait(t))
	clock.nextWait(t)
	s.Stop()

	assert.Equal(t, int32(3), calls.Load())
}

func TestSchedulerEmptyScheduleUsesFallback(t *testing.T) {
	clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
	spec := mustSpec(t, nil, "UTC", false)
	s := NewScheduler(spec, discardLogger(), WithClock(clock), WithFallbackInterval(10*time.Minute))

	var calls atomic.Int32
	require.NoError(t, s.Start(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}))

	w := clock.nextWait(t)
	assert.Equal(t, 10*time.Minute, w.d)
	clock.fire(w)
	w = clock.nextWait(t)
	assert.Equal(t, 10*time.Minute, w.d)
	s.Stop()

	assert.Zero(t, calls.Load())
}

func TestSchedulerLifecycle(t *testing.T) {
	spec := mustSpec(t, []string{"09:00"}, "UTC", false)
	noop := func(ctx context.Context) error { return nil }

	t.Run("start is idempotent", func(t *testing.T) {
		clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
		s := NewScheduler(spec, discardLogger(), WithClock(clock))
		require.NoError(t, s.Start(context.Background(), noop))
		require.NoError(t, s.Start(context.Background(), noop))
		clock.nextWait(t)
		s.Stop()
		assert.Len(t, clock.waits, 0)
		assert.ErrorIs(t, s.Start(context.Background(), noop), ErrSchedulerStopped)
	})

	t.Run("stop before start", func(t *testing.T) {
		s := NewScheduler(spec, discardLogger())
		s.Stop()
		s.Stop()
		assert.Equal(t, SchedulerStopped, s.State())
		assert.ErrorIs(t, s.Start(context.Background(), noop), ErrSchedulerStopped)
	})

	t.Run("context cancel ends loop", func(t *testing.T) {
		clock := newFakeClock(utc("2026-01-10T06:00:00Z"))
		s := NewScheduler(spec, discardLogger(), WithClock(clock))
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, s.Start(ctx, noop))
		clock.nextWait(t)
		cancel()
		require.Eventually(t, func() bool { return s.State() == SchedulerStopped }, 2*time.Second, 10*time.Millisecond)
		s.Stop()
	})
}
