package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultFallbackInterval is how long the loop waits when the schedule
// yields no slots before looking again.
const DefaultFallbackInterval = time.Hour

// SchedulerState is the lifecycle of a Scheduler.
type SchedulerState int

const (
	SchedulerIdle SchedulerState = iota
	SchedulerRunning
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Clock is the time source used by the scheduler loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Callback is invoked once per due slot.
type Callback func(ctx context.Context) error

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithShuffler replaces the permutation used for randomized schedules.
func WithShuffler(fn Shuffler) SchedulerOption {
	return func(s *Scheduler) { s.shuffle = fn }
}

// WithFallbackInterval changes the wait used when no slot is available.
func WithFallbackInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.fallback = d }
}

// WithSchedulerMetrics publishes the next due instant.
func WithSchedulerMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler fires a callback at each slot of a daily schedule. Callbacks run
// inline on the loop goroutine, so they never overlap; a slot that passes
// while a callback is still running is skipped rather than queued.
type Scheduler struct {
	spec     ScheduleSpec
	clock    Clock
	shuffle  Shuffler
	fallback time.Duration
	logger   *slog.Logger
	metrics  *Metrics

	mu        sync.Mutex
	state     SchedulerState
	nextRun   time.Time
	lastFired time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewScheduler constructs an idle scheduler.
func NewScheduler(spec ScheduleSpec, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		spec:     spec,
		clock:    systemClock{},
		shuffle:  DefaultShuffler,
		fallback: DefaultFallbackInterval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Calling Start on a running scheduler does nothing;
// a stopped scheduler cannot be restarted. Cancelling ctx ends the loop like
// Stop, but never cancels a callback that is already running.
func (s *Scheduler) Start(ctx context.Context, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SchedulerRunning:
		return nil
	case SchedulerStopped:
		return ErrSchedulerStopped
	}
	s.state = SchedulerRunning
	s.done = make(chan struct{})
	go s.loop(ctx, cb, s.done)
	s.logger.Info("upload scheduler started", "slots", len(s.spec.Times), "timezone", s.location().String(), "randomize", s.spec.Randomize)
	return nil
}

// Stop signals the loop and waits until it has exited. It is safe to call
// from any goroutine, more than once, or before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopOnce.Do(func() { close(s.stopCh) })
	done := s.done
	if s.state == SchedulerIdle {
		s.state = SchedulerStopped
	}
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State reports the current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRun returns the instant the loop is currently waiting for.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, !s.nextRun.IsZero()
}

// Spec returns the schedule the loop evaluates.
func (s *Scheduler) Spec() ScheduleSpec {
	return s.spec
}

func (s *Scheduler) loop(ctx context.Context, cb Callback, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = SchedulerStopped
		s.nextRun = time.Time{}
		s.mu.Unlock()
		s.logger.Info("upload scheduler stopped")
		close(done)
	}()

	runCtx := context.WithoutCancel(ctx)
	for {
		if s.stopping(ctx) {
			return
		}
		now := s.clock.Now().UTC()
		from := now
		s.mu.Lock()
		if !s.lastFired.IsZero() && !s.lastFired.Before(now) {
			from = s.lastFired.Add(time.Nanosecond)
		}
		s.mu.Unlock()

		next, ok := NextDue(from, s.spec, s.shuffle)
		if !ok {
			s.logger.Warn("no upcoming schedule slots; waiting", "retry_in", s.fallback)
			if !s.wait(ctx, s.fallback) {
				return
			}
			continue
		}
		s.setNextRun(next)

		delay := next.Sub(now)
		s.logger.Info("next upload scheduled", "at", next.Format(time.RFC3339), "in", delay.Round(time.Second))
		if delay > 0 && !s.wait(ctx, delay) {
			return
		}
		if s.stopping(ctx) {
			return
		}

		s.mu.Lock()
		s.lastFired = next
		s.mu.Unlock()
		s.invoke(runCtx, cb, next)
	}
}

func (s *Scheduler) invoke(ctx context.Context, cb Callback, due time.Time) {
	started := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "due", due.Format(time.RFC3339), "panic", r)
		}
	}()
	if err := cb(ctx); err != nil {
		s.logger.Error("scheduled run failed", "due", due.Format(time.RFC3339), "err", err)
		return
	}
	s.logger.Info("scheduled run finished", "due", due.Format(time.RFC3339), "took", s.clock.Now().Sub(started).Round(time.Millisecond))
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.clock.After(d):
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) stopping(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetNextRun(t)
	}
}

func (s *Scheduler) location() *time.Location {
	if s.spec.Location == nil {
		return time.UTC
	}
	return s.spec.Location
}
