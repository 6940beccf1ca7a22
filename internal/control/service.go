// Package control exposes the uploader's operations to the HTTP and MCP
// surfaces.
package control

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ytuploader/internal/core"
	"ytuploader/internal/store"
)

const (
	defaultPreviewDays = 2
	maxPreviewDays     = 14
)

// Runner performs upload cycles.
type Runner interface {
	Run(ctx context.Context, trigger string) (*core.Run, error)
	Running() bool
	Accounts() []core.Account
}

// Ledger reads recorded cycles.
type Ledger interface {
	GetRun(ctx context.Context, id string) (*core.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]*core.Run, error)
	ListAccountUsage(ctx context.Context) ([]core.AccountUsage, error)
}

// Schedule is the read side of the scheduler loop.
type Schedule interface {
	State() core.SchedulerState
	NextRun() (time.Time, bool)
	Spec() core.ScheduleSpec
}

// Status summarizes the daemon.
type Status struct {
	Scheduler string
	Running   bool
	NextRun   *time.Time
	Timezone  string
	Times     []string
	Randomize bool
	Accounts  int
}

// AccountInfo joins a configured account with its ledger statistics.
type AccountInfo struct {
	Name          string
	Position      int
	LastUsedAt    *time.Time
	UploadsDone   int
	UploadsFailed int
}

// Service holds the shared state behind every control surface.
type Service struct {
	ctx      context.Context
	runner   Runner
	schedule Schedule
	ledger   Ledger
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewService creates a service. Background runs inherit ctx's values but
// keep running after it is cancelled; Wait blocks until they finish.
// schedule may be nil when no loop is running.
func NewService(ctx context.Context, runner Runner, schedule Schedule, ledger Ledger, logger *slog.Logger) *Service {
	return &Service{
		ctx:      context.WithoutCancel(ctx),
		runner:   runner,
		schedule: schedule,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
	}
}

// Status reports the scheduler state and the next due slot.
func (s *Service) Status() Status {
	st := Status{
		Scheduler: "disabled",
		Running:   s.runner.Running(),
		Accounts:  len(s.runner.Accounts()),
	}
	if s.schedule == nil {
		return st
	}
	st.Scheduler = s.schedule.State().String()
	if next, ok := s.schedule.NextRun(); ok {
		st.NextRun = &next
	}
	spec := s.schedule.Spec()
	if spec.Location != nil {
		st.Timezone = spec.Location.String()
	}
	st.Randomize = spec.Randomize
	for _, t := range spec.Times {
		st.Times = append(st.Times, t.String())
	}
	return st
}

// RunNow performs a cycle and waits for its outcome.
func (s *Service) RunNow(ctx context.Context, trigger string) (*core.Run, error) {
	return s.runner.Run(ctx, trigger)
}

// StartRun begins a cycle in the background. It returns ErrRunInProgress
// when a cycle is already active.
func (s *Service) StartRun(trigger string) error {
	if s.runner.Running() {
		return core.ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run, err := s.runner.Run(s.ctx, trigger)
		switch {
		case errors.Is(err, core.ErrRunInProgress):
			s.logger.Info("manual run skipped, another cycle is active", "trigger", trigger)
		case err != nil:
			s.logger.Error("manual run failed", "trigger", trigger, "err", err)
		case run == nil:
			s.logger.Info("manual run found no pending rows", "trigger", trigger)
		default:
			s.logger.Info("manual run finished", "trigger", trigger, "run_id", run.ID, "status", run.Status)
		}
	}()
	return nil
}

// Wait blocks until background runs started by StartRun return.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) GetRun(ctx context.Context, id string) (*core.Run, error) {
	return s.ledger.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, filter store.RunFilter) ([]*core.Run, error) {
	return s.ledger.ListRuns(ctx, filter)
}

// Accounts lists configured accounts in rotation order with their usage.
func (s *Service) Accounts(ctx context.Context) ([]AccountInfo, error) {
	usage, err := s.ledger.ListAccountUsage(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]core.AccountUsage, len(usage))
	for _, u := range usage {
		byName[u.Name] = u
	}
	accounts := s.runner.Accounts()
	out := make([]AccountInfo, 0, len(accounts))
	for i, a := range accounts {
		info := AccountInfo{Name: a.Name, Position: i}
		if u, ok := byName[a.Name]; ok {
			info.LastUsedAt = u.LastUsedAt
			info.UploadsDone = u.UploadsDone
			info.UploadsFailed = u.UploadsFailed
		}
		out = append(out, info)
	}
	return out, nil
}

// PreviewRequest describes a schedule to resolve. Empty Times and Timezone
// fall back to the running schedule.
type PreviewRequest struct {
	Times     []string
	Timezone  string
	Randomize bool
	From      time.Time
	Days      int
}

// PreviewSchedule returns the slots a schedule would fire at.
func (s *Service) PreviewSchedule(req PreviewRequest) ([]time.Time, core.ScheduleSpec, error) {
	var spec core.ScheduleSpec
	if len(req.Times) == 0 && req.Timezone == "" && s.schedule != nil {
		spec = s.schedule.Spec()
	} else {
		parsed, err := core.ParseScheduleSpec(req.Times, req.Timezone, req.Randomize)
		if err != nil {
			return nil, core.ScheduleSpec{}, err
		}
		spec = parsed
	}
	from := req.From
	if from.IsZero() {
		from = s.now()
	}
	days := req.Days
	if days <= 0 {
		days = defaultPreviewDays
	}
	days = min(days, maxPreviewDays)
	return core.UpcomingSlots(from, days, spec, core.DefaultShuffler), spec, nil
}
