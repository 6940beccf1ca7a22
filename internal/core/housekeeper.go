package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultCleanupCron runs housekeeping once a day shortly after midnight.
const DefaultCleanupCron = "15 0 * * *"

// Housekeeping accepts minute, hour, day of month, month and day of week.
var cleanupParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCleanupCron checks a housekeeping expression. Descriptors such as
// @daily are rejected so every config spells out its time.
func ParseCleanupCron(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		expr = DefaultCleanupCron
	}
	if strings.HasPrefix(expr, "@") {
		return nil, fmt.Errorf("cleanup cron %q: descriptors are not supported, use 5 fields", expr)
	}
	sched, err := cleanupParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cleanup cron %q: %w", expr, err)
	}
	return sched, nil
}

// CleanupTimes lists the next n housekeeping passes after base, in loc.
func CleanupTimes(expr string, loc *time.Location, base time.Time, n int) ([]time.Time, error) {
	sched, err := ParseCleanupCron(expr)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, n)
	next := base.In(loc)
	for range n {
		next = sched.Next(next)
		out = append(out, next)
	}
	return out, nil
}

// HousekeepingTask is one maintenance step run on the cleanup schedule.
type HousekeepingTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// Housekeeper runs maintenance tasks on a cron schedule. It never touches
// rows and runs independently of the upload scheduler.
type Housekeeper struct {
	cron   *cron.Cron
	tasks  []HousekeepingTask
	logger *slog.Logger
}

// NewHousekeeper validates expr and prepares the cron runner in loc.
func NewHousekeeper(expr string, loc *time.Location, logger *slog.Logger, tasks ...HousekeepingTask) (*Housekeeper, error) {
	sched, err := ParseCleanupCron(expr)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	h := &Housekeeper{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		tasks:  tasks,
		logger: logger,
	}
	h.cron.Schedule(sched, cron.FuncJob(func() { h.RunNow(context.Background()) }))
	return h, nil
}

// Start begins running tasks on schedule.
func (h *Housekeeper) Start() {
	h.cron.Start()
	h.logger.Info("housekeeping started", "tasks", len(h.tasks))
}

// Stop halts the schedule and waits for a running pass to finish.
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

// RunNow executes every task once. A failing task does not stop the others.
func (h *Housekeeper) RunNow(ctx context.Context) {
	for _, task := range h.tasks {
		started := time.Now()
		if err := task.Run(ctx); err != nil {
			h.logger.Warn("housekeeping task failed", "task", task.Name, "err", err)
			continue
		}
		h.logger.Debug("housekeeping task finished", "task", task.Name, "took", time.Since(started).Round(time.Millisecond))
	}
}
