package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Trigger labels recorded with every run.
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerMCP      = "mcp"
	TriggerCLI      = "cli"
)

// DefaultStagingDir receives downloaded videos.
const DefaultStagingDir = "downloads"

// ControllerConfig holds the behavior knobs of the upload controller.
type ControllerConfig struct {
	Mapping         ColumnMapping
	MaxRetries      int
	RetryInterval   time.Duration
	StagingDir      string
	RemoveUploaded  bool
	NotifyOnSuccess bool
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithBlobFetcher enables downloading rows that are not available locally.
func WithBlobFetcher(f BlobFetcher) ControllerOption {
	return func(c *Controller) { c.fetcher = f }
}

// WithRunRecorder persists each claimed cycle.
func WithRunRecorder(r RunRecorder) ControllerOption {
	return func(c *Controller) { c.recorder = r }
}

// WithNotifier sends a message when a cycle ends.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithControllerMetrics records run outcomes.
func WithControllerMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithSleeper replaces the wait between retries.
func WithSleeper(fn Sleeper) ControllerOption {
	return func(c *Controller) { c.sleep = fn }
}

// WithNowFunc replaces the clock used for ledger timestamps.
func WithNowFunc(fn func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = fn }
}

// Controller performs one upload cycle: claim a row, stage its video,
// build a job, run the executor with retries and write one terminal status.
type Controller struct {
	rows     RowSource
	uploader Uploader
	fetcher  BlobFetcher
	rotation *AccountRotation
	builder  JobBuilder
	cfg      ControllerConfig
	recorder RunRecorder
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
	sleep    Sleeper
	now      func() time.Time

	running sync.Mutex
	busy    atomic.Bool
}

// NewController wires a controller. It fails when no accounts are given.
func NewController(rows RowSource, uploader Uploader, accounts []Account, cfg ControllerConfig, logger *slog.Logger, opts ...ControllerOption) (*Controller, error) {
	if rows == nil {
		return nil, errors.New("row source is required")
	}
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.RetryInterval < 0 {
		return nil, fmt.Errorf("retry interval must not be negative, got %s", cfg.RetryInterval)
	}
	rotation, err := NewAccountRotation(accounts)
	if err != nil {
		return nil, err
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = DefaultStagingDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		rows:     rows,
		uploader: uploader,
		rotation: rotation,
		builder:  JobBuilder{Mapping: cfg.Mapping},
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Accounts returns the rotation order.
func (c *Controller) Accounts() []Account {
	return c.rotation.Accounts()
}

// Config returns the controller settings.
func (c *Controller) Config() ControllerConfig {
	return c.cfg
}

// Running reports whether a cycle is in progress.
func (c *Controller) Running() bool {
	return c.busy.Load()
}

// RunOnce runs a scheduled cycle. It matches the Callback signature.
func (c *Controller) RunOnce(ctx context.Context) error {
	_, err := c.Run(ctx, TriggerSchedule)
	return err
}

// Run performs one cycle. It returns a nil run when no row was pending and
// ErrRunInProgress when another cycle holds the controller. Once a row is
// claimed the returned error reflects the cycle outcome and the row has
// received exactly one terminal status write.
func (c *Controller) Run(ctx context.Context, trigger string) (*Run, error) {
	if !c.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer c.running.Unlock()
	c.busy.Store(true)
	defer c.busy.Store(false)
	c.metrics.SetInFlight(true)
	defer c.metrics.SetInFlight(false)

	c.logger.Info("checking for pending uploads", "trigger", trigger)
	row, err := c.rows.FetchPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch pending row: %w", err)
	}
	if row == nil {
		c.logger.Info("no pending uploads found")
		return nil, nil
	}
	logger := c.logger.With("row", row.Index)
	logger.Info("found pending row", "title", row.Get(c.cfg.Mapping.Title))

	if err := c.rows.UpdateStatus(ctx, *row, RowStatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("claim row %d: %w", row.Index, err)
	}
	started := c.now().UTC()
	run := &Run{
		ID:        NewID(),
		RowIndex:  row.Index,
		Title:     row.Get(c.cfg.Mapping.Title),
		Trigger:   trigger,
		Status:    RunStatusProcessing,
		StartedAt: started,
		CreatedAt: started,
	}

	account, err := c.rotation.Next()
	if err != nil {
		c.insertRun(ctx, run, logger)
		return run, c.reconcile(ctx, *row, run, attemptResult{Err: fmt.Errorf("select account: %w", err)}, logger)
	}
	run.Account = account.Name
	logger = logger.With("account", account.Name)
	logger.Info("using account")
	c.insertRun(ctx, run, logger)

	videoPath, err := c.stage(ctx, *row, logger)
	if err != nil {
		return run, c.reconcile(ctx, *row, run, attemptResult{Err: &PrepError{Row: row.Index, Step: "stage video", Err: err}}, logger)
	}
	run.VideoPath = videoPath

	job, err := c.builder.Build(*row, account, videoPath)
	if err != nil {
		return run, c.reconcile(ctx, *row, run, attemptResult{Err: &PrepError{Row: row.Index, Step: "build job", Err: err}}, logger)
	}

	policy := RetryPolicy{MaxAttempts: c.cfg.MaxRetries, Interval: c.cfg.RetryInterval}
	res := runAttempts(ctx, policy, c.sleep, logger, c.metrics, func(ctx context.Context) (string, error) {
		return c.uploader.Upload(ctx, job)
	})
	return run, c.reconcile(ctx, *row, run, res, logger)
}

// stage resolves the row's video to a local path, downloading it when the
// filename does not exist on disk.
func (c *Controller) stage(ctx context.Context, row Row, logger *slog.Logger) (string, error) {
	m := c.cfg.Mapping
	filename := strings.TrimSpace(row.Get(m.Filename))
	if filename == "" {
		return "", ErrMissingFilename
	}
	if info, err := os.Stat(filename); err == nil && !info.IsDir() {
		logger.Info("using local video", "path", filename)
		return filename, nil
	}

	var ref BlobRef
	if u := strings.TrimSpace(row.Get(m.DriveDownloadURL)); u != "" {
		ref.URL = u
	} else if id := strings.TrimSpace(row.Get(m.DriveFileID)); id != "" {
		ref.FileID = id
	} else {
		return "", fmt.Errorf("%w for %q", ErrNoVideoSource, filename)
	}
	if c.fetcher == nil {
		return "", fmt.Errorf("no fetcher configured to download %q", filename)
	}

	dest := filepath.Join(c.cfg.StagingDir, filepath.Base(filename))
	logger.Info("downloading video", "destination", dest)
	path, err := c.fetcher.Fetch(ctx, ref, dest)
	if err != nil {
		return "", fmt.Errorf("download %q: %w", filename, err)
	}
	return path, nil
}

// reconcile performs the single terminal write for a claimed row and the
// bookkeeping that follows it. Writes ignore cancellation of ctx so a
// shutdown does not leave the row in Processing.
func (c *Controller) reconcile(ctx context.Context, row Row, run *Run, res attemptResult, logger *slog.Logger) error {
	wctx := context.WithoutCancel(ctx)
	ended := c.now().UTC()
	run.EndedAt = &ended
	run.Attempts = res.Attempts

	if res.Err != nil {
		run.Status = RunStatusFailed
		msg := res.Err.Error()
		run.Error = &msg
		logger.Error("upload failed", "attempts", res.Attempts, "err", res.Err)
		var writeErr error
		if err := c.rows.UpdateStatus(wctx, row, RowStatusFailed, ""); err != nil {
			writeErr = fmt.Errorf("mark row %d failed: %w", row.Index, err)
			logger.Error("status write failed", "status", RowStatusFailed, "err", err)
		}
		c.completeRun(wctx, run, logger)
		c.metrics.RecordRun(RowStatusFailed, ended.Sub(run.StartedAt))
		c.notify(wctx, "Upload failed", fmt.Sprintf("row %d (%s): %s", row.Index, run.Title, msg), logger)
		return errors.Join(res.Err, writeErr)
	}

	run.Status = RunStatusDone
	run.VideoURL = &res.URL
	logger.Info("upload succeeded", "url", res.URL, "attempts", res.Attempts)
	if err := c.rows.UpdateStatus(wctx, row, RowStatusDone, res.URL); err != nil {
		msg := fmt.Sprintf("video uploaded to %s but status write failed: %v", res.URL, err)
		run.Error = &msg
		c.completeRun(wctx, run, logger)
		c.metrics.RecordRun(RowStatusDone, ended.Sub(run.StartedAt))
		return fmt.Errorf("mark row %d done: %w", row.Index, err)
	}
	c.completeRun(wctx, run, logger)
	c.metrics.RecordRun(RowStatusDone, ended.Sub(run.StartedAt))

	if c.cfg.RemoveUploaded && run.VideoPath != "" {
		c.removeVideo(run.VideoPath, logger)
	}
	if c.cfg.NotifyOnSuccess {
		c.notify(wctx, "Upload done", fmt.Sprintf("row %d (%s): %s", row.Index, run.Title, res.URL), logger)
	}
	return nil
}

func (c *Controller) removeVideo(path string, logger *slog.Logger) {
	err := os.Remove(path)
	switch {
	case err == nil:
		logger.Info("removed uploaded video", "path", path)
	case errors.Is(err, fs.ErrNotExist):
	default:
		logger.Warn("failed to remove uploaded video", "path", path, "err", err)
	}
}

func (c *Controller) insertRun(ctx context.Context, run *Run, logger *slog.Logger) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.InsertRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run", "run_id", run.ID, "err", err)
	}
}

func (c *Controller) completeRun(ctx context.Context, run *Run, logger *slog.Logger) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.CompleteRun(ctx, run.ID, run.Status, run.Attempts, *run.EndedAt, run.VideoURL, run.Error); err != nil {
		logger.Warn("failed to complete run record", "run_id", run.ID, "err", err)
	}
	if run.Account == "" {
		return
	}
	if err := c.recorder.TouchAccount(ctx, run.Account, run.Status, *run.EndedAt); err != nil {
		logger.Warn("failed to update account usage", "account", run.Account, "err", err)
	}
}

func (c *Controller) notify(ctx context.Context, title, body string, logger *slog.Logger) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, title, body); err != nil {
		logger.Warn("notification failed", "err", err)
	}
}
