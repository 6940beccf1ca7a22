package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ytuploader/internal/browser"
	"ytuploader/internal/config"
	"ytuploader/internal/core"
	"ytuploader/internal/drive"
	"ytuploader/internal/logging"
	"ytuploader/internal/notify"
	"ytuploader/internal/sheets"
	"ytuploader/internal/store"
)

const metricsNamespace = "ytuploader"

// app holds the components shared by serve and run-once.
type app struct {
	cfg        *config.Config
	appCfg     *config.AppConfig
	logger     *slog.Logger
	logCloser  io.Closer
	store      *store.Store
	registry   *prometheus.Registry
	metrics    *core.Metrics
	controller *core.Controller
}

func loadConfig(flags config.Flags) (*config.Config, *config.AppConfig, error) {
	cfg, err := config.Parse(flags)
	if err != nil {
		return nil, nil, fmt.Errorf("parse settings: %w", err)
	}
	appCfg, err := config.LoadApp(cfg.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if err := appCfg.ValidateErr(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s:\n%w", cfg.ConfigPath, err)
	}
	return cfg, appCfg, nil
}

// newApp wires the upload pipeline. Logs go to logOut and the log file.
func newApp(ctx context.Context, cfg *config.Config, appCfg *config.AppConfig, logOut io.Writer) (*app, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		Dir:           appCfg.Cleanup.LogDirectory,
		RetentionDays: appCfg.Cleanup.RetentionDays,
		Stdout:        logOut,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, appCfg: appCfg, logger: logger, logCloser: logCloser}

	a.store, err = store.Open(ctx, cfg.StateDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = core.NewMetrics(metricsNamespace, a.registry)

	rows, err := sheets.New(ctx, sheets.Options{
		CredentialsFile: appCfg.Google.ServiceAccountFile,
		SpreadsheetID:   appCfg.Google.SpreadsheetID,
		Worksheet:       appCfg.Google.WorksheetName,
		Mapping:         appCfg.ColumnMapping(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.controller, err = core.NewController(rows, a.uploader(), appCfg.CoreAccounts(), appCfg.ControllerConfig(), logger,
		core.WithBlobFetcher(a.fetcher(ctx)),
		core.WithRunRecorder(a.store),
		core.WithNotifier(a.notifier()),
		core.WithControllerMetrics(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("uploader ready",
		"accounts", len(appCfg.Accounts),
		"executor", appCfg.Executor.Kind,
		"state_dir", cfg.StateDir,
	)
	return a, nil
}

func (a *app) uploader() core.Uploader {
	if a.appCfg.Executor.Kind == config.ExecutorCommand {
		return core.NewCommandUploader(a.appCfg.Executor.Command, a.appCfg.Executor.Timeout, a.appCfg.Cleanup.LogDirectory, a.logger)
	}
	b := a.appCfg.Browser
	return browser.New(browser.Options{
		ChromePath: b.ChromePath,
		Headless:   *b.Headless,
		UserAgent:  b.UserAgent,
		Timeout:    b.Timeout,
	}, browser.NewSessionStore(b.CookiesDir, a.logger), a.logger)
}

func (a *app) fetcher(ctx context.Context) *drive.Fetcher {
	d := a.appCfg.Drive
	opts := []drive.Option{drive.WithRateLimit(d.MaxBytesPerSecond)}
	s3Client, err := drive.NewS3Client(ctx, drive.S3Options{
		Region:          d.S3.Region,
		Endpoint:        d.S3.Endpoint,
		Profile:         d.S3.Profile,
		AccessKeyID:     d.S3.AccessKeyID,
		SecretAccessKey: d.S3.SecretAccessKey,
		ForcePathStyle:  d.S3.ForcePathStyle,
	})
	if err != nil {
		a.logger.Warn("s3 video references disabled", "err", err)
	} else {
		opts = append(opts, drive.WithS3(s3Client))
	}
	return drive.New(d.Timeout, a.logger, opts...)
}

// notifier always logs outcomes and adds Bark when a device URL is set.
// YTU_BARK_URL takes precedence over notify.bark_url.
func (a *app) notifier() core.Notifier {
	notifiers := []core.Notifier{notify.LogNotifier{Logger: a.logger}}
	barkURL, enabled := a.appCfg.Notify.BarkURL, a.appCfg.Notify.BarkURL != ""
	if env := a.cfg.Notification.Bark; env.URL != "" {
		barkURL, enabled = env.URL, env.Enabled
	}
	if enabled {
		bark, err := notify.NewBarkNotifier(barkURL)
		if err != nil {
			a.logger.Warn("bark notifications disabled", "err", err)
		} else {
			notifiers = append(notifiers, bark)
		}
	}
	return notify.NewMultiNotifier(notifiers...)
}

// housekeepingTasks prunes logs, the run ledger and interrupted downloads.
func (a *app) housekeepingTasks() []core.HousekeepingTask {
	cleanup := a.appCfg.Cleanup
	retention := time.Duration(cleanup.RetentionDays) * 24 * time.Hour
	return []core.HousekeepingTask{
		{
			Name: "log-retention",
			Run: func(ctx context.Context) error {
				n, err := logging.CleanupOldLogs(cleanup.LogDirectory, cleanup.RetentionDays, time.Now())
				if n > 0 {
					a.logger.Info("removed old log files", "count", n)
				}
				return err
			},
		},
		{
			Name: "prune-runs",
			Run: func(ctx context.Context) error {
				n, err := a.store.PruneRuns(ctx, cleanup.KeepRuns)
				if n > 0 {
					a.logger.Info("pruned run ledger", "removed", n)
				}
				return err
			},
		},
		{
			Name: "stale-downloads",
			Run: func(ctx context.Context) error {
				if a.controller.Running() {
					return nil
				}
				n, err := drive.RemoveStalePartials(a.appCfg.Drive.StagingDir, retention, time.Now())
				if n > 0 {
					a.logger.Info("removed interrupted downloads", "count", n)
				}
				return err
			},
		},
	}
}

// reportAbandoned closes ledger entries left by a previous process. Their
// sheet rows stay in Processing until someone resets them to New.
func (a *app) reportAbandoned(ctx context.Context) {
	runs, err := a.store.MarkAbandoned(ctx, time.Now().UTC())
	if err != nil {
		a.logger.Error("check for interrupted runs", "err", err)
		return
	}
	for _, run := range runs {
		a.logger.Warn("previous run was interrupted; reset its status to New to retry",
			"run_id", run.ID,
			"row", run.RowIndex,
			"account", run.Account,
			"title", run.Title,
		)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}
