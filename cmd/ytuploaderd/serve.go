package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ytuploader/internal/api"
	"ytuploader/internal/config"
	"ytuploader/internal/control"
	"ytuploader/internal/core"
	ytmcp "ytuploader/internal/mcp"
)

func newServeCmd(flags *config.Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload scheduler with the HTTP API and/or MCP tools",
		Long: `Start the scheduler loop, the housekeeping cron and the control surfaces.

Modes:
  http  serve the HTTP API (default)
  mcp   serve MCP tools on stdin/stdout; logs go to stderr
  both  serve both`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.Mode, "mode", "", "http, mcp or both (env YTU_MODE)")
	f.StringVar(&flags.Addr, "addr", "", "HTTP listen address (env YTU_ADDR)")
	f.DurationVar(&flags.ShutdownGrace, "shutdown-grace", 0, "time to wait for a running upload on shutdown (env YTU_SHUTDOWN_GRACE)")
	return cmd
}

func runServe(parent context.Context, flags config.Flags) error {
	cfg, appCfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	var logOut io.Writer = os.Stdout
	if cfg.Mode != config.ModeHTTP {
		logOut = os.Stderr
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appCfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	a.reportAbandoned(ctx)

	spec, err := appCfg.ScheduleSpec()
	if err != nil {
		return err
	}
	scheduler := core.NewScheduler(spec, logger, core.WithSchedulerMetrics(a.metrics))
	service := control.NewService(ctx, a.controller, scheduler, a.store, logger)

	housekeeper, err := core.NewHousekeeper(appCfg.Cleanup.Cron, spec.Location, logger, a.housekeepingTasks()...)
	if err != nil {
		return err
	}
	housekeeper.Start()
	defer housekeeper.Stop()

	if err := scheduler.Start(ctx, a.controller.RunOnce); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 2)
	var httpServer *api.Server
	if cfg.Mode == config.ModeHTTP || cfg.Mode == config.ModeBoth {
		httpServer = api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, service, a.registry, logger)
		if err := httpServer.Listen(); err != nil {
			scheduler.Stop()
			return err
		}
		go func() {
			if err := httpServer.Serve(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	mcpDone := make(chan struct{})
	if cfg.Mode == config.ModeMCP || cfg.Mode == config.ModeBoth {
		mcpServer := ytmcp.NewMCPServer(service, Version, logger)
		go func() {
			defer close(mcpDone)
			if err := mcpServer.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case <-mcpDone:
		logger.Info("mcp client disconnected")
	case runErr = <-errCh:
		logger.Error("server error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "err", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		service.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("upload still running at shutdown; its row will be reported as interrupted on next start")
	}
	logger.Info("shutdown complete")
	return runErr
}
