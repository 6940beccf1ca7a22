package config

import (
	"errors"
	"fmt"
	"strings"

	"ytuploader/internal/core"
)

// Validate reports every problem in the configuration at once.
func (c *AppConfig) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Accounts) == 0 {
		errs = append(errs, core.ErrNoAccounts)
	}
	seen := map[string]bool{}
	for i, a := range c.Accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			add("accounts[%d]: name is required", i)
			continue
		}
		if seen[name] {
			add("accounts[%d]: duplicate account name %q", i, name)
		}
		seen[name] = true
	}

	if c.Google.SpreadsheetID == "" {
		add("google.spreadsheet_id is required")
	}
	if c.Google.WorksheetName == "" {
		add("google.worksheet_name is required")
	}
	if c.Google.ServiceAccountFile == "" {
		add("google.service_account_file is required")
	}

	m := c.SheetMapping
	for _, col := range []struct{ key, value string }{
		{"title", m.Title},
		{"description", m.Description},
		{"hashtags", m.Hashtags},
		{"tags", m.Tags},
		{"filename", m.Filename},
		{"status", m.Status},
		{"youtube_url", m.YouTubeURL},
	} {
		if strings.TrimSpace(col.value) == "" {
			add("sheet_mapping.%s is required", col.key)
		}
	}

	if _, err := c.ScheduleSpec(); err != nil {
		add("schedule: %w", err)
	}

	switch c.Executor.Kind {
	case ExecutorBrowser:
	case ExecutorCommand:
		if strings.TrimSpace(c.Executor.Command) == "" {
			add("executor.command is required when executor.kind is %q", ExecutorCommand)
		}
	default:
		add("executor.kind must be %q or %q, got %q", ExecutorBrowser, ExecutorCommand, c.Executor.Kind)
	}
	if c.Executor.Timeout < 0 {
		add("executor.timeout must not be negative")
	}

	if c.MaxRetries < 1 {
		add("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetryIntervalSeconds < 0 {
		add("retry_interval_seconds must not be negative, got %d", c.RetryIntervalSeconds)
	}
	if c.Drive.MaxBytesPerSecond < 0 {
		add("drive.max_bytes_per_second must not be negative")
	}
	if c.Cleanup.RetentionDays < 0 {
		add("cleanup.retention_days must not be negative")
	}
	if c.Cleanup.KeepRuns < 0 {
		add("cleanup.keep_runs must not be negative")
	}
	if _, err := core.ParseCleanupCron(c.Cleanup.Cron); err != nil {
		add("cleanup.cron: %w", err)
	}
	return errs
}

// ValidateErr joins the validation problems into one error, or nil.
func (c *AppConfig) ValidateErr() error {
	return errors.Join(c.Validate()...)
}
