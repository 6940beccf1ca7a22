package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is the name of the rotated log inside the log directory.
const LogFile = "uploader.log"

// Options configures New.
type Options struct {
	Level  string
	Format string
	// Dir enables a rotated log file next to stdout output.
	Dir           string
	RetentionDays int
	// Stdout replaces os.Stdout, mainly for tests. The MCP stdio transport
	// sets it to os.Stderr so protocol frames stay clean.
	Stdout io.Writer
}

// New creates a slog.Logger and returns a closer for the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stdout
	if opts.Stdout != nil {
		out = opts.Stdout
	}
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:  filepath.Join(opts.Dir, LogFile),
			MaxSize:   20,
			MaxAge:    opts.RetentionDays,
			LocalTime: false,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CleanupOldLogs removes *.log files in dir older than retention days and
// returns how many were deleted. The active log file is kept.
func CleanupOldLogs(dir string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read log dir: %w", err)
	}
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == LogFile || !strings.Contains(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("remove %s: %w", name, err)
			}
			removed++
		}
	}
	return removed, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
