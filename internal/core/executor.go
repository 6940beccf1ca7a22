package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

const terminationGrace = 5 * time.Second

// CommandUploader delegates each attempt to an external command. The job is
// written to stdin as JSON and the last non-empty stdout line must be the
// video URL.
type CommandUploader struct {
	command string
	timeout time.Duration
	logDir  string
	logger  *slog.Logger
}

// NewCommandUploader creates an uploader for command. A zero timeout lets
// the command run until it exits. When logDir is set, each attempt's
// combined output is kept there.
func NewCommandUploader(command string, timeout time.Duration, logDir string, logger *slog.Logger) *CommandUploader {
	return &CommandUploader{
		command: command,
		timeout: timeout,
		logDir:  logDir,
		logger:  logger,
	}
}

type commandJob struct {
	Account        string  `json:"account"`
	CookieFile     string  `json:"cookie_file"`
	ChannelURL     string  `json:"channel_url,omitempty"`
	VideoPath      string  `json:"video_path"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Tags           string  `json:"tags"`
	Hashtags       string  `json:"hashtags"`
	Visibility     string  `json:"visibility"`
	AlteredContent *string `json:"altered_content,omitempty"`
	MadeForKids    bool    `json:"made_for_kids"`
}

// Upload runs the command once for job.
func (u *CommandUploader) Upload(ctx context.Context, job UploadJob) (string, error) {
	payload, err := json.Marshal(commandJob{
		Account:        job.Account.Name,
		CookieFile:     job.Account.CookieFile,
		ChannelURL:     job.Account.ChannelURL,
		VideoPath:      job.VideoPath,
		Title:          job.Title,
		Description:    job.Description,
		Tags:           job.Tags,
		Hashtags:       job.Hashtags,
		Visibility:     job.Visibility,
		AlteredContent: job.AlteredContent,
		MadeForKids:    job.MadeForKids,
	})
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}

	var logWriter io.Writer = io.Discard
	if u.logDir != "" {
		logFile, err := u.openLog(job.Account.Name)
		if err != nil {
			return "", err
		}
		defer logFile.Close()
		logWriter = logFile
	}
	combined := &syncWriter{w: logWriter}
	var stdout, stderr bytes.Buffer

	var (
		cmdCtx context.Context
		cancel context.CancelFunc
	)
	if u.timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, u.timeout)
	} else {
		cmdCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := commandFor(cmdCtx, u.command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = io.MultiWriter(&stdout, combined)
	cmd.Stderr = io.MultiWriter(&stderr, combined)
	// Cancel runs only after Start, so cmd.Process is set. exec kills the
	// process if it is still alive WaitDelay after Cancel.
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = terminationGrace
	cmd.Env = append(os.Environ(),
		"YTU_ACCOUNT="+job.Account.Name,
		"YTU_COOKIE_FILE="+job.Account.CookieFile,
		"YTU_VIDEO_PATH="+job.VideoPath,
	)

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start upload command: %w", err)
	}
	waitErr := cmd.Wait()
	timedOut := ctx.Err() == nil && errors.Is(cmdCtx.Err(), context.DeadlineExceeded)
	if timedOut {
		u.logger.Warn("upload command exceeded timeout", "account", job.Account.Name, "timeout", u.timeout)
	}

	switch {
	case timedOut:
		return "", fmt.Errorf("upload command timed out after %s", u.timeout)
	case ctx.Err() != nil:
		return "", fmt.Errorf("upload command: %w", ctx.Err())
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return "", fmt.Errorf("upload command exited with code %d: %s", exitErr.ExitCode(), lastLine(stderr.Bytes()))
		}
		return "", fmt.Errorf("upload command: %w", waitErr)
	}

	videoURL := lastLine(stdout.Bytes())
	if videoURL == "" {
		return "", errEmptyVideoURL
	}
	parsed, err := url.Parse(videoURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("upload command printed %q, want a video URL", videoURL)
	}
	return videoURL, nil
}

func (u *CommandUploader) openLog(account string) (*os.File, error) {
	if err := os.MkdirAll(u.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload log dir: %w", err)
	}
	name := fmt.Sprintf("upload-%s-%s.log", time.Now().UTC().Format("20060102T150405"), sanitizeName(account))
	f, err := os.OpenFile(filepath.Join(u.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open upload log: %w", err)
	}
	return f, nil
}

func commandFor(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command) // #nosec G204
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command) // #nosec G204
}

func lastLine(b []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// terminate asks the command to stop. Windows has no SIGTERM.
func terminate(process *os.Process) error {
	if runtime.GOOS == "windows" {
		return process.Kill()
	}
	return process.Signal(syscall.SIGTERM)
}
