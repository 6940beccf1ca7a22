package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var errEmptyVideoURL = errors.New("executor returned an empty video URL")

// RetryPolicy bounds the upload attempts of one cycle.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type attemptPhase int

const (
	phaseAttempting attemptPhase = iota
	phaseRetrying
	phaseSucceeded
	phaseFailed
)

// attemptResult is the terminal outcome of the retry state machine.
type attemptResult struct {
	URL      string
	Attempts int
	Err      error
}

// runAttempts drives attempting -> (succeeded | retrying -> attempting | failed).
// It only returns from a terminal phase, so the caller reconciles exactly once.
func runAttempts(ctx context.Context, policy RetryPolicy, sleep Sleeper, logger *slog.Logger, metrics *Metrics, fn func(context.Context) (string, error)) attemptResult {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var res attemptResult
	phase := phaseAttempting
	for {
		switch phase {
		case phaseAttempting:
			res.Attempts++
			url, err := fn(ctx)
			if err == nil && url == "" {
				err = errEmptyVideoURL
			}
			if err == nil {
				metrics.RecordAttempt("ok")
				res.URL, res.Err = url, nil
				phase = phaseSucceeded
				continue
			}
			metrics.RecordAttempt("error")
			res.Err = err
			logger.Error("upload attempt failed", "attempt", res.Attempts, "max_attempts", maxAttempts, "err", err)
			if res.Attempts >= maxAttempts {
				phase = phaseFailed
				continue
			}
			phase = phaseRetrying
		case phaseRetrying:
			logger.Info("retrying upload", "in", policy.Interval, "next_attempt", res.Attempts+1)
			if err := sleep(ctx, policy.Interval); err != nil {
				res.Err = fmt.Errorf("retry wait after attempt %d: %w", res.Attempts, err)
				phase = phaseFailed
				continue
			}
			phase = phaseAttempting
		case phaseSucceeded:
			return res
		case phaseFailed:
			res.Err = fmt.Errorf("all %d attempts failed: %w", res.Attempts, res.Err)
			return res
		}
	}
}
