package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoAccounts       = errors.New("no accounts configured")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrSchedulerStopped = errors.New("scheduler already stopped")
	ErrRunInProgress    = errors.New("upload run already in progress")
	ErrMissingFilename  = errors.New("video filename is missing from row")
	ErrNoVideoSource    = errors.New("video not found locally and no remote reference provided")
	ErrInvalidJob       = errors.New("invalid upload job")
)

// PrepError reports a row that could not be turned into an upload job.
// These are never retried.
type PrepError struct {
	Row  int
	Step string
	Err  error
}

func (e *PrepError) Error() string {
	return fmt.Sprintf("prepare row %d (%s): %v", e.Row, e.Step, e.Err)
}

func (e *PrepError) Unwrap() error {
	return e.Err
}
