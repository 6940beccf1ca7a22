package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ytuploader/internal/core"
)

var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, row_index, account, title, video_path, trigger, status, attempts, video_url, error, started_at, ended_at, created_at`

// RunFilter narrows ListRuns. Zero values mean no restriction.
type RunFilter struct {
	Status  core.RunStatus
	Account string
	Limit   int
	Offset  int
}

func (s *Store) InsertRun(ctx context.Context, run *core.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO uploads (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.RowIndex, run.Account, run.Title, run.VideoPath, run.Trigger, run.Status, run.Attempts,
		nullableString(run.VideoURL), nullableString(run.Error), formatTime(run.StartedAt),
		nullableTime(run.EndedAt), formatTime(run.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun stores the terminal state of a run.
func (s *Store) CompleteRun(ctx context.Context, id string, status core.RunStatus, attempts int, endedAt time.Time, videoURL, errMsg *string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE uploads
		SET status = ?, attempts = ?, ended_at = ?, video_url = ?, error = ?
		WHERE id = ?
	`, status, attempts, formatTime(endedAt), nullableString(videoURL), nullableString(errMsg), id)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*core.Run, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM uploads WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first. A negative limit returns every match.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*core.Run, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = 20
	}
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Account != "" {
		where = append(where, "account = ?")
		args = append(args, filter.Account)
	}
	query := `SELECT ` + runColumns + ` FROM uploads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// MarkAbandoned closes runs left in processing by a previous process and
// returns them. Their sheet rows are still marked Processing and need a
// manual reset.
func (s *Store) MarkAbandoned(ctx context.Context, at time.Time) ([]*core.Run, error) {
	stale, err := s.ListRuns(ctx, RunFilter{Status: core.RunStatusProcessing, Limit: -1})
	if err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}
	msg := "process exited before the run finished"
	if _, err := s.DB.ExecContext(ctx, `
		UPDATE uploads
		SET status = ?, ended_at = ?, error = ?
		WHERE status = ?
	`, core.RunStatusAbandoned, formatTime(at), msg, core.RunStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark abandoned runs: %w", err)
	}
	for _, run := range stale {
		run.Status = core.RunStatusAbandoned
		ended := at.UTC()
		run.EndedAt = &ended
		run.Error = &msg
	}
	return stale, nil
}

// PruneRuns keeps the newest keep runs and deletes the rest.
func (s *Store) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM uploads WHERE id IN (
			SELECT id FROM uploads
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*core.Run, error) {
	var (
		run       core.Run
		status    string
		videoURL  sql.NullString
		errMsg    sql.NullString
		startedAt string
		endedAt   sql.NullString
		createdAt string
	)
	if err := scanner.Scan(&run.ID, &run.RowIndex, &run.Account, &run.Title, &run.VideoPath, &run.Trigger,
		&status, &run.Attempts, &videoURL, &errMsg, &startedAt, &endedAt, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = core.RunStatus(status)
	if videoURL.Valid {
		run.VideoURL = &videoURL.String
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.EndedAt, err = parseNullTime(endedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
