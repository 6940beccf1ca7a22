package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ytuploader/internal/core"
)

// TouchAccount records that name finished a run with status at the given time.
func (s *Store) TouchAccount(ctx context.Context, name string, status core.RunStatus, at time.Time) error {
	var done, failed int
	switch status {
	case core.RunStatusDone:
		done = 1
	case core.RunStatusFailed:
		failed = 1
	}
	ts := formatTime(at)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (name, last_used_at, uploads_done, uploads_failed, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_used_at = excluded.last_used_at,
			uploads_done = accounts.uploads_done + excluded.uploads_done,
			uploads_failed = accounts.uploads_failed + excluded.uploads_failed,
			updated_at = excluded.updated_at
	`, name, ts, done, failed, ts)
	if err != nil {
		return fmt.Errorf("touch account %s: %w", name, err)
	}
	return nil
}

// ListAccountUsage returns per-account counters ordered by name.
func (s *Store) ListAccountUsage(ctx context.Context) ([]core.AccountUsage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT name, last_used_at, uploads_done, uploads_failed, updated_at
		FROM accounts
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()
	var out []core.AccountUsage
	for rows.Next() {
		var (
			usage     core.AccountUsage
			lastUsed  sql.NullString
			updatedAt string
		)
		if err := rows.Scan(&usage.Name, &lastUsed, &usage.UploadsDone, &usage.UploadsFailed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if usage.LastUsedAt, err = parseNullTime(lastUsed); err != nil {
			return nil, err
		}
		if usage.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, usage)
	}
	return out, rows.Err()
}
