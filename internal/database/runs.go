package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertRunReport stores the outcome of one run.
func (db *DB) InsertRunReport(ctx context.Context, r RunReport) error {
	row := runReportRow{
		RunID:          r.RunID,
		StartedAt:      formatTime(r.StartedAt),
		FinishedAt:     formatTime(r.FinishedAt),
		State:          r.State,
		Fetched:        r.Fetched,
		UniqueArticles: r.UniqueArticles,
		Cached:         r.Cached,
		Generated:      r.Generated,
		Fallback:       r.Fallback,
		Persisted:      r.Persisted,
		Removed:        r.Removed,
		Errors:         r.Errors,
	}
	_, err := db.conn.NamedExecContext(ctx, `
INSERT INTO run_reports (run_id, started_at, finished_at, state, fetched, unique_articles,
	cached, generated, fallback, persisted, removed, errors)
VALUES (:run_id, :started_at, :finished_at, :state, :fetched, :unique_articles,
	:cached, :generated, :fallback, :persisted, :removed, :errors)`, row)
	if err != nil {
		return fmt.Errorf("inserting run report: %w", err)
	}
	return nil
}

// LastRunReport returns the most recent run, or nil if none was recorded.
func (db *DB) LastRunReport(ctx context.Context) (*RunReport, error) {
	var row runReportRow
	err := db.conn.GetContext(ctx, &row, `
SELECT run_id, started_at, finished_at, state, fetched, unique_articles,
	cached, generated, fallback, persisted, removed, errors
FROM run_reports ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last run report: %w", err)
	}
	return &RunReport{
		RunID:          row.RunID,
		StartedAt:      parseTime(row.StartedAt),
		FinishedAt:     parseTime(row.FinishedAt),
		State:          row.State,
		Fetched:        row.Fetched,
		UniqueArticles: row.UniqueArticles,
		Cached:         row.Cached,
		Generated:      row.Generated,
		Fallback:       row.Fallback,
		Persisted:      row.Persisted,
		Removed:        row.Removed,
		Errors:         row.Errors,
	}, nil
}

// TryAcquireRunLock takes the named lock for owner unless another owner
// holds an unexpired lease. It reports whether the lock was acquired.
func (db *DB) TryAcquireRunLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := db.now()
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lock: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM run_locks WHERE name = ? AND expires_at < ?`),
		name, formatTime(now)); err != nil {
		return false, fmt.Errorf("expiring lock: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO run_locks (name, owner, expires_at) VALUES (?, ?, ?) ON CONFLICT(name) DO NOTHING`),
		name, owner, formatTime(now.Add(ttl)))
	if err != nil {
		return false, fmt.Errorf("inserting lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lock: %w", err)
	}
	return n == 1, nil
}

// RefreshRunLock extends owner's lease on the named lock by ttl. It reports
// false when owner no longer holds the lock.
func (db *DB) RefreshRunLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		db.conn.Rebind(`UPDATE run_locks SET expires_at = ? WHERE name = ? AND owner = ?`),
		formatTime(db.now().Add(ttl)), name, owner)
	if err != nil {
		return false, fmt.Errorf("refreshing lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseRunLock drops the lock if owner still holds it.
func (db *DB) ReleaseRunLock(ctx context.Context, name, owner string) error {
	_, err := db.conn.ExecContext(ctx,
		db.conn.Rebind(`DELETE FROM run_locks WHERE name = ? AND owner = ?`), name, owner)
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
