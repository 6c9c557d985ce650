// Package ledger records download attempts in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// Ledger persists download entries. Safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record stores e, assigning an ID and timestamps when missing.
func (l *Ledger) Record(ctx context.Context, e Entry) (string, error) {
	if e.Platform == "" {
		return "", fmt.Errorf("platform is empty")
	}
	if e.Outcome == "" {
		return "", fmt.Errorf("outcome is empty")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.StartedAt.IsZero() {
		e.StartedAt = now
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = now
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO downloads(
  id, request_id, started_at, completed_at, platform, rpm_family, mode,
  artifact, delivered_name, bytes, outcome, error
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, nullable(e.RequestID), e.StartedAt.UTC().Format(time.RFC3339Nano), e.CompletedAt.UTC().Format(time.RFC3339Nano),
		e.Platform, e.RPMFamily, e.Mode, nullable(e.Artifact), nullable(e.DeliveredName), e.Bytes, string(e.Outcome), nullable(e.Error))
	if err != nil {
		return "", fmt.Errorf("record download: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first. Non-positive limits use
// DefaultRecentLimit; larger ones are capped at MaxRecentLimit.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, request_id, started_at, completed_at, platform, rpm_family, mode,
       artifact, delivered_name, bytes, outcome, error
FROM downloads
ORDER BY started_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e            Entry
			requestID    sql.NullString
			startedAtS   string
			completedAtS string
			artifact     sql.NullString
			delivered    sql.NullString
			outcomeS     string
			errS         sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &requestID, &startedAtS, &completedAtS, &e.Platform, &e.RPMFamily, &e.Mode,
			&artifact, &delivered, &e.Bytes, &outcomeS, &errS,
		); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		e.RequestID = requestID.String
		e.Artifact = artifact.String
		e.DeliveredName = delivered.String
		e.Error = errS.String
		e.Outcome = Outcome(outcomeS)
		if t, err := time.Parse(time.RFC3339Nano, startedAtS); err == nil {
			e.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
			e.CompletedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
