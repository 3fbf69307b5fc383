package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sdwan-overlay/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS path_health (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path_id TEXT NOT NULL,
	checked_at INTEGER NOT NULL,
	latency_ms REAL NOT NULL,
	packet_loss_pct REAL NOT NULL,
	jitter_ms REAL NOT NULL,
	health_score REAL NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_path_health_path_time ON path_health (path_id, checked_at);
`

// SQLite persists path health snapshots. Use ":memory:" as the path
// for an ephemeral store.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the database and applies the schema
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	// SQLite allows one writer; serialize through a single conn to
	// avoid SQLITE_BUSY under concurrent health checks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// InsertHealth appends one health snapshot
func (s *SQLite) InsertHealth(ctx context.Context, h model.PathHealth) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO path_health (path_id, checked_at, latency_ms, packet_loss_pct, jitter_ms, health_score, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.PathID.String(), h.LastChecked.UnixMilli(),
		h.LatencyMs, h.PacketLossPct, h.JitterMs, h.HealthScore, h.Status.String())
	if err != nil {
		return fmt.Errorf("insert health snapshot: %w", err)
	}
	return nil
}

// HealthHistory returns snapshots for a path within [since, until] in
// ascending time order. No rows yields an empty slice.
func (s *SQLite) HealthHistory(ctx context.Context, pathID model.PathID, since, until time.Time) ([]model.PathHealth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checked_at, latency_ms, packet_loss_pct, jitter_ms, health_score, status
		 FROM path_health
		 WHERE path_id = ? AND checked_at >= ? AND checked_at <= ?
		 ORDER BY checked_at ASC`,
		pathID.String(), since.UnixMilli(), until.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query health history: %w", err)
	}
	defer rows.Close()

	history := []model.PathHealth{}
	for rows.Next() {
		var (
			checkedAt int64
			status    string
			h         model.PathHealth
		)
		if err := rows.Scan(&checkedAt, &h.LatencyMs, &h.PacketLossPct, &h.JitterMs, &h.HealthScore, &status); err != nil {
			return nil, fmt.Errorf("scan health row: %w", err)
		}
		h.PathID = pathID
		h.LastChecked = time.UnixMilli(checkedAt)
		h.Status = model.ParsePathStatus(status)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health rows: %w", err)
	}
	return history, nil
}

// Close releases the database handle
func (s *SQLite) Close() error {
	return s.db.Close()
}
