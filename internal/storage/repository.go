// Package storage persists computed report snapshots in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the JSON result of one report computation.
type Snapshot struct {
	ID        int64           `json:"id"`
	Report    string          `json:"report"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

const (
	insertSnapshot = `INSERT INTO report_snapshots (report, key, payload, created_at) VALUES (?, ?, ?, ?)`
	latestSnapshot = `SELECT id, report, key, payload, created_at FROM report_snapshots
		WHERE report = ? AND key = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	listSnapshots = `SELECT id, report, key, payload, created_at FROM report_snapshots
		WHERE report = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	pruneSnapshots = `DELETE FROM report_snapshots WHERE created_at < ?`
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save encodes result and stores it as the newest snapshot of report/key.
func (r *SQLiteRepository) Save(ctx context.Context, report, key string, result any) (Snapshot, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot %s/%s: %w", report, key, err)
	}

	created := r.now().UTC()
	res, err := r.db.ExecContext(ctx, insertSnapshot, report, key, string(payload), created.UnixNano())
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot %s/%s: %w", report, key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}

	slog.DebugContext(ctx, "Report snapshot saved",
		"id", id,
		"report", report,
		"key", key,
		"bytes", len(payload))

	return Snapshot{ID: id, Report: report, Key: key, Payload: payload, CreatedAt: created}, nil
}

// Latest returns the newest snapshot of report/key.
func (r *SQLiteRepository) Latest(ctx context.Context, report, key string) (Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx, latestSnapshot, report, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, report, key)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot %s/%s: %w", report, key, err)
	}
	return s, nil
}

// List returns up to limit snapshots of report, newest first.
func (r *SQLiteRepository) List(ctx context.Context, report string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, listSnapshots, report, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", report, err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than age and returns how many were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().UTC().Add(-age)
	res, err := r.db.ExecContext(ctx, pruneSnapshots, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned report snapshots", "count", n, "older_than", age)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		s       Snapshot
		payload string
		created int64
	)
	if err := row.Scan(&s.ID, &s.Report, &s.Key, &payload, &created); err != nil {
		return Snapshot{}, err
	}
	s.Payload = json.RawMessage(payload)
	s.CreatedAt = time.Unix(0, created).UTC()
	return s, nil
}
