package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tanq16/pullq/internal/types"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    url         TEXT NOT NULL UNIQUE,
    status      INTEGER NOT NULL DEFAULT 0,
    attempts    INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    output_path TEXT,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_download_items_status ON download_items(status);
`

const selectColumns = `SELECT id, url, status, attempts, COALESCE(error, ''), COALESCE(output_path, ''), created_at, updated_at FROM download_items`

// SQLite implements types.Store.
type SQLite struct {
	db *sql.DB
}

var _ types.Store = (*SQLite)(nil)

// Open creates the database file (and its directory) if needed and applies the schema.
func Open(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serializes every statement, so concurrent callers can
	// never interleave inside SQLite.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ListAll(ctx context.Context) ([]types.WorkItem, error) {
	return s.query(ctx, selectColumns+` ORDER BY id ASC`)
}

// ListEligible returns pending and failed items, oldest first.
func (s *SQLite) ListEligible(ctx context.Context) ([]types.WorkItem, error) {
	return s.query(ctx, selectColumns+` WHERE status IN (?, ?) ORDER BY id ASC`,
		types.StatusPending, types.StatusFailed)
}

func (s *SQLite) CountEligible(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_items WHERE status IN (?, ?)`,
		types.StatusPending, types.StatusFailed,
	).Scan(&n)
	return n, err
}

// Insert adds a pending item. A URL that is already queued is left untouched
// and its existing id is returned with created=false.
func (s *SQLite) Insert(ctx context.Context, url string) (int64, bool, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO download_items (url, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		url, types.StatusPending, now, now,
	)
	if err != nil {
		return 0, false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 1 {
		id, err := result.LastInsertId()
		return id, true, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM download_items WHERE url = ?`, url).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// UpdateStatus overwrites the mutable fields of an existing item.
func (s *SQLite) UpdateStatus(ctx context.Context, item types.WorkItem) error {
	if item.Status == types.StatusInProgress {
		return fmt.Errorf("item %d: %s is not a persistable status", item.ID, item.Status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE download_items SET status = ?, attempts = ?, error = ?, output_path = ?, updated_at = ?
		 WHERE id = ?`,
		item.Status, item.Attempts, nullable(item.LastError), nullable(item.OutputPath), time.Now().UTC(), item.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("item %d: %w", item.ID, types.ErrItemNotFound)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id int64) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, types.ErrItemNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]types.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (types.WorkItem, error) {
	var item types.WorkItem
	var status int
	err := row.Scan(&item.ID, &item.URL, &status, &item.Attempts, &item.LastError, &item.OutputPath, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return types.WorkItem{}, err
	}
	item.Status = types.Status(status)
	return item, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
