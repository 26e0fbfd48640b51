// Package localstore keeps the admin client's durable state in SQLite: the
// poll watermark, the alerts setting, queued mutations and cached snapshots.
package localstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	keyWatermark = "last_checked"
	keyAlerts    = "alerts_enabled"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Mutation is a queued partial update waiting for the server.
type Mutation struct {
	Seq       int64
	OrderID   int64
	Patch     orders.Patch
	QueuedAt  time.Time
	Attempts  int
	LastError string
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect local db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Watermark returns the last poll time, or the epoch on first run.
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	v, ok, err := s.get(ctx, keyWatermark)
	if err != nil || !ok {
		return orders.Epoch, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return orders.Epoch, fmt.Errorf("parse watermark %q: %w", v, err)
	}
	return t, nil
}

func (s *Store) SetWatermark(ctx context.Context, t time.Time) error {
	return s.put(ctx, keyWatermark, t.UTC().Format(time.RFC3339Nano))
}

// AlertsEnabled defaults to true until the admin turns alerts off.
func (s *Store) AlertsEnabled(ctx context.Context) (bool, error) {
	v, ok, err := s.get(ctx, keyAlerts)
	if err != nil || !ok {
		return true, err
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return on, nil
}

func (s *Store) SetAlerts(ctx context.Context, on bool) error {
	return s.put(ctx, keyAlerts, strconv.FormatBool(on))
}

// Clear wipes all local state.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"kv", "pending_mutations", "order_cache"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
