package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
)

// Enqueue appends a mutation to the durable queue.
func (s *Store) Enqueue(ctx context.Context, orderID int64, p orders.Patch) (int64, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("marshal patch: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_mutations (order_id, patch, queued_at) VALUES (?, ?, ?)`,
		orderID, string(b), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("enqueue order %d: %w", orderID, err)
	}
	return res.LastInsertId()
}

// Pending returns queued mutations oldest first.
func (s *Store) Pending(ctx context.Context) ([]Mutation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, order_id, patch, queued_at, attempts, last_error
		 FROM pending_mutations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []Mutation
	for rows.Next() {
		var (
			m        Mutation
			patch    string
			queuedAt string
		)
		if err := rows.Scan(&m.Seq, &m.OrderID, &patch, &queuedAt, &m.Attempts, &m.LastError); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if err := json.Unmarshal([]byte(patch), &m.Patch); err != nil {
			return nil, fmt.Errorf("decode patch %d: %w", m.Seq, err)
		}
		m.QueuedAt, _ = time.Parse(time.RFC3339Nano, queuedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Remove(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("remove mutation %d: %w", seq, err)
	}
	return nil
}

// MarkFailed records a failed attempt and keeps the mutation queued.
func (s *Store) MarkFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_mutations SET attempts = attempts + 1, last_error = ? WHERE seq = ?`, msg, seq)
	if err != nil {
		return fmt.Errorf("mark mutation %d failed: %w", seq, err)
	}
	return nil
}

// CacheOrder stores the latest known snapshot of an order.
func (s *Store) CacheOrder(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO order_cache (id, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		o.ID, string(b), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("cache order %d: %w", o.ID, err)
	}
	return nil
}

// CachedOrders returns every cached snapshot ordered by id.
func (s *Store) CachedOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT snapshot FROM order_cache ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan cache: %w", err)
		}
		var o orders.Order
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode cached order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
