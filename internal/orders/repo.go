package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the PostgreSQL-backed Store.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, created_at, status, name, room_number, mobile_number, items, total, settled, restaurant_paid`

func (r *Repo) Create(ctx context.Context, d Draft) (Order, error) {
	if err := ValidateDraft(d); err != nil {
		return Order{}, err
	}
	o := newOrder(d, 0, time.Time{})
	items, err := json.Marshal(o.Items)
	if err != nil {
		return Order{}, fmt.Errorf("marshal items: %w", err)
	}

	// status and flags are forced here rather than trusted from the client
	row := r.DB.QueryRow(ctx, `
		INSERT INTO orders(status, name, room_number, mobile_number, items, total, settled, restaurant_paid)
		VALUES ($1, $2, $3, $4, $5, $6, false, false)
		RETURNING `+orderColumns,
		o.Status, o.Name, o.RoomNumber, o.MobileNumber, items, o.Total,
	)
	out, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (r *Repo) ListSince(ctx context.Context, since time.Time) ([]Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE created_at > $1 ORDER BY id`, since)
}

func (r *Repo) FindByContact(ctx context.Context, contact string) ([]Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders
	                     WHERE room_number = $1 OR mobile_number = $1 ORDER BY id`, contact)
}

// UpdateFields patches only the provided columns in a single statement, so two
// concurrent patches touching different fields both survive.
func (r *Repo) UpdateFields(ctx context.Context, id int64, p Patch) (Order, error) {
	if err := ValidatePatch(p); err != nil {
		return Order{}, err
	}
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	row := r.DB.QueryRow(ctx, `
		UPDATE orders SET
			status          = COALESCE($2, status),
			settled         = COALESCE($3, settled),
			restaurant_paid = COALESCE($4, restaurant_paid),
			updated_at      = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		id, status, p.Settled, p.RestaurantPaid,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
		items  []byte
	)
	if err := row.Scan(&o.ID, &o.Timestamp, &status, &o.Name, &o.RoomNumber, &o.MobileNumber,
		&items, &o.Total, &o.Settled, &o.RestaurantPaid); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.Timestamp = o.Timestamp.UTC()
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("unmarshal items: %w", err)
	}
	return o, nil
}
