package orders

import (
	"context"
	"time"
)

// Store holds orders keyed by id.
type Store interface {
	Create(ctx context.Context, d Draft) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context) ([]Order, error)
	// ListSince returns orders with Timestamp strictly after since, in creation order.
	ListSince(ctx context.Context, since time.Time) ([]Order, error)
	// FindByContact matches roomNumber or mobileNumber.
	FindByContact(ctx context.Context, contact string) ([]Order, error)
	UpdateFields(ctx context.Context, id int64, p Patch) (Order, error)
}

// Epoch is the watermark a fresh poller starts from.
var Epoch = time.Unix(0, 0).UTC()

// newOrder builds the record a store persists for a draft.
func newOrder(d Draft, id int64, ts time.Time) Order {
	items := make([]LineItem, len(d.Items))
	copy(items, d.Items)
	return Order{
		ID:             id,
		Timestamp:      ts,
		Status:         StatusPending,
		Name:           d.Name,
		RoomNumber:     d.RoomNumber,
		MobileNumber:   d.MobileNumber,
		Items:          items,
		Total:          d.Total(),
		Settled:        false,
		RestaurantPaid: false,
	}
}

// Batch is one page of the new-orders fallback: the orders created after the
// requested watermark and the server time the page was taken at.
type Batch struct {
	Orders    []Order   `json:"orders"`
	CheckedAt time.Time `json:"checkedAt"`
}
