package orders

import "context"

// Publisher is the side of the Bus a NotifyingStore needs.
type Publisher interface {
	Publish(Event)
}

// NotifyingStore wraps a Store and publishes exactly one event per successful
// mutation. Reads pass straight through.
type NotifyingStore struct {
	Store
	Events Publisher
}

func NewNotifyingStore(s Store, p Publisher) *NotifyingStore {
	return &NotifyingStore{Store: s, Events: p}
}

func (n *NotifyingStore) Create(ctx context.Context, d Draft) (Order, error) {
	o, err := n.Store.Create(ctx, d)
	if err != nil {
		return Order{}, err
	}
	n.Events.Publish(NewOrder{Order: o})
	return o, nil
}

func (n *NotifyingStore) UpdateFields(ctx context.Context, id int64, p Patch) (Order, error) {
	o, err := n.Store.UpdateFields(ctx, id, p)
	if err != nil {
		return Order{}, err
	}
	n.Events.Publish(OrderStatusUpdate{Order: o})
	return o, nil
}

// compile-time checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repo)(nil)
	_ Store = (*NotifyingStore)(nil)
)
