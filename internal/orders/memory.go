package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps orders in process memory. A single mutex serializes every
// mutation, so concurrent patches to the same order both land.
type MemoryStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64
	byID   map[int64]*Order
	order  []int64 // creation order
}

type MemoryOption func(*MemoryStore)

// WithClock overrides the timestamp source, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:  time.Now,
		byID: map[int64]*Order{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, d Draft) (Order, error) {
	if err := ValidateDraft(d); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o := newOrder(d, s.nextID, s.now().UTC())
	s.byID[o.ID] = &o
	s.order = append(s.order, o.ID)
	return o.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Order, error) {
	return s.filter(func(Order) bool { return true }), nil
}

func (s *MemoryStore) ListSince(_ context.Context, since time.Time) ([]Order, error) {
	return s.filter(func(o Order) bool { return o.Timestamp.After(since) }), nil
}

func (s *MemoryStore) FindByContact(_ context.Context, contact string) ([]Order, error) {
	return s.filter(func(o Order) bool {
		return o.RoomNumber == contact || o.MobileNumber == contact
	}), nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id int64, p Patch) (Order, error) {
	if err := ValidatePatch(p); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	p.Apply(o)
	return o.clone(), nil
}

func (s *MemoryStore) filter(keep func(Order) bool) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.order))
	for _, id := range s.order {
		o := s.byID[id]
		if keep(*o) {
			out = append(out, o.clone())
		}
	}
	return out
}
