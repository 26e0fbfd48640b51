package client

import (
	"strconv"
	"sync"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/cespare/xxhash/v2"
)

// Seen remembers recent new-order events so an order reported by both the
// realtime connection and the poller is surfaced once. Status updates are
// never suppressed: an order may legitimately return to an earlier state.
type Seen struct {
	mu   sync.Mutex
	max  int
	set  map[uint64]struct{}
	fifo []uint64
}

func NewSeen(max int) *Seen {
	if max <= 0 {
		max = 4096
	}
	return &Seen{max: max, set: make(map[uint64]struct{}, max)}
}

// First reports whether ev has not been observed before and records it.
// It is always true for status updates.
func (s *Seen) First(ev orders.Event) bool {
	if _, ok := ev.(orders.NewOrder); !ok {
		return true
	}
	fp := fingerprint(ev.Snapshot().ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[fp]; ok {
		return false
	}
	if len(s.fifo) >= s.max {
		delete(s.set, s.fifo[0])
		s.fifo = s.fifo[1:]
	}
	s.set[fp] = struct{}{}
	s.fifo = append(s.fifo, fp)
	return true
}

func fingerprint(id int64) uint64 {
	return xxhash.Sum64String(orders.TypeNewOrder + ":" + strconv.FormatInt(id, 10))
}
