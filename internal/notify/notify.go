// Package notify raises local alerts for the admin when orders arrive.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
)

type Notifier interface {
	Notify(ctx context.Context, o orders.Order) error
}

// Terminal rings the bell and prints one line per order.
type Terminal struct {
	mu   sync.Mutex
	W    io.Writer
	Bell bool
}

func (t *Terminal) Notify(_ context.Context, o orders.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bell := ""
	if t.Bell {
		bell = "\a"
	}
	_, err := fmt.Fprintf(t.W, "%snew order #%d  room %s  %d item(s)  total %d\n",
		bell, o.ID, o.RoomNumber, len(o.Items), o.Total)
	return err
}

// Gate forwards to Next only while Enabled reports true.
type Gate struct {
	Next    Notifier
	Enabled func(ctx context.Context) (bool, error)
}

func (g *Gate) Notify(ctx context.Context, o orders.Order) error {
	on, err := g.Enabled(ctx)
	if err != nil {
		log.Printf("notify: read alerts setting: %v", err)
	}
	if !on {
		return nil
	}
	return g.Next.Notify(ctx, o)
}
