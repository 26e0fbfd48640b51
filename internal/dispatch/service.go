package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	kafkax "github.com/ariefcatur/go-guesthouse-orders/internal/kafka"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/ariefcatur/go-guesthouse-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Sink receives orders that must be forwarded to the outsourcing restaurant.
type Sink interface {
	Forward(ctx context.Context, o orders.Order) error
}

// Service forwards new orders from the event topic to the restaurant feed.
type Service struct {
	Redis       *redis.Client
	Sink        Sink
	ServiceName string
}

// HandleOrderEvent is installed as the consumer handler.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.TypeNewOrder {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	first, err := redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if !first {
		return nil
	}

	if err := s.Sink.Forward(ctx, env.Order); err != nil {
		// clear the mark so the consumer retry forwards it
		_ = s.Redis.Del(ctx, dkey).Err()
		return fmt.Errorf("forward order %d: %w", env.OrderID, err)
	}
	return nil
}

// TicketWriter prints a plain-text kitchen ticket per order.
type TicketWriter struct {
	mu sync.Mutex
	W  io.Writer
}

func (t *TicketWriter) Forward(_ context.Context, o orders.Order) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ORDER #%d  room %s  %s\n", o.ID, o.RoomNumber, o.Timestamp.Format("15:04"))
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %2d x %s", it.Quantity, it.Name)
		if it.Details != "" {
			fmt.Fprintf(&b, " (%s)", it.Details)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  total %d\n", o.Total)

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.W, b.String())
	return err
}
