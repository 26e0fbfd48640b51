package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) snapshot() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestRelay_ForwardsBusEvents(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, 16)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := &Relay{Producer: p, Service: "orders-api", Now: func() time.Time { return fixed }}

	bus := orders.NewBus()
	bus.Subscribe(relay.Observe)
	bus.Publish(orders.NewOrder{Order: orders.Order{ID: 12, Status: orders.StatusPending, Total: 200}})
	bus.Publish(orders.OrderStatusUpdate{Order: orders.Order{ID: 12, Status: orders.StatusPreparing, Total: 200}})

	require.Eventually(t, func() bool { return len(w.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	p.WaitClosed()

	msgs := w.snapshot()
	assert.Equal(t, []byte("12"), msgs[0].Key)
	assert.Equal(t, "x-event-type", msgs[0].Headers[0].Key)
	assert.Equal(t, []byte(orders.TypeNewOrder), msgs[0].Headers[0].Value)

	env, err := UnmarshalEnvelope(msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, orders.TypeOrderStatusUpdate, env.EventType)
	assert.Equal(t, int64(12), env.OrderID)
	assert.Equal(t, orders.StatusPreparing, env.Order.Status)
	assert.Equal(t, "orders-api", env.Producer)
	assert.Equal(t, fixed, env.OccurredAt)
	assert.NotEmpty(t, env.EventID)
	assert.True(t, w.closed)
}

func TestProducer_PublishDropsWhenFull(t *testing.T) {
	p := NewProducerWithWriter(&memWriter{}, 1)
	assert.True(t, p.Publish([]byte("k"), []byte("v")))
	assert.False(t, p.Publish([]byte("k"), []byte("v")))
}
