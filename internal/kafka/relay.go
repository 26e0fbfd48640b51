package kafka

import (
	"log"
	"strconv"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Relay forwards bus events to a Kafka topic for processes outside the API.
type Relay struct {
	Producer *Producer
	Service  string
	Now      func() time.Time
}

// Envelope wraps ev for the topic.
func (r *Relay) Envelope(ev orders.Event) orders.Envelope {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	o := ev.Snapshot()
	return orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    ev.Kind(),
		EventVersion: 1,
		OccurredAt:   now().UTC(),
		Producer:     r.Service,
		OrderID:      o.ID,
		Order:        o,
	}
}

// Observe is a bus handler.
func (r *Relay) Observe(ev orders.Event) {
	env := r.Envelope(ev)
	ok := r.Producer.Publish(orders.PartitionKey(env.OrderID), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
	if !ok {
		log.Printf("kafka relay: inbox full, dropped %s for order %d", env.EventType, env.OrderID)
	}
}
