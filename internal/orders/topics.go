package orders

import (
	"strconv"
	"time"
)

const (
	TopicOrderEvents = "guesthouse.orders.events"
)

// Envelope is the record written to Kafka for every bus event.
type Envelope struct {
	EventID      string    `json:"event_id"`      // uuid
	EventType    string    `json:"event_type"`    // new-order | order-status-update
	EventVersion int       `json:"event_version"` // 1
	OccurredAt   time.Time `json:"occurred_at"`
	Producer     string    `json:"producer"`
	OrderID      int64     `json:"order_id"`
	Order        Order     `json:"order"`
}

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
