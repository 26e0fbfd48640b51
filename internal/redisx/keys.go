package redisx

import "time"

const (
	// Order snapshot cache: order:{order_id} -> Order JSON
	KeyOrderSnapshot = "order:%d"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLSnapshot = 5 * time.Minute
	TTLDedup    = 48 * time.Hour
)
