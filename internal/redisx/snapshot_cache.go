package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

var ErrCacheMiss = errors.New("cache miss")

// SnapshotCache keeps the latest Order snapshot per id in Redis. Mutations are
// written through by the HTTP handler; bus events only invalidate, so a late
// event can cause a miss but never an older snapshot. Reads on GET /orders/{id}
// fill a missing entry and never replace an existing one.
type SnapshotCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	inbox chan int64
	group singleflight.Group
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration, buf int) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLSnapshot
	}
	if buf <= 0 {
		buf = 256
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl, inbox: make(chan int64, buf)}
}

func snapshotKey(id int64) string { return fmt.Sprintf(KeyOrderSnapshot, id) }

func (c *SnapshotCache) Get(ctx context.Context, id int64) (orders.Order, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, ErrCacheMiss
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("redis get failed: %w", err)
	}
	var o orders.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return orders.Order{}, fmt.Errorf("unmarshal order failed: %w", err)
	}
	return o, nil
}

func (c *SnapshotCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order failed: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey(o.ID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// fill stores o only if no entry exists. A read loaded before a concurrent
// mutation must not overwrite the snapshot that mutation wrote.
func (c *SnapshotCache) fill(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order failed: %w", err)
	}
	if err := c.rdb.SetNX(ctx, snapshotKey(o.ID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

// Load returns the cached snapshot or falls back to load, collapsing concurrent
// misses for the same id into one load.
func (c *SnapshotCache) Load(ctx context.Context, id int64, load func(context.Context, int64) (orders.Order, error)) (orders.Order, error) {
	if o, err := c.Get(ctx, id); err == nil {
		return o, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		log.Printf("snapshot cache: %v", err)
	}

	v, err, _ := c.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		o, err := load(ctx, id)
		if err != nil {
			return orders.Order{}, err
		}
		if err := c.fill(ctx, o); err != nil {
			log.Printf("snapshot cache: %v", err)
		}
		return o, nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return v.(orders.Order), nil
}

// Invalidate drops the entry for id.
func (c *SnapshotCache) Invalidate(ctx context.Context, id int64) error {
	if err := c.rdb.Del(ctx, snapshotKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Observe is a bus handler. It never blocks; a full inbox drops the
// invalidation and the entry expires with its TTL.
func (c *SnapshotCache) Observe(ev orders.Event) {
	id := ev.Snapshot().ID
	select {
	case c.inbox <- id:
	default:
		log.Printf("snapshot cache: inbox full, dropping invalidation for order %d", id)
	}
}

// Run invalidates observed orders until ctx is done.
func (c *SnapshotCache) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-c.inbox:
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := c.Invalidate(wctx, id); err != nil {
				log.Printf("snapshot cache: %v", err)
			}
			cancel()
		}
	}
}
