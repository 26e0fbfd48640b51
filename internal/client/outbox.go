package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/ariefcatur/go-guesthouse-orders/internal/localstore"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
)

type Updater interface {
	UpdateFields(ctx context.Context, id int64, p orders.Patch) (orders.Order, error)
}

// Queue is the durable FIFO behind the outbox.
type Queue interface {
	Enqueue(ctx context.Context, orderID int64, p orders.Patch) (int64, error)
	Pending(ctx context.Context) ([]localstore.Mutation, error)
	Remove(ctx context.Context, seq int64) error
	MarkFailed(ctx context.Context, seq int64, cause error) error
	CacheOrder(ctx context.Context, o orders.Order) error
}

// Outbox holds mutations made while the server was unreachable and replays
// them in the order they were made.
type Outbox struct {
	Queue Queue
	API   Updater

	running atomic.Bool
}

type ReplayResult struct {
	Applied int
	Failed  int
	Skipped int
}

// Submit sends p now, or queues it when the server is unavailable or earlier
// changes to the same order are still queued.
func (o *Outbox) Submit(ctx context.Context, id int64, p orders.Patch) (order orders.Order, queued bool, err error) {
	if err := orders.ValidatePatch(p); err != nil {
		return orders.Order{}, false, err
	}
	pending, err := o.Queue.Pending(ctx)
	if err != nil {
		return orders.Order{}, false, err
	}
	for _, m := range pending {
		if m.OrderID == id {
			return orders.Order{}, true, o.enqueue(ctx, id, p)
		}
	}

	order, err = o.API.UpdateFields(ctx, id, p)
	if errors.Is(err, ErrUnavailable) {
		return orders.Order{}, true, o.enqueue(ctx, id, p)
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	if err := o.Queue.CacheOrder(ctx, order); err != nil {
		log.Printf("outbox: cache order %d: %v", order.ID, err)
	}
	return order, false, nil
}

func (o *Outbox) enqueue(ctx context.Context, id int64, p orders.Patch) error {
	seq, err := o.Queue.Enqueue(ctx, id, p)
	if err != nil {
		return fmt.Errorf("queue change for order %d: %w", id, err)
	}
	log.Printf("outbox: queued change #%d for order %d", seq, id)
	return nil
}

// Replay applies queued mutations oldest first. A failed mutation stays queued
// and later mutations of the same order wait for the next replay.
func (o *Outbox) Replay(ctx context.Context) (ReplayResult, error) {
	var res ReplayResult
	if !o.running.CompareAndSwap(false, true) {
		return res, ErrBusy
	}
	defer o.running.Store(false)

	pending, err := o.Queue.Pending(ctx)
	if err != nil {
		return res, err
	}
	blocked := map[int64]bool{}
	for _, m := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if blocked[m.OrderID] {
			res.Skipped++
			continue
		}
		order, err := o.API.UpdateFields(ctx, m.OrderID, m.Patch)
		if err != nil {
			res.Failed++
			blocked[m.OrderID] = true
			log.Printf("outbox: replay #%d for order %d (attempt %d): %v", m.Seq, m.OrderID, m.Attempts+1, err)
			if err := o.Queue.MarkFailed(ctx, m.Seq, err); err != nil {
				return res, err
			}
			continue
		}
		if err := o.Queue.Remove(ctx, m.Seq); err != nil {
			return res, err
		}
		if err := o.Queue.CacheOrder(ctx, order); err != nil {
			log.Printf("outbox: cache order %d: %v", order.ID, err)
		}
		res.Applied++
	}
	return res, nil
}
