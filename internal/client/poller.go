package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/notify"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
)

// ErrBusy is returned when a tick or replay is already running.
var ErrBusy = errors.New("already running")

const DefaultPollInterval = 30 * time.Second

type OrderSource interface {
	ListSince(ctx context.Context, since time.Time) (orders.Batch, error)
}

// PollState is the durable side of the poller.
type PollState interface {
	Watermark(ctx context.Context) (time.Time, error)
	SetWatermark(ctx context.Context, t time.Time) error
	CacheOrder(ctx context.Context, o orders.Order) error
}

// Poller fetches orders created since the last check. It covers the gaps when
// no realtime connection is alive.
type Poller struct {
	Source   OrderSource
	State    PollState
	Notifier notify.Notifier
	Seen     *Seen
	Interval time.Duration

	inFlight atomic.Bool
}

// Tick runs one poll and returns how many orders were notified. The watermark
// moves only after the whole batch has been handled.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer p.inFlight.Store(false)

	prev, err := p.State.Watermark(ctx)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}
	batch, err := p.Source.ListSince(ctx, prev)
	if err != nil {
		return 0, fmt.Errorf("list since %s: %w", prev.Format(time.RFC3339), err)
	}

	n := 0
	for _, o := range batch.Orders {
		if err := p.State.CacheOrder(ctx, o); err != nil {
			log.Printf("poller: cache order %d: %v", o.ID, err)
		}
		if p.Seen != nil && !p.Seen.First(orders.NewOrder{Order: o}) {
			continue
		}
		if p.Notifier != nil {
			if err := p.Notifier.Notify(ctx, o); err != nil {
				log.Printf("poller: notify order %d: %v", o.ID, err)
			}
		}
		n++
	}

	next := nextWatermark(prev, batch.CheckedAt)
	if err := p.State.SetWatermark(ctx, next); err != nil {
		return n, fmt.Errorf("save watermark: %w", err)
	}
	return n, nil
}

// nextWatermark keeps the watermark strictly increasing even when the server
// clock lags the previous check.
func nextWatermark(prev, checkedAt time.Time) time.Time {
	if checkedAt.After(prev) {
		return checkedAt
	}
	return prev.Add(time.Microsecond)
}

// Run ticks immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if n, err := p.Tick(ctx); err != nil && !errors.Is(err, ErrBusy) {
			log.Printf("poller: %v", err)
		} else if n > 0 {
			log.Printf("poller: %d new order(s)", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
