package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/go-guesthouse-orders/internal/client"
	"github.com/ariefcatur/go-guesthouse-orders/internal/notify"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var noBell bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow orders live, polling as a fallback",
		Long: `Follow orders live over the realtime connection.

The poller keeps running in the background so orders placed while the
connection was down are still reported. Queued changes are replayed
every time the connection comes back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd, opts, !noBell)
		},
	}
	cmd.Flags().BoolVar(&noBell, "no-bell", false, "do not ring the terminal bell")
	return cmd
}

// watch returns only after the poller and replay loops have stopped and the
// manager callbacks can no longer reach the local store.
func watch(ctx context.Context, cmd *cobra.Command, opts *RootOptions, bell bool) error {
	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	url, err := client.WebsocketURL(opts.APIURL)
	if err != nil {
		return fmt.Errorf("realtime url: %w", err)
	}

	// Manager callbacks run on its read goroutine, which Close does not wait
	// for. They go through local, which is a no-op once watch is returning.
	var (
		mu      sync.Mutex
		stopped bool
	)
	local := func(f func()) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			f()
		}
	}

	seen := client.NewSeen(0)
	enabled := func(ctx context.Context) (on bool, err error) {
		local(func() { on, err = s.local.AlertsEnabled(ctx) })
		return on, err
	}
	alerts := &notify.Gate{Next: &notify.Terminal{W: out, Bell: bell}, Enabled: enabled}
	box := s.outbox()
	poller := s.poller(opts, seen, alerts)

	g, gctx := errgroup.WithContext(ctx)
	reconnected := make(chan struct{}, 1)

	m := client.NewManager(url, client.WSDialer{})
	m.RetryDelay = opts.RetryDelay
	m.Seen = seen
	m.Notifier = alerts
	m.OnStateChange = func(st client.ConnState) { fmt.Fprintf(out, "-- %s\n", st) }
	m.OnConnect = func() {
		select {
		case reconnected <- struct{}{}:
		default:
		}
	}
	cache := func(o orders.Order) {
		local(func() {
			if err := s.local.CacheOrder(gctx, o); err != nil {
				fmt.Fprintf(out, "cache: %v\n", err)
			}
		})
	}
	m.OnNewOrder = cache
	m.OnOrderStatusUpdate = func(o orders.Order) {
		cache(o)
		printOrder(out, o)
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-reconnected:
				replayQueued(gctx, out, box)
			}
		}
	})
	g.Go(func() error { return poller.Run(gctx) })

	m.Start(gctx)
	<-gctx.Done()
	m.Close()
	err = g.Wait()

	mu.Lock()
	stopped = true
	mu.Unlock()
	return err
}

func replayQueued(ctx context.Context, out io.Writer, box *client.Outbox) {
	res, err := box.Replay(ctx)
	if err != nil {
		fmt.Fprintf(out, "replay: %v\n", err)
		return
	}
	if res.Applied+res.Failed > 0 {
		fmt.Fprintf(out, "replayed %d queued change(s), %d failed\n", res.Applied, res.Failed)
	}
}
