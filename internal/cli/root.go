// Package cli implements the guest house admin command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ariefcatur/go-guesthouse-orders/internal/client"
	"github.com/ariefcatur/go-guesthouse-orders/internal/config"
	"github.com/ariefcatur/go-guesthouse-orders/internal/localstore"
	"github.com/ariefcatur/go-guesthouse-orders/internal/notify"
	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/spf13/cobra"
)

// RootOptions holds the global flags.
type RootOptions struct {
	APIURL       string
	CallerID     string
	LocalDB      string
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// NewRootCommand builds the admin CLI with defaults taken from cfg.
func NewRootCommand(cfg config.Client) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "guesthouse-admin",
		Short:         "Follow and manage guest room delivery orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", cfg.APIURL, "order service base URL")
	cmd.PersistentFlags().StringVar(&opts.CallerID, "caller", cfg.CallerID, "admin identity sent as X-Caller-Id")
	cmd.PersistentFlags().StringVar(&opts.LocalDB, "db", cfg.LocalDB, "local state database")
	cmd.PersistentFlags().DurationVar(&opts.PollInterval, "poll", cfg.PollInterval, "fallback poll interval")
	cmd.PersistentFlags().DurationVar(&opts.RetryDelay, "retry", cfg.RetryDelay, "realtime reconnect delay")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewAlertsCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))

	return cmd
}

// session is what most commands work against.
type session struct {
	local *localstore.Store
	api   *client.API
}

func (o *RootOptions) open() (*session, error) {
	local, err := localstore.Open(o.LocalDB)
	if err != nil {
		return nil, err
	}
	return &session{local: local, api: client.NewAPI(o.APIURL, o.CallerID, nil)}, nil
}

func (s *session) Close() error { return s.local.Close() }

func (s *session) outbox() *client.Outbox {
	return &client.Outbox{Queue: s.local, API: s.api}
}

func (s *session) poller(o *RootOptions, seen *client.Seen, n notify.Notifier) *client.Poller {
	return &client.Poller{Source: s.api, State: s.local, Notifier: n, Seen: seen, Interval: o.PollInterval}
}

func requireCaller(o *RootOptions) error {
	if o.CallerID == "" {
		return errors.New("caller id required: set --caller or CALLER_ID")
	}
	return nil
}

func printOrder(w io.Writer, o orders.Order) {
	fmt.Fprintf(w, "#%-4d room %-5s %-9s total %6d  settled=%-5t paid=%t\n",
		o.ID, o.RoomNumber, o.Status, o.Total, o.Settled, o.RestaurantPaid)
}
