package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-guesthouse-orders/internal/orders"
	"github.com/spf13/cobra"
)

func NewSetCommand(opts *RootOptions) *cobra.Command {
	var (
		status         string
		settled        bool
		restaurantPaid bool
	)
	cmd := &cobra.Command{
		Use:   "set <order-id>",
		Short: "Change the status or payment flags of an order",
		Long: `Change the status or payment flags of an order.

Only the flags given are changed. When the service cannot be reached the
change is queued locally and replayed by "sync" or "watch".

Example:
  guesthouse-admin set 12 --status Delivered --settled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			var p orders.Patch
			if cmd.Flags().Changed("status") {
				st := orders.Status(status)
				p.Status = &st
			}
			if cmd.Flags().Changed("settled") {
				p.Settled = &settled
			}
			if cmd.Flags().Changed("restaurant-paid") {
				p.RestaurantPaid = &restaurantPaid
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			o, queued, err := s.outbox().Submit(cmd.Context(), id, p)
			if err != nil {
				return err
			}
			if queued {
				fmt.Fprintf(cmd.OutOrStdout(), "order %d: service unreachable, change queued\n", id)
				return nil
			}
			printOrder(cmd.OutOrStdout(), o)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Pending, Preparing or Delivered")
	cmd.Flags().BoolVar(&settled, "settled", false, "guest has paid")
	cmd.Flags().BoolVar(&restaurantPaid, "restaurant-paid", false, "restaurant has been paid")
	return cmd
}

func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued changes and check for new orders once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			res, err := s.outbox().Replay(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "queued changes: %d applied, %d failed, %d waiting\n", res.Applied, res.Failed, res.Skipped)

			n, err := s.poller(opts, nil, nil).Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "new orders: %d\n", n)
			return nil
		},
	}
}

func NewOrdersCommand(opts *RootOptions) *cobra.Command {
	var (
		offline bool
		contact string
	)
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			var list []orders.Order
			switch {
			case offline:
				list, err = s.local.CachedOrders(cmd.Context())
				if contact != "" {
					list = filterContact(list, contact)
				}
			case contact != "":
				list, err = s.api.FindByContact(cmd.Context(), contact)
			default:
				list, err = s.api.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			for _, o := range list {
				if !offline {
					_ = s.local.CacheOrder(cmd.Context(), o)
				}
				printOrder(cmd.OutOrStdout(), o)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "show cached snapshots without contacting the service")
	cmd.Flags().StringVar(&contact, "contact", "", "room or mobile number")
	return cmd
}

func filterContact(list []orders.Order, contact string) []orders.Order {
	var out []orders.Order
	for _, o := range list {
		if o.RoomNumber == contact || o.MobileNumber == contact {
			out = append(out, o)
		}
	}
	return out
}

func NewAlertsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "alerts [on|off]",
		Short:     "Show or change new-order alerts",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "on":
					err = s.local.SetAlerts(cmd.Context(), true)
				case "off":
					err = s.local.SetAlerts(cmd.Context(), false)
				default:
					return fmt.Errorf("want on or off, got %q", args[0])
				}
				if err != nil {
					return err
				}
			}
			on, err := s.local.AlertsEnabled(cmd.Context())
			if err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alerts %s\n", state)
			return nil
		},
	}
}

func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget all local state, including queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.local.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "local state cleared")
			return nil
		},
	}
}
