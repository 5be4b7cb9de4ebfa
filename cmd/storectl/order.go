package main

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/spf13/cobra"
)

func openOrders(opts *options) (store.OrderRepository, func() error, error) {
	switch opts.storeDriver {
	case "postgres":
		db, err := store.NewPostgresStore(opts.databaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "", "file":
		return store.NewFileStore(opts.ordersFile), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", opts.storeDriver)
	}
}

func orderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Look up stored orders",
	}

	lookup := func(find func(context.Context, store.OrderRepository, string) (*models.Order, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			orders, closeFn, err := openOrders(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			order, err := find(cmd.Context(), orders, args[0])
			if err != nil {
				return err
			}
			if order == nil {
				return fmt.Errorf("order not found: %s", args[0])
			}
			return printJSON(cmd, order)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [orderId]",
		Short: "Print a stored order, including customer and payment data",
		Args:  cobra.ExactArgs(1),
		RunE: lookup(func(ctx context.Context, orders store.OrderRepository, id string) (*models.Order, error) {
			if !models.IsValidOrderID(id) {
				return nil, fmt.Errorf("invalid order id %q", id)
			}
			return orders.FindByID(ctx, id)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "find-preference [preferenceId]",
		Short: "Print the order created for a payment preference",
		Args:  cobra.ExactArgs(1),
		RunE: lookup(func(ctx context.Context, orders store.OrderRepository, id string) (*models.Order, error) {
			return orders.FindByPreferenceID(ctx, id)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of stored orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, closeFn, err := openOrders(opts)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := orders.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})

	return cmd
}
