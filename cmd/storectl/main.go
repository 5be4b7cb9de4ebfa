package main

import (
	"encoding/json"
	"fmt"
	"os"

	"storefront/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

// options are the paths shared by every subcommand. Defaults come from the
// same environment the server reads.
type options struct {
	deliveryConfig string
	storeDriver    string
	ordersFile     string
	databaseURL    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Operator tools for the storefront delivery config and order store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.deliveryConfig, "delivery-config", cfg.Delivery.ConfigFile, "Delivery config document")
	flags.StringVar(&opts.storeDriver, "store", cfg.Storage.Driver, "Order store driver (file, postgres)")
	flags.StringVar(&opts.ordersFile, "orders-file", cfg.Storage.OrdersFile, "Orders file for the file store")
	flags.StringVar(&opts.databaseURL, "database-url", cfg.Storage.DatabaseURL, "Database URL for the postgres store")

	rootCmd.AddCommand(quoteCmd(opts))
	rootCmd.AddCommand(configCmd(opts))
	rootCmd.AddCommand(orderCmd(opts))

	return rootCmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
