package main

import (
	"fmt"
	"os"

	"storefront/internal/delivery"

	"github.com/spf13/cobra"
)

func quoteCmd(opts *options) *cobra.Command {
	var installation bool

	cmd := &cobra.Command{
		Use:   "quote [postalCode]",
		Short: "Price shipping to a postal code with the current delivery config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := delivery.LoadConfig(opts.deliveryConfig)
			if err != nil {
				return err
			}

			engine := delivery.NewEngine()
			if !installation {
				quote, err := engine.QuotePostalCode(args[0], cfg)
				if err != nil {
					return err
				}
				return printJSON(cmd, quote)
			}

			decision, err := engine.Quote(delivery.DeliveryRequest{
				Method:                "shipping",
				PostalCode:            args[0],
				InstallationRequested: true,
			}, cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd, decision)
		},
	}

	cmd.Flags().BoolVarP(&installation, "installation", "i", false, "Also price installation")
	return cmd
}

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the delivery config document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Check a delivery document against the schema and report unusable rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.deliveryConfig
			if len(args) == 1 {
				path = args[0]
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read delivery config: %w", err)
			}
			cfg, err := delivery.ValidateDocument(data)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			problems := cfg.Lint()
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%s: %d problem(s) found", path, len(problems))
			}

			fmt.Fprintf(out, "%s: OK (%d shipping rules)\n", path, len(cfg.ShippingRules))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "options",
		Short: "Print the public delivery options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := delivery.LoadConfig(opts.deliveryConfig)
			if err != nil {
				return err
			}
			return printJSON(cmd, delivery.NewEngine().Options(cfg))
		},
	})

	return cmd
}
