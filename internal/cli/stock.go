package cli

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/app"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/spf13/cobra"
)

func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Read or record product stock levels used by checkout",
	}
	cmd.AddCommand(newStockSetCommand(rootOpts))
	cmd.AddCommand(newStockGetCommand(rootOpts))
	return cmd
}

func stockKeyFlags(cmd *cobra.Command, key *domain.LineKey) {
	f := cmd.Flags()
	f.StringVar(&key.ProductID, "product", "", "product id (required)")
	f.StringVar(&key.Color, "color", "", "variant color")
	f.StringVar(&key.Size, "size", "", "variant size")
	_ = cmd.MarkFlagRequired("product")
}

func newStockSetCommand(opts *RootOptions) *cobra.Command {
	var (
		key       domain.LineKey
		available int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Record the available quantity of a variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Stock.SetStock(ctx, key, available)
			})
		},
	}
	stockKeyFlags(cmd, &key)
	cmd.Flags().IntVar(&available, "available", 0, "available quantity")
	_ = cmd.MarkFlagRequired("available")
	return cmd
}

func newStockGetCommand(opts *RootOptions) *cobra.Command {
	var key domain.LineKey
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the available quantity of a variant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Stock.GetStock(ctx, key)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
	stockKeyFlags(cmd, &key)
	return cmd
}
