package cli

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/app"
	"github.com/fjod/go_cart/cartsync/internal/cartstore"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/pricing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type CartOptions struct {
	*RootOptions
	UserID string
}

func NewCartCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and edit a user's local cart",
	}
	cmd.PersistentFlags().StringVar(&opts.UserID, "user", "", "user id (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(newCartListCommand(opts))
	cmd.AddCommand(newCartAddCommand(opts))
	cmd.AddCommand(newCartRemoveCommand(opts))
	return cmd
}

func newCartListCommand(opts *CartOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the cart as shown to the user, with totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var lines []domain.CartLine
				err := a.Carts.With(ctx, opts.UserID, func(s *cartstore.Store) error {
					lines = s.List()
					return nil
				})
				if err != nil {
					return err
				}
				shown, err := a.Reconciler.FilterCart(ctx, checkout.Session{UserID: opts.UserID}, lines)
				if err != nil {
					return err
				}
				if shown == nil {
					shown = []domain.CartLine{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"lines":  shown,
					"totals": pricing.Compute(shown, false),
				})
			})
		},
	}
}

func newCartAddCommand(opts *CartOptions) *cobra.Command {
	var line domain.CartLine

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a line, or increase the quantity of an existing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					stored  domain.CartLine
					clamped bool
				)
				err := a.Carts.With(ctx, opts.UserID, func(s *cartstore.Store) error {
					var err error
					stored, clamped, err = s.Upsert(ctx, line)
					return err
				})
				if err != nil {
					return err
				}
				if err := a.Mirror.Push(ctx, opts.UserID, stored); err != nil {
					a.Logger.Warn("cart mirror push failed", zap.Error(err))
				}
				if clamped {
					fmt.Fprintf(cmd.ErrOrStderr(), "quantity limited to %d by stock\n", stored.Quantity)
				}
				return writeJSON(cmd.OutOrStdout(), stored)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&line.ProductID, "product", "", "product id (required)")
	f.StringVar(&line.Color, "color", "", "variant color")
	f.StringVar(&line.Size, "size", "", "variant size")
	f.StringVar(&line.Name, "name", "", "display name")
	f.Int64Var(&line.UnitPrice, "price", 0, "unit price in the smallest currency unit")
	f.IntVar(&line.Quantity, "qty", 1, "quantity to add")
	f.IntVar(&line.StockLimit, "stock", 0, "available stock")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func newCartRemoveCommand(opts *CartOptions) *cobra.Command {
	var key domain.LineKey

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a line from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				err := a.Carts.With(ctx, opts.UserID, func(s *cartstore.Store) error {
					return s.Remove(ctx, key)
				})
				if err != nil {
					return err
				}
				if err := a.Mirror.DeleteLines(ctx, opts.UserID, []domain.LineKey{key}); err != nil {
					a.Logger.Warn("cart mirror delete failed", zap.Error(err))
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&key.ProductID, "product", "", "product id (required)")
	f.StringVar(&key.Color, "color", "", "variant color")
	f.StringVar(&key.Size, "size", "", "variant size")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, log, err := o.build(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close(context.Background())
	return fn(ctx, a)
}
