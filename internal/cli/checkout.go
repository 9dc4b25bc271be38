package cli

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/app"
	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/spf13/cobra"
)

type CheckoutOptions struct {
	*RootOptions
	UserID        string
	VoucherCode   string
	PaymentMethod string
	Address       domain.Address
}

func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Stage the user's cart and place an order for it",
		Long: `Stage the available lines of the user's cart and commit them as one order.

Example:
  cartsync checkout --user u1 --payment cash \
    --full-name "Jane Doe" --phone 0900 --street "3 Hang Bac" --city Hanoi`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runCheckout(ctx, cmd, a, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.UserID, "user", "", "user id (required)")
	f.StringVar(&opts.VoucherCode, "voucher", "", "voucher code to apply")
	f.StringVar(&opts.PaymentMethod, "payment", string(domain.PaymentCash), "payment method (cash|bankTransfer|eWallet)")
	f.StringVar(&opts.Address.FullName, "full-name", "", "recipient name")
	f.StringVar(&opts.Address.Phone, "phone", "", "recipient phone")
	f.StringVar(&opts.Address.Street, "street", "", "street address")
	f.StringVar(&opts.Address.Ward, "ward", "", "ward")
	f.StringVar(&opts.Address.District, "district", "", "district")
	f.StringVar(&opts.Address.City, "city", "", "city")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runCheckout(ctx context.Context, cmd *cobra.Command, a *app.App, opts *CheckoutOptions) error {
	session := checkout.Session{UserID: opts.UserID}

	if _, err := a.Coordinator.Begin(ctx, session, checkout.BeginOptions{VoucherCode: opts.VoucherCode}); err != nil {
		return err
	}

	address := opts.Address
	res, err := a.Coordinator.Commit(ctx, session, checkout.CommitRequest{
		Address:       &address,
		PaymentMethod: opts.PaymentMethod,
	})
	if err != nil {
		return err
	}
	if res.Degradation != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Degradation)
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
