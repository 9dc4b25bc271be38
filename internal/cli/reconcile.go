package cli

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cartsync/internal/checkout"
	"github.com/fjod/go_cart/cartsync/internal/reconcile"
	"github.com/spf13/cobra"
)

type ReconcileOptions struct {
	*RootOptions
	UserID string
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass over pending checkout cleanups",
		Long: `Retry the cleanup of every placed order whose cart, mirror or staging
cleanup did not finish. Without --user every user with pending work is
visited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "only reconcile this user")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	ctx := cmd.Context()
	a, log, err := opts.build(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close(context.Background())

	var report reconcile.Report
	if opts.UserID != "" {
		report, err = a.Reconciler.Run(ctx, checkout.Session{UserID: opts.UserID})
	} else {
		report, err = a.Reconciler.RunAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "pending=%d completed=%d skipped=%d\n",
		report.Pending, report.Completed, report.Skipped)
	return err
}
