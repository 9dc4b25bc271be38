package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/reconcile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ServeOptions struct {
	*RootOptions
	Port string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run background reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.HTTPPort = opts.Port
			}
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Port, "port", "", "HTTP port (overrides HTTP_PORT)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := opts.build(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		reconcile.NewPoller(a.Reconciler, opts.cfg.ReconcileInterval, log).Run(ctx)
	}()

	srv := &http.Server{
		Addr:         ":" + opts.cfg.HTTPPort,
		Handler:      a.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: opts.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("cartsync starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		if runErr != nil {
			log.Error("server error", zap.Error(runErr))
		}
		stop()
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	<-pollerDone

	if err := a.Close(shutdownCtx); err != nil {
		log.Warn("failed to close stores", zap.Error(err))
	}
	log.Info("server exited")
	return runErr
}
