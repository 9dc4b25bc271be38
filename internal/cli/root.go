// Package cli holds the cartsync commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fjod/go_cart/cartsync/internal/app"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags; set flags override the environment.
type RootOptions struct {
	KVBackend     string
	SQLitePath    string
	RedisAddr     string
	RemoteBackend string
	MongoURI      string
	LogEnv        string

	cfg *config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartsync",
		Short: "Local cart and checkout synchronization engine",
		Long: `cartsync keeps a durable local cart per user and turns it into orders in a
remote document store, cleaning up the cart, its remote mirror and the
staged checkout once an order is placed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.loadConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.KVBackend, "kv", "", "local store backend (sqlite|redis|memory)")
	flags.StringVar(&opts.SQLitePath, "sqlite-path", "", "path to the SQLite database")
	flags.StringVar(&opts.RedisAddr, "redis-addr", "", "redis address for the redis backend")
	flags.StringVar(&opts.RemoteBackend, "remote", "", "remote store backend (mongo|memory)")
	flags.StringVar(&opts.MongoURI, "mongo-uri", "", "MongoDB connection URI")
	flags.StringVar(&opts.LogEnv, "log-env", "", "logger flavour (development|production)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewCheckoutCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"kv", o.KVBackend, &cfg.KVBackend},
		{"sqlite-path", o.SQLitePath, &cfg.SQLitePath},
		{"redis-addr", o.RedisAddr, &cfg.RedisAddr},
		{"remote", o.RemoteBackend, &cfg.RemoteBackend},
		{"mongo-uri", o.MongoURI, &cfg.MongoURI},
		{"log-env", o.LogEnv, &cfg.LogEnv},
	}
	for _, ov := range overrides {
		if cmd.Flags().Changed(ov.flag) {
			*ov.dst = ov.value
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// build opens the engine for one command; the caller must call Close.
func (o *RootOptions) build(ctx context.Context) (*app.App, *zap.Logger, error) {
	log, err := logger.New(o.cfg.LogEnv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if o.cfg.DotEnvLoaded {
		log.Debug("loaded .env")
	}

	a, err := app.Build(ctx, o.cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, log, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
