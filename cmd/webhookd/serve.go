package main

import (
	"context"
	"os/signal"
	"syscall"

	ingest "github.com/goliatone/go-webhook-ingest"
	"github.com/goliatone/go-webhook-ingest/migrations"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	port    int
	route   string
	migrate bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook receiver",
		Long: `Run the webhook receiver until SIGINT or SIGTERM.

Without DATABASE_URL the receiver runs in verification-only mode: deliveries
are authenticated and acknowledged, and duplicates are suppressed in memory.

Examples:
  webhookd serve
  webhookd serve --port 9090 --migrate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts)
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (overrides PORT)")
	cmd.Flags().StringVar(&opts.route, "route", "", "webhook route (overrides WEBHOOK_ROUTE)")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	runtime := root.runtime()
	runtime.Server.Port = opts.port
	runtime.Webhook.Route = opts.route

	cfg, err := ingest.LoadConfig(ctx, runtime, root.envFiles...)
	if err != nil {
		return err
	}

	var appOpts []ingest.Option
	if cfg.StorageEnabled() {
		client, err := openClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		if opts.migrate {
			if err := migrations.Apply(ctx, client, cfg.Storage.Driver); err != nil {
				return err
			}
		}
		appOpts = append(appOpts, ingest.WithPersistenceClient(client))
	}

	app, err := ingest.New(cfg, appOpts...)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Run(ctx)
}
