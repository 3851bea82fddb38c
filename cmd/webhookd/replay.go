package main

import (
	"fmt"
	"time"

	ingest "github.com/goliatone/go-webhook-ingest"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	origin string
	since  time.Duration
	limit  int
}

func newReplayCommand(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply voucher effects to stored events",
		Long: `Re-apply voucher effects to events stored within the --since window.

Stored voucher codes are reused, so replaying an event writes the same code
again. Use it after a downstream outage.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := ingest.LoadConfig(ctx, root.runtime(), root.envFiles...)
			if err != nil {
				return err
			}
			if !cfg.EffectsEnabled() {
				return fmt.Errorf("replay needs DATABASE_URL, SHOPIFY_SHOP_DOMAIN and SHOPIFY_ADMIN_ACCESS_TOKEN with effects enabled")
			}
			client, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			app, err := ingest.New(cfg, ingest.WithPersistenceClient(client))
			if err != nil {
				return err
			}
			defer app.Close()

			origin := opts.origin
			if origin == "" {
				origin = cfg.Webhook.OriginLabel
			}
			summary, err := app.Facade().ReplayEffects(ctx, origin, time.Now().UTC().Add(-opts.since), opts.limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d applied=%d skipped=%d failed=%d\n",
				summary.Scanned, summary.Applied, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("replay: %d events failed", summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.origin, "origin", "", "origin label to replay (defaults to ORIGIN_LABEL)")
	cmd.Flags().DurationVar(&opts.since, "since", 24*time.Hour, "replay events received within this window")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum records to scan (0 uses the store default)")
	return cmd
}
