package main

import (
	"fmt"

	ingest "github.com/goliatone/go-webhook-ingest"
	"github.com/goliatone/go-webhook-ingest/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := ingest.LoadStorageConfig(ctx, root.runtime(), root.envFiles...)
			if err != nil {
				return err
			}
			client, err := openClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := migrations.Apply(ctx, client, cfg.Storage.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}
