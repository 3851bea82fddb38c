package main

import (
	"fmt"
	"os"

	persistence "github.com/goliatone/go-persistence-bun"
	ingest "github.com/goliatone/go-webhook-ingest"
	"github.com/goliatone/go-webhook-ingest/core"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds the flags shared by every subcommand. Set flags form the
// runtime config layer and win over the environment.
type rootOptions struct {
	envFiles       []string
	databaseURL    string
	databaseDriver string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "webhookd",
		Short:         "Receive Shopify order webhooks and attach voucher codes",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files read for keys the environment does not set")
	flags.StringVar(&opts.databaseURL, "database-url", "", "database connection url (overrides DATABASE_URL)")
	flags.StringVar(&opts.databaseDriver, "database-driver", "", "database driver: postgres or sqlite3 (overrides DATABASE_DRIVER)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newReplayCommand(opts),
		newInspectCommand(opts),
		newListCommand(opts),
	)
	return root
}

func (o *rootOptions) runtime() ingest.Config {
	return ingest.Config{
		Storage: core.StorageConfig{
			URL:    o.databaseURL,
			Driver: o.databaseDriver,
		},
	}
}

func openClient(cfg ingest.Config) (*persistence.Client, error) {
	return sqlstore.OpenClient(sqlstore.ClientConfig{
		Storage:     cfg.Storage,
		ServiceName: cfg.ServiceName,
	})
}
