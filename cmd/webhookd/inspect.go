package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	ingest "github.com/goliatone/go-webhook-ingest"
	"github.com/goliatone/go-webhook-ingest/core"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
	"github.com/spf13/cobra"
)

type recordView struct {
	Origin      string          `json:"origin"`
	EventID     string          `json:"event_id"`
	Topic       string          `json:"topic,omitempty"`
	ShopDomain  string          `json:"shop_domain,omitempty"`
	WebhookID   string          `json:"webhook_id,omitempty"`
	BodySHA256  string          `json:"body_sha256"`
	ReceivedAt  time.Time       `json:"received_at"`
	VoucherCode string          `json:"voucher_code,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func newRecordView(record core.IngestionRecord) recordView {
	return recordView{
		Origin:     record.Origin,
		EventID:    record.EventID,
		Topic:      record.Topic,
		ShopDomain: record.ShopDomain,
		WebhookID:  record.WebhookID,
		BodySHA256: record.BodySHA256,
		ReceivedAt: record.ReceivedAt,
	}
}

func newInspectCommand(root *rootOptions) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "inspect <event-id>",
		Short: "Show a stored event and its voucher code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReadFacade(cmd.Context(), root, func(cfg ingest.Config, facade *ingest.Facade) error {
				if origin == "" {
					origin = cfg.Webhook.OriginLabel
				}
				record, err := facade.Record(cmd.Context(), origin, args[0])
				if err != nil {
					return err
				}
				view := newRecordView(record)
				view.Payload = record.Payload
				value, err := facade.VoucherCode(cmd.Context(), origin, args[0])
				switch {
				case err == nil:
					view.VoucherCode = value.Value
				case !core.IsTextCode(err, core.ErrorRecordNotFound):
					return err
				}
				return writeJSON(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "origin label (defaults to ORIGIN_LABEL)")
	return cmd
}

func newListCommand(root *rootOptions) *cobra.Command {
	var (
		origin string
		since  time.Duration
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events stored within a time window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withReadFacade(cmd.Context(), root, func(_ ingest.Config, facade *ingest.Facade) error {
				records, err := facade.Records(cmd.Context(), origin, time.Now().UTC().Add(-since), limit)
				if err != nil {
					return err
				}
				views := make([]recordView, 0, len(records))
				for _, record := range records {
					views = append(views, newRecordView(record))
				}
				return writeJSON(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "only list this origin")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "list events received within this window")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records (0 uses the store default)")
	return cmd
}

// withReadFacade opens storage and builds a facade without effects. It does
// not need the webhook secret.
func withReadFacade(ctx context.Context, root *rootOptions, fn func(ingest.Config, *ingest.Facade) error) error {
	cfg, err := ingest.LoadStorageConfig(ctx, root.runtime(), root.envFiles...)
	if err != nil {
		return err
	}
	client, err := openClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	return fn(cfg, ingest.NewFacade(ingest.FacadeDependencies{
		Records: factory.IngestionStore(),
		Values:  factory.DerivedValueStore(),
	}))
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
