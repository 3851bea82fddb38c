package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
	sqlstore "github.com/goliatone/go-webhook-ingest/store/sql"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func storageArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		"--env-file", filepath.Join(dir, "missing.env"),
		"--database-driver", "sqlite3",
		"--database-url", "file:" + filepath.Join(dir, "webhooks.db"),
	}
}

func TestMigrateThenInspect(t *testing.T) {
	args := storageArgs(t)

	out, err := runCommand(t, append([]string{"migrate"}, args...)...)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "migrations applied") {
		t.Fatalf("unexpected migrate output %q", out)
	}

	client, err := sqlstore.OpenClient(sqlstore.ClientConfig{Storage: core.StorageConfig{
		Driver: "sqlite3",
		URL:    args[5],
	}})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, err := factory.IngestionStore().Ingest(context.Background(), core.IngestionRecord{
		Origin:     core.DefaultOriginLabel,
		EventID:    "820982911946154508",
		Topic:      "orders/paid",
		BodySHA256: "abc",
		Payload:    json.RawMessage(`{"id":820982911946154508}`),
		ReceivedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	_ = client.Close()

	out, err = runCommand(t, append([]string{"inspect", "820982911946154508"}, args...)...)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var view recordView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode inspect output %q: %v", out, err)
	}
	if view.EventID != "820982911946154508" || view.Topic != "orders/paid" {
		t.Fatalf("unexpected record view %#v", view)
	}
	if view.VoucherCode != "" {
		t.Fatalf("expected no voucher code yet, got %q", view.VoucherCode)
	}

	out, err = runCommand(t, append([]string{"list", "--since", "1h"}, args...)...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var views []recordView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one listed record, got %d", len(views))
	}

	if _, err := runCommand(t, append([]string{"inspect", "missing"}, args...)...); !core.IsTextCode(err, core.ErrorRecordNotFound) {
		t.Fatalf("expected not found for unknown event, got %v", err)
	}
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := runCommand(t, "migrate", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatalf("expected migrate without a database to fail")
	}
}

func TestRootOptionsRuntimeLayer(t *testing.T) {
	opts := &rootOptions{databaseURL: "postgres://localhost/webhooks", databaseDriver: "postgres"}
	runtime := opts.runtime()
	if runtime.Storage.URL != "postgres://localhost/webhooks" || runtime.Storage.Driver != "postgres" {
		t.Fatalf("unexpected runtime storage %#v", runtime.Storage)
	}
	if runtime.Webhook.Secret != "" {
		t.Fatalf("expected flags to leave unset values empty")
	}
}
