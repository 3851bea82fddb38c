package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
)

// DialectForDriver maps a storage driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pg", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// Apply registers the migrations for driver on client and runs them.
func Apply(ctx context.Context, client *persistence.Client, driver string) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return err
	}
	_, err = Register(ctx, func(_ context.Context, registered string, _ string, fsys fs.FS) error {
		if registered == dialect {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, ForDialects(dialect))
	if err != nil {
		return err
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: migrate %s: %w", dialect, err)
	}
	return nil
}
