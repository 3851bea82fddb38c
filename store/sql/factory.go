package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type RepositoryFactory struct {
	db *bun.DB

	ingestionStore    *IngestionStore
	derivedValueStore *DerivedValueStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.ingestionStore != nil && f.derivedValueStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) IngestionStore() *IngestionStore {
	if f == nil {
		return nil
	}
	return f.ingestionStore
}

func (f *RepositoryFactory) DerivedValueStore() *DerivedValueStore {
	if f == nil {
		return nil
	}
	return f.derivedValueStore
}

// CachedDerivedValueStore wraps the derived value store with a read-through
// cache built from config.
func (f *RepositoryFactory) CachedDerivedValueStore(config repositorycache.Config) (*CachedDerivedValueStore, error) {
	if f == nil || f.derivedValueStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not initialized")
	}
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: build derived value cache: %w", err)
	}
	return NewCachedDerivedValueStore(f.derivedValueStore, cacheService)
}

func (f *RepositoryFactory) initStores() error {
	ingestionStore, err := NewIngestionStore(f.db)
	if err != nil {
		return err
	}
	derivedValueStore, err := NewDerivedValueStore(f.db)
	if err != nil {
		return err
	}
	f.ingestionStore = ingestionStore
	f.derivedValueStore = derivedValueStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

// ClientConfig adapts core.StorageConfig to the persistence client config.
type ClientConfig struct {
	Storage     core.StorageConfig
	ServiceName string
}

func (c ClientConfig) GetDebug() bool {
	return c.Storage.Debug
}

func (c ClientConfig) GetDriver() string {
	return driverName(c.Storage.Driver)
}

func (c ClientConfig) GetServer() string {
	return c.Storage.URL
}

func (c ClientConfig) GetPingTimeout() time.Duration {
	if c.Storage.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.Storage.PingTimeout
}

func (c ClientConfig) GetOtelIdentifier() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "go-webhook-ingest"
}

// OpenClient opens the configured database and wraps it in a persistence
// client. The sql driver must be registered by the caller.
func OpenClient(config ClientConfig) (*persistence.Client, error) {
	driver := config.GetDriver()
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, config.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(config, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

func driverName(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return "postgres"
	}
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case "postgres":
		return pgdialect.New(), nil
	case "sqlite3":
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}
