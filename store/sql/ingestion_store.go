package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/uptrace/bun"
)

const defaultListLimit = 100

// IngestionStore records one row per (origin, event id). The unique index is
// the only arbiter between concurrent deliveries of the same event.
type IngestionStore struct {
	db   *bun.DB
	repo repository.Repository[*ingestionRecordModel]
	now  func() time.Time
}

func NewIngestionStore(db *bun.DB) (*IngestionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ingestionRecordModel](db, ingestionRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ingestion repository wiring: %w", err)
		}
	}
	return &IngestionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *IngestionStore) Ingest(ctx context.Context, record core.IngestionRecord) (core.IngestOutcome, error) {
	if s == nil || s.db == nil {
		return "", core.StoreUnavailableError(fmt.Errorf("sqlstore: ingestion store is not configured"), nil)
	}
	record.Origin = strings.TrimSpace(record.Origin)
	if record.Origin == "" {
		return "", fmt.Errorf("sqlstore: ingestion origin is required")
	}

	model := newIngestionRecordModel(record, s.now())
	result, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (origin, event_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return "", core.StoreUnavailableError(err, map[string]any{
			"origin":   model.Origin,
			"event_id": strings.TrimSpace(record.EventID),
		})
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", core.StoreUnavailableError(err, map[string]any{"origin": model.Origin})
	}
	if affected == 0 {
		return core.IngestOutcomeAlreadyPresent, nil
	}
	return core.IngestOutcomeInserted, nil
}

func (s *IngestionStore) Get(ctx context.Context, origin string, eventID string) (core.IngestionRecord, error) {
	if s == nil || s.db == nil {
		return core.IngestionRecord{}, core.StoreUnavailableError(fmt.Errorf("sqlstore: ingestion store is not configured"), nil)
	}
	origin = strings.TrimSpace(origin)
	eventID = strings.TrimSpace(eventID)
	metadata := map[string]any{"origin": origin, "event_id": eventID}
	if origin == "" || eventID == "" {
		return core.IngestionRecord{}, core.NotFoundError("ingestion record not found", metadata)
	}

	model := &ingestionRecordModel{}
	err := s.db.NewSelect().
		Model(model).
		Where("?TableAlias.origin = ?", origin).
		Where("?TableAlias.event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return core.IngestionRecord{}, core.NotFoundError("ingestion record not found", metadata)
		}
		return core.IngestionRecord{}, core.StoreUnavailableError(err, metadata)
	}
	return model.toDomain(), nil
}

// ListSince returns records received at or after since, oldest first.
func (s *IngestionStore) ListSince(ctx context.Context, since time.Time, limit int) ([]core.IngestionRecord, error) {
	if s == nil || s.repo == nil {
		return nil, core.StoreUnavailableError(fmt.Errorf("sqlstore: ingestion store is not configured"), nil)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectByTimetz("received_at", ">=", since.UTC()),
		repository.OrderBy("received_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, core.StoreUnavailableError(err, map[string]any{"since": since.UTC()})
	}
	out := make([]core.IngestionRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *IngestionStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return core.StoreUnavailableError(fmt.Errorf("sqlstore: ingestion store is not configured"), nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return core.StoreUnavailableError(err, nil)
	}
	return nil
}
