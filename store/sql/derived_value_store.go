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

// DerivedValueStore keeps values minted for an event, one per
// (origin, event id, kind). Rows are never updated.
type DerivedValueStore struct {
	db   *bun.DB
	repo repository.Repository[*derivedValueModel]
	now  func() time.Time
}

func NewDerivedValueStore(db *bun.DB) (*DerivedValueStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*derivedValueModel](db, derivedValueHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid derived value repository wiring: %w", err)
		}
	}
	return &DerivedValueStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *DerivedValueStore) Get(ctx context.Context, key core.DerivedValueKey) (core.DerivedValue, error) {
	if s == nil || s.db == nil {
		return core.DerivedValue{}, core.StoreUnavailableError(fmt.Errorf("sqlstore: derived value store is not configured"), nil)
	}
	key = key.Normalize()
	if err := validateDerivedValueKey(key); err != nil {
		return core.DerivedValue{}, err
	}

	model := &derivedValueModel{}
	err := s.db.NewSelect().
		Model(model).
		Where("?TableAlias.origin = ?", key.Origin).
		Where("?TableAlias.event_id = ?", key.EventID).
		Where("?TableAlias.kind = ?", key.Kind).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return core.DerivedValue{}, core.NotFoundError("derived value not found", derivedValueMetadata(key))
		}
		return core.DerivedValue{}, core.StoreUnavailableError(err, derivedValueMetadata(key))
	}
	return model.toDomain(), nil
}

// Claim stores candidate unless a value already exists for key and returns
// the stored value. The boolean reports whether candidate won.
func (s *DerivedValueStore) Claim(ctx context.Context, key core.DerivedValueKey, candidate string) (core.DerivedValue, bool, error) {
	if s == nil || s.db == nil {
		return core.DerivedValue{}, false, core.StoreUnavailableError(fmt.Errorf("sqlstore: derived value store is not configured"), nil)
	}
	key = key.Normalize()
	if err := validateDerivedValueKey(key); err != nil {
		return core.DerivedValue{}, false, err
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return core.DerivedValue{}, false, fmt.Errorf("sqlstore: derived value candidate is required")
	}

	model := newDerivedValueModel(key, candidate, s.now())
	result, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (origin, event_id, kind) DO NOTHING").
		Exec(ctx)
	if err != nil && !isUniqueViolation(err) {
		return core.DerivedValue{}, false, core.StoreUnavailableError(err, derivedValueMetadata(key))
	}
	if err == nil {
		affected, affectedErr := result.RowsAffected()
		if affectedErr != nil {
			return core.DerivedValue{}, false, core.StoreUnavailableError(affectedErr, derivedValueMetadata(key))
		}
		if affected > 0 {
			return model.toDomain(), true, nil
		}
	}

	winner, err := s.Get(ctx, key)
	if err != nil {
		return core.DerivedValue{}, false, err
	}
	return winner, false, nil
}

func validateDerivedValueKey(key core.DerivedValueKey) error {
	if key.Origin == "" || key.EventID == "" || key.Kind == "" {
		return fmt.Errorf("sqlstore: derived value origin, event id and kind are required")
	}
	return nil
}

func derivedValueMetadata(key core.DerivedValueKey) map[string]any {
	return map[string]any{
		"origin":   key.Origin,
		"event_id": key.EventID,
		"kind":     key.Kind,
	}
}
