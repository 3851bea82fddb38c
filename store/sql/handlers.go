package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func ingestionRecordHandlers() repository.ModelHandlers[*ingestionRecordModel] {
	return repository.ModelHandlers[*ingestionRecordModel]{
		NewRecord: func() *ingestionRecordModel {
			return &ingestionRecordModel{}
		},
		GetID: func(record *ingestionRecordModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *ingestionRecordModel, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *ingestionRecordModel) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func derivedValueHandlers() repository.ModelHandlers[*derivedValueModel] {
	return repository.ModelHandlers[*derivedValueModel]{
		NewRecord: func() *derivedValueModel {
			return &derivedValueModel{}
		},
		GetID: func(record *derivedValueModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *derivedValueModel, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *derivedValueModel) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
