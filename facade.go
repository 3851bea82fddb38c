package ingest

import (
	"context"
	"time"

	"github.com/goliatone/go-webhook-ingest/adapters/gocommand"
	"github.com/goliatone/go-webhook-ingest/command"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/query"
)

type FacadeDependencies struct {
	Records core.IngestionStore
	Values  query.DerivedValueReader
	Effect  command.EffectApplier
}

type Commands struct {
	AttachVoucher *command.AttachVoucherCommand
	ReplayEffects *command.ReplayEffectsCommand
}

type Queries struct {
	GetRecord      *query.GetIngestionRecordQuery
	ListRecords    *query.ListIngestionRecordsQuery
	GetVoucherCode *query.GetVoucherCodeQuery
}

// Facade exposes the command and query handlers to callers outside the HTTP
// path, such as the CLI and the effect workers.
type Facade struct {
	deps     FacadeDependencies
	commands Commands
	queries  Queries
}

func NewFacade(deps FacadeDependencies) *Facade {
	return &Facade{
		deps: deps,
		commands: Commands{
			AttachVoucher: command.NewAttachVoucherCommand(deps.Effect),
			ReplayEffects: command.NewReplayEffectsCommand(deps.Records, deps.Effect),
		},
		queries: Queries{
			GetRecord:      query.NewGetIngestionRecordQuery(deps.Records),
			ListRecords:    query.NewListIngestionRecordsQuery(deps.Records),
			GetVoucherCode: query.NewGetVoucherCodeQuery(deps.Values),
		},
	}
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) EffectsAvailable() bool {
	return f != nil && f.deps.Effect != nil
}

// AttachVoucher runs the voucher effect for one event synchronously.
func (f *Facade) AttachVoucher(ctx context.Context, req core.EffectRequest) (core.EffectResult, error) {
	result, _, err := gocommand.ExecuteWithResult[command.AttachVoucherMessage, core.EffectResult](
		ctx,
		f.Commands().AttachVoucher,
		command.AttachVoucherMessage{Request: req},
	)
	return result, err
}

// ReplayEffects re-applies effects to the stored records of origin received
// since since. A zero limit uses the store default.
func (f *Facade) ReplayEffects(ctx context.Context, origin string, since time.Time, limit int) (command.ReplaySummary, error) {
	summary, _, err := gocommand.ExecuteWithResult[command.ReplayEffectsMessage, command.ReplaySummary](
		ctx,
		f.Commands().ReplayEffects,
		command.ReplayEffectsMessage{Origin: origin, Since: since, Limit: limit},
	)
	return summary, err
}

func (f *Facade) Record(ctx context.Context, origin string, eventID string) (core.IngestionRecord, error) {
	return gocommand.Query[query.GetIngestionRecordMessage, core.IngestionRecord](
		ctx,
		f.Queries().GetRecord,
		query.GetIngestionRecordMessage{Origin: origin, EventID: eventID},
	)
}

func (f *Facade) Records(ctx context.Context, origin string, since time.Time, limit int) ([]core.IngestionRecord, error) {
	return gocommand.Query[query.ListIngestionRecordsMessage, []core.IngestionRecord](
		ctx,
		f.Queries().ListRecords,
		query.ListIngestionRecordsMessage{Origin: origin, Since: since, Limit: limit},
	)
}

func (f *Facade) VoucherCode(ctx context.Context, origin string, eventID string) (core.DerivedValue, error) {
	return gocommand.Query[query.GetVoucherCodeMessage, core.DerivedValue](
		ctx,
		f.Queries().GetVoucherCode,
		query.GetVoucherCodeMessage{Origin: origin, EventID: eventID},
	)
}
