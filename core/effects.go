package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const MetafieldTypeSingleLineText = "single_line_text_field"

type VoucherEffectConfig struct {
	Namespace string
	Key       string
}

// VoucherEffect attaches one voucher code per event to the originating order.
// The code is minted at most once: every attempt for the same event reads or
// claims the same derived value before writing it downstream.
type VoucherEffect struct {
	values   DerivedValueStore
	codes    CodeGenerator
	writer   MetafieldWriter
	config   VoucherEffectConfig
	observer Observer
}

func NewVoucherEffect(
	values DerivedValueStore,
	codes CodeGenerator,
	writer MetafieldWriter,
	config VoucherEffectConfig,
	observer Observer,
) (*VoucherEffect, error) {
	if values == nil {
		return nil, fmt.Errorf("core: voucher effect requires a derived value store")
	}
	if codes == nil {
		return nil, fmt.Errorf("core: voucher effect requires a code generator")
	}
	if writer == nil {
		return nil, fmt.Errorf("core: voucher effect requires a metafield writer")
	}
	config.Namespace = strings.TrimSpace(config.Namespace)
	config.Key = strings.TrimSpace(config.Key)
	if config.Namespace == "" || config.Key == "" {
		return nil, fmt.Errorf("core: voucher effect requires metafield namespace and key")
	}
	return &VoucherEffect{
		values:   values,
		codes:    codes,
		writer:   writer,
		config:   config,
		observer: observer,
	}, nil
}

func (e *VoucherEffect) Apply(ctx context.Context, req EffectRequest) (EffectResult, error) {
	if e == nil {
		return EffectResult{}, fmt.Errorf("core: voucher effect is not configured")
	}
	if err := req.Validate(); err != nil {
		return EffectResult{}, err
	}
	startedAt := time.Now()
	tags := map[string]string{"effect": DerivedValueKindVoucherCode, "origin": req.Origin}

	result, err := e.apply(ctx, req)
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags["status"] = status
	e.observer.Count(ctx, MetricEffectsTotal, tags)
	e.observer.ObserveDuration(ctx, MetricEffectDurationMS, startedAt, tags)

	fields := map[string]any{
		"origin":      req.Origin,
		"event_id":    req.EventID,
		"owner_id":    req.OwnerID,
		"duration_ms": time.Since(startedAt).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		e.observer.Error(ctx, "voucher effect failed", fields)
		return result, err
	}
	fields["reused"] = result.Reused
	e.observer.Info(ctx, "voucher effect applied", fields)
	return result, nil
}

func (e *VoucherEffect) apply(ctx context.Context, req EffectRequest) (EffectResult, error) {
	key := DerivedValueKey{
		Origin:  req.Origin,
		EventID: req.EventID,
		Kind:    DerivedValueKindVoucherCode,
	}.Normalize()

	value, reused, err := e.resolveCode(ctx, key)
	if err != nil {
		return EffectResult{}, err
	}

	input := MetafieldInput{
		ShopDomain: req.ShopDomain,
		OwnerID:    req.OwnerID,
		Namespace:  e.config.Namespace,
		Key:        e.config.Key,
		Type:       MetafieldTypeSingleLineText,
		Value:      value,
	}
	if err := e.writer.SetMetafield(ctx, input); err != nil {
		return EffectResult{Value: value, Reused: reused}, DownstreamWriteError(err, map[string]any{
			"origin":   req.Origin,
			"event_id": req.EventID,
			"owner_id": req.OwnerID,
		})
	}
	return EffectResult{Value: value, Reused: reused, Written: true}, nil
}

// resolveCode returns the stored code for key, minting and claiming one when
// none exists. A lost claim race yields the winner's code.
func (e *VoucherEffect) resolveCode(ctx context.Context, key DerivedValueKey) (string, bool, error) {
	existing, err := e.values.Get(ctx, key)
	if err == nil && strings.TrimSpace(existing.Value) != "" {
		return existing.Value, true, nil
	}
	if err != nil && !IsNotFound(err) {
		return "", false, err
	}

	candidate, err := e.codes.Generate(ctx, key)
	if err != nil {
		return "", false, WrapError(err, goerrors.CategoryInternal, ErrorInternal, "voucher code generation failed")
	}
	claimed, inserted, err := e.values.Claim(ctx, key, candidate)
	if err != nil {
		return "", false, err
	}
	return claimed.Value, !inserted, nil
}

func (r EffectRequest) Validate() error {
	missing := []string{}
	if strings.TrimSpace(r.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(r.EventID) == "" {
		missing = append(missing, "event_id")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		missing = append(missing, "owner_id")
	}
	if len(missing) == 0 {
		return nil
	}
	return NewError(
		"effect request missing "+strings.Join(missing, ", "),
		goerrors.CategoryBadInput,
		ErrorMalformedPayload,
	).WithMetadata(map[string]any{"missing": missing})
}

// EffectRequestFromEvent builds the downstream request for a verified event.
func EffectRequestFromEvent(origin string, event VerifiedEvent) EffectRequest {
	return EffectRequest{
		Origin:     strings.TrimSpace(origin),
		EventID:    strings.TrimSpace(event.EventID),
		OwnerID:    strings.TrimSpace(event.OwnerID),
		Topic:      strings.TrimSpace(event.Topic),
		ShopDomain: strings.TrimSpace(event.ShopDomain),
	}
}

// NopEffectDispatcher drops every event. It is used when effects are disabled.
type NopEffectDispatcher struct{}

func (NopEffectDispatcher) Dispatch(context.Context, string, VerifiedEvent) error {
	return nil
}
