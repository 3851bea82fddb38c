package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

const (
	TypeAttachVoucher = "webhooks.command.voucher.attach"
	TypeReplayEffects = "webhooks.command.effects.replay"
)

type AttachVoucherMessage struct {
	Request core.EffectRequest
}

func (AttachVoucherMessage) Type() string { return TypeAttachVoucher }

func (m AttachVoucherMessage) Validate() error {
	return commandWrapValidation(m.Request.Validate(), "command: attach voucher request is invalid")
}

// ReplayEffectsMessage re-runs effects for stored records received at or
// after Since.
type ReplayEffectsMessage struct {
	Origin string
	Since  time.Time
	Limit  int
}

func (ReplayEffectsMessage) Type() string { return TypeReplayEffects }

func (m ReplayEffectsMessage) Validate() error {
	if strings.TrimSpace(m.Origin) == "" {
		return commandValidationError("origin", "origin is required")
	}
	if m.Since.IsZero() {
		return commandValidationError("since", "since is required")
	}
	if m.Limit < 0 {
		return commandInvalidInputError("command: limit must not be negative")
	}
	return nil
}

// ReplaySummary is stored as the result of a replay run.
type ReplaySummary struct {
	Scanned int
	Applied int
	Skipped int
	Failed  int
}
