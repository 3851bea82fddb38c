package gojob

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-webhook-ingest/core"
)

// QueueDispatcher hands verified events to a job queue. It only enqueues;
// the downstream write happens on a worker.
type QueueDispatcher struct {
	enqueuer queue.Enqueuer
	observer core.Observer
}

func NewQueueDispatcher(enqueuer queue.Enqueuer, observer core.Observer) (*QueueDispatcher, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &QueueDispatcher{enqueuer: enqueuer, observer: observer}, nil
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, origin string, event core.VerifiedEvent) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("gojob: dispatcher is not configured")
	}
	req := core.EffectRequestFromEvent(origin, event)
	tags := map[string]string{"origin": req.Origin}
	if err := req.Validate(); err != nil {
		tags["result"] = "invalid"
		d.observer.Count(ctx, core.MetricDispatchTotal, tags)
		return err
	}

	receipt, err := d.enqueuer.Enqueue(ctx, MessageFromEvent(req))
	if err != nil {
		tags["result"] = "rejected"
		if errors.Is(err, ErrQueueFull) {
			tags["result"] = "queue_full"
		}
		d.observer.Count(ctx, core.MetricDispatchTotal, tags)
		return fmt.Errorf("gojob: enqueue %s: %w", core.DedupeKey(req.Origin, req.EventID), err)
	}
	tags["result"] = "enqueued"
	d.observer.Count(ctx, core.MetricDispatchTotal, tags)
	d.observer.Debug(ctx, "webhook effect enqueued", map[string]any{
		"origin":      req.Origin,
		"event_id":    req.EventID,
		"job_id":      JobIDAttachVoucher,
		"dispatch_id": receipt.DispatchID,
	})
	return nil
}

var _ core.EffectDispatcher = (*QueueDispatcher)(nil)
