package gojob

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-webhook-ingest/core"
)

// ObserverHook reports worker lifecycle events to logs and metrics.
type ObserverHook struct {
	observer core.Observer
}

func NewObserverHook(observer core.Observer) *ObserverHook {
	return &ObserverHook{observer: observer}
}

func (h *ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.Debug(ctx, "webhook job started", eventFields(event))
}

func (h *ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.record(ctx, event, "success")
	h.observer.Info(ctx, "webhook job succeeded", eventFields(event))
}

func (h *ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.record(ctx, event, "dead_letter")
	h.observer.Error(ctx, "webhook job failed", eventFields(event))
}

// OnRetry completes worker.Hook. The effect worker allows one attempt, so
// the worker never schedules a retry.
func (h *ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.record(ctx, event, "retry")
	h.observer.Warn(ctx, "webhook job retry scheduled", eventFields(event))
}

func (h *ObserverHook) record(ctx context.Context, event worker.Event, result string) {
	tags := map[string]string{
		"job_id": messageOf(event).JobID,
		"result": result,
	}
	h.observer.Count(ctx, core.MetricJobsTotal, tags)
	h.observer.Metrics().ObserveHistogram(ctx, core.MetricJobDurationMS, float64(event.Duration.Milliseconds()), tags)
}

func eventFields(event worker.Event) map[string]any {
	msg := messageOf(event)
	fields := map[string]any{
		"job_id":          msg.JobID,
		"idempotency_key": msg.IdempotencyKey,
		"attempt":         event.Attempt,
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Delay > 0 {
		fields["delay"] = event.Delay.String()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func messageOf(event worker.Event) *job.ExecutionMessage {
	if event.Message != nil {
		return event.Message
	}
	if event.Delivery != nil {
		if msg := event.Delivery.Message(); msg != nil {
			return msg
		}
	}
	return &job.ExecutionMessage{}
}

var _ worker.Hook = (*ObserverHook)(nil)
