package core

import "context"

const (
	MetricNotificationsTotal = "webhook.notifications.total"
	MetricVerifyTotal        = "webhook.verify.total"
	MetricIngestTotal        = "webhook.ingest.total"
	MetricIngestDurationMS   = "webhook.ingest.duration_ms"
	MetricEffectsTotal       = "webhook.effects.total"
	MetricEffectDurationMS   = "webhook.effects.duration_ms"
	MetricDispatchTotal      = "webhook.dispatch.total"
	MetricJobsTotal          = "webhook.jobs.total"
	MetricJobDurationMS      = "webhook.jobs.duration_ms"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}


