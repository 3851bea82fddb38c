package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "webhookd"

type definition struct {
	help    string
	labels  []string
	buckets []float64
}

// Known metrics get fixed label sets so a series never changes shape.
// Anything else is declared on first use from the tags it was recorded with.
var definitions = map[string]definition{
	core.MetricNotificationsTotal: {help: "Notifications received, by final result and status.", labels: []string{"origin", "result", "status"}},
	core.MetricVerifyTotal:        {help: "Signature verdicts, by reason.", labels: []string{"origin", "result"}},
	core.MetricIngestTotal:        {help: "Ingestion attempts, by outcome.", labels: []string{"origin", "outcome"}},
	core.MetricIngestDurationMS:   {help: "Ingestion store latency in milliseconds.", labels: []string{"origin", "outcome"}, buckets: durationBucketsMS},
	core.MetricDispatchTotal:      {help: "Effect dispatch attempts, by result.", labels: []string{"origin", "result"}},
	core.MetricEffectsTotal:       {help: "Effect executions, by status.", labels: []string{"effect", "origin", "status"}},
	core.MetricEffectDurationMS:   {help: "Effect latency in milliseconds.", labels: []string{"effect", "origin", "status"}, buckets: durationBucketsMS},
	core.MetricJobsTotal:          {help: "Effect jobs finished, by result.", labels: []string{"job_id", "result"}},
	core.MetricJobDurationMS:      {help: "Effect job latency in milliseconds.", labels: []string{"job_id", "result"}, buckets: durationBucketsMS},
}

var durationBucketsMS = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Recorder is a core.MetricsRecorder backed by a private Prometheus registry.
type Recorder struct {
	namespace  string
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labels     map[string][]string
}

func NewRecorder(namespace string) *Recorder {
	namespace = sanitize(namespace)
	if namespace == "" {
		namespace = defaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Recorder{
		namespace:  namespace,
		registry:   registry,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		labels:     map[string][]string{},
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec, labels := r.counter(name, tags)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, labels := r.histogram(name, tags)
	if vec == nil {
		return
	}
	vec.With(labelValues(labels, tags)).Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*prometheus.CounterVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[name]; ok {
		return vec, r.labels[name]
	}
	def := resolveDefinition(name, tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      metricName(name, "_total"),
		Help:      def.help,
	}, sanitizeLabels(def.labels))
	if err := r.registry.Register(vec); err != nil {
		return nil, nil
	}
	r.counters[name] = vec
	r.labels[name] = def.labels
	return vec, def.labels
}

func (r *Recorder) histogram(name string, tags map[string]string) (*prometheus.HistogramVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[name]; ok {
		return vec, r.labels[name]
	}
	def := resolveDefinition(name, tags)
	buckets := def.buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      metricName(name, ""),
		Help:      def.help,
		Buckets:   buckets,
	}, sanitizeLabels(def.labels))
	if err := r.registry.Register(vec); err != nil {
		return nil, nil
	}
	r.histograms[name] = vec
	r.labels[name] = def.labels
	return vec, def.labels
}

func resolveDefinition(name string, tags map[string]string) definition {
	if def, ok := definitions[name]; ok {
		return def
	}
	labels := make([]string, 0, len(tags))
	for key := range tags {
		if sanitize(key) != "" {
			labels = append(labels, key)
		}
	}
	sort.Strings(labels)
	return definition{help: name, labels: labels}
}

// labelValues projects tags onto the declared labels. Missing tags become
// empty values and undeclared tags are dropped.
func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[sanitize(label)] = tags[label]
	}
	return values
}

func sanitizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		out = append(out, sanitize(label))
	}
	return out
}

// metricName maps dotted names to Prometheus names: webhook.ingest.total
// becomes webhook_ingest_total.
func metricName(name string, suffix string) string {
	sanitized := sanitize(name)
	if suffix != "" && !strings.HasSuffix(sanitized, suffix) {
		sanitized += suffix
	}
	return sanitized
}

func sanitize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	var builder strings.Builder
	builder.Grow(len(value))
	for index, char := range value {
		switch {
		case char >= 'a' && char <= 'z', char == '_':
			builder.WriteRune(char)
		case char >= '0' && char <= '9':
			if index == 0 {
				builder.WriteRune('_')
			}
			builder.WriteRune(char)
		default:
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
