package core

import (
	"context"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Observer pairs a logger with a metrics recorder so pipeline stages and
// workers report through one channel.
type Observer struct {
	logger  Logger
	metrics MetricsRecorder
}

func NewObserver(logger Logger, metrics MetricsRecorder) Observer {
	if logger == nil {
		logger = glog.Nop()
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return Observer{logger: logger, metrics: metrics}
}

func (o Observer) Logger() Logger {
	if o.logger == nil {
		return glog.Nop()
	}
	return o.logger
}

func (o Observer) Metrics() MetricsRecorder {
	if o.metrics == nil {
		return NopMetricsRecorder{}
	}
	return o.metrics
}

func (o Observer) Debug(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "debug", message, fields)
}

func (o Observer) Info(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "info", message, fields)
}

func (o Observer) Warn(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "warn", message, fields)
}

func (o Observer) Error(ctx context.Context, message string, fields map[string]any) {
	o.logWithLevel(ctx, "error", message, fields)
}

func (o Observer) Count(ctx context.Context, name string, tags map[string]string) {
	o.Metrics().IncCounter(ctx, strings.TrimSpace(name), 1, cloneTags(tags))
}

func (o Observer) ObserveDuration(ctx context.Context, name string, startedAt time.Time, tags map[string]string) {
	o.Metrics().ObserveHistogram(ctx, strings.TrimSpace(name), float64(time.Since(startedAt).Milliseconds()), cloneTags(tags))
}

func (o Observer) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	logger := o.Logger()
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
		fields = nil
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

// Fingerprint returns a short prefix suitable for correlating a digest or
// header value in logs without disclosing it.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 6 {
		return strings.Repeat("*", len(value))
	}
	return value[:6] + "..."
}
