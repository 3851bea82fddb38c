package gologger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("webhooks", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("webhooks", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("webhooks", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewHandler(&buf, core.LoggingConfig{Level: "info", Format: "json"}))

	logger.WithFields(map[string]any{"origin": "shopify", "event_id": "123"}).Info("webhook received", "outcome", "inserted")
	logger.Debug("hidden at info level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "webhook received" || entry["origin"] != "shopify" || entry["event_id"] != "123" || entry["outcome"] != "inserted" {
		t.Fatalf("unexpected log entry %#v", entry)
	}
	if entry["level"] != "INFO" {
		t.Fatalf("expected INFO level, got %v", entry["level"])
	}
}

func TestLogger_TextFormatAndFatalDoesNotExit(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(NewHandler(&buf, core.LoggingConfig{Level: "debug", Format: "text"}))

	logger.WithContext(context.Background()).Fatal("boom", "k", "v")
	output := buf.String()
	if !strings.Contains(output, "msg=boom") || !strings.Contains(output, "fatal=true") {
		t.Fatalf("expected text fatal entry, got %q", output)
	}
}

func TestProvider_TagsComponentName(t *testing.T) {
	var buf bytes.Buffer
	provider := NewProvider(NewLogger(NewHandler(&buf, core.LoggingConfig{Level: "info"})))

	provider.GetLogger("pipeline").Warn("careful")
	if !strings.Contains(buf.String(), `"logger":"pipeline"`) {
		t.Fatalf("expected logger name in output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   levelTrace,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
	}
	for input, expected := range cases {
		if got := ParseLevel(input); got != expected {
			t.Fatalf("expected %q to parse to %v, got %v", input, expected, got)
		}
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type capturingLogger struct {
	id string
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
