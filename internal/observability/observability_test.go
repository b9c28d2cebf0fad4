package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"sales-analytics/internal/config"
)

func TestNewLoggerTo_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "info", Format: "json"})
	logger.Debug("hidden")
	logger.Info("hello", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["service"] != serviceName || entry["k"] != "v" {
		t.Errorf("unexpected entry %v", entry)
	}

	buf.Reset()
	NewLoggerTo(&buf, config.LoggerConfig{Level: "debug", Format: "text"}).Debug("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text logger output %q", buf.String())
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q", got)
	}
}

func TestSpans_NestAndLog(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "startup")
	_, child := StartSpan(ctx, "dataset.load")
	child.SetTag("source", "csv:sales.csv")
	child.SetError(errors.New("open file: no such file"))
	child.Finish()
	parent.Finish()

	if child.TraceID != parent.TraceID {
		t.Error("child span should inherit the trace id")
	}
	if child.ParentID != parent.SpanID {
		t.Error("child span should point at its parent")
	}
	if !child.Failed() || parent.Failed() {
		t.Error("only the child span failed")
	}

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("span finished", "span", child)

	var entry struct {
		Span map[string]any `json:"span"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Span["operation"] != "dataset.load" || entry.Span["source"] != "csv:sales.csv" {
		t.Errorf("unexpected span log %v", entry.Span)
	}
	if entry.Span["error"] == nil {
		t.Error("span log should include the error")
	}
}
