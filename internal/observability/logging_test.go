package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info(context.Background(), "indexed items", "owner", "alice", "count", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "indexed items" {
		t.Errorf("msg = %v, want indexed items", record["msg"])
	}
	if record["owner"] != "alice" {
		t.Errorf("owner = %v, want alice", record["owner"])
	}
}

func TestLogger_RequestIDCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := WithRequestID(context.Background(), "req-42")
	logger.Info(ctx, "processing")

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log record missing request id: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Debug(context.Background(), "noise")
	logger.Info(context.Background(), "more noise")
	if buf.Len() != 0 {
		t.Errorf("below-level records were emitted: %s", buf.String())
	}

	logger.Warn(context.Background(), "kept")
	if buf.Len() == 0 {
		t.Error("warn record was filtered out")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "text", Output: &buf})

	logger.Info(context.Background(), "hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("text format produced JSON output")
	}
}
