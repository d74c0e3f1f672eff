package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	ctx = WithScanID(ctx, "scan-1")
	ctx = WithEntityID(ctx, "entity-9")
	ctx = WithRequestID(ctx, "req-123")

	if got := GetScanID(ctx); got != "scan-1" {
		t.Errorf("GetScanID() = %q, want %q", got, "scan-1")
	}
	if got := GetEntityID(ctx); got != "entity-9" {
		t.Errorf("GetEntityID() = %q, want %q", got, "entity-9")
	}
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
}

func TestGetScanID_NilContext(t *testing.T) {
	var ctx context.Context
	if got := GetScanID(ctx); got != "" {
		t.Errorf("GetScanID() on nil context = %q, want empty", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Run("nil context returns original logger", func(t *testing.T) {
		if FromContext(nil, logger) != logger {
			t.Error("FromContext(nil, logger) should return original logger")
		}
	})

	t.Run("empty context returns original logger", func(t *testing.T) {
		if FromContext(context.Background(), logger) != logger {
			t.Error("FromContext without IDs should return original logger")
		}
	})

	t.Run("scan and entity IDs become attributes", func(t *testing.T) {
		buf.Reset()
		ctx := WithEntityID(WithScanID(context.Background(), "scan-abc"), "ent-1")
		FromContext(ctx, logger).Info("hello")

		out := buf.String()
		if !strings.Contains(out, "scan_id=scan-abc") {
			t.Errorf("output %q missing scan_id", out)
		}
		if !strings.Contains(out, "entity_id=ent-1") {
			t.Errorf("output %q missing entity_id", out)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
		{"  debug  ", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if New() == nil {
		t.Error("New() returned nil")
	}
	// Registering extractors twice must be harmless.
	if New() == nil {
		t.Error("second New() returned nil")
	}
}
