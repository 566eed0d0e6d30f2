package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/nhle/mailctl/internal/model"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace": LevelTrace,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceLevelIsFiltered(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(model.LoggingConfig{Level: "debug"}, &buf)

	Trace(context.Background(), logger, "hidden")
	logger.Debug("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("trace message logged at debug level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("debug message missing: %q", out)
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(model.LoggingConfig{Level: "trace", Format: "json"}, &buf)

	Trace(context.Background(), logger, "round trip", "backend", "imap")

	out := buf.String()
	if !strings.Contains(out, `"level":"TRACE"`) {
		t.Errorf("output = %q, want TRACE level", out)
	}
	if !strings.Contains(out, `"backend":"imap"`) {
		t.Errorf("output = %q, want backend attribute", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard()
	ctx := WithContext(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Error("FromContext did not return the stored logger")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Error("FromContext without logger did not return the default logger")
	}
}
