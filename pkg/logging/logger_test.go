package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New("info", "json", &buf).Debug("hidden")
	New("info", "json", &buf).Info("shown", "rows", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["rows"] != float64(3) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestFromContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	Setup("debug", "text", &buf)
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	ctx = ContextWithRunID(ctx, "run-1")

	WithFields(ctx, "index", "clients").Info("ingest started")

	out := buf.String()
	for _, want := range []string{"request_id=req-7", "run_id=run-1", "index=clients"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if RunID(context.Background()) != "" {
		t.Error("empty context should have no run id")
	}
}

func TestAnnotateKeepsLoggerHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)

	Annotate(context.Background(), logger).Info("plain")
	Annotate(ContextWithRunID(context.Background(), "run-9"), logger).Info("tagged")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var plain, tagged map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &plain); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &tagged); err != nil {
		t.Fatal(err)
	}
	if _, ok := plain["run_id"]; ok {
		t.Errorf("unexpected run_id in %v", plain)
	}
	if tagged["run_id"] != "run-9" {
		t.Errorf("run_id = %v", tagged["run_id"])
	}
}
