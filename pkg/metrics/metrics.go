// Package metrics records ingestion counters and timings.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Metric names recorded by the pipeline.
const (
	IngestRows      = "sheetdex.ingest.rows"
	IngestSucceeded = "sheetdex.ingest.succeeded"
	IngestFailed    = "sheetdex.ingest.failed"
	IngestDuration  = "sheetdex.ingest.duration"
	IngestErrors    = "sheetdex.ingest.errors"
)

// Exporter exports metrics to a monitoring backend.
type Exporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, d time.Duration, tags map[string]string)

	// Flush sends any buffered metrics to the backend.
	Flush() error
}

// Noop discards all metrics.
type Noop struct{}

func (Noop) Counter(string, int64, map[string]string)       {}
func (Noop) Timer(string, time.Duration, map[string]string) {}
func (Noop) Flush() error                                   { return nil }

// LogExporter writes metrics through slog. With a buffer size above zero
// lines are held until Flush or until the buffer fills.
type LogExporter struct {
	mu         sync.Mutex
	logger     *slog.Logger
	bufferSize int
	buffer     []record
}

type record struct {
	kind  string
	name  string
	value any
	tags  map[string]string
}

// LogOption configures a LogExporter.
type LogOption func(*LogExporter)

// WithLogger sets the destination logger.
func WithLogger(l *slog.Logger) LogOption {
	return func(e *LogExporter) {
		e.logger = l
	}
}

// WithBufferSize sets the number of records held before writing.
func WithBufferSize(n int) LogOption {
	return func(e *LogExporter) {
		e.bufferSize = n
	}
}

// NewLogExporter creates a slog-backed exporter.
func NewLogExporter(opts ...LogOption) *LogExporter {
	e := &LogExporter{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Counter logs a counter metric.
func (e *LogExporter) Counter(name string, value int64, tags map[string]string) {
	e.add(record{kind: "counter", name: name, value: value, tags: tags})
}

// Timer logs a timer metric.
func (e *LogExporter) Timer(name string, d time.Duration, tags map[string]string) {
	e.add(record{kind: "timer", name: name, value: d, tags: tags})
}

// Flush writes buffered records.
func (e *LogExporter) Flush() error {
	e.mu.Lock()
	pending := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	for _, r := range pending {
		e.write(r)
	}
	return nil
}

func (e *LogExporter) add(r record) {
	if e.bufferSize <= 0 {
		e.write(r)
		return
	}

	e.mu.Lock()
	e.buffer = append(e.buffer, r)
	full := len(e.buffer) >= e.bufferSize
	e.mu.Unlock()

	if full {
		_ = e.Flush()
	}
}

func (e *LogExporter) write(r record) {
	attrs := []slog.Attr{
		slog.String("type", r.kind),
		slog.String("name", r.name),
		slog.Any("value", r.value),
	}
	if len(r.tags) > 0 {
		keys := make([]string, 0, len(r.tags))
		for k := range r.tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tagAttrs := make([]any, 0, len(keys))
		for _, k := range keys {
			tagAttrs = append(tagAttrs, slog.String(k, r.tags[k]))
		}
		attrs = append(attrs, slog.Group("tags", tagAttrs...))
	}
	e.logger.LogAttrs(context.Background(), slog.LevelInfo, "metric", attrs...)
}

var (
	_ Exporter = Noop{}
	_ Exporter = (*LogExporter)(nil)
)
