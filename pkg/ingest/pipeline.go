package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/logging"
	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/metrics"
	"github.com/sheetdex/sheetdex/pkg/sheet"
	"github.com/sheetdex/sheetdex/pkg/telemetry"
)

// RowReader yields the rows of a tabular source.
type RowReader interface {
	Read(ctx context.Context, source string) ([]sheet.Row, error)
}

// Result is the outcome of one Ingest call.
type Result struct {
	BatchResult

	Source   string        `json:"source"`
	Target   string        `json:"target"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`

	// Empty is set when the source had no rows at all.
	Empty bool `json:"empty"`
}

// Pipeline sequences read, map and submit for one source at a time.
// Ingest runs synchronously on the caller's goroutine.
type Pipeline struct {
	reader    RowReader
	mapper    *mapping.Mapper
	submitter *Submitter
	metrics   metrics.Exporter
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMapper replaces the default last-wins mapper.
func WithMapper(m *mapping.Mapper) Option {
	return func(p *Pipeline) {
		p.mapper = m
	}
}

// WithMetrics sets the metrics exporter.
func WithMetrics(m metrics.Exporter) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a pipeline reading through reader and writing through indexer.
func New(reader RowReader, indexer BulkIndexer, opts ...Option) *Pipeline {
	p := &Pipeline{
		reader:  reader,
		metrics: metrics.Noop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.mapper == nil {
		p.mapper = mapping.NewMapper(mapping.CollisionLastWins)
	}
	if p.mapper.Logger == nil {
		p.mapper.Logger = p.logger
	}
	p.submitter = NewSubmitter(indexer, p.logger)
	return p
}

// Ingest reads source, maps every data row and submits the documents to
// target in one bulk request. A source without rows returns an empty result
// and submits nothing. Read errors are returned unchanged.
func (p *Pipeline) Ingest(ctx context.Context, source, target string) (res Result, err error) {
	start := time.Now()
	res = Result{Source: source, Target: target}
	tags := map[string]string{"index": target}

	ctx, span := telemetry.StartSpan(ctx, "sheetdex.ingest",
		attribute.String("source", source),
		attribute.String("index", target))
	defer func() {
		res.Duration = time.Since(start)
		if err != nil {
			telemetry.RecordError(ctx, err)
			p.metrics.Counter(metrics.IngestErrors, 1, tags)
		} else {
			p.metrics.Counter(metrics.IngestRows, int64(res.Rows), tags)
			p.metrics.Counter(metrics.IngestSucceeded, int64(res.Succeeded), tags)
			p.metrics.Counter(metrics.IngestFailed, int64(res.Failed), tags)
		}
		p.metrics.Timer(metrics.IngestDuration, res.Duration, tags)
		span.SetAttributes(
			attribute.Int("rows", res.Rows),
			attribute.Int("succeeded", res.Succeeded),
			attribute.Int("failed", res.Failed))
		span.End()
	}()

	if strings.TrimSpace(target) == "" {
		return res, sderrors.InvalidTarget(target)
	}

	rows, err := p.read(ctx, source)
	if err != nil {
		return res, err
	}
	if len(rows) == 0 {
		logging.Annotate(ctx, p.logger).Warn("source has no rows; nothing submitted", "source", source)
		res.Empty = true
		return res, nil
	}

	docs, err := p.mapRows(ctx, rows)
	if err != nil {
		return res, err
	}
	res.Rows = len(docs)

	submitCtx, submitSpan := telemetry.StartSpan(ctx, "sheetdex.ingest.submit", attribute.Int("documents", len(docs)))
	batch, err := p.submitter.Submit(submitCtx, target, docs)
	telemetry.RecordError(submitCtx, err)
	submitSpan.End()
	if err != nil {
		return res, err
	}

	res.BatchResult = batch
	return res, nil
}

func (p *Pipeline) read(ctx context.Context, source string) ([]sheet.Row, error) {
	ctx, span := telemetry.StartSpan(ctx, "sheetdex.ingest.read")
	defer span.End()

	rows, err := p.reader.Read(ctx, source)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}

func (p *Pipeline) mapRows(ctx context.Context, rows []sheet.Row) ([]mapping.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "sheetdex.ingest.map")
	defer span.End()

	fields, err := p.mapper.Fields(rows[0].Cells)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	// Per-call copy so truncation warnings carry this run's ids.
	mapper := *p.mapper
	mapper.Logger = logging.Annotate(ctx, p.mapper.Logger)

	docs := make([]mapping.Document, 0, len(rows)-1)
	for _, row := range rows[1:] {
		docs = append(docs, mapper.MapFields(fields, row.Cells, row.Ordinal))
	}
	return docs, nil
}

// IngestCount runs Ingest and returns only the number of documents the
// store accepted.
func (p *Pipeline) IngestCount(ctx context.Context, source, target string) (int, error) {
	res, err := p.Ingest(ctx, source, target)
	if err != nil {
		return 0, err
	}
	return res.Succeeded, nil
}

// Task is an ingestion running on its own goroutine.
type Task struct {
	done chan struct{}
	res  Result
	err  error
}

// Start runs Ingest on a new goroutine and returns immediately.
func (p *Pipeline) Start(ctx context.Context, source, target string) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.res, t.err = p.Ingest(ctx, source, target)
	}()
	return t
}

// Done is closed when the ingestion finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the ingestion finishes and returns its outcome.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.res, t.err
}
