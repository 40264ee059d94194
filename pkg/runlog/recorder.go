package runlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/logging"
)

// IngestFunc runs one ingestion.
type IngestFunc func(ctx context.Context) (ingest.Result, error)

// Recorder writes a record before and after each tracked ingestion.
// Ledger errors are logged and never change the ingest outcome.
type Recorder struct {
	Backend Backend
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

// NewRecorder creates a recorder. A nil backend records nothing.
func NewRecorder(backend Backend, logger *slog.Logger) *Recorder {
	if backend == nil {
		backend = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		Backend: backend,
		Logger:  logger,
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// Track records a running entry, calls fn with the run id in its context,
// then records the outcome.
func (r *Recorder) Track(ctx context.Context, source, index string, fn IngestFunc) (ingest.Result, error) {
	rec := &Record{
		ID:        r.NewID(),
		Source:    source,
		Index:     index,
		Status:    StatusRunning,
		StartedAt: r.Now().UTC(),
	}
	r.save(ctx, rec)

	res, err := fn(logging.ContextWithRunID(ctx, rec.ID))

	finished := r.Now().UTC()
	rec.FinishedAt = &finished
	rec.Rows = res.Rows
	rec.Submitted = res.Submitted
	rec.Succeeded = res.Succeeded
	rec.Failed = res.Failed
	switch {
	case err != nil:
		rec.Status = StatusFailed
		rec.Error = err.Error()
	case res.Empty:
		rec.Status = StatusEmpty
	default:
		rec.Status = StatusComplete
	}

	// The outcome is persisted even when the caller's context was canceled.
	r.save(context.WithoutCancel(ctx), rec)
	return res, err
}

func (r *Recorder) save(ctx context.Context, rec *Record) {
	if err := r.Backend.Save(ctx, rec); err != nil {
		r.Logger.Warn("failed to record run",
			"backend", r.Backend.Name(),
			"run_id", rec.ID,
			"status", rec.Status,
			"error", err)
	}
}
