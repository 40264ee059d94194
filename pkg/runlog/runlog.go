// Package runlog keeps a ledger of ingest runs so past loads can be listed
// from the CLI and the HTTP API.
package runlog

import (
	"context"
	"sort"
	"time"
)

// Status is the lifecycle phase of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusEmpty    Status = "empty"
)

// Record describes one ingest run.
type Record struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Index     string `json:"index"`
	Rows      int    `json:"rows"`
	Submitted int    `json:"submitted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the run time, or zero while running.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Backend persists run records.
type Backend interface {
	// Save creates or replaces a record.
	Save(ctx context.Context, r *Record) error

	// Load retrieves a record by ID. A missing record is os.ErrNotExist.
	Load(ctx context.Context, id string) (*Record, error)

	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Record, error)

	// Name returns the backend name for logging.
	Name() string

	// Close releases backend resources.
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Save(context.Context, *Record) error { return nil }
func (Nop) Load(context.Context, string) (*Record, error) {
	return nil, errNotExist
}
func (Nop) List(context.Context, int) ([]*Record, error) { return nil, nil }
func (Nop) Name() string                                 { return "none" }
func (Nop) Close() error                                 { return nil }

// newestFirst sorts by start time descending and applies limit.
func newestFirst(records []*Record, limit int) []*Record {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
