// Package ingest reads a workbook, maps its rows to documents and submits
// them to the document store in one bulk request.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/logging"
	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/store"
)

// BulkIndexer is the part of the document store the submitter needs.
type BulkIndexer interface {
	BulkIndex(ctx context.Context, index string, docs []mapping.Document) ([]store.BulkItem, error)
}

// Failure is one document the store rejected.
type Failure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// BatchResult tallies one bulk submission.
type BatchResult struct {
	Submitted int       `json:"submitted"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Submitter sends documents as a single bulk request and counts the outcome.
// Failed items are never retried.
type Submitter struct {
	indexer BulkIndexer
	logger  *slog.Logger
}

// NewSubmitter creates a submitter. A nil logger uses slog.Default().
func NewSubmitter(indexer BulkIndexer, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{indexer: indexer, logger: logger}
}

// Submit indexes docs into target. Per-document rejections are counted in
// the result; only a failed call returns an error, with a zero result.
func (s *Submitter) Submit(ctx context.Context, target string, docs []mapping.Document) (BatchResult, error) {
	if strings.TrimSpace(target) == "" {
		return BatchResult{}, sderrors.InvalidTarget(target)
	}
	if len(docs) == 0 {
		return BatchResult{}, nil
	}

	items, err := s.indexer.BulkIndex(ctx, target, docs)
	if err != nil {
		return BatchResult{}, submitError(err)
	}

	log := logging.Annotate(ctx, s.logger)
	if len(items) != len(docs) {
		log.Warn("bulk response item count differs from request",
			"index", target, "submitted", len(docs), "acknowledged", len(items))
	}

	res := BatchResult{Submitted: len(docs)}
	for i, item := range items {
		if !item.Failed() {
			res.Succeeded++
			continue
		}

		row := -1
		if i < len(docs) {
			row = docs[i].RowNumber()
		}
		res.Failed++
		res.Failures = append(res.Failures, Failure{Row: row, Reason: item.Error.String()})
		log.Error("document rejected",
			"index", target, "row", row, "status", item.Status, "reason", item.Error.String())
	}

	log.Info("bulk submission complete",
		"index", target, "submitted", res.Submitted, "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

func submitError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if !sderrors.IsCode(err, sderrors.CodeContextCanceled) {
			return sderrors.ContextCanceled("bulk", err)
		}
		return err
	case sderrors.GetCode(err) != sderrors.CodeUnknown:
		return err
	default:
		return sderrors.TransportFailure("bulk", err)
	}
}
