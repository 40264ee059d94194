package main

import (
	"context"
	"fmt"

	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/metrics"
	"github.com/sheetdex/sheetdex/pkg/runlog"
	"github.com/sheetdex/sheetdex/pkg/sheet"
	"github.com/sheetdex/sheetdex/pkg/storage/s3"
	"github.com/sheetdex/sheetdex/pkg/store"
)

func newStore() *store.Client {
	return store.New(cfg.StoreConfig(), store.WithLogger(logger))
}

// needsS3 reports whether any source is an s3:// URI.
func needsS3(sources []string) bool {
	for _, s := range sources {
		if s3.IsURI(s) {
			return true
		}
	}
	return false
}

// newReader builds a workbook reader, with S3 access only when a source needs it.
func newReader(ctx context.Context, sources []string, sheetName string) (*sheet.Reader, error) {
	opts := []sheet.Option{sheet.WithLogger(logger)}
	if sheetName != "" {
		opts = append(opts, sheet.WithSheet(sheetName))
	}
	if needsS3(sources) {
		client, err := s3.NewClient(ctx, cfg.S3Config())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sheet.WithObjectStore(client))
	}
	return sheet.NewReader(opts...), nil
}

func newPipeline(reader ingest.RowReader, indexer ingest.BulkIndexer) (*ingest.Pipeline, metrics.Exporter) {
	var exporter metrics.Exporter = metrics.Noop{}
	if verbose {
		exporter = metrics.NewLogExporter(metrics.WithLogger(logger))
	}

	mapper := mapping.NewMapper(cfg.CollisionPolicy())
	mapper.QuietTruncation = cfg.Ingest.QuietTruncation
	mapper.Logger = logger

	return ingest.New(reader, indexer,
		ingest.WithMapper(mapper),
		ingest.WithMetrics(exporter),
		ingest.WithLogger(logger)), exporter
}

// openRunLog opens the configured run ledger.
func openRunLog(ctx context.Context) (runlog.Backend, error) {
	rc := cfg.RunLog
	switch rc.Backend {
	case "", "none":
		return runlog.Nop{}, nil
	case "file":
		return runlog.NewFileBackend(rc.Dir)
	case "redis":
		redisCfg := runlog.DefaultRedisConfig(rc.Redis.Address)
		redisCfg.Password = rc.Redis.Password
		redisCfg.Database = rc.Redis.DB
		if rc.Redis.Prefix != "" {
			redisCfg.Prefix = rc.Redis.Prefix
		}
		redisCfg.TTL = rc.Redis.TTL
		return runlog.NewRedisBackend(ctx, redisCfg)
	case "s3":
		client, err := s3.NewClient(ctx, cfg.S3Config())
		if err != nil {
			return nil, err
		}
		return runlog.NewS3Backend(client, rc.S3.Bucket, rc.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown run log backend %q", rc.Backend)
	}
}

// openRecorder opens the run ledger, falling back to no ledger when it is
// unreachable.
func openRecorder(ctx context.Context) *runlog.Recorder {
	backend, err := openRunLog(ctx)
	if err != nil {
		logger.Warn("run log unavailable; runs will not be recorded", "backend", cfg.RunLog.Backend, "error", err)
		backend = runlog.Nop{}
	}
	return runlog.NewRecorder(backend, logger)
}

func indexOrDefault(index string) string {
	if index != "" {
		return index
	}
	return cfg.Ingest.DefaultIndex
}
