package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/tui"
)

var (
	ingestIndex   string
	ingestWorkers int
	ingestSheet   string
	ingestReject  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|s3://bucket/key>...",
	Short: "Index the rows of one or more workbooks",
	Long: `Read each workbook, map its data rows to documents and submit them to the
index in one bulk request per file. Files are ingested concurrently.

Examples:
  sheetdex ingest ventas.xlsx
  sheetdex ingest -i sales --workers 4 q1.xlsx q2.xlsx q3.xlsx
  sheetdex ingest s3://reports/2024/ventas.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestIndex, "index", "i", "", "Target index (default from config)")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "Files ingested in parallel (default from config)")
	ingestCmd.Flags().StringVar(&ingestSheet, "sheet", "", "Sheet to read (default: first sheet)")
	ingestCmd.Flags().BoolVar(&ingestReject, "reject-collisions", false, "Fail when two headers map to the same field")
}

type fileOutcome struct {
	source string
	result ingest.Result
	err    error
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	index := indexOrDefault(ingestIndex)
	workers := ingestWorkers
	if workers <= 0 {
		workers = cfg.Ingest.Workers
	}
	if ingestReject {
		cfg.Ingest.Collision = "reject"
	}

	reader, err := newReader(ctx, args, ingestSheet)
	if err != nil {
		return err
	}
	client := newStore()
	defer client.Close()

	pipeline, exporter := newPipeline(reader, client)
	defer exporter.Flush()
	recorder := openRecorder(ctx)
	defer recorder.Backend.Close()

	outcomes := make([]fileOutcome, len(args))
	var bar interface{ Add(int) error }
	if len(args) > 1 {
		bar = tui.ShowProgress(os.Stderr, len(args), "ingesting")
	}
	var barMu sync.Mutex

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, source := range args {
		i, source := i, source
		g.Go(func() error {
			res, err := recorder.Track(gctx, source, index, func(ctx context.Context) (ingest.Result, error) {
				return pipeline.Ingest(ctx, source, index)
			})
			outcomes[i] = fileOutcome{source: source, result: res, err: err}
			if bar != nil {
				barMu.Lock()
				_ = bar.Add(1)
				barMu.Unlock()
			}
			// A failed file does not stop the others.
			return nil
		})
	}
	_ = g.Wait()

	var errs sderrors.MultiError
	succeeded, failed := 0, 0
	for _, o := range outcomes {
		if o.err != nil {
			fmt.Fprintln(os.Stderr, describeFailure(o.source, o.err))
			errs.Add(fmt.Errorf("%s: %w", o.source, o.err))
			continue
		}
		tui.PrintIngestReport(os.Stdout, o.result)
		succeeded += o.result.Succeeded
		failed += o.result.Failed
	}

	if len(args) > 1 {
		fmt.Printf("%d files, %d documents indexed, %d rejected in %s\n",
			len(args), succeeded, failed, time.Since(start).Round(time.Millisecond))
	}
	return errs.Combined()
}

// describeFailure renders one failed file, noting when rerunning it may help.
func describeFailure(source string, err error) string {
	line := fmt.Sprintf("  ✗ %s: %v", source, err)
	if sderrors.IsRetryable(err) {
		line += " (transport failure, retry may succeed)"
	}
	return line
}
