package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/tui"
	"github.com/sheetdex/sheetdex/pkg/watch"
)

var (
	watchIndex    string
	watchDebounce = watch.DefaultDebounce
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Ingest workbooks as they are saved into watched directories",
	Long: `Watch directories and ingest every .xlsx file that is created or rewritten,
once it has been quiet for the debounce period. Office lock files (~$*) are ignored.

Examples:
  sheetdex watch ./inbox -i ventas`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchIndex, "index", "i", "", "Target index (default from config)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is ingested")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	index := indexOrDefault(watchIndex)
	reader, err := newReader(ctx, nil, "")
	if err != nil {
		return err
	}
	client := newStore()
	defer client.Close()

	pipeline, exporter := newPipeline(reader, client)
	defer exporter.Flush()
	recorder := openRecorder(ctx)
	defer recorder.Backend.Close()

	w, err := watch.NewWatcher(watch.WithDebounce(watchDebounce), watch.WithLogger(logger))
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range args {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	w.OnFile = func(ctx context.Context, path string) error {
		res, err := recorder.Track(ctx, path, index, func(ctx context.Context) (ingest.Result, error) {
			return pipeline.Ingest(ctx, path, index)
		})
		if err != nil {
			return err
		}
		tui.PrintIngestReport(os.Stdout, res)
		return nil
	}
	w.OnError = func(path string, err error) {
		logger.Error("ingest failed", "path", path, "error", err)
	}

	logger.Info("waiting for workbooks", "index", index)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
