package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetdex/sheetdex/pkg/config"
	"github.com/sheetdex/sheetdex/pkg/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the sheetdex HTTP API:

  GET  /api/health
  GET  /api/indices?all=false
  GET  /api/indices/{index}/count
  GET  /api/indices/{index}/search?q=&field=&size=
  POST /api/indices/{index}/ingest   (multipart field "file")
  GET  /api/runs?limit=`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}

	srv, cleanup, err := buildServer(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf("%s:%d", host, port))
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildServer wires the HTTP API. Like ingest and watch, an unreachable run
// log degrades to no recording instead of failing startup.
func buildServer(ctx context.Context) (*server.Server, func(), error) {
	maxUpload, err := config.ParseSize(cfg.Server.MaxUploadSize)
	if err != nil {
		return nil, nil, err
	}

	reader, err := newReader(ctx, nil, "")
	if err != nil {
		return nil, nil, err
	}
	client := newStore()
	pipeline, exporter := newPipeline(reader, client)
	runs := openRecorder(ctx).Backend

	srv := server.NewServer(client, pipeline,
		server.WithRunLog(runs),
		server.WithMaxUploadSize(maxUpload),
		server.WithLogger(logger))

	cleanup := func() {
		_ = runs.Close()
		_ = exporter.Flush()
		_ = client.Close()
	}
	return srv, cleanup, nil
}
