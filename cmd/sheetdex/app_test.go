package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdex/sheetdex/pkg/config"
	"github.com/sheetdex/sheetdex/pkg/runlog"
)

func withConfig(t *testing.T) {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	cfg = config.Default()
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })
}

func TestNeedsS3(t *testing.T) {
	assert.False(t, needsS3([]string{"a.xlsx", "/tmp/b.xlsx"}))
	assert.True(t, needsS3([]string{"a.xlsx", "s3://bucket/b.xlsx"}))
	assert.False(t, needsS3(nil))
}

func TestIndexOrDefault(t *testing.T) {
	withConfig(t)
	assert.Equal(t, "excel_data", indexOrDefault(""))
	assert.Equal(t, "sales", indexOrDefault("sales"))
}

func TestOpenRunLog(t *testing.T) {
	withConfig(t)
	ctx := context.Background()

	cfg.RunLog.Backend = "none"
	b, err := openRunLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "none", b.Name())

	cfg.RunLog.Backend = "file"
	cfg.RunLog.Dir = filepath.Join(t.TempDir(), "runs")
	b, err = openRunLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())

	cfg.RunLog.Backend = "ftp"
	_, err = openRunLog(ctx)
	assert.Error(t, err)
}

func TestOpenRecorderFallsBack(t *testing.T) {
	withConfig(t)
	cfg.RunLog.Backend = "ftp"

	rec := openRecorder(context.Background())
	assert.IsType(t, runlog.Nop{}, rec.Backend)
}

func TestNewPipelineHonorsCollisionPolicy(t *testing.T) {
	withConfig(t)
	cfg.Ingest.Collision = "reject"

	reader, err := newReader(context.Background(), []string{"local.xlsx"}, "")
	require.NoError(t, err)

	p, exporter := newPipeline(reader, nil)
	require.NotNil(t, p)
	require.NoError(t, exporter.Flush())
}

func TestBuildServerFallsBackWhenRunLogUnavailable(t *testing.T) {
	withConfig(t)
	cfg.RunLog.Backend = "ftp"

	srv, cleanup, err := buildServer(context.Background())
	require.NoError(t, err)
	defer cleanup()

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"backend":"none"`)
}

func TestBuildServerRejectsBadUploadSize(t *testing.T) {
	withConfig(t)
	cfg.Server.MaxUploadSize = "lots"

	_, _, err := buildServer(context.Background())
	assert.Error(t, err)
}
