package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/runlog"
	"github.com/sheetdex/sheetdex/pkg/sheet"
	"github.com/sheetdex/sheetdex/pkg/store"
)

type fakeStore struct {
	pingErr error
	indices []string
	counts  map[string]int64
	hits    []store.Hit
	lastQ   store.Query
	docs    []mapping.Document
}

func (f *fakeStore) Ping(context.Context) (store.Info, error) {
	if f.pingErr != nil {
		return store.Info{}, f.pingErr
	}
	return store.Info{ClusterName: "test", Version: "8.12.1"}, nil
}

func (f *fakeStore) Count(_ context.Context, index string) (int64, error) {
	n, ok := f.counts[index]
	if !ok {
		return 0, sderrors.StoreResponse("count", http.StatusNotFound, "index_not_found_exception")
	}
	return n, nil
}

func (f *fakeStore) Search(_ context.Context, _ string, q store.Query) ([]store.Hit, error) {
	f.lastQ = q
	return f.hits, nil
}

func (f *fakeStore) ListIndices(context.Context, string) ([]string, error) {
	return f.indices, nil
}

func (f *fakeStore) BulkIndex(_ context.Context, _ string, docs []mapping.Document) ([]store.BulkItem, error) {
	f.docs = append(f.docs, docs...)
	items := make([]store.BulkItem, len(docs))
	for i := range items {
		items[i] = store.BulkItem{Status: http.StatusCreated}
	}
	return items, nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeStore) {
	t.Helper()
	fs := &fakeStore{
		indices: []string{".kibana", "excel_data", "sales"},
		counts:  map[string]int64{"sales": 42},
	}
	p := ingest.New(sheet.NewReader(), fs)
	return NewServer(fs, p, opts...), fs
}

func do(t *testing.T, s *Server, method, target string, body io.Reader, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestServer_Health(t *testing.T) {
	s, fs := newTestServer(t)

	w, resp := do(t, s, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	fs.pingErr = sderrors.TransportFailure("ping", errors.New("refused"))
	w, _ = do(t, s, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ListIndices(t *testing.T) {
	s, _ := newTestServer(t)

	_, resp := do(t, s, http.MethodGet, "/api/indices", nil, "")
	assert.Equal(t, []any{"excel_data", "sales"}, resp["indices"])

	_, resp = do(t, s, http.MethodGet, "/api/indices?all=true", nil, "")
	assert.Equal(t, []any{".kibana", "excel_data", "sales"}, resp["indices"])
}

func TestServer_Count(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := do(t, s, http.MethodGet, "/api/indices/sales/count", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(42), resp["count"])

	w, resp = do(t, s, http.MethodGet, "/api/indices/missing/count", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(sderrors.CodeStoreResponse), resp["code"])
}

func TestServer_Search(t *testing.T) {
	s, fs := newTestServer(t)
	fs.hits = []store.Hit{{ID: "a1", Index: "sales", Source: map[string]any{"nombre": "Ana"}}}

	w, resp := do(t, s, http.MethodGet, "/api/indices/sales/search?q=Ana&field=nombre&size=5", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.Query{Text: "Ana", Field: "nombre", Size: 5}, fs.lastQ)

	hits := resp["hits"].([]any)
	require.Len(t, hits, 1)
	first := hits[0].(map[string]any)
	assert.Equal(t, "a1", first["_id"])
	assert.Equal(t, "Ana", first["nombre"])

	w, _ = do(t, s, http.MethodGet, "/api/indices/sales/search?size=lots", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func upload(t *testing.T, name string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func sampleWorkbook(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.xlsx")
	require.NoError(t, sheet.WriteSample(path, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestServer_Ingest(t *testing.T) {
	runs, err := runlog.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	s, fs := newTestServer(t, WithRunLog(runs))

	body, ct := upload(t, "datos.xlsx", sampleWorkbook(t))
	w, resp := do(t, s, http.MethodPost, "/api/indices/people/ingest", body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "datos.xlsx", resp["source"])
	assert.Equal(t, "people", resp["target"])
	assert.Equal(t, float64(5), resp["succeeded"])
	require.Len(t, fs.docs, 5)
	assert.Equal(t, "Juan Pérez", fs.docs[0]["nombre"])

	_, resp = do(t, s, http.MethodGet, "/api/runs?limit=5", nil, "")
	assert.Equal(t, "file", resp["backend"])
	list := resp["runs"].([]any)
	require.Len(t, list, 1)
	rec := list[0].(map[string]any)
	assert.Equal(t, "datos.xlsx", rec["source"])
	assert.Equal(t, string(runlog.StatusComplete), rec["status"])
}

func TestServer_IngestRejectsBadUploads(t *testing.T) {
	s, _ := newTestServer(t)

	body, ct := upload(t, "notes.csv", []byte("a,b\n1,2\n"))
	w, _ := do(t, s, http.MethodPost, "/api/indices/people/ingest", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, ct = upload(t, "broken.xlsx", []byte("not a zip"))
	w, resp := do(t, s, http.MethodPost, "/api/indices/people/ingest", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(sderrors.CodeSourceUnavailable), resp["code"])

	w, _ = do(t, s, http.MethodPost, "/api/indices/people/ingest", bytes.NewReader(nil), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_IngestTooLarge(t *testing.T) {
	s, _ := newTestServer(t, WithMaxUploadSize(1024))

	body, ct := upload(t, "big.xlsx", bytes.Repeat([]byte("x"), 4096))
	w, _ := do(t, s, http.MethodPost, "/api/indices/people/ingest", body, ct)
	assert.NotEqual(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}

func TestServer_RunsDefaultsToEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	w, resp := do(t, s, http.MethodGet, "/api/runs", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "none", resp["backend"])
	assert.Equal(t, []any{}, resp["runs"])

	w, _ = do(t, s, http.MethodGet, "/api/runs?limit=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(sderrors.InvalidTarget("")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(sderrors.HeaderCollision("a", 1, 2)))
	assert.Equal(t, http.StatusBadGateway, statusFor(sderrors.TransportFailure("bulk", errors.New("x"))))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(sderrors.ContextCanceled("read", context.Canceled)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}
