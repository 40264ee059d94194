package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/runlog"
	"github.com/sheetdex/sheetdex/pkg/store"
)

// handleHealth pings the document store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Ping(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, map[string]any{
		"status":  "ok",
		"cluster": info.ClusterName,
		"version": info.Version,
	})
}

// handleListIndices lists indices; ?all=true includes system indices.
func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListIndices(r.Context(), "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); !all {
		names = store.UserIndices(names)
	}
	if names == nil {
		names = []string{}
	}
	jsonResponse(w, map[string]any{"indices": names})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	n, err := s.store.Count(r.Context(), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	jsonResponse(w, map[string]any{"index": index, "count": n})
}

// handleSearch runs ?q= against ?field= (or every field), up to ?size= hits.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	params := r.URL.Query()

	q := store.Query{Text: params.Get("q"), Field: params.Get("field")}
	if raw := params.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			jsonError(w, "size must be a non-negative integer", http.StatusBadRequest)
			return
		}
		q.Size = size
	}

	hits, err := s.store.Search(r.Context(), index, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	docs := make([]map[string]any, len(hits))
	for i, h := range hits {
		docs[i] = h.Fields()
	}
	jsonResponse(w, map[string]any{"index": index, "total": len(docs), "hits": docs})
}

// handleIngest stores the uploaded workbook in a temp file, ingests it and
// removes it.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("upload exceeds %d bytes", s.maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Failed to parse upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		jsonError(w, "only .xlsx workbooks are accepted", http.StatusBadRequest)
		return
	}

	tmp, err := os.CreateTemp("", "sheetdex-*.xlsx")
	if err != nil {
		jsonError(w, "Failed to save file", http.StatusInternalServerError)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		jsonError(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	res, err := s.recorder.Track(ctx, header.Filename, index, func(ctx context.Context) (ingest.Result, error) {
		return s.ingester.Ingest(ctx, tmpPath, index)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// Report the uploaded name rather than the temp path.
	res.Source = header.Filename
	jsonResponse(w, res)
}

// handleRuns lists recent run records, ?limit= defaults to 20.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []*runlog.Record{}
	}
	jsonResponse(w, map[string]any{"backend": s.runs.Name(), "runs": records})
}

// fail maps coded errors to HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "code", sderrors.GetCode(err), "error", err)
	}
	jsonResponseStatus(w, map[string]string{
		"error": err.Error(),
		"code":  string(sderrors.GetCode(err)),
	}, status)
}

func statusFor(err error) int {
	switch sderrors.GetCode(err) {
	case sderrors.CodeInvalidTarget:
		return http.StatusBadRequest
	case sderrors.CodeSourceUnavailable, sderrors.CodeHeaderCollision:
		return http.StatusUnprocessableEntity
	case sderrors.CodeTransportFailure, sderrors.CodeStoreResponse:
		return http.StatusBadGateway
	case sderrors.CodeContextCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func jsonResponse(w http.ResponseWriter, data interface{}) {
	jsonResponseStatus(w, data, http.StatusOK)
}

func jsonResponseStatus(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	jsonResponseStatus(w, map[string]string{"error": message}, status)
}
