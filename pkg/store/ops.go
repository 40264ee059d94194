package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/mapping"
)

// Metadata keys added to every hit.
const (
	FieldID    = "_id"
	FieldIndex = "_index"
)

// DefaultSearchSize is used when Query.Size is not positive.
const DefaultSearchSize = 10

// Info describes the cluster.
type Info struct {
	Name          string `json:"name"`
	ClusterName   string `json:"cluster_name"`
	Version       string `json:"version"`
	LuceneVersion string `json:"lucene_version"`
}

// ItemError is the store's reason for rejecting one bulk item.
type ItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *ItemError) String() string {
	if e == nil {
		return ""
	}
	return e.Type + ": " + e.Reason
}

// BulkItem is the acknowledgement for one document of a bulk request.
type BulkItem struct {
	Status int        `json:"status"`
	ID     string     `json:"_id"`
	Error  *ItemError `json:"error,omitempty"`
}

// Failed reports whether the store rejected the item.
func (b BulkItem) Failed() bool {
	return b.Error != nil
}

// Query selects documents. Empty Text matches everything.
type Query struct {
	Text  string
	Field string
	Size  int
}

// Hit is one search result.
type Hit struct {
	ID     string
	Index  string
	Score  float64
	Source map[string]any
}

// Fields returns the source with _id and _index added.
func (h Hit) Fields() map[string]any {
	out := make(map[string]any, len(h.Source)+2)
	for k, v := range h.Source {
		out[k] = v
	}
	out[FieldID] = h.ID
	out[FieldIndex] = h.Index
	return out
}

// IndexInfo summarizes one index.
type IndexInfo struct {
	Name     string   `json:"name"`
	DocCount int64    `json:"doc_count"`
	Aliases  []string `json:"aliases"`
}

// Ping fetches cluster information.
func (c *Client) Ping(ctx context.Context) (Info, error) {
	es, err := c.Connect(ctx)
	if err != nil {
		return Info{}, err
	}

	var body struct {
		Name        string `json:"name"`
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number        string `json:"number"`
			LuceneVersion string `json:"lucene_version"`
		} `json:"version"`
	}
	res, err := es.Info(es.Info.WithContext(ctx))
	if err := decode("info", res, err, &body); err != nil {
		return Info{}, err
	}

	return Info{
		Name:          body.Name,
		ClusterName:   body.ClusterName,
		Version:       body.Version.Number,
		LuceneVersion: body.Version.LuceneVersion,
	}, nil
}

// IndexDocument stores one document and returns its generated id.
func (c *Client) IndexDocument(ctx context.Context, index string, doc map[string]any) (string, error) {
	return c.indexDocument(ctx, index, "", doc)
}

// IndexDocumentWithID stores one document under id.
func (c *Client) IndexDocumentWithID(ctx context.Context, index, id string, doc map[string]any) error {
	_, err := c.indexDocument(ctx, index, id, doc)
	return err
}

func (c *Client) indexDocument(ctx context.Context, index, id string, doc map[string]any) (string, error) {
	if strings.TrimSpace(index) == "" {
		return "", sderrors.InvalidTarget(index)
	}
	es, err := c.Connect(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	opts := []func(*esapi.IndexRequest){es.Index.WithContext(ctx)}
	if id != "" {
		opts = append(opts, es.Index.WithDocumentID(id))
	}
	if c.cfg.Refresh != "" {
		opts = append(opts, es.Index.WithRefresh(c.cfg.Refresh))
	}

	var body struct {
		ID string `json:"_id"`
	}
	res, err := es.Index(index, bytes.NewReader(data), opts...)
	if err := decode("index", res, err, &body); err != nil {
		return "", err
	}
	return body.ID, nil
}

// BulkIndex sends one bulk request with an index action per document and
// returns the per-item acknowledgements in submission order.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []mapping.Document) ([]BulkItem, error) {
	if strings.TrimSpace(index) == "" {
		return nil, sderrors.InvalidTarget(index)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	es, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		buf.WriteString(`{"index":{}}` + "\n")
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode document at row %d: %w", doc.RowNumber(), err)
		}
	}

	opts := []func(*esapi.BulkRequest){es.Bulk.WithContext(ctx), es.Bulk.WithIndex(index)}
	if c.cfg.Refresh != "" {
		opts = append(opts, es.Bulk.WithRefresh(c.cfg.Refresh))
	}

	var body struct {
		Errors bool                  `json:"errors"`
		Items  []map[string]BulkItem `json:"items"`
	}
	res, err := es.Bulk(&buf, opts...)
	if err := decode("bulk", res, err, &body); err != nil {
		return nil, err
	}

	items := make([]BulkItem, 0, len(body.Items))
	for _, it := range body.Items {
		// Each entry has a single key naming the action.
		for _, item := range it {
			items = append(items, item)
		}
	}
	return items, nil
}

// Count returns the number of documents in index.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	es, err := c.Connect(ctx)
	if err != nil {
		return 0, err
	}

	var body struct {
		Count int64 `json:"count"`
	}
	res, err := es.Count(es.Count.WithContext(ctx), es.Count.WithIndex(index))
	if err := decode("count", res, err, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// Search runs q against index.
func (c *Client) Search(ctx context.Context, index string, q Query) ([]Hit, error) {
	es, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	size := q.Size
	if size <= 0 {
		size = DefaultSearchSize
	}
	data, err := json.Marshal(map[string]any{"query": q.body()})
	if err != nil {
		return nil, err
	}

	var body struct {
		Hits struct {
			Hits []struct {
				Index  string         `json:"_index"`
				ID     string         `json:"_id"`
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(bytes.NewReader(data)),
		es.Search.WithSize(size),
	)
	if err := decode("search", res, err, &body); err != nil {
		return nil, err
	}

	hits := make([]Hit, len(body.Hits.Hits))
	for i, h := range body.Hits.Hits {
		hits[i] = Hit{ID: h.ID, Index: h.Index, Score: h.Score, Source: h.Source}
	}
	return hits, nil
}

func (q Query) body() map[string]any {
	switch {
	case q.Text == "":
		return map[string]any{"match_all": map[string]any{}}
	case q.Field != "":
		return map[string]any{"match": map[string]any{q.Field: q.Text}}
	default:
		return map[string]any{"query_string": map[string]any{"query": q.Text}}
	}
}

// ListIndices returns the sorted names of indices matching pattern.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	es, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	var rows []struct {
		Index string `json:"index"`
	}
	res, err := es.Cat.Indices(
		es.Cat.Indices.WithContext(ctx),
		es.Cat.Indices.WithIndex(pattern),
		es.Cat.Indices.WithFormat("json"),
		es.Cat.Indices.WithH("index"),
	)
	if err := decode("cat indices", res, err, &rows); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Index)
	}
	sort.Strings(names)
	return names, nil
}

// UserIndices drops dot-prefixed system indices.
func UserIndices(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, ".") {
			out = append(out, n)
		}
	}
	return out
}

// IndexInfo returns the document count and aliases of index.
func (c *Client) IndexInfo(ctx context.Context, index string) (IndexInfo, error) {
	es, err := c.Connect(ctx)
	if err != nil {
		return IndexInfo{}, err
	}

	var body map[string]struct {
		Aliases map[string]json.RawMessage `json:"aliases"`
	}
	res, err := es.Indices.Get([]string{index}, es.Indices.Get.WithContext(ctx))
	if err := decode("get index", res, err, &body); err != nil {
		return IndexInfo{}, err
	}

	info := IndexInfo{Name: index}
	for _, idx := range body {
		for alias := range idx.Aliases {
			info.Aliases = append(info.Aliases, alias)
		}
	}
	sort.Strings(info.Aliases)

	if info.DocCount, err = c.Count(ctx, index); err != nil {
		return IndexInfo{}, err
	}
	return info, nil
}
