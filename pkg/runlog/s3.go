package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sheetdex/sheetdex/pkg/storage/s3"
)

// ObjectStore is the subset of the S3 client the ledger needs.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	List(ctx context.Context, bucket, prefix string) ([]s3.ObjectInfo, error)
}

// S3Backend stores one JSON object per run under a prefix.
type S3Backend struct {
	store  ObjectStore
	bucket string
	prefix string
}

// NewS3Backend creates a ledger in bucket under prefix.
func NewS3Backend(store ObjectStore, bucket, prefix string) *S3Backend {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Backend{store: store, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) key(id string) string {
	return b.prefix + id + fileExt
}

// Save uploads the record.
func (b *S3Backend) Save(ctx context.Context, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return b.store.Put(ctx, b.bucket, b.key(r.ID), data, "application/json")
}

// Load downloads a record.
func (b *S3Backend) Load(ctx context.Context, id string) (*Record, error) {
	data, err := b.store.Get(ctx, b.bucket, b.key(id))
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, errNotExist
		}
		return nil, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record %s: %w", id, err)
	}
	return &r, nil
}

// List loads every record under the prefix. Objects are fetched newest
// first by modification time, then ordered by start time.
func (b *S3Backend) List(ctx context.Context, limit int) ([]*Record, error) {
	objects, err := b.store.List(ctx, b.bucket, b.prefix)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		r, err := b.Load(ctx, strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	return newestFirst(records, limit), nil
}

// Name returns "s3".
func (b *S3Backend) Name() string { return "s3" }

// Close is a no-op.
func (b *S3Backend) Close() error { return nil }
