package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".run.json"

var errNotExist = os.ErrNotExist

// FileBackend stores one JSON file per run in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+fileExt)
}

// Save writes the record atomically via temp file and rename.
func (b *FileBackend) Save(_ context.Context, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, "."+r.ID+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, b.path(r.ID)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads a record from disk.
func (b *FileBackend) Load(_ context.Context, id string) (*Record, error) {
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		return nil, err
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record %s: %w", id, err)
	}
	return &r, nil
}

// List reads every record in the directory. Unreadable files are skipped.
func (b *FileBackend) List(ctx context.Context, limit int) ([]*Record, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
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

// Name returns "file".
func (b *FileBackend) Name() string { return "file" }

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }
