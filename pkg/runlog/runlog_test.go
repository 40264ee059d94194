package runlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/logging"
	"github.com/sheetdex/sheetdex/pkg/storage/s3"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, offset time.Duration) *Record {
	return &Record{ID: id, Source: id + ".xlsx", Index: "idx", Status: StatusComplete, StartedAt: base.Add(offset)}
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, record("a", 0)))
	require.NoError(t, b.Save(ctx, record("b", time.Minute)))
	require.NoError(t, b.Save(ctx, record("c", 2*time.Minute)))

	got, err := b.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b.xlsx", got.Source)
	assert.True(t, got.StartedAt.Equal(base.Add(time.Minute)))

	updated := record("b", time.Minute)
	updated.Status = StatusFailed
	updated.Error = "boom"
	require.NoError(t, b.Save(ctx, updated))
	got, err = b.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	all, err := b.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	two, err := b.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(two))

	_, err = b.Load(ctx, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func ids(records []*Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFileBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	exerciseBackend(t, b)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "runs"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), fileExt), e.Name())
	}
}

func TestFileBackendSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, b.Save(context.Background(), record("ok", 0)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"+fileExt), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	all, err := b.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, ids(all))
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("failed to get object: %w", &types.NoSuchKey{})
	}
	return data, nil
}

func (m *memObjects) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) List(_ context.Context, bucket, prefix string) ([]s3.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []s3.ObjectInfo
	for k := range m.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if key != k && strings.HasPrefix(key, prefix) {
			out = append(out, s3.ObjectInfo{Key: key})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func TestS3Backend(t *testing.T) {
	objects := newMemObjects()
	b := NewS3Backend(objects, "bucket", "sheetdex/runs")
	exerciseBackend(t, b)

	_, ok := objects.objects["bucket/sheetdex/runs/a"+fileExt]
	assert.True(t, ok)
}

func TestRedisKeyLayout(t *testing.T) {
	b := NewRedisBackendWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), DefaultRedisConfig("127.0.0.1:0"))
	defer b.Close()

	assert.Equal(t, "sheetdex:run:abc", b.key("abc"))
	assert.Equal(t, "sheetdex:runs", b.indexKey())
	assert.Equal(t, "redis", b.Name())
}

func TestRedisUnreachable(t *testing.T) {
	cfg := DefaultRedisConfig("127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond

	_, err := NewRedisBackend(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var b Backend = Nop{}
	require.NoError(t, b.Save(context.Background(), record("x", 0)))
	_, err := b.Load(context.Background(), "x")
	assert.ErrorIs(t, err, os.ErrNotExist)
	list, err := b.List(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type spyBackend struct {
	mu    sync.Mutex
	saves []Record
	err   error
}

func (s *spyBackend) Save(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, *r)
	return s.err
}
func (s *spyBackend) Load(context.Context, string) (*Record, error) { return nil, os.ErrNotExist }
func (s *spyBackend) List(context.Context, int) ([]*Record, error)  { return nil, nil }
func (s *spyBackend) Name() string                                  { return "spy" }
func (s *spyBackend) Close() error                                  { return nil }

func fixedRecorder(b Backend) *Recorder {
	r := NewRecorder(b, nil)
	tick := base
	r.Now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	r.NewID = func() string { return "run-1" }
	return r
}

func TestTrackComplete(t *testing.T) {
	spy := &spyBackend{}
	r := fixedRecorder(spy)

	var seenID string
	res, err := r.Track(context.Background(), "data.xlsx", "idx", func(ctx context.Context) (ingest.Result, error) {
		seenID = logging.RunID(ctx)
		return ingest.Result{Rows: 3, BatchResult: ingest.BatchResult{Submitted: 3, Succeeded: 2, Failed: 1}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, "run-1", seenID)

	require.Len(t, spy.saves, 2)
	assert.Equal(t, StatusRunning, spy.saves[0].Status)
	assert.Nil(t, spy.saves[0].FinishedAt)

	final := spy.saves[1]
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, 3, final.Rows)
	assert.Equal(t, 2, final.Succeeded)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, time.Second, final.Duration())
}

func TestTrackFailedAndEmpty(t *testing.T) {
	spy := &spyBackend{}
	r := fixedRecorder(spy)

	boom := sderrors.TransportFailure("bulk", errors.New("connection refused"))
	_, err := r.Track(context.Background(), "a.xlsx", "idx", func(context.Context) (ingest.Result, error) {
		return ingest.Result{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, spy.saves[1].Status)
	assert.Contains(t, spy.saves[1].Error, "connection refused")

	_, err = r.Track(context.Background(), "b.xlsx", "idx", func(context.Context) (ingest.Result, error) {
		return ingest.Result{Empty: true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, spy.saves[3].Status)
}

func TestTrackIgnoresLedgerErrors(t *testing.T) {
	spy := &spyBackend{err: errors.New("disk full")}
	r := fixedRecorder(spy)

	res, err := r.Track(context.Background(), "a.xlsx", "idx", func(context.Context) (ingest.Result, error) {
		return ingest.Result{Rows: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Len(t, spy.saves, 2)
}

func TestTrackPersistsAfterCancel(t *testing.T) {
	spy := &spyBackend{}
	r := fixedRecorder(spy)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := r.Track(ctx, "a.xlsx", "idx", func(ctx context.Context) (ingest.Result, error) {
		cancel()
		return ingest.Result{}, sderrors.ContextCanceled("read", ctx.Err())
	})
	require.Error(t, err)
	require.Len(t, spy.saves, 2)
	assert.Equal(t, StatusFailed, spy.saves[1].Status)
}
