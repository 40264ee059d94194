package tui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/store"
)

func hit(id string, source map[string]any) store.Hit {
	return store.Hit{ID: id, Index: "sales", Source: source}
}

func TestGroupSum(t *testing.T) {
	hits := []store.Hit{
		hit("1", map[string]any{"producto": "A", "total": "10.5"}),
		hit("2", map[string]any{"producto": "B", "total": "3"}),
		hit("3", map[string]any{"producto": "A", "total": 4.5}),
		hit("4", map[string]any{"producto": "C", "total": "n/a"}),
		hit("5", map[string]any{"producto": "B"}),
		hit("6", map[string]any{"total": "99"}),
	}

	bars := GroupSum(hits, "producto", "total", false)
	assert.Equal(t, []Bar{
		{Label: "A", Value: 15},
		{Label: "B", Value: 3},
		{Label: "C", Value: 0},
	}, bars)
}

func TestGroupSumCapsAtTopTen(t *testing.T) {
	var hits []store.Hit
	for i := 0; i < 15; i++ {
		hits = append(hits, hit(fmt.Sprint(i), map[string]any{"g": fmt.Sprintf("g%02d", i), "v": float64(i)}))
	}

	bars := GroupSum(hits, "g", "v", false)
	require.Len(t, bars, MaxBars)
	assert.Equal(t, "g14", bars[0].Label)
	assert.Equal(t, "g05", bars[9].Label)
}

func TestGroupSumByMonth(t *testing.T) {
	hits := []store.Hit{
		hit("1", map[string]any{"fecha": "01/15/2024", "total": "5"}),
		hit("2", map[string]any{"fecha": "2024-01-20T08:00:00", "total": "5"}),
		hit("3", map[string]any{"fecha": "03/01/2024", "total": "1"}),
		hit("4", map[string]any{"fecha": "someday", "total": "2"}),
		hit("5", map[string]any{"fecha": "13/01/2024", "total": "1"}),
	}

	bars := GroupSum(hits, "fecha", "total", true)
	assert.Equal(t, []Bar{
		{Label: "January", Value: 10},
		{Label: "someday", Value: 2},
		{Label: "13/01/2024", Value: 1},
		{Label: "March", Value: 1},
	}, bars)
}

func TestRenderBarChart(t *testing.T) {
	out := RenderBarChart("Sales", []Bar{{"A", 10}, {"Bee", 5}}, 10)

	assert.Contains(t, out, "Sales")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], strings.Repeat("█", 10))
	assert.Contains(t, lines[2], "10.00")
	assert.Contains(t, lines[3], strings.Repeat("█", 5))
	assert.NotContains(t, lines[3], strings.Repeat("█", 6))

	assert.Contains(t, RenderBarChart("Empty", nil, 10), "no data")
}

func TestRenderDocuments(t *testing.T) {
	hits := []store.Hit{
		hit("a1", map[string]any{"nombre": "Ana", "edad": "30"}),
		hit("b2", map[string]any{"nombre": "Luis", "extra": 1.5}),
	}

	out := RenderDocuments(hits, nil)
	for _, want := range []string{"_id", "edad", "extra", "nombre", "a1", "Ana", "Luis", "1.5"} {
		assert.Contains(t, out, want)
	}

	only := RenderDocuments(hits, []string{"nombre"})
	assert.Contains(t, only, "Luis")
	assert.NotContains(t, only, "a1")
}

func TestPrintIngestReport(t *testing.T) {
	var buf bytes.Buffer
	PrintIngestReport(&buf, ingest.Result{
		Source:   "data.xlsx",
		Target:   "sales",
		Rows:     3,
		Duration: 1500 * time.Millisecond,
		BatchResult: ingest.BatchResult{
			Submitted: 3, Succeeded: 2, Failed: 1,
			Failures: []ingest.Failure{{Row: 2, Reason: "mapper_parsing_exception: bad"}},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "data.xlsx")
	assert.Contains(t, out, "sales")
	assert.Contains(t, out, "REJECTIONS")
	assert.Contains(t, out, "row 2:")
	assert.Contains(t, out, "1.5s")

	buf.Reset()
	PrintIngestReport(&buf, ingest.Result{Source: "empty.xlsx", Target: "sales", Empty: true})
	assert.Contains(t, buf.String(), "EMPTY")
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1.5K", formatNumber(1500))
	assert.Equal(t, "2.0M", formatNumber(2000000))
}

func TestShowProgress(t *testing.T) {
	var buf bytes.Buffer
	bar := ShowProgress(&buf, 2, "ingesting")
	require.NoError(t, bar.Add(2))
	assert.True(t, bar.IsFinished())
}
