package tui

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sheetdex/sheetdex/pkg/cell"
	"github.com/sheetdex/sheetdex/pkg/store"
)

// MaxBars caps the number of groups a chart shows.
const MaxBars = 10

// Bar is one group in a bar chart.
type Bar struct {
	Label string
	Value float64
}

// GroupSum totals valueField per distinct groupField across hits. Hits
// missing either field are skipped and non-numeric values count as 0.
// With byMonth the group value is treated as a date and bucketed by month.
// The largest MaxBars groups are returned, largest first.
func GroupSum(hits []store.Hit, groupField, valueField string, byMonth bool) []Bar {
	sums := make(map[string]float64)
	for _, h := range hits {
		g, ok := h.Source[groupField]
		if !ok || g == nil {
			continue
		}
		v, ok := h.Source[valueField]
		if !ok || v == nil {
			continue
		}

		label := fmt.Sprint(g)
		if byMonth {
			label = monthOf(label)
		}
		sums[label] += number(v)
	}

	bars := make([]Bar, 0, len(sums))
	for label, total := range sums {
		bars = append(bars, Bar{Label: label, Value: total})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Value != bars[j].Value {
			return bars[i].Value > bars[j].Value
		}
		return bars[i].Label < bars[j].Label
	})
	if len(bars) > MaxBars {
		bars = bars[:MaxBars]
	}
	return bars
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}

// monthOf returns the month name of MM/dd/yyyy or canonical timestamp
// values, or s unchanged.
func monthOf(s string) string {
	if t, err := time.Parse(cell.TimestampLayout, s); err == nil {
		return t.Month().String()
	}
	parts := strings.Split(s, "/")
	if len(parts) >= 2 {
		if m, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil && m >= 1 && m <= 12 {
			return time.Month(m).String()
		}
	}
	return s
}

// RenderBarChart draws bars horizontally, scaled so the largest fills width.
func RenderBarChart(title string, bars []Bar, width int) string {
	if width <= 0 {
		width = 40
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n\n")
	if len(bars) == 0 {
		sb.WriteString(mutedStyle.Render("  no data"))
		sb.WriteString("\n")
		return sb.String()
	}

	labelWidth, peak := 0, 0.0
	for _, b := range bars {
		if n := len([]rune(b.Label)); n > labelWidth {
			labelWidth = n
		}
		if b.Value > peak {
			peak = b.Value
		}
	}

	for _, b := range bars {
		n := 0
		if peak > 0 && b.Value > 0 {
			n = int(math.Round(b.Value / peak * float64(width)))
		}
		label := b.Label + strings.Repeat(" ", labelWidth-len([]rune(b.Label)))
		fmt.Fprintf(&sb, "  %s %s %s\n",
			mutedStyle.Render(label),
			barStyle.Render(strings.Repeat("█", n)),
			strconv.FormatFloat(b.Value, 'f', 2, 64))
	}
	return sb.String()
}
