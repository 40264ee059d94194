package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sheetdex/sheetdex/pkg/sheet"
	"github.com/sheetdex/sheetdex/pkg/store"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(white).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderDocuments draws hits as a table. With no columns, every field is
// shown with _id first.
func RenderDocuments(hits []store.Hit, columns []string) string {
	if len(columns) == 0 {
		columns = sheet.ExportColumns(hits)
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		fields := h.Fields()
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cellString(fields[col])
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(columns...).
		Rows(rows...)
	return t.String()
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
