package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"github.com/sheetdex/sheetdex/pkg/cell"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   rawCell
		want string
	}{
		{"shared string", rawCell{Value: "hola", Type: excelize.CellTypeSharedString}, "hola"},
		{"inline string", rawCell{Value: "x", Type: excelize.CellTypeInlineString}, "x"},
		{"bool raw", rawCell{Value: "1", Type: excelize.CellTypeBool}, "true"},
		{"bool text", rawCell{Value: "FALSE", Type: excelize.CellTypeBool}, "false"},
		{"integral number", rawCell{Value: "50000", Type: excelize.CellTypeUnset}, "50000"},
		{"decimal number", rawCell{Value: "3.25", Type: excelize.CellTypeNumber}, "3.25"},
		{"serial date", rawCell{Value: "45292.5", Type: excelize.CellTypeUnset, DateStyle: true}, "2024-01-01T12:00:00"},
		{"iso date", rawCell{Value: "2024-02-29T08:00:00Z", Type: excelize.CellTypeDate}, "2024-02-29T08:00:00"},
		{"error cell", rawCell{Value: "#N/A", Type: excelize.CellTypeError}, ""},
		{"empty", rawCell{}, ""},
		{"formula number", rawCell{Value: "7", Formula: "=3+4"}, "7"},
		{"formula string", rawCell{Value: "ok", Type: excelize.CellTypeFormula, Formula: `="ok"`}, "ok"},
		{"formula bool", rawCell{Value: "0", Type: excelize.CellTypeBool, Formula: "=1>2"}, "false"},
		{"formula error", rawCell{Value: "#DIV/0!", Type: excelize.CellTypeError, Formula: "=1/0"}, cell.ErrorFormula},
		{"formula no cache", rawCell{Formula: "=A1"}, cell.ErrorFormula},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cell.Normalize(classify(tt.in, false)))
		})
	}
}

func TestClassify1904(t *testing.T) {
	v := classify(rawCell{Value: "366", DateStyle: true}, true)
	assert.Equal(t, cell.KindDateTime, v.Kind)
	assert.Equal(t, time.Date(1905, 1, 1, 0, 0, 0, 0, time.UTC), v.Time)

	v = classify(rawCell{Value: "366", DateStyle: true}, false)
	assert.Equal(t, time.Date(1900, 12, 31, 0, 0, 0, 0, time.UTC), v.Time)
}

func TestDateFormats(t *testing.T) {
	for _, id := range []int{14, 17, 22, 45, 47} {
		assert.True(t, isBuiltInDateFormat(id), "id %d", id)
	}
	for _, id := range []int{0, 1, 2, 10, 23, 44, 48, 49} {
		assert.False(t, isBuiltInDateFormat(id), "id %d", id)
	}

	dates := []string{"dd/mm/yyyy hh:mm", "yyyy-mm-dd", "[h]:mm:ss", "[$-409]mmmm d, yyyy", "h:mm AM/PM"}
	for _, code := range dates {
		assert.True(t, isDateFormatCode(code), code)
	}
	numbers := []string{"General", "0.00", "#,##0", `"days"0`, "[Red]0.00", "0.00_);(0.00)", `0\d`}
	for _, code := range numbers {
		assert.False(t, isDateFormatCode(code), code)
	}
}
