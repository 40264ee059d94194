package sheet

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdex/sheetdex/pkg/store"
)

// DefaultDateFormat is applied to time.Time cells.
const DefaultDateFormat = "dd/mm/yyyy hh:mm"

// WriteOptions controls workbook output.
type WriteOptions struct {
	BoldHeader bool
	DateFormat string
	// ColWidth sets every used column to this width when positive.
	ColWidth float64
}

// WriteWorkbook writes header and rows to a new workbook at path.
// Supported cell values are those accepted by excelize SetCellValue.
func WriteWorkbook(path, sheet string, header []string, rows [][]any, opts WriteOptions) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	}

	if len(header) > 0 {
		hdr := make([]any, len(header))
		for i, h := range header {
			hdr[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &hdr); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if opts.BoldHeader {
			bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
			if err != nil {
				return err
			}
			last, _ := excelize.CoordinatesToCellName(len(header), 1)
			if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
				return err
			}
		}
	}

	dateFmt := opts.DateFormat
	if dateFmt == "" {
		dateFmt = DefaultDateFormat
	}
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return err
	}

	start := 1
	if len(header) > 0 {
		start = 2
	}
	width := len(header)
	for i, row := range rows {
		if len(row) > width {
			width = len(row)
		}
		for j, v := range row {
			if v == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, start+i)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, name, v); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			if _, ok := v.(time.Time); ok {
				if err := f.SetCellStyle(sheet, name, name, dateStyle); err != nil {
					return err
				}
			}
		}
	}

	if opts.ColWidth > 0 && width > 0 {
		last, _ := excelize.ColumnNumberToName(width)
		if err := f.SetColWidth(sheet, "A", last, opts.ColWidth); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// SampleHeader is the header row of the sample workbook.
var SampleHeader = []string{"ID", "Nombre", "Edad", "Email", "Activo", "Fecha_Registro", "Salario"}

// SampleRows returns the five sample records, registered relative to now.
func SampleRows(now time.Time) [][]any {
	now = now.Truncate(time.Minute)
	return [][]any{
		{1, "Juan Pérez", 25, "juan@email.com", true, now, 50000.0},
		{2, "María García", 30, "maria@email.com", true, now.AddDate(0, 0, -30), 60000.0},
		{3, "Carlos López", 28, "carlos@email.com", false, now.AddDate(0, 0, -60), 55000.0},
		{4, "Ana Martínez", 35, "ana@email.com", true, now.AddDate(0, 0, -90), 70000.0},
		{5, "Luis Rodríguez", 32, "luis@email.com", true, now.AddDate(0, 0, -120), 65000.0},
	}
}

// WriteSample writes the sample workbook used for demos and smoke tests.
func WriteSample(path string, now time.Time) error {
	return WriteWorkbook(path, "Datos de Ejemplo", SampleHeader, SampleRows(now), WriteOptions{
		BoldHeader: true,
		DateFormat: DefaultDateFormat,
		ColWidth:   18,
	})
}

// ExportColumns returns the union of hit fields with _id first and the rest sorted.
func ExportColumns(hits []store.Hit) []string {
	seen := map[string]bool{store.FieldID: true}
	var rest []string
	for _, h := range hits {
		for k := range h.Fields() {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append([]string{store.FieldID}, rest...)
}

// ExportHits writes search hits to a new workbook, one row per hit.
func ExportHits(path string, hits []store.Hit) error {
	cols := ExportColumns(hits)
	rows := make([][]any, len(hits))
	for i, h := range hits {
		fields := h.Fields()
		row := make([]any, len(cols))
		for j, c := range cols {
			if v, ok := fields[c]; ok {
				row[j] = exportValue(v)
			}
		}
		rows[i] = row
	}
	return WriteWorkbook(path, "Resultados", cols, rows, WriteOptions{BoldHeader: true})
}

func exportValue(v any) any {
	switch x := v.(type) {
	case string, bool, int, int64, float64:
		return x
	default:
		return fmt.Sprint(x)
	}
}
