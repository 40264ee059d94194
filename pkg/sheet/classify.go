package sheet

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdex/sheetdex/pkg/cell"
)

// rawCell is what the workbook reports for one cell position.
type rawCell struct {
	Value     string
	Type      excelize.CellType
	Formula   string
	DateStyle bool
}

// classify turns a raw workbook cell into a typed value.
func classify(rc rawCell, date1904 bool) cell.Value {
	if rc.Formula != "" {
		if rc.Value == "" || rc.Type == excelize.CellTypeError {
			return cell.FormulaError()
		}
		return cell.Formula(classifyValue(rc, date1904))
	}
	if rc.Type == excelize.CellTypeError {
		return cell.Blank()
	}
	return classifyValue(rc, date1904)
}

func classifyValue(rc rawCell, date1904 bool) cell.Value {
	switch rc.Type {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return cell.Text(rc.Value)

	case excelize.CellTypeBool:
		return cell.Bool(rc.Value == "1" || strings.EqualFold(rc.Value, "true"))

	case excelize.CellTypeDate:
		if t, ok := parseISODate(rc.Value); ok {
			return cell.DateTime(t)
		}
		return cell.Text(rc.Value)

	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if rc.Value == "" {
			return cell.Blank()
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(rc.Value), 64)
		if err != nil {
			return cell.Text(rc.Value)
		}
		if rc.DateStyle {
			if t, err := excelize.ExcelDateToTime(f, date1904); err == nil {
				return cell.DateTime(t)
			}
		}
		return cell.Number(f)

	default:
		return cell.Blank()
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseISODate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isBuiltInDateFormat reports whether a built-in number format id renders a date or time.
func isBuiltInDateFormat(id int) bool {
	return (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
}

// isDateFormatCode reports whether a custom number format contains date or
// time tokens outside quoted literals, bracketed sections and escapes.
func isDateFormatCode(code string) bool {
	// Only the positive section decides.
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}

	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			if r == '"' {
				inQuote = false
			}
		case inBracket:
			if r == ']' {
				inBracket = false
			}
		case r == '\\' || r == '_' || r == '*':
			escaped = true
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		default:
			switch r {
			case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 's', 'S':
				return true
			}
		}
	}
	return false
}
