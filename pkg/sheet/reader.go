// Package sheet reads and writes xlsx workbooks.
//
// The reader yields every physically present row of the first worksheet as
// normalized cell strings. Row 0 is the header row.
package sheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/sheetdex/sheetdex/pkg/cell"
	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
	"github.com/sheetdex/sheetdex/pkg/storage/s3"
)

// Row is one row of normalized cells with its 0-based ordinal.
type Row struct {
	Ordinal int
	Cells   []string
}

// ObjectGetter fetches an object named by an s3:// URI.
type ObjectGetter interface {
	GetURI(ctx context.Context, uri string) ([]byte, error)
}

// Reader opens local or S3 workbooks and yields normalized rows.
type Reader struct {
	objects ObjectGetter
	sheet   string
	logger  *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithObjectStore enables s3:// sources.
func WithObjectStore(g ObjectGetter) Option {
	return func(r *Reader) {
		r.objects = g
	}
}

// WithSheet reads the named sheet instead of the first one.
func WithSheet(name string) Option {
	return func(r *Reader) {
		r.sheet = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader creates a reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns all non-empty rows of the source in order.
func (r *Reader) Read(ctx context.Context, source string) ([]Row, error) {
	return r.read(ctx, source, -1)
}

// Headers returns the raw header row, or nil for an empty sheet.
func (r *Reader) Headers(ctx context.Context, source string) ([]string, error) {
	rows, err := r.read(ctx, source, 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0].Cells, nil
}

func (r *Reader) read(ctx context.Context, source string, limit int) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, sderrors.ContextCanceled("read", err)
	}

	f, err := r.open(ctx, source)
	if err != nil {
		return nil, sderrors.SourceUnavailable(source, err)
	}
	defer f.Close()

	sheetName := r.sheet
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
		if sheetName == "" {
			if list := f.GetSheetList(); len(list) > 0 {
				sheetName = list[0]
			}
		}
	}
	if sheetName == "" {
		return nil, sderrors.SourceUnavailable(source, errors.New("no sheets found in workbook"))
	}

	raw, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, sderrors.SourceUnavailable(source, fmt.Errorf("failed to read rows: %w", err))
	}

	sc := newSheetCells(f, sheetName)
	var rows []Row
	for i, values := range raw {
		if limit >= 0 && len(rows) >= limit {
			break
		}
		if len(values) == 0 {
			continue
		}

		cells := make([]string, len(values))
		for j, v := range values {
			cells[j] = cell.Normalize(sc.value(j+1, i+1, v))
		}
		rows = append(rows, Row{Ordinal: len(rows), Cells: cells})
	}

	r.logger.Debug("workbook read", "source", source, "sheet", sheetName, "rows", len(rows))
	return rows, nil
}

func (r *Reader) open(ctx context.Context, source string) (*excelize.File, error) {
	if !s3.IsURI(source) {
		return excelize.OpenFile(source)
	}
	if r.objects == nil {
		return nil, errors.New("s3 source given but no object store is configured")
	}
	data, err := r.objects.GetURI(ctx, source)
	if err != nil {
		return nil, err
	}
	return excelize.OpenReader(bytes.NewReader(data))
}

// sheetCells classifies cells of one sheet, caching date detection per style.
type sheetCells struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func newSheetCells(f *excelize.File, sheet string) *sheetCells {
	sc := &sheetCells{f: f, sheet: sheet, dateStyles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		sc.date1904 = *props.Date1904
	}
	return sc
}

func (sc *sheetCells) value(col, row int, v string) cell.Value {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return cell.Text(v)
	}

	rc := rawCell{Value: v}
	rc.Type, _ = sc.f.GetCellType(sc.sheet, name)
	rc.Formula, _ = sc.f.GetCellFormula(sc.sheet, name)

	if rc.Type == excelize.CellTypeNumber || rc.Type == excelize.CellTypeUnset {
		rc.DateStyle = sc.isDateStyle(name)
	}
	return classify(rc, sc.date1904)
}

func (sc *sheetCells) isDateStyle(name string) bool {
	idx, err := sc.f.GetCellStyle(sc.sheet, name)
	if err != nil || idx == 0 {
		return false
	}
	if isDate, ok := sc.dateStyles[idx]; ok {
		return isDate
	}

	isDate := false
	if style, err := sc.f.GetStyle(idx); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isBuiltInDateFormat(style.NumFmt)
		}
	}
	sc.dateStyles[idx] = isDate
	return isDate
}
