// Package cell models a spreadsheet cell as a tagged value and renders it to
// the canonical string stored in documents.
package cell

import (
	"math"
	"strconv"
	"time"
)

// ErrorFormula is emitted for formulas without a usable cached result.
const ErrorFormula = "ERROR_FORMULA"

// TimestampLayout is the canonical rendering of date/time cells.
const TimestampLayout = "2006-01-02T15:04:05"

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindBlank Kind = iota
	KindText
	KindNumber
	KindBoolean
	KindDateTime
	KindFormula
)

func (k Kind) String() string {
	names := []string{"blank", "text", "number", "boolean", "datetime", "formula"}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Value is one classified cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Text   string
	Number float64
	Bool   bool
	Time   time.Time

	// Result is the cached result of a formula; nil when it cannot be evaluated.
	Result *Value
}

// Blank returns an empty cell.
func Blank() Value { return Value{Kind: KindBlank} }

// Text returns a text cell.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Number returns a numeric cell.
func Number(f float64) Value { return Value{Kind: KindNumber, Number: f} }

// Bool returns a boolean cell.
func Bool(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// DateTime returns a date/time cell.
func DateTime(t time.Time) Value { return Value{Kind: KindDateTime, Time: t} }

// Formula returns a formula cell whose cached result is r.
func Formula(r Value) Value { return Value{Kind: KindFormula, Result: &r} }

// FormulaError returns a formula cell with no usable cached result.
func FormulaError() Value { return Value{Kind: KindFormula} }

// Normalize renders v as a string. It never fails.
func Normalize(v Value) string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return FormatNumber(v.Number)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindDateTime:
		return v.Time.Format(TimestampLayout)
	case KindFormula:
		// A formula never caches another formula.
		if v.Result == nil || v.Result.Kind == KindFormula {
			return ErrorFormula
		}
		return Normalize(*v.Result)
	default:
		return ""
	}
}

// FormatNumber renders integral values without a fractional part or exponent
// and everything else as the shortest decimal that parses back to f.
func FormatNumber(f float64) string {
	if f == 0 {
		// Negative zero renders as "0".
		return "0"
	}
	if f == math.Floor(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
