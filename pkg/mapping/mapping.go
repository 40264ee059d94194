// Package mapping turns a header row and a data row into a document.
package mapping

import (
	"log/slog"
	"strings"
	"time"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
)

// Metadata fields injected into every document.
const (
	FieldRowNumber = "row_number"
	FieldIndexedAt = "indexed_at"
)

// Document maps field identifiers to normalized cell strings and metadata.
type Document map[string]any

// RowNumber returns the injected row ordinal, or -1 if absent.
func (d Document) RowNumber() int {
	if n, ok := d[FieldRowNumber].(int); ok {
		return n
	}
	return -1
}

// CollisionPolicy decides what happens when two headers sanitize to the same field.
type CollisionPolicy uint8

const (
	// CollisionLastWins lets the later column overwrite the earlier one.
	CollisionLastWins CollisionPolicy = iota
	// CollisionReject fails the mapping with a HeaderCollision error.
	CollisionReject
)

func (p CollisionPolicy) String() string {
	switch p {
	case CollisionLastWins:
		return "last_wins"
	case CollisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseCollisionPolicy parses a policy name. Unknown names map to last_wins.
func ParseCollisionPolicy(s string) CollisionPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject", "error":
		return CollisionReject
	default:
		return CollisionLastWins
	}
}

// Sanitize lower-cases h and replaces every rune outside [A-Za-z0-9_] with '_'.
func Sanitize(h string) string {
	var sb strings.Builder
	sb.Grow(len(h))
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Collision describes two header columns that share a field identifier.
type Collision struct {
	Field  string
	First  int
	Second int
}

// FindCollisions returns every pair of columns whose identifiers collide,
// pairing each repeat with the first column that produced the identifier.
func FindCollisions(header []string) []Collision {
	seen := make(map[string]int, len(header))
	var out []Collision
	for i, h := range header {
		f := Sanitize(h)
		if first, ok := seen[f]; ok {
			out = append(out, Collision{Field: f, First: first, Second: i})
			continue
		}
		seen[f] = i
	}
	return out
}

// Mapper builds documents from rows.
type Mapper struct {
	Policy CollisionPolicy

	// QuietTruncation disables the per-row warning for mismatched lengths.
	QuietTruncation bool

	// Now supplies the ingestion timestamp; defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// NewMapper creates a mapper with the given collision policy.
func NewMapper(policy CollisionPolicy) *Mapper {
	return &Mapper{Policy: policy}
}

// Fields sanitizes a header row, enforcing the collision policy.
func (m *Mapper) Fields(header []string) ([]string, error) {
	if m.Policy == CollisionReject {
		if c := FindCollisions(header); len(c) > 0 {
			return nil, sderrors.HeaderCollision(c[0].Field, c[0].First, c[0].Second)
		}
	}

	fields := make([]string, len(header))
	for i, h := range header {
		fields[i] = Sanitize(h)
	}
	return fields, nil
}

// Map builds the document for one data row.
func (m *Mapper) Map(header, row []string, ordinal int) (Document, error) {
	fields, err := m.Fields(header)
	if err != nil {
		return nil, err
	}
	return m.MapFields(fields, row, ordinal), nil
}

// MapFields builds a document from already sanitized fields. Cells beyond the
// shorter of fields and row are dropped.
func (m *Mapper) MapFields(fields, row []string, ordinal int) Document {
	n := len(fields)
	if len(row) < n {
		n = len(row)
	}

	if len(fields) != len(row) && !m.QuietTruncation {
		m.logger().Warn("row length differs from header; extra cells dropped",
			"row", ordinal,
			"header_cells", len(fields),
			"row_cells", len(row),
			"dropped", abs(len(fields)-len(row)))
	}

	doc := make(Document, n+2)
	for i := 0; i < n; i++ {
		doc[fields[i]] = row[i]
	}

	doc[FieldRowNumber] = ordinal
	doc[FieldIndexedAt] = m.now().UTC().Format(time.RFC3339Nano)
	return doc
}

func (m *Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mapper) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
