package mapping

import (
	"bytes"
	"log/slog"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sderrors "github.com/sheetdex/sheetdex/pkg/errors"
)

var identPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Customer Name":  "customer_name",
		"Total $":        "total__",
		"ID":             "id",
		"already_ok_1":   "already_ok_1",
		"Fecha-Registro": "fecha_registro",
		"Año":            "a_o",
		"":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestSanitizePatternAndIdempotence(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	alphabet := []rune("abcXYZ019_ -$.é€\t/()")
	for i := 0; i < 500; i++ {
		n := r.Intn(24)
		rs := make([]rune, n)
		for j := range rs {
			rs[j] = alphabet[r.Intn(len(alphabet))]
		}
		h := string(rs)
		got := Sanitize(h)
		require.Regexp(t, identPattern, got, "input %q", h)
		require.Equal(t, got, Sanitize(got), "not idempotent for %q", h)
	}
}

func TestMapBuildsDocument(t *testing.T) {
	m := &Mapper{Now: fixedClock, QuietTruncation: true}

	doc, err := m.Map([]string{"Customer Name", "Total $"}, []string{"Acme", "100"}, 1)
	require.NoError(t, err)

	assert.Equal(t, Document{
		"customer_name": "Acme",
		"total__":       "100",
		FieldRowNumber:  1,
		FieldIndexedAt:  "2024-03-01T12:30:00.0000005Z",
	}, doc)
	assert.Equal(t, 1, doc.RowNumber())
}

func TestMapTruncatesToShorter(t *testing.T) {
	var buf bytes.Buffer
	m := &Mapper{
		Now:    fixedClock,
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	}

	doc, err := m.Map([]string{"a", "b", "c"}, []string{"1"}, 4)
	require.NoError(t, err)
	assert.Len(t, doc, 3)
	assert.Equal(t, "1", doc["a"])
	assert.NotContains(t, doc, "b")
	assert.Contains(t, buf.String(), "row=4")
	assert.Contains(t, buf.String(), "dropped=2")

	buf.Reset()
	doc, err = m.Map([]string{"a"}, []string{"1", "2", "3"}, 5)
	require.NoError(t, err)
	assert.Len(t, doc, 3)
	assert.Contains(t, buf.String(), "dropped=2")
}

func TestMapQuietTruncation(t *testing.T) {
	var buf bytes.Buffer
	m := &Mapper{
		Now:             fixedClock,
		QuietTruncation: true,
		Logger:          slog.New(slog.NewTextHandler(&buf, nil)),
	}
	_, err := m.Map([]string{"a", "b"}, []string{"1"}, 1)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestCollisionLastWins(t *testing.T) {
	m := &Mapper{Now: fixedClock, QuietTruncation: true}
	doc, err := m.Map([]string{"Total $", "Total %"}, []string{"first", "second"}, 2)
	require.NoError(t, err)
	assert.Equal(t, "second", doc["total__"])
}

func TestCollisionReject(t *testing.T) {
	m := &Mapper{Policy: CollisionReject, Now: fixedClock}
	_, err := m.Map([]string{"Name", "name", "x"}, []string{"a", "b", "c"}, 1)
	require.Error(t, err)
	assert.True(t, sderrors.IsCode(err, sderrors.CodeHeaderCollision))
	assert.Contains(t, err.Error(), "field=name")
}

func TestMetadataOverridesHeaders(t *testing.T) {
	for _, p := range []CollisionPolicy{CollisionLastWins, CollisionReject} {
		m := &Mapper{Policy: p, Now: fixedClock}
		doc, err := m.Map([]string{"Row Number", "indexed_at"}, []string{"x", "y"}, 9)
		require.NoError(t, err)
		assert.Equal(t, 9, doc[FieldRowNumber])
		assert.Equal(t, "2024-03-01T12:30:00.0000005Z", doc[FieldIndexedAt])
	}
}

func TestFindCollisions(t *testing.T) {
	got := FindCollisions([]string{"A b", "a_b", "c", "A-B"})
	assert.Equal(t, []Collision{
		{Field: "a_b", First: 0, Second: 1},
		{Field: "a_b", First: 0, Second: 3},
	}, got)
	assert.Empty(t, FindCollisions([]string{"x", "y"}))
}

func TestParseCollisionPolicy(t *testing.T) {
	assert.Equal(t, CollisionReject, ParseCollisionPolicy("Reject"))
	assert.Equal(t, CollisionLastWins, ParseCollisionPolicy("last_wins"))
	assert.Equal(t, CollisionLastWins, ParseCollisionPolicy(""))
	assert.Equal(t, "reject", CollisionReject.String())
}
