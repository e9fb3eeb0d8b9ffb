// Package rowset models pre-parsed tabular telemetry as ordered rows of
// header to value mappings. The exporters that produce these sheets are not
// consistent about header text between firmware and tool versions, so all
// lookups here are tolerant: cleaned exact match first, then case-insensitive
// substring containment.
package rowset

import (
	"strconv"
	"strings"
)

// Kind discriminates the value union. A failed numeric parse is Absent,
// never zero: downstream code must be able to tell "no reading" from "0".
type Kind int

const (
	Absent Kind = iota
	Number
	Text
)

// Value is one cell of a row: absent, a number, or raw text.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Num returns a numeric Value.
func Num(v float64) Value {
	return Value{kind: Number, num: v}
}

// Str returns a text Value.
func Str(s string) Value {
	return Value{kind: Text, text: s}
}

// None returns the absent Value.
func None() Value {
	return Value{}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Float returns the numeric interpretation of the value. Text values are
// parsed leniently (surrounding whitespace ignored); anything that does not
// parse reports ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Number:
		return v.num, true
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text returns the textual form of the value, empty for Absent.
func (v Value) Text() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case Text:
		return v.text
	}
	return ""
}

// usable reports whether a value should satisfy a Val lookup. Empty text and
// the exporter's "Invalid" sentinel count as missing.
func (v Value) usable() bool {
	if v.kind == Absent {
		return false
	}
	if v.kind == Text {
		t := strings.TrimSpace(v.text)
		if t == "" || strings.EqualFold(t, "invalid") {
			return false
		}
	}
	return true
}

// Row is one record of a sheet. Column order is preserved from the source so
// that "first match in column order" lookups are deterministic.
type Row struct {
	cols []string
	vals map[string]Value
}

// Set appends or replaces a column value. First Set of a column fixes its
// position in the column order.
func (r *Row) Set(col string, v Value) {
	if r.vals == nil {
		r.vals = make(map[string]Value)
	}
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

// Columns returns the column headers in source order.
func (r Row) Columns() []string {
	return r.cols
}

// Get returns the value stored under the exact column header.
func (r Row) Get(col string) Value {
	return r.vals[col]
}

func (r Row) Len() int {
	return len(r.cols)
}

// CleanKey strips a leading byte-order mark and surrounding whitespace from
// a column header. Safe on empty input.
func CleanKey(k string) string {
	k = strings.TrimPrefix(k, "\ufeff")
	return strings.TrimSpace(k)
}

// Val returns the first usable value for the candidate keys, tried in
// priority order. For each candidate every column is checked, in column
// order, matching on cleaned equality or case-insensitive substring
// containment. Values that are absent, empty or the "Invalid" sentinel are
// skipped so a later column (or candidate) can still supply the field.
func (r Row) Val(candidates ...string) (Value, bool) {
	for _, want := range candidates {
		cw := CleanKey(want)
		if cw == "" {
			continue
		}
		lw := strings.ToLower(cw)
		for _, col := range r.cols {
			cc := CleanKey(col)
			if cc != cw && !strings.Contains(strings.ToLower(cc), lw) {
				continue
			}
			if v := r.vals[col]; v.usable() {
				return v, true
			}
		}
	}
	return Value{}, false
}

// FindSheet returns the rows of the first sheet whose name contains one of
// the terms, case-insensitively, trying terms left to right. A miss returns
// an empty slice, never nil semantics that callers have to guard: loops over
// the result simply run zero times.
func FindSheet(sheets map[string][]Row, terms ...string) []Row {
	for _, term := range terms {
		lt := strings.ToLower(term)
		// Sheet names are iterated in sorted order so repeated runs over the
		// same input pick the same sheet when several names match.
		for _, name := range sortedNames(sheets) {
			if strings.Contains(strings.ToLower(name), lt) {
				return sheets[name]
			}
		}
	}
	return []Row{}
}

func sortedNames(sheets map[string][]Row) []string {
	names := make([]string, 0, len(sheets))
	for name := range sheets {
		names = append(names, name)
	}
	// Insertion sort; sheet counts are tiny.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
