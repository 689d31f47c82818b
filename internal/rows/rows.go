// Package rows defines the canonical row model shared by the parsing,
// mapping, validation, and loading stages.
//
// A Table is a columnar batch: one slice of canonical column names plus a
// record slice per row. All downstream stages address cells by canonical
// name, so a source file's layout stops mattering once the mapper has run.
package rows

import (
	"strings"
)

// Kind identifies which record family a file carries.
type Kind string

const (
	KindCustomer     Kind = "customer"
	KindAccount      Kind = "account"
	KindTransaction  Kind = "transaction"
	KindRelationship Kind = "relationship"
	KindList         Kind = "list"
)

// Format identifies the physical file layout.
type Format string

const (
	FormatDelimited  Format = "delimited"
	FormatFixedWidth Format = "fixed_width"
)

// Intent is the row-level operation requested by the source system.
type Intent string

const (
	IntentAdd    Intent = "add"
	IntentModify Intent = "modify"
	IntentDelete Intent = "delete"
)

// ParseIntent normalizes a changetype cell to an Intent.
// Fixed-width files carry no changetype; callers default those to IntentAdd.
func ParseIntent(s string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "a", "insert":
		return IntentAdd, true
	case "modify", "m", "update":
		return IntentModify, true
	case "delete", "d", "remove":
		return IntentDelete, true
	}
	return "", false
}

// ChangeTypeColumn is the canonical column carrying the row intent.
const ChangeTypeColumn = "changetype"

// LineColumn is the synthetic column recording the 1-based source line.
const LineColumn = "_line_number"

// HeaderIndex maps lowercased canonical column names to their position.
type HeaderIndex map[string]int

// Table is a columnar batch of canonical rows.
type Table struct {
	columns []string
	index   HeaderIndex
	records [][]string
	lines   []int
}

// NewTable creates an empty table with the given canonical columns.
func NewTable(columns []string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(HeaderIndex, len(columns)),
	}
	for i, c := range t.columns {
		t.index[strings.ToLower(c)] = i
	}
	return t
}

// Columns returns the canonical column names in order.
func (t *Table) Columns() []string {
	return t.columns
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[strings.ToLower(name)]
	return ok
}

// EnsureColumn adds an empty column if it is not already present.
func (t *Table) EnsureColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.index[strings.ToLower(name)] = len(t.columns)
	t.columns = append(t.columns, name)
	for i := range t.records {
		t.records[i] = append(t.records[i], "")
	}
}

// Append adds a record. Short records are padded with empty cells; long
// records are truncated to the column count. line is the 1-based source
// line, or 0 when unknown.
func (t *Table) Append(record []string, line int) {
	r := make([]string, len(t.columns))
	copy(r, record)
	t.records = append(t.records, r)
	t.lines = append(t.lines, line)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.records)
}

// Get returns the cell at row i, canonical column name.
// Missing columns read as empty.
func (t *Table) Get(i int, name string) string {
	pos, ok := t.index[strings.ToLower(name)]
	if !ok {
		return ""
	}
	return t.records[i][pos]
}

// Set writes the cell at row i. Unknown columns are a no-op.
func (t *Table) Set(i int, name, value string) {
	pos, ok := t.index[strings.ToLower(name)]
	if !ok {
		return
	}
	t.records[i][pos] = value
}

// Line returns the 1-based source line for row i, or 0 when unknown.
func (t *Table) Line(i int) int {
	if i >= len(t.lines) {
		return 0
	}
	return t.lines[i]
}

// Intent returns the row intent, defaulting to IntentAdd when the table has
// no changetype column or the cell is empty.
func (t *Table) Intent(i int) (Intent, bool) {
	raw := t.Get(i, ChangeTypeColumn)
	if strings.TrimSpace(raw) == "" {
		return IntentAdd, true
	}
	return ParseIntent(raw)
}

// Slice returns a view of rows [from, to). Records are shared with the
// parent table; mutations through either are visible in both.
func (t *Table) Slice(from, to int) *Table {
	return &Table{
		columns: t.columns,
		index:   t.index,
		records: t.records[from:to],
		lines:   t.lines[from:to],
	}
}

// Chunks splits the table into consecutive slices of at most size rows.
// An empty table yields no chunks.
func (t *Table) Chunks(size int) []*Table {
	if size <= 0 || t.Len() == 0 {
		if t.Len() == 0 {
			return nil
		}
		size = t.Len()
	}
	var out []*Table
	for from := 0; from < t.Len(); from += size {
		to := from + size
		if to > t.Len() {
			to = t.Len()
		}
		out = append(out, t.Slice(from, to))
	}
	return out
}
