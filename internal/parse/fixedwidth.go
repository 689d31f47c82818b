package parse

import (
	"fmt"
	"strings"

	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
)

// FixedWidth parses a fixed-width file against its schema into a canonical
// table. Each row records its 1-based source line in the table's line slice.
//
// Lines shorter than the record width are right-padded with spaces. Lines
// longer than the record width are malformed: they produce a warning and are
// skipped, never a fatal error.
func FixedWidth(data []byte, s *schema.Schema) (*rows.Table, []string, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("parse fixed-width: nil schema")
	}

	table := rows.NewTable(s.Canonicals())
	var warnings []string

	width := s.TotalLength()
	lineNo := 0
	for _, raw := range strings.Split(string(data), "\n") {
		lineNo++
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if len(line) > width {
			warnings = append(warnings, fmt.Sprintf("line %d: record length %d exceeds schema width %d, skipped", lineNo, len(line), width))
			continue
		}
		if len(line) < width {
			line += strings.Repeat(" ", width-len(line))
		}

		record := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			start := f.Position - 1
			record[i] = strings.TrimSpace(line[start : start+f.Size])
		}
		table.Append(record, lineNo)
	}

	return table, warnings, nil
}

// SerializeFixedWidth renders a canonical table back into fixed-width lines,
// right-padding each field with spaces. Values longer than their field are
// an error; the upstream layouts never truncate silently.
func SerializeFixedWidth(t *rows.Table, s *schema.Schema) ([]byte, error) {
	var b strings.Builder

	for i := 0; i < t.Len(); i++ {
		line := make([]byte, s.TotalLength())
		for j := range line {
			line[j] = ' '
		}
		for _, f := range s.Fields {
			v := t.Get(i, f.Canonical)
			if len(v) > f.Size {
				return nil, fmt.Errorf("row %d: value for %s exceeds field size %d", i, f.Name, f.Size)
			}
			copy(line[f.Position-1:], v)
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}
