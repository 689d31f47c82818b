// Package parse reads delimited and fixed-width files into canonical row
// tables. Parsing is lenient where the upstream feeds are sloppy: short
// fixed-width lines are padded, malformed lines are warned and skipped, and
// invalid UTF-8 is sanitized rather than fatal.
package parse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// utf8BOM is the byte-order mark Windows tools prepend to exported files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Delimited reads a delimited file into a header row plus data records.
// The first line is the header. Empty rows are dropped. Records may be
// ragged; downstream mapping pads by name, not position.
func Delimited(data []byte, delimiter rune) (header []string, records [][]string, err error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse delimited: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}

	header = make([]string, len(all[0]))
	for i, h := range all[0] {
		header[i] = strings.TrimSpace(h)
	}

	for _, row := range all[1:] {
		if isEmptyRow(row) {
			continue
		}
		records = append(records, row)
	}
	return header, records, nil
}

// isEmptyRow reports whether every cell is blank.
func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the Unicode
// replacement character. Valid input is returned unmodified.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
