// Package mapper translates parsed source rows into canonical tables.
//
// Delimited files arrive with arbitrary operator headers and are matched
// onto the canonical column set for their kind, either by an explicit
// operator-supplied mapping or by header auto-match. Fixed-width files are
// already canonical by schema; this package applies the per-kind field
// derivations the downstream schema expects.
package mapper

import (
	"fmt"
	"strings"

	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
)

// normalizeHeader lowercases and strips whitespace and underscores so that
// "Account ID", "account_id", and "ACCOUNTID" all match.
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// AutoMatch pairs canonical columns with source headers by normalized
// equality. Returns canonical -> source header for every canonical that
// found a match.
func AutoMatch(kind rows.Kind, header []string) map[string]string {
	bySource := make(map[string]string, len(header))
	for _, h := range header {
		bySource[normalizeHeader(h)] = h
	}

	mapping := make(map[string]string)
	for _, canonical := range schema.DelimitedColumns[kind] {
		if src, ok := bySource[normalizeHeader(canonical)]; ok {
			mapping[canonical] = src
		}
	}
	return mapping
}

// MapDelimited converts raw delimited records into a canonical table using
// the given canonical -> source-header mapping. A nil mapping auto-matches.
// Canonicals without a mapped source column are filled with empty (null)
// cells. Row line numbers are 1-based counting the header as line 1.
func MapDelimited(kind rows.Kind, header []string, records [][]string, mapping map[string]string) (*rows.Table, error) {
	canonicals, ok := schema.DelimitedColumns[kind]
	if !ok {
		return nil, fmt.Errorf("map delimited: unknown kind %q", kind)
	}

	if mapping == nil {
		mapping = AutoMatch(kind, header)
	}

	// Resolve each canonical to a source position once.
	srcIdx := make(map[string]int, len(header))
	for i, h := range header {
		srcIdx[normalizeHeader(h)] = i
	}

	positions := make([]int, len(canonicals))
	for i, canonical := range canonicals {
		positions[i] = -1
		src, ok := mapping[canonical]
		if !ok {
			continue
		}
		pos, ok := srcIdx[normalizeHeader(src)]
		if !ok {
			return nil, fmt.Errorf("map delimited: mapped source column %q for %q not in header", src, canonical)
		}
		positions[i] = pos
	}

	table := rows.NewTable(canonicals)
	for ri, record := range records {
		out := make([]string, len(canonicals))
		for ci, pos := range positions {
			if pos < 0 || pos >= len(record) {
				continue
			}
			out[ci] = rows.Clean(record[pos])
		}
		table.Append(out, ri+2)
	}
	return table, nil
}
