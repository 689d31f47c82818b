// Package validate enforces batch-level validation before any database
// write: required-field presence, enumerated value domains, and date and
// numeric well-formedness. A batch with any validation error is rejected
// whole; partial loads of invalid batches are never attempted.
package validate

import (
	"fmt"
	"strings"

	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
)

// Error is a single validation failure, addressable by row and field.
type Error struct {
	Row     int    // 0-based row index in the batch
	Line    int    // 1-based source line, 0 when unknown
	Field   string // canonical field name
	Value   string // offending value, "" for missing
	Message string
}

func (e Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d, field %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d, field %s: %s", e.Row, e.Field, e.Message)
}

// dateColumns are validated as dates or timestamps when present.
var dateColumns = map[string]bool{
	"transaction_date": true,
	"date_of_birth":    true,
	"open_date":        true,
	"closed_date":      true,
	"start_date":       true,
	"end_date":         true,
	"value_date":       true,
	"posting_date":     true,
}

// numericColumns are validated as numbers when present.
var numericColumns = map[string]bool{
	"risk_score":  true,
	"amount":      true,
	"balance":     true,
	"eod_balance": true,
}

// enumColumns gives the closed value set per column, by kind where the
// domain differs.
func enumValues(kind rows.Kind, column string) []string {
	switch column {
	case "role_type":
		return schema.RoleTypes
	case "risk_level":
		return schema.RiskLevels
	case "list_type":
		return schema.ListTypes
	case "entity_type":
		if kind == rows.KindList {
			return schema.ListEntityTypes
		}
	}
	return nil
}

// Batch validates a canonical table for its kind and returns every error
// found. An empty result means the batch may proceed to the loader.
func Batch(kind rows.Kind, t *rows.Table) []Error {
	var errs []Error

	required := schema.Required[kind]

	for i := 0; i < t.Len(); i++ {
		line := t.Line(i)

		// Intent must parse when a changetype column exists.
		if t.HasColumn(rows.ChangeTypeColumn) {
			if _, ok := t.Intent(i); !ok {
				errs = append(errs, Error{
					Row: i, Line: line,
					Field:   rows.ChangeTypeColumn,
					Value:   t.Get(i, rows.ChangeTypeColumn),
					Message: fmt.Sprintf("invalid changetype %q", t.Get(i, rows.ChangeTypeColumn)),
				})
			}
		}

		for _, field := range required {
			if field == rows.ChangeTypeColumn && !t.HasColumn(field) {
				// Fixed-width files have no changetype; intent defaults to add.
				continue
			}
			if rows.Clean(t.Get(i, field)) == "" {
				errs = append(errs, Error{
					Row: i, Line: line,
					Field:   field,
					Message: "required field is empty",
				})
			}
		}

		for _, col := range t.Columns() {
			raw := rows.Clean(t.Get(i, col))
			if raw == "" {
				continue
			}

			switch {
			case dateColumns[col]:
				if _, ok := rows.ParseTime(raw); !ok {
					errs = append(errs, Error{
						Row: i, Line: line, Field: col, Value: raw,
						Message: fmt.Sprintf("invalid date %q (use YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", raw),
					})
				}
			case numericColumns[col]:
				if _, ok := rows.ParseDecimal(raw); !ok {
					errs = append(errs, Error{
						Row: i, Line: line, Field: col, Value: raw,
						Message: fmt.Sprintf("invalid number %q", raw),
					})
				}
			default:
				if allowed := enumValues(kind, col); allowed != nil {
					if !containsFold(allowed, raw) {
						errs = append(errs, Error{
							Row: i, Line: line, Field: col, Value: raw,
							Message: fmt.Sprintf("value %q must be one of: %s", raw, strings.Join(allowed, ", ")),
						})
					}
				}
			}
		}
	}

	return errs
}

// Messages flattens validation errors to strings for the load summary.
func Messages(errs []Error) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
