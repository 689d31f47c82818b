package schema

import (
	"testing"

	"github.com/bliinkai/ingest/internal/rows"
)

// ============================================================================
// Fixed-width layout invariants
// ============================================================================

func TestSchemaWidths(t *testing.T) {
	tests := []struct {
		name   string
		schema *Schema
		fields int
		width  int
	}{
		{"customer", Customer, 36, CustomerRecordWidth},
		{"account", Account, 16, AccountRecordWidth},
		{"transaction", Transaction, 47, TransactionRecordWidth},
		{"relationship", Relationship, 5, RelationshipRecordWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.schema.Fields); got != tt.fields {
				t.Errorf("field count = %d, want %d", got, tt.fields)
			}
			if got := tt.schema.TotalLength(); got != tt.width {
				t.Errorf("TotalLength() = %d, want %d", got, tt.width)
			}
		})
	}
}

func TestSchemaFieldsNonOverlapping(t *testing.T) {
	for _, s := range []*Schema{Customer, Account, Transaction, Relationship} {
		t.Run(string(s.Kind), func(t *testing.T) {
			next := 1
			for _, f := range s.Fields {
				if f.Position != next {
					t.Errorf("field %s: position = %d, want %d (gap or overlap)", f.Name, f.Position, next)
				}
				if f.Size <= 0 {
					t.Errorf("field %s: non-positive size %d", f.Name, f.Size)
				}
				next = f.Position + f.Size
			}
			if next-1 != s.TotalLength() {
				t.Errorf("last field ends at %d, TotalLength() = %d", next-1, s.TotalLength())
			}
		})
	}
}

func TestSchemaCanonicalsUnique(t *testing.T) {
	for _, s := range []*Schema{Customer, Account, Transaction, Relationship} {
		seen := make(map[string]bool)
		for _, f := range s.Fields {
			if f.Canonical == "" {
				t.Errorf("%s: field %s has no canonical name", s.Kind, f.Name)
			}
			if seen[f.Canonical] {
				t.Errorf("%s: duplicate canonical %q", s.Kind, f.Canonical)
			}
			seen[f.Canonical] = true
		}
	}
}

func TestByKind(t *testing.T) {
	for _, kind := range []rows.Kind{rows.KindCustomer, rows.KindAccount, rows.KindTransaction, rows.KindRelationship} {
		s, err := ByKind(kind)
		if err != nil {
			t.Errorf("ByKind(%s) error = %v", kind, err)
			continue
		}
		if s.Kind != kind {
			t.Errorf("ByKind(%s).Kind = %s", kind, s.Kind)
		}
	}

	if _, err := ByKind(rows.KindList); err == nil {
		t.Error("ByKind(list) expected error, got nil")
	}
}

// ============================================================================
// Delimited column sets
// ============================================================================

func TestRequiredColumnsAreDeclared(t *testing.T) {
	for kind, required := range Required {
		declared := make(map[string]bool)
		for _, c := range DelimitedColumns[kind] {
			declared[c] = true
		}
		for _, r := range required {
			if !declared[r] {
				t.Errorf("%s: required column %q missing from DelimitedColumns", kind, r)
			}
		}
	}
}
