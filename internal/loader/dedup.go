package loader

// dedup.go is the ADD-stream duplicate pre-check. With duplicates
// disallowed (the default), rows whose natural key already exists in
// the target table, or repeats within the same file, are dropped before
// any DML runs. First occurrence wins within a file.

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bliinkai/ingest/internal/rows"
)

// lookupKeyChunk bounds the ANY($1) arrays sent to the database.
const lookupKeyChunk = 5000

func newBatchID() string {
	return uuid.New().String()
}

// filterDuplicates returns a copy of the ADD table with duplicate
// natural keys removed, counting each dropped row as skipped.
func (l *Loader) filterDuplicates(ctx context.Context, t *rows.Table, keyColumn, table, dbColumn string, sum *Summary) (*rows.Table, error) {
	if t.Len() == 0 {
		return t, nil
	}

	existing, err := l.existingKeys(ctx, table, dbColumn, distinctValues(t, keyColumn))
	if err != nil {
		return nil, err
	}

	out := rows.NewTable(t.Columns())
	seen := make(map[string]struct{})
	dupDB, dupFile := 0, 0

	for i := 0; i < t.Len(); i++ {
		key := rows.Clean(t.Get(i, keyColumn))

		if _, ok := existing[key]; ok {
			dupDB++
			sum.Skipped++
			continue
		}
		if _, ok := seen[key]; ok && !rows.IsNull(key) {
			dupFile++
			sum.Skipped++
			continue
		}
		seen[key] = struct{}{}

		record := make([]string, len(t.Columns()))
		for ci, col := range t.Columns() {
			record[ci] = t.Get(i, col)
		}
		out.Append(record, t.Line(i))
	}

	if dupDB > 0 {
		sum.Warnings = append(sum.Warnings,
			fmt.Sprintf("%d add rows skipped: %s already present in %s", dupDB, dbColumn, table))
	}
	if dupFile > 0 {
		sum.Warnings = append(sum.Warnings,
			fmt.Sprintf("%d add rows skipped: duplicate %s within file", dupFile, keyColumn))
	}
	return out, nil
}

// existingKeys queries which of the given natural keys are already in
// the table, in bounded array chunks.
func (l *Loader) existingKeys(ctx context.Context, table, dbColumn string, keys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)", dbColumn, table, dbColumn)

	for from := 0; from < len(keys); from += lookupKeyChunk {
		to := from + lookupKeyChunk
		if to > len(keys) {
			to = len(keys)
		}

		rs, err := l.Pool.Query(ctx, sql, keys[from:to])
		if err != nil {
			return nil, fmt.Errorf("duplicate pre-check on %s: %w", table, err)
		}
		for rs.Next() {
			var key string
			if err := rs.Scan(&key); err != nil {
				rs.Close()
				return nil, err
			}
			out[key] = struct{}{}
		}
		if err := rs.Err(); err != nil {
			rs.Close()
			return nil, err
		}
		rs.Close()
	}
	return out, nil
}
