package loader

// fakedb_test.go is an in-memory stand-in for database.DBTX: canned
// query results keyed by a SQL fragment, recorded batches, and scripted
// batch outcomes. It lets the chunk functions run without a database.

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeDB struct {
	// results maps a SQL fragment to the rows a matching Query returns.
	results map[string][][]any
	// batches records every SendBatch in call order.
	batches []*pgx.Batch
	// ids feeds batch QueryRow scans, in order.
	ids []int64
	// tags feeds batch Exec results, in order; once exhausted every
	// Exec reports one affected row.
	tags []pgconn.CommandTag
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	for frag, data := range f.results {
		if strings.Contains(sql, frag) {
			return &fakeRows{data: data}, nil
		}
	}
	return &fakeRows{}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rs, _ := f.Query(ctx, sql, args...)
	fr := rs.(*fakeRows)
	if len(fr.data) == 0 {
		return fakeRow{}
	}
	return fakeRow{vals: fr.data[0]}
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return &fakeBatchResults{db: f}
}

// queuedMatching returns the queued statements whose SQL contains frag,
// across every recorded batch.
func (f *fakeDB) queuedMatching(frag string) []*pgx.QueuedQuery {
	var out []*pgx.QueuedQuery
	for _, b := range f.batches {
		for _, q := range b.QueuedQueries {
			if strings.Contains(q.SQL, frag) {
				out = append(out, q)
			}
		}
	}
	return out
}

type fakeBatchResults struct {
	db *fakeDB
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if len(b.db.tags) > 0 {
		tag := b.db.tags[0]
		b.db.tags = b.db.tags[1:]
		return tag, nil
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (b *fakeBatchResults) Query() (pgx.Rows, error) { return &fakeRows{}, nil }

func (b *fakeBatchResults) QueryRow() pgx.Row {
	if len(b.db.ids) == 0 {
		return fakeRow{}
	}
	id := b.db.ids[0]
	b.db.ids = b.db.ids[1:]
	return fakeRow{vals: []any{id}}
}

func (b *fakeBatchResults) Close() error { return nil }

type fakeRows struct {
	data [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.i++; return r.i <= len(r.data) }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.data[r.i-1], dest)
}

type fakeRow struct {
	vals []any
}

func (r fakeRow) Scan(dest ...any) error {
	if r.vals == nil {
		return pgx.ErrNoRows
	}
	return scanInto(r.vals, dest)
}

func scanInto(src []any, dest []any) error {
	if len(src) != len(dest) {
		return fmt.Errorf("scan of %d values into %d targets", len(src), len(dest))
	}
	for i, v := range src {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		default:
			return fmt.Errorf("unsupported scan target %T", dest[i])
		}
	}
	return nil
}
