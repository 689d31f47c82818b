package loader

// chunks.go holds the machinery shared by every kind loader: the Loader
// handle itself, chunked commit processing, worker sizing for the
// parallel transaction path, and the batched natural-key lookups used
// to resolve feed identifiers to surrogate keys.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/rows"
)

const (
	minTransactionWorkers = 2
	maxTransactionWorkers = 8
)

// Loader writes validated batches into the relational schema.
type Loader struct {
	Pool *pgxpool.Pool
	Cfg  config.LoadConfig
	Log  *slog.Logger

	// Now is the clock for audit stamps and future-date checks.
	// Overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// NewLoader builds a Loader bound to the shared pool.
func NewLoader(pool *pgxpool.Pool, cfg config.LoadConfig, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{Pool: pool, Cfg: cfg, Log: log, Now: time.Now}
}

func (l *Loader) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loader) chunkSize() int {
	if l.Cfg.ChunkSize > 0 {
		return l.Cfg.ChunkSize
	}
	return 5000
}

func (l *Loader) transactionChunkSize() int {
	if l.Cfg.TransactionChunkSize > 0 {
		return l.Cfg.TransactionChunkSize
	}
	return 1000
}

// workerCount sizes the transaction fan-out from pool headroom: half
// the unacquired connections, clamped to [2, 8]. Other loads sharing
// the pool shrink the fan-out instead of starving.
func workerCount(available int) int {
	n := available / 2
	if n < minTransactionWorkers {
		return minTransactionWorkers
	}
	if n > maxTransactionWorkers {
		return maxTransactionWorkers
	}
	return n
}

// chunkFunc processes one chunk inside an open transaction. The chunk
// commits when chunkFunc returns nil and rolls back when it errors;
// row-level problems belong in the result, not the error.
type chunkFunc func(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error)

// forEachChunk runs fn over the table in chunkSize slices, one
// transaction per chunk, sequentially. Cancellation is honored at chunk
// boundaries only: a chunk that has started runs to completion on a
// detached context, so committed chunks stay committed. A chunk that
// errors rolls back alone; its rows are recorded as failed and the
// remaining chunks still run.
func (l *Loader) forEachChunk(ctx context.Context, t *rows.Table, chunkSize int, sum *Summary, fn chunkFunc) error {
	chunkCtx := context.WithoutCancel(ctx)
	for i, chunk := range t.Chunks(chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.merge(l.runChunk(chunkCtx, chunk, i, fn))
	}
	return nil
}

// runChunk executes one chunk in its own transaction. A chunk error is
// folded into the result rather than returned: every row of the rolled
// back chunk gets a failure record naming the cause.
func (l *Loader) runChunk(ctx context.Context, chunk *rows.Table, index int, fn chunkFunc) chunkResult {
	session, err := database.BeginSession(ctx, l.Pool)
	if err != nil {
		return failedChunkResult(index, chunk, err)
	}

	result, err := fn(ctx, session.Tx(), chunk, index)
	if err != nil {
		session.Rollback(ctx)
		l.Log.Error("chunk rolled back", "chunk", index, "rows", chunk.Len(), "error", err)
		return failedChunkResult(index, chunk, err)
	}
	if err := session.Commit(ctx); err != nil {
		l.Log.Error("chunk commit failed", "chunk", index, "rows", chunk.Len(), "error", err)
		return failedChunkResult(index, chunk, err)
	}
	return result
}

// failedChunkResult marks every row of a rolled-back chunk as failed, so
// no row leaves the loader without an outcome.
func failedChunkResult(index int, chunk *rows.Table, err error) chunkResult {
	result := chunkResult{Index: index}
	reason := fmt.Sprintf("chunk %d rolled back: %v", index, err)
	for i := 0; i < chunk.Len(); i++ {
		result.FailedRows = append(result.FailedRows, FailedRow{
			LineNumber: chunk.Line(i),
			Reason:     reason,
		})
	}
	return result
}

// ==================== Natural-key lookups ====================

// entityIDsByNaturalKey resolves customer_entity_id values to surrogate
// entity_id keys in one round trip. Keys absent from the table are
// simply absent from the map.
func entityIDsByNaturalKey(ctx context.Context, db database.DBTX, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rs, err := db.Query(ctx,
		"SELECT entity_id, customer_entity_id FROM entity WHERE customer_entity_id = ANY($1)",
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve entities: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var id int64
		var key string
		if err := rs.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rs.Err()
}

// accountIDsByNaturalKey resolves customer_account_id values to
// surrogate account_id keys in one round trip.
func accountIDsByNaturalKey(ctx context.Context, db database.DBTX, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rs, err := db.Query(ctx,
		"SELECT account_id, customer_account_id FROM account WHERE customer_account_id = ANY($1)",
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var id int64
		var key string
		if err := rs.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[key] = id
	}
	return out, rs.Err()
}

// distinctValues collects the distinct non-null values of a column
// across the whole table, preserving first-seen order.
func distinctValues(t *rows.Table, column string) []string {
	seen := make(map[string]struct{})
	var out []string
	for i := 0; i < t.Len(); i++ {
		v := rows.Clean(t.Get(i, column))
		if rows.IsNull(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// splitByIntent partitions a table into the three intent streams.
// Rows with an unparseable change type are returned in bad.
func splitByIntent(t *rows.Table) (adds, modifies, deletes *rows.Table, bad []int) {
	adds = rows.NewTable(t.Columns())
	modifies = rows.NewTable(t.Columns())
	deletes = rows.NewTable(t.Columns())

	for i := 0; i < t.Len(); i++ {
		intent, ok := t.Intent(i)
		if !ok {
			bad = append(bad, i)
			continue
		}
		record := make([]string, len(t.Columns()))
		for ci, col := range t.Columns() {
			record[ci] = t.Get(i, col)
		}
		switch intent {
		case rows.IntentAdd:
			adds.Append(record, t.Line(i))
		case rows.IntentModify:
			modifies.Append(record, t.Line(i))
		case rows.IntentDelete:
			deletes.Append(record, t.Line(i))
		}
	}
	return adds, modifies, deletes, bad
}
