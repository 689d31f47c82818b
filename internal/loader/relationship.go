package loader

// relationship.go loads the customer-to-account relationship stream and
// owns the entity back-fill: accounts inserted without an owner pick up
// their entity_id once an ACH relationship names the owning customer.

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/rows"
)

// backfillChunk is the sub-chunk size for account entity back-fill.
// Each sub-chunk commits independently.
const backfillChunk = 5000

const (
	relationshipInsertSQL = `
		INSERT INTO relationship_stream (from_id, to_id, role_type, start_date,
			end_date, created_date, update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`

	relationshipUpdateSQL = `
		UPDATE relationship_stream SET role_type = $3, start_date = $4,
			end_date = $5, update_date = $6
		WHERE from_id = $1 AND to_id = $2`

	accountBackfillSQL = `
		UPDATE account a
		SET entity_id = e.entity_id, update_date = $2
		FROM relationship_stream rs
		JOIN entity e ON e.customer_entity_id = rs.from_id
		JOIN entity_customer ec ON ec.entity_id = e.entity_id
		WHERE a.account_id = ANY($1)
		  AND rs.to_id = a.customer_account_id
		  AND rs.role_type = 'ACH'
		  AND a.entity_id IS NULL`
)

// LoadRelationships writes a relationship batch in three phases: upsert
// the raw stream by (from_id, to_id), then back-fill account ownership
// from the updated stream.
func (l *Loader) LoadRelationships(ctx context.Context, t *rows.Table, fileName string) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		Kind:      string(rows.KindRelationship),
		FileName:  fileName,
		BatchID:   newBatchID(),
		TotalRows: t.Len(),
	}

	if err := l.forEachChunk(ctx, t, l.chunkSize(), sum, l.relationshipChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	filled, err := l.BackfillAccountEntities(ctx)
	if err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if filled > 0 {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("back-filled entity_id on %d accounts", filled))
	}

	sum.Duration = time.Since(start)
	return sum, nil
}

// relationshipChunk partitions the chunk's pairs into inserts vs updates
// against the live stream, then batch-executes each set. Later
// occurrences of a pair within the chunk win.
func (l *Loader) relationshipChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	existing, err := existingPairs(ctx, tx, chunk)
	if err != nil {
		return result, err
	}

	batch := &pgx.Batch{}
	queuedInChunk := make(map[[2]string]bool)
	for i := 0; i < chunk.Len(); i++ {
		from := rows.Clean(chunk.Get(i, "from_id"))
		to := rows.Clean(chunk.Get(i, "to_id"))
		if rows.IsNull(from) || rows.IsNull(to) {
			result.skip(chunk.Line(i), "relationship missing from_id or to_id")
			continue
		}

		pair := [2]string{from, to}
		args := []any{
			from, to,
			rows.ToPgText(chunk.Get(i, "role_type")),
			rows.ToPgTimestamp(chunk.Get(i, "start_date")),
			rows.ToPgTimestamp(chunk.Get(i, "end_date")),
			now,
		}

		if existing[pair] || queuedInChunk[pair] {
			batch.Queue(relationshipUpdateSQL, args...)
			result.Modified++
		} else {
			batch.Queue(relationshipInsertSQL, args...)
			queuedInChunk[pair] = true
			result.Added++
		}
	}

	n := result.Added + result.Modified
	if n > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("write relationship: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	return result, nil
}

// existingPairs pre-fetches which (from_id, to_id) pairs in the chunk
// already exist in relationship_stream.
func existingPairs(ctx context.Context, db database.DBTX, chunk *rows.Table) (map[[2]string]bool, error) {
	froms := distinctValues(chunk, "from_id")
	out := make(map[[2]string]bool)
	if len(froms) == 0 {
		return out, nil
	}

	rs, err := db.Query(ctx,
		"SELECT from_id, to_id FROM relationship_stream WHERE from_id = ANY($1)",
		froms,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch existing relationships: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var from, to string
		if err := rs.Scan(&from, &to); err != nil {
			return nil, err
		}
		out[[2]string{from, to}] = true
	}
	return out, rs.Err()
}

// BackfillAccountEntities resolves ownership for accounts loaded without
// an entity_id. Each orphan account whose customer_account_id appears as
// the to_id of an ACH relationship gets the entity behind the from_id,
// provided that entity has a customer child row. Runs in sub-chunks with
// a commit per sub-chunk and returns the number of accounts updated.
func (l *Loader) BackfillAccountEntities(ctx context.Context) (int, error) {
	rs, err := l.Pool.Query(ctx, "SELECT account_id FROM account WHERE entity_id IS NULL")
	if err != nil {
		return 0, fmt.Errorf("scan orphan accounts: %w", err)
	}
	var orphans []int64
	for rs.Next() {
		var id int64
		if err := rs.Scan(&id); err != nil {
			rs.Close()
			return 0, err
		}
		orphans = append(orphans, id)
	}
	if err := rs.Err(); err != nil {
		rs.Close()
		return 0, err
	}
	rs.Close()

	filled := 0
	now := l.now()
	for from := 0; from < len(orphans); from += backfillChunk {
		to := from + backfillChunk
		if to > len(orphans) {
			to = len(orphans)
		}

		session, err := database.BeginSession(ctx, l.Pool)
		if err != nil {
			return filled, err
		}
		tag, err := session.Tx().Exec(ctx, accountBackfillSQL, orphans[from:to], now)
		if err != nil {
			session.Rollback(ctx)
			return filled, fmt.Errorf("back-fill accounts: %w", err)
		}
		if err := session.Commit(ctx); err != nil {
			return filled, err
		}
		filled += int(tag.RowsAffected())
	}
	return filled, nil
}
