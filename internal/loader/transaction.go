package loader

// transaction.go is the parallel transaction loader. A batch is loaded
// in phases:
//
//   Phase 0    agent pre-materialization (intermediary_1_id identities)
//   Phase 0.5  beneficiary bank pre-materialization
//   Phase 1    chunked worker fan-out over ADD / MODIFY / DELETE streams
//
// The pre-materialization phases run single-threaded and produce maps
// that workers share read-only, so no write contention exists on entity
// rows during the fan-out. Each worker owns one pooled connection for
// the life of its chunk and commits once; a failing chunk rolls back
// alone and sibling chunks are unaffected.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/mapper"
	"github.com/bliinkai/ingest/internal/rows"
)

const (
	agentEntityUpsertSQL = `
		INSERT INTO entity (customer_entity_id, entity_type, status, created_date, update_date)
		VALUES ($1, 'Agents', 'Active', $2, $2)
		ON CONFLICT (customer_entity_id)
		DO UPDATE SET update_date = EXCLUDED.update_date
		RETURNING entity_id`

	// DO NOTHING: an agent id that already exists with a customer child
	// row belongs to a customer load and must not be renamed or retyped.
	agentCustomerInsertSQL = `
		INSERT INTO entity_customer (entity_id, first_name, last_name, customertype,
			created_date, update_date)
		VALUES ($1, $2, $3, 'Agents', $4, $4)
		ON CONFLICT (entity_id) DO NOTHING`

	beneficiaryUpsertSQL = `
		INSERT INTO entity (customer_entity_id, entity_type, status, created_date, update_date)
		VALUES ($1, 'RELATED_PARTY', 'Active', $2, $2)
		ON CONFLICT (customer_entity_id)
		DO UPDATE SET update_date = EXCLUDED.update_date
		RETURNING entity_id`

	// ON CONFLICT DO NOTHING keeps concurrent workers from failing a
	// chunk when they race on the same bank pair.
	relationshipPairInsertSQL = `
		INSERT INTO entity_relationship (primary_entity_id, related_entity_id,
			relationship_type, status, batch_id, created_date, update_date)
		VALUES ($1, $2, 'RELATED_PARTY', 'Active', $3, $4, $4)
		ON CONFLICT (primary_entity_id, related_entity_id) DO NOTHING`

	relationshipPairTouchSQL = `
		UPDATE entity_relationship SET update_date = $3
		WHERE primary_entity_id = $1 AND related_entity_id = $2`

	relationshipPairDeactivateSQL = `
		UPDATE entity_relationship
		SET status = 'Inactive', end_date = $3, update_date = $3
		WHERE primary_entity_id = $1 AND related_entity_id = $2 AND status = 'Active'`

	transactionDeleteSQL = `
		UPDATE transactions SET status = 'Deleted', update_date = $2
		WHERE customer_transaction_id = $1`
)

// txnShared is the read-only state shared across chunk workers. It is
// fully built before the fan-out starts and never written afterwards.
type txnShared struct {
	agents   map[string]int64 // intermediary_1_id -> entity_id
	banks    map[string]int64 // bank natural id -> entity_id
	accounts map[string]int64 // customer_account_id -> account_id
	batchID  string
}

// LoadTransactions writes a transaction batch across a bounded worker
// pool sized from connection headroom.
func (l *Loader) LoadTransactions(ctx context.Context, t *rows.Table, fileName string) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		Kind:      string(rows.KindTransaction),
		FileName:  fileName,
		BatchID:   newBatchID(),
		TotalRows: t.Len(),
	}

	adds, modifies, deletes, bad := splitByIntent(t)
	for _, i := range bad {
		sum.FailedRows = append(sum.FailedRows, FailedRow{
			FileName:   fileName,
			LineNumber: t.Line(i),
			Reason:     "unrecognized change type",
		})
	}

	if !l.Cfg.AllowDuplicates {
		var err error
		adds, err = l.filterDuplicates(ctx, adds, "transaction_id", "transactions", "customer_transaction_id", sum)
		if err != nil {
			sum.Error = err.Error()
			return sum, err
		}
	}

	sum.FutureDated = countFutureDated(adds, l.now()) + countFutureDated(modifies, l.now())

	shared := &txnShared{batchID: sum.BatchID}

	var err error
	if shared.agents, err = l.materializeAgents(ctx, adds, modifies, deletes); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if shared.banks, err = l.materializeBeneficiaries(ctx, adds, modifies); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if shared.accounts, err = l.resolveAccounts(ctx, adds, modifies); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	if err := l.fanOut(ctx, adds, modifies, deletes, shared, sum); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	sum.Duration = time.Since(start)
	return sum, nil
}

// countFutureDated counts rows dated past now. They still load; the
// count is surfaced for the operator.
func countFutureDated(t *rows.Table, now time.Time) int {
	n := 0
	for i := 0; i < t.Len(); i++ {
		if ts, ok := rows.ParseTime(t.Get(i, "transaction_date")); ok && ts.After(now) {
			n++
		}
	}
	return n
}

// ==================== Phase 0: agents ====================

// materializeAgents ensures every distinct intermediary agent referenced
// by the batch exists as an Agents entity, returning the shared id map.
// An id already present as a non-agent entity is reused rather than
// retyped; only its customer child row is asserted as Agents.
func (l *Loader) materializeAgents(ctx context.Context, tables ...*rows.Table) (map[string]int64, error) {
	names := make(map[string]string) // agent id -> display name, first occurrence wins
	var order []string
	for _, t := range tables {
		if !t.HasColumn("intermediary_1_id") {
			continue
		}
		for i := 0; i < t.Len(); i++ {
			id := rows.Clean(t.Get(i, "intermediary_1_id"))
			if rows.IsNull(id) {
				continue
			}
			if _, ok := names[id]; !ok {
				names[id] = rows.Clean(t.Get(i, "transaction_field_15"))
				order = append(order, id)
			}
		}
	}

	agents := make(map[string]int64, len(order))
	now := l.now()

	for from := 0; from < len(order); from += lookupKeyChunk {
		to := from + lookupKeyChunk
		if to > len(order) {
			to = len(order)
		}
		sub := order[from:to]

		session, err := database.BeginSession(ctx, l.Pool)
		if err != nil {
			return nil, err
		}

		missing, err := l.findAgents(ctx, session.Tx(), sub, agents)
		if err != nil {
			session.Rollback(ctx)
			return nil, err
		}

		if len(missing) > 0 {
			batch := &pgx.Batch{}
			for _, id := range missing {
				batch.Queue(agentEntityUpsertSQL, id, now)
			}
			br := session.Tx().SendBatch(ctx, batch)
			ids := make([]int64, len(missing))
			for i, id := range missing {
				if err := br.QueryRow().Scan(&ids[i]); err != nil {
					br.Close()
					session.Rollback(ctx)
					return nil, fmt.Errorf("materialize agent %q: %w", id, err)
				}
			}
			if err := br.Close(); err != nil {
				session.Rollback(ctx)
				return nil, err
			}

			children := &pgx.Batch{}
			for i, id := range missing {
				first, last := mapper.SplitAgentName(names[id])
				children.Queue(agentCustomerInsertSQL, ids[i],
					rows.ToPgText(first), rows.ToPgText(last), now)
			}
			br = session.Tx().SendBatch(ctx, children)
			for range missing {
				if _, err := br.Exec(); err != nil {
					br.Close()
					session.Rollback(ctx)
					return nil, fmt.Errorf("materialize agent customer row: %w", err)
				}
			}
			if err := br.Close(); err != nil {
				session.Rollback(ctx)
				return nil, err
			}

			for i, id := range missing {
				agents[id] = ids[i]
			}
		}

		if err := session.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return agents, nil
}

// findAgents records the ids of already-materialized agents into out and
// returns the natural ids still missing.
func (l *Loader) findAgents(ctx context.Context, db database.DBTX, keys []string, out map[string]int64) ([]string, error) {
	rs, err := db.Query(ctx, `
		SELECT e.entity_id, e.customer_entity_id
		FROM entity e
		JOIN entity_customer ec ON ec.entity_id = e.entity_id
		WHERE e.customer_entity_id = ANY($1) AND ec.customertype = 'Agents'`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("find agents: %w", err)
	}
	defer rs.Close()

	found := make(map[string]struct{}, len(keys))
	for rs.Next() {
		var id int64
		var key string
		if err := rs.Scan(&id, &key); err != nil {
			return nil, err
		}
		out[key] = id
		found[key] = struct{}{}
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, k := range keys {
		if _, ok := found[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// ==================== Phase 0.5: beneficiary banks ====================

// materializeBeneficiaries ensures every beneficiary bank that differs
// from its row's intermediary bank exists as a RELATED_PARTY entity, and
// returns the id map for all banks the batch references on either side.
func (l *Loader) materializeBeneficiaries(ctx context.Context, tables ...*rows.Table) (map[string]int64, error) {
	seen := make(map[string]struct{})
	var beneficiaries, all []string
	collect := func(v string) {
		if rows.IsNull(v) {
			return
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			all = append(all, v)
		}
	}

	for _, t := range tables {
		for i := 0; i < t.Len(); i++ {
			ben := rows.Clean(t.Get(i, "beneficiary_bank"))
			inter := rows.Clean(t.Get(i, "intermediary_bank"))
			collect(ben)
			collect(inter)
			if !rows.IsNull(ben) && ben != inter {
				beneficiaries = append(beneficiaries, ben)
			}
		}
	}

	banks := make(map[string]int64, len(all))

	// Materialize missing beneficiaries in small sub-chunks.
	sub := l.chunkSize() / 4
	if sub < 1 {
		sub = 1
	}
	benSet := dedupeStrings(beneficiaries)
	for from := 0; from < len(benSet); from += sub {
		to := from + sub
		if to > len(benSet) {
			to = len(benSet)
		}

		session, err := database.BeginSession(ctx, l.Pool)
		if err != nil {
			return nil, err
		}
		existing, err := entityIDsByNaturalKey(ctx, session.Tx(), benSet[from:to])
		if err != nil {
			session.Rollback(ctx)
			return nil, err
		}
		for k, v := range existing {
			banks[k] = v
		}

		batch := &pgx.Batch{}
		var missing []string
		now := l.now()
		for _, key := range benSet[from:to] {
			if _, ok := existing[key]; ok {
				continue
			}
			missing = append(missing, key)
			batch.Queue(beneficiaryUpsertSQL, key, now)
		}
		if len(missing) > 0 {
			br := session.Tx().SendBatch(ctx, batch)
			for _, key := range missing {
				var id int64
				if err := br.QueryRow().Scan(&id); err != nil {
					br.Close()
					session.Rollback(ctx)
					return nil, fmt.Errorf("materialize beneficiary %q: %w", key, err)
				}
				banks[key] = id
			}
			if err := br.Close(); err != nil {
				session.Rollback(ctx)
				return nil, err
			}
		}
		if err := session.Commit(ctx); err != nil {
			return nil, err
		}
	}

	// Resolve the remaining bank ids (intermediaries are looked up but
	// never materialized; an unknown intermediary just yields no pair).
	var unresolved []string
	for _, key := range all {
		if _, ok := banks[key]; !ok {
			unresolved = append(unresolved, key)
		}
	}
	for from := 0; from < len(unresolved); from += lookupKeyChunk {
		to := from + lookupKeyChunk
		if to > len(unresolved) {
			to = len(unresolved)
		}
		found, err := entityIDsByNaturalKey(ctx, l.Pool, unresolved[from:to])
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			banks[k] = v
		}
	}

	return banks, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// resolveAccounts builds the shared customer_account_id -> account_id
// map for the whole batch.
func (l *Loader) resolveAccounts(ctx context.Context, tables ...*rows.Table) (map[string]int64, error) {
	var keys []string
	for _, t := range tables {
		keys = append(keys, distinctValues(t, "account_id")...)
	}
	keys = dedupeStrings(keys)

	accounts := make(map[string]int64, len(keys))
	for from := 0; from < len(keys); from += lookupKeyChunk {
		to := from + lookupKeyChunk
		if to > len(keys) {
			to = len(keys)
		}
		found, err := accountIDsByNaturalKey(ctx, l.Pool, keys[from:to])
		if err != nil {
			return nil, err
		}
		for k, v := range found {
			accounts[k] = v
		}
	}
	return accounts, nil
}

// ==================== Phase 1: fan-out ====================

func (l *Loader) fanOut(ctx context.Context, adds, modifies, deletes *rows.Table, shared *txnShared, sum *Summary) error {
	type job struct {
		chunk *rows.Table
		fn    func(context.Context, database.DBTX, *rows.Table, int, *txnShared) (chunkResult, error)
	}

	var jobs []job
	for _, c := range adds.Chunks(l.transactionChunkSize()) {
		jobs = append(jobs, job{c, l.addTransactionChunk})
	}
	for _, c := range modifies.Chunks(l.transactionChunkSize()) {
		jobs = append(jobs, job{c, l.modifyTransactionChunk})
	}
	for _, c := range deletes.Chunks(l.transactionChunkSize()) {
		jobs = append(jobs, job{c, l.deleteTransactionChunk})
	}
	if len(jobs) == 0 {
		return nil
	}

	workers := workerCount(database.Available(l.Pool))
	l.Log.Info("transaction fan-out",
		"chunks", len(jobs), "workers", workers, "batch_id", shared.batchID)

	var mu sync.Mutex
	results := make([]chunkResult, 0, len(jobs))

	// Chunks run on a detached context: a failing or cancelled chunk
	// rolls back alone and never takes its siblings down with it.
	// Cancellation is observed between chunks only.
	chunkCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(workers)

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result := l.runTransactionChunk(chunkCtx, j.chunk, i, shared, j.fn)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	for _, r := range results {
		sum.merge(r)
	}
	return ctx.Err()
}

// runTransactionChunk executes one chunk in its own session. Errors are
// folded into the result so the batch continues; every row of a rolled
// back chunk is recorded as failed.
func (l *Loader) runTransactionChunk(ctx context.Context, chunk *rows.Table, index int, shared *txnShared,
	fn func(context.Context, database.DBTX, *rows.Table, int, *txnShared) (chunkResult, error)) chunkResult {

	session, err := database.BeginSession(ctx, l.Pool)
	if err != nil {
		return failedChunkResult(index, chunk, err)
	}

	result, err := fn(ctx, session.Tx(), chunk, index, shared)
	if err != nil {
		session.Rollback(ctx)
		l.Log.Error("transaction chunk rolled back",
			"chunk", index, "rows", chunk.Len(), "batch_id", shared.batchID, "error", err)
		return failedChunkResult(index, chunk, err)
	}
	if err := session.Commit(ctx); err != nil {
		l.Log.Error("transaction chunk commit failed",
			"chunk", index, "rows", chunk.Len(), "batch_id", shared.batchID, "error", err)
		return failedChunkResult(index, chunk, err)
	}
	return result
}

// pairSet derives the relationship pairs implied by a chunk: one
// (intermediary, beneficiary) pair per row whose banks differ and both
// resolve to entities.
func pairSet(chunk *rows.Table, banks map[string]int64) map[[2]int64]struct{} {
	pairs := make(map[[2]int64]struct{})
	for i := 0; i < chunk.Len(); i++ {
		inter := rows.Clean(chunk.Get(i, "intermediary_bank"))
		ben := rows.Clean(chunk.Get(i, "beneficiary_bank"))
		if rows.IsNull(inter) || rows.IsNull(ben) || inter == ben {
			continue
		}
		interID, ok1 := banks[inter]
		benID, ok2 := banks[ben]
		if !ok1 || !ok2 {
			continue
		}
		pairs[[2]int64{interID, benID}] = struct{}{}
	}
	return pairs
}

// reconcilePairs aligns entity_relationship with the chunk's pair set:
// new pairs are inserted, existing pairs are left alone unless the
// touch policy is on. Relationship writes land before transaction DML.
func (l *Loader) reconcilePairs(ctx context.Context, tx database.DBTX, pairs map[[2]int64]struct{}, batchID string) error {
	if len(pairs) == 0 {
		return nil
	}

	existing, err := existingRelationshipPairs(ctx, tx, pairs)
	if err != nil {
		return err
	}

	now := l.now()
	batch := &pgx.Batch{}
	n := 0
	for pair := range pairs {
		if _, ok := existing[pair]; ok {
			if l.Cfg.TouchExistingRelationships {
				batch.Queue(relationshipPairTouchSQL, pair[0], pair[1], now)
				n++
			}
			continue
		}
		batch.Queue(relationshipPairInsertSQL, pair[0], pair[1], batchID, now)
		n++
	}

	if n > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("reconcile relationships: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

func existingRelationshipPairs(ctx context.Context, db database.DBTX, pairs map[[2]int64]struct{}) (map[[2]int64]struct{}, error) {
	primaries := make(map[int64]struct{})
	var primaryList []int64
	for pair := range pairs {
		if _, ok := primaries[pair[0]]; !ok {
			primaries[pair[0]] = struct{}{}
			primaryList = append(primaryList, pair[0])
		}
	}

	rs, err := db.Query(ctx,
		"SELECT primary_entity_id, related_entity_id FROM entity_relationship WHERE primary_entity_id = ANY($1)",
		primaryList,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch relationship pairs: %w", err)
	}
	defer rs.Close()

	out := make(map[[2]int64]struct{})
	for rs.Next() {
		var p, r int64
		if err := rs.Scan(&p, &r); err != nil {
			return nil, err
		}
		pair := [2]int64{p, r}
		if _, ok := pairs[pair]; ok {
			out[pair] = struct{}{}
		}
	}
	return out, rs.Err()
}

func (l *Loader) addTransactionChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int, shared *txnShared) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	if err := l.reconcilePairs(ctx, tx, pairSet(chunk, shared.banks), shared.batchID); err != nil {
		return result, err
	}

	batch := &pgx.Batch{}
	n := 0
	for i := 0; i < chunk.Len(); i++ {
		accountKey := rows.Clean(chunk.Get(i, "account_id"))
		accountID, ok := shared.accounts[accountKey]
		if !ok {
			result.skip(chunk.Line(i), fmt.Sprintf("account %q not found", accountKey))
			continue
		}

		params := transactionInsertParams(chunk, i, l.rawTransactionValues(chunk, i, accountID, accountKey, shared, now))
		if len(params) != transactionInsertArity {
			result.FailedRows = append(result.FailedRows, FailedRow{
				LineNumber: chunk.Line(i),
				Reason:     fmt.Sprintf("parameter count %d does not match insert arity %d", len(params), transactionInsertArity),
			})
			continue
		}

		batch.Queue(transactionInsertSQL, params...)
		n++
	}

	if n > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("insert transaction: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	result.Added = n
	return result, nil
}

func (l *Loader) modifyTransactionChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int, shared *txnShared) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	pairs := pairSet(chunk, shared.banks)
	if err := l.reconcilePairs(ctx, tx, pairs, shared.batchID); err != nil {
		return result, err
	}
	if err := l.deactivateStalePairs(ctx, tx, chunk, pairs); err != nil {
		return result, err
	}

	batch := &pgx.Batch{}
	var lines []int
	var keys []string
	for i := 0; i < chunk.Len(); i++ {
		accountKey := rows.Clean(chunk.Get(i, "account_id"))
		accountID, ok := shared.accounts[accountKey]
		if !ok {
			result.skip(chunk.Line(i), fmt.Sprintf("account %q not found", accountKey))
			continue
		}

		txnKey := rows.Clean(chunk.Get(i, "transaction_id"))
		params := transactionUpdateParams(chunk, i, l.rawTransactionValues(chunk, i, accountID, accountKey, shared, now), txnKey)
		if len(params) != transactionUpdateArity {
			result.FailedRows = append(result.FailedRows, FailedRow{
				LineNumber: chunk.Line(i),
				Reason:     fmt.Sprintf("parameter count %d does not match update arity %d", len(params), transactionUpdateArity),
			})
			continue
		}

		batch.Queue(transactionUpdateSQL, params...)
		lines = append(lines, chunk.Line(i))
		keys = append(keys, txnKey)
	}

	if len(keys) > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := range keys {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return result, fmt.Errorf("modify transaction %q: %w", keys[i], err)
			}
			if tag.RowsAffected() == 0 {
				result.skip(lines[i], fmt.Sprintf("transaction %q not found for modify", keys[i]))
				continue
			}
			result.Modified++
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	return result, nil
}

// deactivateStalePairs retires relationships the modified transactions
// no longer imply. Only pairs reached through the stored banks of the
// chunk's own transactions are candidates, so edges asserted by other
// transactions or batches stay untouched.
func (l *Loader) deactivateStalePairs(ctx context.Context, tx database.DBTX, chunk *rows.Table, current map[[2]int64]struct{}) error {
	keys := distinctValues(chunk, "transaction_id")
	if len(keys) == 0 {
		return nil
	}

	rs, err := tx.Query(ctx, `
		SELECT DISTINCT intermediary_bank, beneficiary_bank
		FROM transactions
		WHERE customer_transaction_id = ANY($1)
		  AND intermediary_bank IS NOT NULL AND beneficiary_bank IS NOT NULL
		  AND intermediary_bank <> beneficiary_bank`,
		keys,
	)
	if err != nil {
		return fmt.Errorf("fetch stored bank pairs: %w", err)
	}

	var oldPairs [][2]string
	var bankNames []string
	for rs.Next() {
		var inter, ben string
		if err := rs.Scan(&inter, &ben); err != nil {
			rs.Close()
			return err
		}
		oldPairs = append(oldPairs, [2]string{inter, ben})
		bankNames = append(bankNames, inter, ben)
	}
	if err := rs.Err(); err != nil {
		rs.Close()
		return err
	}
	rs.Close()

	if len(oldPairs) == 0 {
		return nil
	}

	ids, err := entityIDsByNaturalKey(ctx, tx, dedupeStrings(bankNames))
	if err != nil {
		return err
	}

	now := l.now()
	batch := &pgx.Batch{}
	n := 0
	for _, p := range oldPairs {
		interID, ok1 := ids[p[0]]
		benID, ok2 := ids[p[1]]
		if !ok1 || !ok2 {
			continue
		}
		pair := [2]int64{interID, benID}
		if _, ok := current[pair]; ok {
			continue
		}
		batch.Queue(relationshipPairDeactivateSQL, pair[0], pair[1], now)
		n++
	}

	if n > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("deactivate stale relationships: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) deleteTransactionChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int, shared *txnShared) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	batch := &pgx.Batch{}
	keys := make([]string, chunk.Len())
	for i := 0; i < chunk.Len(); i++ {
		keys[i] = rows.Clean(chunk.Get(i, "transaction_id"))
		batch.Queue(transactionDeleteSQL, keys[i], now)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range keys {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return result, fmt.Errorf("delete transaction %q: %w", keys[i], err)
		}
		if tag.RowsAffected() == 0 {
			result.skip(chunk.Line(i), fmt.Sprintf("transaction %q not found for delete", keys[i]))
			continue
		}
		result.Deleted++
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	return result, nil
}

// rawTransactionValues supplies the loader-provided column values for
// one row of the generated transaction DML.
func (l *Loader) rawTransactionValues(chunk *rows.Table, i int, accountID int64, accountKey string, shared *txnShared, now time.Time) map[string]any {
	var agentID any
	if id, ok := shared.agents[rows.Clean(chunk.Get(i, "intermediary_1_id"))]; ok {
		agentID = id
	}
	return map[string]any{
		"customer_transaction_id":  rows.Clean(chunk.Get(i, "transaction_id")),
		"account_id":               accountID,
		"customer_account_id":      accountKey,
		"intermediary_1_entity_id": agentID,
		"status":                   "Active",
		"batch_id":                 shared.batchID,
		"created_date":             now,
		"update_date":              now,
	}
}
