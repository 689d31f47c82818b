package loader

// list.go loads list-management batches. List rows denormalize an
// entity part and an item part; entities are shared across rows by a
// composite key, so each chunk resolves or creates its entities first
// and then attaches every row's item to the right one.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/rows"
)

// listKeyColumns is the composite natural key of a list entity.
var listKeyColumns = []string{"notes", "category", "entity_type", "industry_code", "country", "payment_channel"}

const (
	listEntitySelectSQL = `
		SELECT list_entity_id, COALESCE(notes, ''), COALESCE(category, ''),
			COALESCE(entity_type, ''), COALESCE(industry_code, ''),
			COALESCE(country, ''), COALESCE(payment_channel, '')
		FROM platform_list_entities
		WHERE COALESCE(category, '') = ANY($1)`

	listEntityInsertSQL = `
		INSERT INTO platform_list_entities (list_name, notes, category, entity_type,
			industry_code, country, payment_channel, risk_score, risk_level,
			added_by, source, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING list_entity_id`

	listItemInsertSQL = `
		INSERT INTO platform_list_items (list_entity_id, information_type,
			information_value, list_type, created_date)
		VALUES ($1, $2, $3, $4, $5)`
)

// LoadListEntries writes a list batch.
func (l *Loader) LoadListEntries(ctx context.Context, t *rows.Table, fileName string) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		Kind:      string(rows.KindList),
		FileName:  fileName,
		BatchID:   newBatchID(),
		TotalRows: t.Len(),
	}

	if err := l.forEachChunk(ctx, t, l.chunkSize(), sum, l.listChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	sum.Duration = time.Since(start)
	return sum, nil
}

// listKey builds the composite key for a row. Null columns fold to the
// empty string so the key is stable across sources.
func listKey(t *rows.Table, i int) string {
	parts := make([]string, len(listKeyColumns))
	for ci, col := range listKeyColumns {
		v := rows.Clean(t.Get(i, col))
		if rows.IsNull(v) {
			v = ""
		}
		parts[ci] = v
	}
	return strings.Join(parts, "\x1f")
}

func (l *Loader) listChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	// Resolve existing list entities by composite key. The category
	// column narrows the scan; exact matching happens on the full key.
	existing, err := existingListEntities(ctx, tx, append(distinctValues(chunk, "category"), ""))
	if err != nil {
		return result, err
	}

	// First occurrence of each new key creates the entity.
	entityIDs := make(map[string]int64)
	batch := &pgx.Batch{}
	var newKeys []string
	for i := 0; i < chunk.Len(); i++ {
		key := listKey(chunk, i)
		if _, ok := existing[key]; ok {
			continue
		}
		if _, ok := entityIDs[key]; ok {
			continue
		}
		entityIDs[key] = 0
		newKeys = append(newKeys, key)
		batch.Queue(listEntityInsertSQL,
			rows.ToPgText(chunk.Get(i, "list_name")),
			rows.ToPgText(chunk.Get(i, "notes")),
			rows.ToPgText(chunk.Get(i, "category")),
			rows.ToPgText(chunk.Get(i, "entity_type")),
			rows.ToPgText(chunk.Get(i, "industry_code")),
			rows.ToPgText(chunk.Get(i, "country")),
			rows.ToPgText(chunk.Get(i, "payment_channel")),
			rows.ToPgNumeric(chunk.Get(i, "risk_score")),
			rows.ToPgText(chunk.Get(i, "risk_level")),
			rows.ToPgText(chunk.Get(i, "added_by")),
			rows.ToPgText(chunk.Get(i, "source")),
			now,
		)
	}

	if len(newKeys) > 0 {
		br := tx.SendBatch(ctx, batch)
		for _, key := range newKeys {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				br.Close()
				return result, fmt.Errorf("insert list entity: %w", err)
			}
			entityIDs[key] = id
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}
	for key, id := range existing {
		entityIDs[key] = id
	}

	items := &pgx.Batch{}
	n := 0
	for i := 0; i < chunk.Len(); i++ {
		id, ok := entityIDs[listKey(chunk, i)]
		if !ok {
			result.FailedRows = append(result.FailedRows, FailedRow{
				LineNumber: chunk.Line(i),
				Reason:     "list entity unresolved",
			})
			continue
		}
		items.Queue(listItemInsertSQL,
			id,
			rows.ToPgText(chunk.Get(i, "information_type")),
			rows.ToPgText(chunk.Get(i, "information_value")),
			rows.ToPgText(chunk.Get(i, "list_type")),
			now,
		)
		n++
	}

	if n > 0 {
		br := tx.SendBatch(ctx, items)
		for i := 0; i < n; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("insert list item: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	result.Added = n
	return result, nil
}

func existingListEntities(ctx context.Context, db database.DBTX, categories []string) (map[string]int64, error) {
	out := make(map[string]int64)
	if len(categories) == 0 {
		return out, nil
	}

	rs, err := db.Query(ctx, listEntitySelectSQL, categories)
	if err != nil {
		return nil, fmt.Errorf("fetch list entities: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var id int64
		parts := make([]string, len(listKeyColumns))
		dest := []any{&id}
		for i := range parts {
			dest = append(dest, &parts[i])
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, err
		}
		// Scan order matches listKeyColumns order in the SELECT.
		out[strings.Join(parts, "\x1f")] = id
	}
	return out, rs.Err()
}
