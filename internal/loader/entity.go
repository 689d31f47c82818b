package loader

// entity.go loads customer batches into entity and its satellite tables.
// ADD is an upsert on the natural key; MODIFY rewrites the entity and its
// type-specific child row; DELETE is a logical close, never a row delete.

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/rows"
)

const (
	entityUpsertSQL = `
		INSERT INTO entity (customer_entity_id, entity_type, status, created_date, update_date)
		VALUES ($1, $2, 'Active', $3, $3)
		ON CONFLICT (customer_entity_id)
		DO UPDATE SET entity_type = EXCLUDED.entity_type, update_date = EXCLUDED.update_date
		RETURNING entity_id`

	entityCustomerUpsertSQL = `
		INSERT INTO entity_customer (entity_id, first_name, last_name, customertype,
			date_of_birth, nationality, residence_country, occupation, employer_name,
			risk_score, created_date, update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (entity_id)
		DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			customertype = EXCLUDED.customertype, date_of_birth = EXCLUDED.date_of_birth,
			nationality = EXCLUDED.nationality, residence_country = EXCLUDED.residence_country,
			occupation = EXCLUDED.occupation, employer_name = EXCLUDED.employer_name,
			risk_score = EXCLUDED.risk_score, update_date = EXCLUDED.update_date`

	entityBusinessUpsertSQL = `
		INSERT INTO entity_business (entity_id, business_name, business_type,
			business_activity, industry_code, registration_number, created_date, update_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (entity_id)
		DO UPDATE SET business_name = EXCLUDED.business_name,
			business_type = EXCLUDED.business_type,
			business_activity = EXCLUDED.business_activity,
			industry_code = EXCLUDED.industry_code,
			registration_number = EXCLUDED.registration_number,
			update_date = EXCLUDED.update_date`

	entityAddressInsertSQL = `
		INSERT INTO entity_address (entity_id, address_line_1, address_line_2,
			city, state, postal_code, country, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	entityIdentifierInsertSQL = `
		INSERT INTO entity_identifier (entity_id, document_type, document_number,
			document_issue_country, created_date)
		VALUES ($1, $2, $3, $4, $5)`

	entityCloseSQL = `
		UPDATE entity SET status = 'Closed', closed_date = $2, closed_reason = $3,
			update_date = $4
		WHERE customer_entity_id = $1`
)

// LoadEntities writes a customer batch. The table must already be mapped
// to canonical columns (and derived, for fixed-width files).
func (l *Loader) LoadEntities(ctx context.Context, t *rows.Table, fileName string) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		Kind:      string(rows.KindCustomer),
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
		adds, err = l.filterDuplicates(ctx, adds, "customer_id", "entity", "customer_entity_id", sum)
		if err != nil {
			sum.Error = err.Error()
			return sum, err
		}
	}

	if err := l.forEachChunk(ctx, adds, l.chunkSize(), sum, l.addEntityChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if err := l.forEachChunk(ctx, modifies, l.chunkSize(), sum, l.modifyEntityChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if err := l.forEachChunk(ctx, deletes, l.chunkSize(), sum, l.deleteEntityChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	sum.Duration = time.Since(start)
	return sum, nil
}

// isBusiness reports whether the row describes a business entity.
// Consumer is the default when the type column is absent or null.
func isBusiness(t *rows.Table, i int) bool {
	return rows.Clean(t.Get(i, "customer_type")) == "Business"
}

// entityType picks the entity_type value for a row: an explicit
// entity_type column wins (fixed-width biller synthesis sets one),
// otherwise the customer type.
func entityType(t *rows.Table, i int) string {
	if v := rows.Clean(t.Get(i, "entity_type")); !rows.IsNull(v) {
		return v
	}
	if isBusiness(t, i) {
		return "Business"
	}
	return "Consumer"
}

func hasAnyValue(t *rows.Table, i int, cols ...string) bool {
	for _, c := range cols {
		if !rows.IsNull(rows.Clean(t.Get(i, c))) {
			return true
		}
	}
	return false
}

func (l *Loader) addEntityChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	// Upsert the entity rows first; children need the surrogate keys.
	batch := &pgx.Batch{}
	keys := make([]string, chunk.Len())
	for i := 0; i < chunk.Len(); i++ {
		keys[i] = rows.Clean(chunk.Get(i, "customer_id"))
		batch.Queue(entityUpsertSQL, keys[i], entityType(chunk, i), now)
	}

	ids := make([]int64, chunk.Len())
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < chunk.Len(); i++ {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			br.Close()
			return result, fmt.Errorf("upsert entity %q: %w", keys[i], err)
		}
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	children := &pgx.Batch{}
	queued := 0
	for i := 0; i < chunk.Len(); i++ {
		if isBusiness(chunk, i) {
			children.Queue(entityBusinessUpsertSQL,
				ids[i],
				rows.ToPgText(chunk.Get(i, "customer_name")),
				rows.ToPgText(chunk.Get(i, "business_type")),
				rows.ToPgText(chunk.Get(i, "business_activity")),
				rows.ToPgText(chunk.Get(i, "industry_code")),
				rows.ToPgText(chunk.Get(i, "business_registration_number")),
				now,
			)
		} else {
			children.Queue(entityCustomerUpsertSQL,
				ids[i],
				rows.ToPgText(chunk.Get(i, "first_name")),
				rows.ToPgText(chunk.Get(i, "last_name")),
				rows.ToPgText(chunk.Get(i, "customer_type")),
				rows.ToPgTimestamp(chunk.Get(i, "date_of_birth")),
				rows.ToPgText(chunk.Get(i, "nationality")),
				rows.ToPgText(chunk.Get(i, "residence_country")),
				rows.ToPgText(chunk.Get(i, "occupation")),
				rows.ToPgText(chunk.Get(i, "employer_name")),
				rows.ToPgNumeric(chunk.Get(i, "risk_score")),
				now,
			)
		}
		queued++

		if hasAnyValue(chunk, i, "address_line_1", "address_line_2", "city", "state", "postal_code", "country") {
			children.Queue(entityAddressInsertSQL,
				ids[i],
				rows.ToPgText(chunk.Get(i, "address_line_1")),
				rows.ToPgText(chunk.Get(i, "address_line_2")),
				rows.ToPgText(chunk.Get(i, "city")),
				rows.ToPgText(chunk.Get(i, "state")),
				rows.ToPgText(chunk.Get(i, "postal_code")),
				rows.ToPgText(chunk.Get(i, "country")),
				now,
			)
			queued++
		}

		if hasAnyValue(chunk, i, "document_number") {
			children.Queue(entityIdentifierInsertSQL,
				ids[i],
				rows.ToPgText(chunk.Get(i, "document_type")),
				rows.ToPgText(chunk.Get(i, "document_number")),
				rows.ToPgText(chunk.Get(i, "document_issue_country")),
				now,
			)
			queued++
		}
	}

	if queued > 0 {
		br = tx.SendBatch(ctx, children)
		for i := 0; i < queued; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("insert entity children: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	result.Added = chunk.Len()
	return result, nil
}

func (l *Loader) modifyEntityChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	existing, err := entityIDsByNaturalKey(ctx, tx, distinctValues(chunk, "customer_id"))
	if err != nil {
		return result, err
	}

	batch := &pgx.Batch{}
	queued := 0
	for i := 0; i < chunk.Len(); i++ {
		key := rows.Clean(chunk.Get(i, "customer_id"))
		id, ok := existing[key]
		if !ok {
			result.skip(chunk.Line(i), fmt.Sprintf("entity %q not found for modify", key))
			continue
		}

		batch.Queue(entityUpsertSQL, key, entityType(chunk, i), now)
		if isBusiness(chunk, i) {
			batch.Queue(entityBusinessUpsertSQL,
				id,
				rows.ToPgText(chunk.Get(i, "customer_name")),
				rows.ToPgText(chunk.Get(i, "business_type")),
				rows.ToPgText(chunk.Get(i, "business_activity")),
				rows.ToPgText(chunk.Get(i, "industry_code")),
				rows.ToPgText(chunk.Get(i, "business_registration_number")),
				now,
			)
		} else {
			batch.Queue(entityCustomerUpsertSQL,
				id,
				rows.ToPgText(chunk.Get(i, "first_name")),
				rows.ToPgText(chunk.Get(i, "last_name")),
				rows.ToPgText(chunk.Get(i, "customer_type")),
				rows.ToPgTimestamp(chunk.Get(i, "date_of_birth")),
				rows.ToPgText(chunk.Get(i, "nationality")),
				rows.ToPgText(chunk.Get(i, "residence_country")),
				rows.ToPgText(chunk.Get(i, "occupation")),
				rows.ToPgText(chunk.Get(i, "employer_name")),
				rows.ToPgNumeric(chunk.Get(i, "risk_score")),
				now,
			)
		}
		queued += 2
		result.Modified++
	}

	if queued > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < queued; i++ {
			if i%2 == 0 {
				var id int64
				if err := br.QueryRow().Scan(&id); err != nil {
					br.Close()
					return result, fmt.Errorf("modify entity: %w", err)
				}
				continue
			}
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("modify entity child: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (l *Loader) deleteEntityChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	batch := &pgx.Batch{}
	lines := make([]int, 0, chunk.Len())
	keys := make([]string, 0, chunk.Len())
	for i := 0; i < chunk.Len(); i++ {
		key := rows.Clean(chunk.Get(i, "customer_id"))
		// The feed's closed_date wins when present; now is the fallback.
		closed := rows.ToPgTimestamp(chunk.Get(i, "closed_date"))
		if !closed.Valid {
			closed = pgtype.Timestamp{Time: now, Valid: true}
		}
		batch.Queue(entityCloseSQL, key, closed, rows.ToPgText(chunk.Get(i, "closed_reason")), now)
		lines = append(lines, chunk.Line(i))
		keys = append(keys, key)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range keys {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return result, fmt.Errorf("close entity %q: %w", keys[i], err)
		}
		if tag.RowsAffected() == 0 {
			result.skip(lines[i], fmt.Sprintf("entity %q not found for delete", keys[i]))
			continue
		}
		result.Deleted++
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	return result, nil
}
