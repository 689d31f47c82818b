package loader

// account.go loads account batches. Fixed-width account files carry no
// customer reference, so the mapper synthesizes a biller identity per
// account; the loader materializes that identity as an entity before
// the account insert so ownership always resolves. Delimited files may
// reference a customer that was never loaded, in which case the account
// is kept with a null owner.

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
	accountUpsertSQL = `
		INSERT INTO account (customer_account_id, entity_id, account_number,
			account_holder_name, account_type, status, balance, eod_balance,
			currency, open_date, closed_date, branch_code, created_date, update_date)
		VALUES ($1, $2, $3, $4, $5, 'Active', $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (customer_account_id)
		DO UPDATE SET entity_id = EXCLUDED.entity_id,
			account_number = EXCLUDED.account_number,
			account_holder_name = EXCLUDED.account_holder_name,
			account_type = EXCLUDED.account_type,
			balance = EXCLUDED.balance, eod_balance = EXCLUDED.eod_balance,
			currency = EXCLUDED.currency, open_date = EXCLUDED.open_date,
			closed_date = EXCLUDED.closed_date, branch_code = EXCLUDED.branch_code,
			update_date = EXCLUDED.update_date`

	accountModifySQL = `
		UPDATE account SET account_number = $2, account_holder_name = $3,
			account_type = $4, balance = $5, eod_balance = $6, currency = $7,
			open_date = $8, closed_date = $9, branch_code = $10, update_date = $11
		WHERE customer_account_id = $1`

	accountCloseSQL = `
		UPDATE account SET status = 'Closed', closed_date = $2, update_date = $2
		WHERE customer_account_id = $1`
)

// LoadAccounts writes an account batch.
func (l *Loader) LoadAccounts(ctx context.Context, t *rows.Table, fileName string) (*Summary, error) {
	start := l.now()
	sum := &Summary{
		Kind:      string(rows.KindAccount),
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
		adds, err = l.filterDuplicates(ctx, adds, "account_id", "account", "customer_account_id", sum)
		if err != nil {
			sum.Error = err.Error()
			return sum, err
		}
	}

	if err := l.forEachChunk(ctx, adds, l.chunkSize(), sum, l.addAccountChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if err := l.forEachChunk(ctx, modifies, l.chunkSize(), sum, l.modifyAccountChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}
	if err := l.forEachChunk(ctx, deletes, l.chunkSize(), sum, l.deleteAccountChunk); err != nil {
		sum.Error = err.Error()
		return sum, err
	}

	sum.Duration = time.Since(start)
	return sum, nil
}

func (l *Loader) addAccountChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	// Resolve owners batch-wide, materializing biller identities for
	// owners the customer feed will never deliver.
	owners, err := entityIDsByNaturalKey(ctx, tx, distinctValues(chunk, "customer_id"))
	if err != nil {
		return result, err
	}

	billers := &pgx.Batch{}
	var billerKeys []string
	for i := 0; i < chunk.Len(); i++ {
		key := rows.Clean(chunk.Get(i, "customer_id"))
		if rows.IsNull(key) {
			continue
		}
		if _, ok := owners[key]; ok {
			continue
		}
		if rows.Clean(chunk.Get(i, "entity_type")) != "Biller" {
			continue
		}
		owners[key] = 0 // placeholder, filled from RETURNING below
		billerKeys = append(billerKeys, key)
		billers.Queue(entityUpsertSQL, key, "Biller", now)
	}

	if len(billerKeys) > 0 {
		br := tx.SendBatch(ctx, billers)
		for _, key := range billerKeys {
			var id int64
			if err := br.QueryRow().Scan(&id); err != nil {
				br.Close()
				return result, fmt.Errorf("materialize biller %q: %w", key, err)
			}
			owners[key] = id
		}
		if err := br.Close(); err != nil {
			return result, err
		}

		// Billers get a business child with fixed categorization so they
		// read like any other business entity downstream.
		children := &pgx.Batch{}
		for _, key := range billerKeys {
			children.Queue(entityBusinessUpsertSQL,
				owners[key],
				rows.ToPgText(key),
				rows.ToPgText("Biller entity"),
				rows.ToPgText("Biller entity"),
				pgtype.Text{},
				pgtype.Text{},
				now,
			)
		}
		br = tx.SendBatch(ctx, children)
		for range billerKeys {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return result, fmt.Errorf("materialize biller business row: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return result, err
		}
	}

	batch := &pgx.Batch{}
	for i := 0; i < chunk.Len(); i++ {
		ownerKey := rows.Clean(chunk.Get(i, "customer_id"))

		var entityID pgtype.Int8
		if id, ok := owners[ownerKey]; ok {
			entityID = pgtype.Int8{Int64: id, Valid: true}
		}

		batch.Queue(accountUpsertSQL,
			rows.Clean(chunk.Get(i, "account_id")),
			entityID,
			rows.ToPgText(chunk.Get(i, "account_number")),
			rows.ToPgText(chunk.Get(i, "account_holder_name")),
			rows.ToPgText(chunk.Get(i, "account_type")),
			rows.ToPgNumeric(chunk.Get(i, "balance")),
			rows.ToPgNumeric(chunk.Get(i, "eod_balance")),
			rows.ToPgText(chunk.Get(i, "currency")),
			rows.ToPgTimestamp(chunk.Get(i, "open_date")),
			rows.ToPgTimestamp(chunk.Get(i, "closed_date")),
			rows.ToPgText(chunk.Get(i, "branch_code")),
			now,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < chunk.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return result, fmt.Errorf("insert account: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	result.Added = chunk.Len()
	return result, nil
}

func (l *Loader) modifyAccountChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	batch := &pgx.Batch{}
	keys := make([]string, chunk.Len())
	for i := 0; i < chunk.Len(); i++ {
		keys[i] = rows.Clean(chunk.Get(i, "account_id"))
		batch.Queue(accountModifySQL,
			keys[i],
			rows.ToPgText(chunk.Get(i, "account_number")),
			rows.ToPgText(chunk.Get(i, "account_holder_name")),
			rows.ToPgText(chunk.Get(i, "account_type")),
			rows.ToPgNumeric(chunk.Get(i, "balance")),
			rows.ToPgNumeric(chunk.Get(i, "eod_balance")),
			rows.ToPgText(chunk.Get(i, "currency")),
			rows.ToPgTimestamp(chunk.Get(i, "open_date")),
			rows.ToPgTimestamp(chunk.Get(i, "closed_date")),
			rows.ToPgText(chunk.Get(i, "branch_code")),
			now,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range keys {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return result, fmt.Errorf("modify account %q: %w", keys[i], err)
		}
		if tag.RowsAffected() == 0 {
			result.skip(chunk.Line(i), fmt.Sprintf("account %q not found for modify", keys[i]))
			continue
		}
		result.Modified++
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	return result, nil
}

func (l *Loader) deleteAccountChunk(ctx context.Context, tx database.DBTX, chunk *rows.Table, index int) (chunkResult, error) {
	result := chunkResult{Index: index}
	now := l.now()

	batch := &pgx.Batch{}
	keys := make([]string, chunk.Len())
	for i := 0; i < chunk.Len(); i++ {
		keys[i] = rows.Clean(chunk.Get(i, "account_id"))
		batch.Queue(accountCloseSQL, keys[i], now)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range keys {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return result, fmt.Errorf("close account %q: %w", keys[i], err)
		}
		if tag.RowsAffected() == 0 {
			result.skip(chunk.Line(i), fmt.Sprintf("account %q not found for delete", keys[i]))
			continue
		}
		result.Deleted++
	}
	if err := br.Close(); err != nil {
		return result, err
	}

	return result, nil
}
