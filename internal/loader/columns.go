package loader

// columns.go is the single source of truth for the transactions table
// DML. The INSERT and UPDATE statements and their parameter lists are
// all generated from transactionColumns, so adding a feed column is a
// one-line change and statement arity can never drift from the column
// list.

import (
	"fmt"
	"strings"

	"github.com/bliinkai/ingest/internal/rows"
)

type columnKind int

const (
	colText columnKind = iota
	colTime
	colNumeric
	colRaw // value supplied by the loader, not converted from the row
)

type transactionColumn struct {
	Name   string
	Kind   columnKind
	Source string // feed column the value is read from; empty for colRaw
}

// transactionColumns lists every column written to the transactions
// table, in statement order. The leading four and trailing four are
// loader-supplied; the middle block mirrors the feed layout.
var transactionColumns = []transactionColumn{
	{Name: "customer_transaction_id", Kind: colRaw},
	{Name: "account_id", Kind: colRaw},
	{Name: "customer_account_id", Kind: colRaw},
	{Name: "intermediary_1_entity_id", Kind: colRaw},

	{Name: "transaction_date", Kind: colTime, Source: "transaction_date"},
	{Name: "amount", Kind: colNumeric, Source: "amount"},
	{Name: "currency", Kind: colText, Source: "currency"},
	{Name: "debit_credit_indicator", Kind: colText, Source: "debit_credit_indicator"},
	{Name: "transaction_type", Kind: colText, Source: "transaction_type"},
	{Name: "transaction_channel", Kind: colText, Source: "transaction_channel"},
	{Name: "counterparty_account", Kind: colText, Source: "counterparty_account"},
	{Name: "counterparty_name", Kind: colText, Source: "counterparty_name"},
	{Name: "counterparty_bank_code", Kind: colText, Source: "counterparty_bank_code"},
	{Name: "beneficiary_bank", Kind: colText, Source: "beneficiary_bank"},
	{Name: "intermediary_bank", Kind: colText, Source: "intermediary_bank"},
	{Name: "intermediary_1_id", Kind: colText, Source: "intermediary_1_id"},
	{Name: "transaction_field_15", Kind: colText, Source: "transaction_field_15"},
	{Name: "originator_account", Kind: colText, Source: "originator_account"},
	{Name: "originator_name", Kind: colText, Source: "originator_name"},
	{Name: "originator_bank", Kind: colText, Source: "originator_bank"},
	{Name: "purpose_code", Kind: colText, Source: "purpose_code"},
	{Name: "narrative", Kind: colText, Source: "narrative"},
	{Name: "reference_number", Kind: colText, Source: "reference_number"},
	{Name: "value_date", Kind: colTime, Source: "value_date"},
	{Name: "posting_date", Kind: colTime, Source: "posting_date"},
	{Name: "branch_code", Kind: colText, Source: "branch_code"},
	{Name: "teller_id", Kind: colText, Source: "teller_id"},
	{Name: "batch_number", Kind: colText, Source: "batch_number"},
	{Name: "check_number", Kind: colText, Source: "check_number"},
	{Name: "exchange_rate", Kind: colNumeric, Source: "exchange_rate"},
	{Name: "original_amount", Kind: colNumeric, Source: "original_amount"},
	{Name: "original_currency", Kind: colText, Source: "original_currency"},
	{Name: "fee_amount", Kind: colNumeric, Source: "fee_amount"},
	{Name: "tax_amount", Kind: colNumeric, Source: "tax_amount"},
	{Name: "merchant_category_code", Kind: colText, Source: "merchant_category_code"},
	{Name: "merchant_name", Kind: colText, Source: "merchant_name"},
	{Name: "merchant_country", Kind: colText, Source: "merchant_country"},
	{Name: "terminal_id", Kind: colText, Source: "terminal_id"},
	{Name: "card_number_masked", Kind: colText, Source: "card_number_masked"},
	{Name: "auth_code", Kind: colText, Source: "auth_code"},
	{Name: "device_id", Kind: colText, Source: "device_id"},
	{Name: "ip_address", Kind: colText, Source: "ip_address"},
	{Name: "location", Kind: colText, Source: "location"},
	{Name: "beneficiary_account", Kind: colText, Source: "beneficiary_account"},
	{Name: "beneficiary_name", Kind: colText, Source: "beneficiary_name"},
	{Name: "ordering_institution", Kind: colText, Source: "ordering_institution"},
	{Name: "instruction_code", Kind: colText, Source: "instruction_code"},
	{Name: "regulatory_reporting", Kind: colText, Source: "regulatory_reporting"},

	{Name: "status", Kind: colRaw},
	{Name: "batch_id", Kind: colRaw},
	{Name: "created_date", Kind: colRaw},
	{Name: "update_date", Kind: colRaw},
}

// updateSkip lists columns never rewritten by MODIFY: the natural key
// is the WHERE predicate and created_date is immutable.
var updateSkip = map[string]bool{
	"customer_transaction_id": true,
	"created_date":            true,
}

var (
	transactionInsertSQL string
	transactionUpdateSQL string

	transactionInsertArity int
	transactionUpdateArity int
)

func init() {
	transactionInsertSQL, transactionInsertArity = buildTransactionInsert()
	transactionUpdateSQL, transactionUpdateArity = buildTransactionUpdate()
}

func buildTransactionInsert() (string, int) {
	names := make([]string, len(transactionColumns))
	placeholders := make([]string, len(transactionColumns))
	for i, c := range transactionColumns {
		names[i] = c.Name
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(
		"INSERT INTO transactions (%s) VALUES (%s)",
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)
	return sql, len(transactionColumns)
}

func buildTransactionUpdate() (string, int) {
	var sets []string
	n := 0
	for _, c := range transactionColumns {
		if updateSkip[c.Name] {
			continue
		}
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, n))
	}
	n++
	sql := fmt.Sprintf(
		"UPDATE transactions SET %s WHERE customer_transaction_id = $%d",
		strings.Join(sets, ", "),
		n,
	)
	return sql, n
}

// transactionInsertParams builds the INSERT parameter slice for one row.
// raw holds the loader-supplied values keyed by column name; feed values
// are converted per column kind. The returned slice length always equals
// the generated statement's arity.
func transactionInsertParams(t *rows.Table, row int, raw map[string]any) []any {
	params := make([]any, 0, transactionInsertArity)
	for _, c := range transactionColumns {
		params = append(params, transactionValue(t, row, c, raw))
	}
	return params
}

// transactionUpdateParams builds the UPDATE parameter slice, ending with
// the natural key for the WHERE clause.
func transactionUpdateParams(t *rows.Table, row int, raw map[string]any, customerTransactionID string) []any {
	params := make([]any, 0, transactionUpdateArity)
	for _, c := range transactionColumns {
		if updateSkip[c.Name] {
			continue
		}
		params = append(params, transactionValue(t, row, c, raw))
	}
	return append(params, customerTransactionID)
}

func transactionValue(t *rows.Table, row int, c transactionColumn, raw map[string]any) any {
	if c.Kind == colRaw {
		return raw[c.Name]
	}
	v := t.Get(row, c.Source)
	switch c.Kind {
	case colTime:
		return rows.ToPgTimestamp(v)
	case colNumeric:
		return rows.ToPgNumeric(v)
	default:
		return rows.ToPgText(v)
	}
}
