package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
)

// ==================== Statement generation ====================

func TestTransactionStatementArity(t *testing.T) {
	if got, want := transactionInsertArity, len(transactionColumns); got != want {
		t.Errorf("insert arity = %d, want %d", got, want)
	}
	// UPDATE skips the natural key and created_date, adds one WHERE param.
	if got, want := transactionUpdateArity, len(transactionColumns)-len(updateSkip)+1; got != want {
		t.Errorf("update arity = %d, want %d", got, want)
	}

	if got := strings.Count(transactionInsertSQL, "$"); got != transactionInsertArity {
		t.Errorf("insert SQL has %d placeholders, want %d", got, transactionInsertArity)
	}
	if got := strings.Count(transactionUpdateSQL, "$"); got != transactionUpdateArity {
		t.Errorf("update SQL has %d placeholders, want %d", got, transactionUpdateArity)
	}
}

func TestTransactionStatementShape(t *testing.T) {
	if !strings.HasPrefix(transactionInsertSQL, "INSERT INTO transactions (customer_transaction_id, account_id,") {
		t.Errorf("unexpected insert SQL prefix: %s", transactionInsertSQL[:60])
	}
	if !strings.HasSuffix(transactionUpdateSQL, "WHERE customer_transaction_id = $51") {
		t.Errorf("unexpected update SQL suffix: %s", transactionUpdateSQL[len(transactionUpdateSQL)-50:])
	}
	for _, skipped := range []string{"customer_transaction_id =", "created_date ="} {
		if strings.Contains(strings.Split(transactionUpdateSQL, "WHERE")[0], skipped) {
			t.Errorf("update SET clause rewrites %q", skipped)
		}
	}
}

func TestTransactionColumnSourcesAreCanonical(t *testing.T) {
	canonical := make(map[string]bool)
	layout, err := schema.ByKind(rows.KindTransaction)
	if err != nil {
		t.Fatalf("ByKind: %v", err)
	}
	for _, name := range layout.Canonicals() {
		canonical[name] = true
	}

	for _, c := range transactionColumns {
		if c.Kind == colRaw {
			if c.Source != "" {
				t.Errorf("raw column %s has a source", c.Name)
			}
			continue
		}
		if !canonical[c.Source] {
			t.Errorf("column %s reads from unknown feed column %q", c.Name, c.Source)
		}
	}
}

// ==================== Parameter building ====================

func testTransactionTable(t *testing.T) *rows.Table {
	t.Helper()
	tab := rows.NewTable([]string{
		"transaction_id", "account_id", "transaction_date", "amount",
		"currency", "debit_credit_indicator", "counterparty_account",
	})
	tab.Append([]string{
		"TXN001", "ACC001", "2024-03-15 10:30:00", "250.00", "USD", "C", "CP100",
	}, 2)
	return tab
}

func TestTransactionInsertParams(t *testing.T) {
	tab := testTransactionTable(t)
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	raw := map[string]any{
		"customer_transaction_id":  "TXN001",
		"account_id":               int64(7),
		"customer_account_id":      "ACC001",
		"intermediary_1_entity_id": nil,
		"status":                   "Active",
		"batch_id":                 "batch-1",
		"created_date":             now,
		"update_date":              now,
	}

	params := transactionInsertParams(tab, 0, raw)
	if len(params) != transactionInsertArity {
		t.Fatalf("param count = %d, want %d", len(params), transactionInsertArity)
	}

	if params[0] != "TXN001" {
		t.Errorf("params[0] = %v, want TXN001", params[0])
	}
	if params[1] != int64(7) {
		t.Errorf("params[1] = %v, want 7", params[1])
	}

	ts, ok := params[4].(pgtype.Timestamp)
	if !ok || !ts.Valid {
		t.Fatalf("transaction_date param = %#v, want valid timestamp", params[4])
	}
	if ts.Time.Hour() != 10 || ts.Time.Minute() != 30 {
		t.Errorf("transaction_date = %v, want 10:30", ts.Time)
	}

	amount, ok := params[5].(pgtype.Numeric)
	if !ok || !amount.Valid {
		t.Fatalf("amount param = %#v, want valid numeric", params[5])
	}

	// Absent feed columns become invalid (NULL) values, not empty strings.
	for i, c := range transactionColumns {
		if c.Source == "narrative" {
			text, ok := params[i].(pgtype.Text)
			if !ok || text.Valid {
				t.Errorf("narrative param = %#v, want NULL text", params[i])
			}
		}
	}

	if params[len(params)-4] != "Active" {
		t.Errorf("status param = %v, want Active", params[len(params)-4])
	}
	if params[len(params)-3] != "batch-1" {
		t.Errorf("batch_id param = %v, want batch-1", params[len(params)-3])
	}
}

func TestTransactionUpdateParams(t *testing.T) {
	tab := testTransactionTable(t)
	now := time.Now()

	raw := map[string]any{
		"account_id":          int64(7),
		"customer_account_id": "ACC001",
		"status":              "Active",
		"batch_id":            "batch-1",
		"update_date":         now,
	}

	params := transactionUpdateParams(tab, 0, raw, "TXN001")
	if len(params) != transactionUpdateArity {
		t.Fatalf("param count = %d, want %d", len(params), transactionUpdateArity)
	}
	if params[len(params)-1] != "TXN001" {
		t.Errorf("WHERE param = %v, want TXN001", params[len(params)-1])
	}
}

// ==================== DDL alignment ====================

func TestSchemaDeclaresEveryTransactionColumn(t *testing.T) {
	ddl, err := os.ReadFile(filepath.Join("..", "..", "sql", "schema.sql"))
	if err != nil {
		t.Fatalf("read schema.sql: %v", err)
	}

	start := strings.Index(string(ddl), "CREATE TABLE IF NOT EXISTS transactions")
	if start < 0 {
		t.Fatal("transactions table not declared in schema.sql")
	}
	table := string(ddl)[start:]
	if end := strings.Index(table, ");"); end > 0 {
		table = table[:end]
	}

	for _, c := range transactionColumns {
		if !strings.Contains(table, "\n    "+c.Name+" ") {
			t.Errorf("column %s written by the generated INSERT is not declared in schema.sql", c.Name)
		}
	}
}
