package mapper

import (
	"testing"
	"time"

	"github.com/bliinkai/ingest/internal/rows"
)

// ============================================================================
// AutoMatch / MapDelimited Tests
// ============================================================================

func TestAutoMatch(t *testing.T) {
	header := []string{"ChangeType", "Customer ID", "CUSTOMER_TYPE", "unrelated"}

	got := AutoMatch(rows.KindCustomer, header)

	want := map[string]string{
		"changetype":    "ChangeType",
		"customer_id":   "Customer ID",
		"customer_type": "CUSTOMER_TYPE",
	}
	for canonical, src := range want {
		if got[canonical] != src {
			t.Errorf("AutoMatch[%q] = %q, want %q", canonical, got[canonical], src)
		}
	}
	if len(got) != len(want) {
		t.Errorf("AutoMatch matched %d columns, want %d: %v", len(got), len(want), got)
	}
}

func TestMapDelimited_AutoMatch(t *testing.T) {
	header := []string{"changetype", "Customer ID", "customer_type", "ignored"}
	records := [][]string{
		{"add", "CUST001", "Consumer", "x"},
		{"modify", "CUST002", "Business", "y"},
	}

	table, err := MapDelimited(rows.KindCustomer, header, records, nil)
	if err != nil {
		t.Fatalf("MapDelimited() error = %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2", table.Len())
	}
	if got := table.Get(0, "customer_id"); got != "CUST001" {
		t.Errorf("customer_id = %q, want CUST001", got)
	}
	if got := table.Get(1, "changetype"); got != "modify" {
		t.Errorf("changetype = %q, want modify", got)
	}
	// Unmapped canonicals present but null.
	if !table.HasColumn("first_name") {
		t.Error("first_name column missing from canonical table")
	}
	if got := table.Get(0, "first_name"); got != "" {
		t.Errorf("first_name = %q, want empty", got)
	}
	// Line numbers count the header as line 1.
	if got := table.Line(0); got != 2 {
		t.Errorf("Line(0) = %d, want 2", got)
	}
}

func TestMapDelimited_ExplicitMapping(t *testing.T) {
	header := []string{"op", "id", "kind"}
	records := [][]string{{"add", "CUST003", "Consumer"}}

	mapping := map[string]string{
		"changetype":    "op",
		"customer_id":   "id",
		"customer_type": "kind",
	}

	table, err := MapDelimited(rows.KindCustomer, header, records, mapping)
	if err != nil {
		t.Fatalf("MapDelimited() error = %v", err)
	}
	if got := table.Get(0, "customer_id"); got != "CUST003" {
		t.Errorf("customer_id = %q, want CUST003", got)
	}
}

func TestMapDelimited_BadMapping(t *testing.T) {
	_, err := MapDelimited(rows.KindCustomer, []string{"id"}, nil, map[string]string{
		"customer_id": "no_such_header",
	})
	if err == nil {
		t.Fatal("expected error for mapping to missing header")
	}
}

func TestMapDelimited_NullSentinels(t *testing.T) {
	header := []string{"changetype", "customer_id", "customer_type"}
	records := [][]string{{"add", "nan", "None"}}

	table, err := MapDelimited(rows.KindCustomer, header, records, nil)
	if err != nil {
		t.Fatalf("MapDelimited() error = %v", err)
	}
	if got := table.Get(0, "customer_id"); got != "" {
		t.Errorf("customer_id = %q, want empty for nan sentinel", got)
	}
	if got := table.Get(0, "customer_type"); got != "" {
		t.Errorf("customer_type = %q, want empty for None sentinel", got)
	}
}

// ============================================================================
// Customer derivation Tests
// ============================================================================

func TestDeriveCustomer(t *testing.T) {
	table := rows.NewTable([]string{"customer_id", "customer_name", "nationality", "document_type"})
	table.Append([]string{"CUST123CUSWBP", "John Smith", "00", "A"}, 1)
	table.Append([]string{"BIZ001TIDWBP", "Acme Holdings LLC", "GB", "L"}, 2)
	table.Append([]string{"RAW001", "Cher", "FR", "Z"}, 3)

	DeriveCustomer(table)

	// Consumer row: suffix stripped, name split, codes translated.
	if got := table.Get(0, "customer_id"); got != "CUST123" {
		t.Errorf("customer_id = %q, want CUST123", got)
	}
	if got := table.Get(0, "customer_type"); got != CustomerTypeConsumer {
		t.Errorf("customer_type = %q, want %q", got, CustomerTypeConsumer)
	}
	if got := table.Get(0, "first_name"); got != "John" {
		t.Errorf("first_name = %q, want John", got)
	}
	if got := table.Get(0, "last_name"); got != "Smith" {
		t.Errorf("last_name = %q, want Smith", got)
	}
	if got := table.Get(0, "nationality"); got != "US" {
		t.Errorf("nationality = %q, want US", got)
	}
	if got := table.Get(0, "document_type"); got != "Passport" {
		t.Errorf("document_type = %q, want Passport", got)
	}

	// Business suffix.
	if got := table.Get(1, "customer_id"); got != "BIZ001" {
		t.Errorf("customer_id = %q, want BIZ001", got)
	}
	if got := table.Get(1, "customer_type"); got != CustomerTypeBusiness {
		t.Errorf("customer_type = %q, want %q", got, CustomerTypeBusiness)
	}
	if got := table.Get(1, "last_name"); got != "Holdings LLC" {
		t.Errorf("last_name = %q, want remainder of name", got)
	}
	if got := table.Get(1, "document_type"); got != "Business License" {
		t.Errorf("document_type = %q, want Business License", got)
	}

	// No suffix: id unchanged, single-token name, unknown doc code kept.
	if got := table.Get(2, "customer_id"); got != "RAW001" {
		t.Errorf("customer_id = %q, want RAW001", got)
	}
	if got := table.Get(2, "first_name"); got != "Cher" {
		t.Errorf("first_name = %q, want Cher", got)
	}
	if got := table.Get(2, "last_name"); got != "" {
		t.Errorf("last_name = %q, want empty", got)
	}
	if got := table.Get(2, "document_type"); got != "Z" {
		t.Errorf("document_type = %q, want untranslated Z", got)
	}
}

func TestStripEntitySuffix(t *testing.T) {
	tests := []struct {
		id         string
		wantID     string
		wantSuffix string
	}{
		{"CUST123CUSWBP", "CUST123", "CUSWBP"},
		{"X1TIDWBP", "X1", "TIDWBP"},
		{"X2AIDWBP", "X2", "AIDWBP"},
		{"X3GRPWBP", "X3", "GRPWBP"},
		{"X4OWNWBP", "X4", "OWNWBP"},
		{"X5CHNWBP", "X5", "CHNWBP"},
		{"PLAIN", "PLAIN", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		gotID, gotSuffix := StripEntitySuffix(tt.id)
		if gotID != tt.wantID || gotSuffix != tt.wantSuffix {
			t.Errorf("StripEntitySuffix(%q) = %q, %q; want %q, %q", tt.id, gotID, gotSuffix, tt.wantID, tt.wantSuffix)
		}
	}
}

// ============================================================================
// Account derivation Tests
// ============================================================================

func TestDeriveAccount(t *testing.T) {
	table := rows.NewTable([]string{"account_id", "account_holder_name"})
	table.Append([]string{"SOUTHERNCONNECT2600352309BAWBP", "United Water"}, 1)
	table.Append([]string{"SHORTBAWBP", "Tiny"}, 2)

	DeriveAccount(table)

	if got := table.Get(0, "account_number"); got != "2600352309" {
		t.Errorf("account_number = %q, want 2600352309", got)
	}
	if got := table.Get(0, "customer_id"); got != "SOUTHERNCONNECT2600352309BAWBP" {
		t.Errorf("customer_id = %q, want the raw account id", got)
	}
	if got := table.Get(0, "entity_type"); got != "Biller" {
		t.Errorf("entity_type = %q, want Biller", got)
	}

	// Stripped id shorter than the institution prefix: empty number.
	if got := table.Get(1, "account_number"); got != "" {
		t.Errorf("account_number = %q, want empty for short id", got)
	}
}

// ============================================================================
// Transaction derivation Tests
// ============================================================================

func TestDeriveTransaction(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	table := rows.NewTable([]string{"transaction_id", "amount", "debit_credit_indicator", "transaction_date"})
	table.Append([]string{"T1", "150.00", "D", "20240105093015"}, 1)
	table.Append([]string{"T2", "-75.50", "C", "20240106120000"}, 2)
	table.Append([]string{"T3", "10", "", "20990101000000"}, 3)
	table.Append([]string{"T4", "", "", ""}, 4)

	future := DeriveTransaction(table, now)

	if got := table.Get(0, "debit_credit_indicator"); got != "C" {
		t.Errorf("row 0 indicator = %q, want C (positive amount)", got)
	}
	if got := table.Get(1, "debit_credit_indicator"); got != "D" {
		t.Errorf("row 1 indicator = %q, want D (negative amount)", got)
	}
	if got := table.Get(0, "transaction_date"); got != "2024-01-05 09:30:15" {
		t.Errorf("transaction_date = %q, want normalized timestamp", got)
	}
	if future != 1 {
		t.Errorf("future count = %d, want 1", future)
	}
	// Null amount leaves the indicator untouched.
	if got := table.Get(3, "debit_credit_indicator"); got != "" {
		t.Errorf("row 3 indicator = %q, want empty", got)
	}
}

// ============================================================================
// Name splitting Tests
// ============================================================================

func TestSplitAgentName(t *testing.T) {
	tests := []struct {
		in        string
		wantFirst string
		wantLast  string
	}{
		{"Smith, John", "John", "Smith"},
		{"John Smith", "John", "Smith"},
		{"Madonna", "Madonna", ""},
		{"de la Cruz, Maria", "Maria", "de la Cruz"},
		{"", "", ""},
	}

	for _, tt := range tests {
		first, last := SplitAgentName(tt.in)
		if first != tt.wantFirst || last != tt.wantLast {
			t.Errorf("SplitAgentName(%q) = %q, %q; want %q, %q", tt.in, first, last, tt.wantFirst, tt.wantLast)
		}
	}
}
