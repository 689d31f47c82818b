package loader

import (
	"strings"
	"testing"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/rows"
)

func testLoadConfig() config.LoadConfig {
	return config.LoadConfig{
		ChunkSize:            5000,
		TransactionChunkSize: 1000,
	}
}

// ==================== Summary ====================

func TestSummaryMerge(t *testing.T) {
	sum := &Summary{}
	sum.merge(chunkResult{Index: 1, Added: 10, Skipped: 2,
		FailedRows:  []FailedRow{{LineNumber: 7}},
		SkippedRows: []SkippedRow{{LineNumber: 8}, {LineNumber: 9}}})
	sum.merge(chunkResult{Index: 0, Modified: 3, Deleted: 1, FutureDated: 4})

	if sum.Added != 10 || sum.Modified != 3 || sum.Deleted != 1 {
		t.Errorf("counts = %d/%d/%d, want 10/3/1", sum.Added, sum.Modified, sum.Deleted)
	}
	if sum.Skipped != 2 || sum.FutureDated != 4 {
		t.Errorf("skipped=%d futureDated=%d, want 2/4", sum.Skipped, sum.FutureDated)
	}
	if sum.Loaded() != 14 {
		t.Errorf("Loaded = %d, want 14", sum.Loaded())
	}
	if len(sum.FailedRows) != 1 || len(sum.SkippedRows) != 2 {
		t.Errorf("failed=%d skipped records=%d, want 1/2",
			len(sum.FailedRows), len(sum.SkippedRows))
	}
}

func TestChunkResultSkip(t *testing.T) {
	result := chunkResult{}
	result.skip(12, `account "X" not found`)

	if result.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", result.Skipped)
	}
	if len(result.FailedRows) != 0 {
		t.Errorf("a skip produced %d failure records", len(result.FailedRows))
	}
	if len(result.SkippedRows) != 1 || result.SkippedRows[0].LineNumber != 12 {
		t.Fatalf("skipped rows = %+v, want one for line 12", result.SkippedRows)
	}
}

func TestLoadProgressPercent(t *testing.T) {
	tests := []struct {
		progress LoadProgress
		want     int
	}{
		{LoadProgress{TotalRows: 200, CurrentRow: 50}, 25},
		{LoadProgress{TotalRows: 0, CurrentRow: 50}, 0},
		{LoadProgress{TotalRows: 3, CurrentRow: 3}, 100},
	}
	for _, tt := range tests {
		if got := tt.progress.Percent(); got != tt.want {
			t.Errorf("Percent(%d/%d) = %d, want %d",
				tt.progress.CurrentRow, tt.progress.TotalRows, got, tt.want)
		}
	}
}

// ==================== Entity helpers ====================

func TestEntityType(t *testing.T) {
	tab := rows.NewTable([]string{"customer_type", "entity_type"})
	tab.Append([]string{"Consumer", ""}, 2)
	tab.Append([]string{"Business", ""}, 3)
	tab.Append([]string{"", ""}, 4)
	tab.Append([]string{"Consumer", "Biller"}, 5)

	wants := []string{"Consumer", "Business", "Consumer", "Biller"}
	for i, want := range wants {
		if got := entityType(tab, i); got != want {
			t.Errorf("row %d: entityType = %q, want %q", i, got, want)
		}
	}
}

func TestIsBusiness(t *testing.T) {
	tab := rows.NewTable([]string{"customer_type"})
	tab.Append([]string{"Business"}, 2)
	tab.Append([]string{"Consumer"}, 3)
	tab.Append([]string{""}, 4)

	if !isBusiness(tab, 0) {
		t.Error("Business row not recognized")
	}
	if isBusiness(tab, 1) || isBusiness(tab, 2) {
		t.Error("non-business row classified as business")
	}
}

func TestHasAnyValue(t *testing.T) {
	tab := rows.NewTable([]string{"city", "state", "postal_code"})
	tab.Append([]string{"", "NULL", ""}, 2)
	tab.Append([]string{"", "", "94105"}, 3)

	if hasAnyValue(tab, 0, "city", "state", "postal_code") {
		t.Error("row of nulls reported as having a value")
	}
	if !hasAnyValue(tab, 1, "city", "state", "postal_code") {
		t.Error("row with postal_code reported as empty")
	}
}

// ==================== List key ====================

func TestListKey(t *testing.T) {
	tab := rows.NewTable([]string{"notes", "category", "entity_type", "industry_code", "country", "payment_channel", "information_value"})
	tab.Append([]string{"n1", "fraud", "Business", "01", "US", "wire", "v1"}, 2)
	tab.Append([]string{"n1", "fraud", "Business", "01", "US", "wire", "v2"}, 3)
	tab.Append([]string{"n1", "fraud", "Business", "01", "US", "ach", "v3"}, 4)
	tab.Append([]string{"NULL", "fraud", "Business", "01", "US", "wire", "v4"}, 5)

	// Same entity part, different item values: keys match.
	if listKey(tab, 0) != listKey(tab, 1) {
		t.Error("rows differing only in item columns produced different keys")
	}
	if listKey(tab, 0) == listKey(tab, 2) {
		t.Error("rows differing in payment_channel produced the same key")
	}

	// Null sentinel folds to empty in the key.
	if !strings.HasPrefix(listKey(tab, 3), "\x1f") {
		t.Errorf("null notes did not fold to empty key part: %q", listKey(tab, 3))
	}
}

// ==================== Chunk sizing ====================

func TestLoaderChunkSizeDefaults(t *testing.T) {
	l := NewLoader(nil, config.LoadConfig{}, nil)
	if got := l.chunkSize(); got != 5000 {
		t.Errorf("chunkSize = %d, want 5000", got)
	}
	if got := l.transactionChunkSize(); got != 1000 {
		t.Errorf("transactionChunkSize = %d, want 1000", got)
	}

	l = NewLoader(nil, config.LoadConfig{ChunkSize: 100, TransactionChunkSize: 10}, nil)
	if got := l.chunkSize(); got != 100 {
		t.Errorf("chunkSize = %d, want 100", got)
	}
	if got := l.transactionChunkSize(); got != 10 {
		t.Errorf("transactionChunkSize = %d, want 10", got)
	}
}
