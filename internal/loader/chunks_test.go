package loader

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/database"
	"github.com/bliinkai/ingest/internal/rows"
)

func TestWorkerCount(t *testing.T) {
	tests := []struct {
		available int
		want      int
	}{
		{0, 2},
		{1, 2},
		{4, 2},
		{5, 2},
		{6, 3},
		{10, 5},
		{16, 8},
		{32, 8},
		{100, 8},
	}

	for _, tt := range tests {
		if got := workerCount(tt.available); got != tt.want {
			t.Errorf("workerCount(%d) = %d, want %d", tt.available, got, tt.want)
		}
	}
}

func TestSplitByIntent(t *testing.T) {
	tab := rows.NewTable([]string{"changetype", "customer_id"})
	tab.Append([]string{"A", "C1"}, 2)
	tab.Append([]string{"M", "C2"}, 3)
	tab.Append([]string{"D", "C3"}, 4)
	tab.Append([]string{"A", "C4"}, 5)
	tab.Append([]string{"X", "C5"}, 6)

	adds, modifies, deletes, bad := splitByIntent(tab)

	if adds.Len() != 2 {
		t.Errorf("adds = %d rows, want 2", adds.Len())
	}
	if modifies.Len() != 1 {
		t.Errorf("modifies = %d rows, want 1", modifies.Len())
	}
	if deletes.Len() != 1 {
		t.Errorf("deletes = %d rows, want 1", deletes.Len())
	}
	if len(bad) != 1 || bad[0] != 4 {
		t.Errorf("bad = %v, want [4]", bad)
	}

	if got := adds.Get(1, "customer_id"); got != "C4" {
		t.Errorf("adds[1] customer_id = %q, want C4", got)
	}
	if got := adds.Line(1); got != 5 {
		t.Errorf("adds[1] line = %d, want 5", got)
	}
}

func TestSplitByIntent_NoChangetypeColumn(t *testing.T) {
	tab := rows.NewTable([]string{"from_id", "to_id"})
	tab.Append([]string{"C1", "A1"}, 2)
	tab.Append([]string{"C2", "A2"}, 3)

	adds, modifies, deletes, bad := splitByIntent(tab)

	// Without a changetype column every row defaults to add.
	if adds.Len() != 2 || modifies.Len() != 0 || deletes.Len() != 0 || len(bad) != 0 {
		t.Errorf("got adds=%d modifies=%d deletes=%d bad=%d, want 2/0/0/0",
			adds.Len(), modifies.Len(), deletes.Len(), len(bad))
	}
}

func TestDistinctValues(t *testing.T) {
	tab := rows.NewTable([]string{"account_id"})
	tab.Append([]string{"A1"}, 2)
	tab.Append([]string{"A2"}, 3)
	tab.Append([]string{"A1"}, 4)
	tab.Append([]string{""}, 5)
	tab.Append([]string{"NULL"}, 6)
	tab.Append([]string{" A3 "}, 7)

	got := distinctValues(tab, "account_id")
	want := []string{"A1", "A2", "A3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("distinctValues = %v, want %v", got, want)
	}
}

func TestDistinctValues_MissingColumn(t *testing.T) {
	tab := rows.NewTable([]string{"other"})
	tab.Append([]string{"x"}, 2)

	if got := distinctValues(tab, "account_id"); got != nil {
		t.Errorf("distinctValues on missing column = %v, want nil", got)
	}
}

// ==================== Chunk failure isolation ====================

func TestFailedChunkResult(t *testing.T) {
	chunk := rows.NewTable([]string{"customer_id"})
	chunk.Append([]string{"C1"}, 4)
	chunk.Append([]string{"C2"}, 5)

	result := failedChunkResult(3, chunk, errors.New("deadlock detected"))

	if result.Index != 3 {
		t.Errorf("index = %d, want 3", result.Index)
	}
	if result.Added != 0 || result.Skipped != 0 {
		t.Errorf("counts = %d/%d, want 0/0", result.Added, result.Skipped)
	}
	// Every row of the rolled-back chunk gets an outcome.
	if len(result.FailedRows) != 2 {
		t.Fatalf("failed rows = %d, want 2", len(result.FailedRows))
	}
	if result.FailedRows[0].LineNumber != 4 || result.FailedRows[1].LineNumber != 5 {
		t.Errorf("failed lines = %d/%d, want 4/5",
			result.FailedRows[0].LineNumber, result.FailedRows[1].LineNumber)
	}
	if !strings.Contains(result.FailedRows[0].Reason, "deadlock detected") {
		t.Errorf("reason %q does not name the cause", result.FailedRows[0].Reason)
	}
}

func TestForEachChunkStopsAtBoundaryWhenCancelled(t *testing.T) {
	l := NewLoader(nil, config.LoadConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tab := rows.NewTable([]string{"customer_id"})
	tab.Append([]string{"C1"}, 2)

	sum := &Summary{}
	err := l.forEachChunk(ctx, tab, 1, sum, func(context.Context, database.DBTX, *rows.Table, int) (chunkResult, error) {
		t.Fatal("chunk started after cancellation")
		return chunkResult{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum.Loaded() != 0 || len(sum.FailedRows) != 0 {
		t.Errorf("cancelled run touched the summary: %+v", sum)
	}
}
