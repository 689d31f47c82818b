package loader

import (
	"strings"
	"sync"
	"testing"

	"github.com/bliinkai/ingest/internal/rows"
)

func TestValidationFailuresRejectInvalidRows(t *testing.T) {
	tab := rows.NewTable([]string{"changetype", "customer_id", "customer_type"})
	tab.Append([]string{"A", "C1", "Consumer"}, 2)
	tab.Append([]string{"A", "", "Consumer"}, 3) // missing required customer_id
	tab.Append([]string{"A", "C3", "Business"}, 4)

	failed := validationFailures(rows.KindCustomer, tab, "customers.csv")

	// One invalid row is enough to reject the batch whole.
	if len(failed) != 1 {
		t.Fatalf("failed = %d rows, want 1", len(failed))
	}
	if failed[0].LineNumber != 3 {
		t.Errorf("failed line = %d, want 3", failed[0].LineNumber)
	}
	if failed[0].FileName != "customers.csv" {
		t.Errorf("failed file = %q, want customers.csv", failed[0].FileName)
	}
	if !strings.Contains(failed[0].Reason, "customer_id") {
		t.Errorf("failed reason %q does not name the field", failed[0].Reason)
	}
}

func TestValidationFailures_AllValid(t *testing.T) {
	tab := rows.NewTable([]string{"changetype", "customer_id", "customer_type"})
	tab.Append([]string{"A", "C1", "Consumer"}, 2)

	if failed := validationFailures(rows.KindCustomer, tab, "customers.csv"); failed != nil {
		t.Errorf("failed = %v, want nil", failed)
	}
}

func TestProgressReadsConcurrentWithPhaseUpdates(t *testing.T) {
	s := &Service{loads: make(map[string]*activeLoad)}
	load := &activeLoad{ID: "L1", Progress: LoadProgress{LoadID: "L1", Phase: PhaseStarting}}
	s.loads["L1"] = load

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.setPhase(load, PhaseLoading, func(p *LoadProgress) { p.CurrentRow = i })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if _, err := s.Progress("L1"); err != nil {
				t.Errorf("Progress: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}
