package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/loader"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Load.MaxFileSize = 1 << 20
	return NewServer(nil, cfg, nil)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestListKinds(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/kinds", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var kinds []struct {
		Kind     string   `json:"kind"`
		Columns  []string `json:"columns"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &kinds); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(kinds) != 5 {
		t.Fatalf("got %d kinds, want 5", len(kinds))
	}

	byKind := make(map[string]bool)
	for _, k := range kinds {
		byKind[k.Kind] = true
		if len(k.Columns) == 0 {
			t.Errorf("kind %s has no columns", k.Kind)
		}
	}
	for _, want := range []string{"customer", "account", "transaction", "relationship", "list"} {
		if !byKind[want] {
			t.Errorf("missing kind %q", want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want 429", rec.Code)
	}

	// A different IP gets its own bucket.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh IP status = %d, want 200", rec.Code)
	}
}

func TestToResponse(t *testing.T) {
	sum := &loader.Summary{
		LoadID:      "id-1",
		Kind:        "transaction",
		FileName:    "TRANSACTION_20240601_00001.TXT",
		BatchID:     "batch-1",
		TotalRows:   100,
		Added:       90,
		Modified:    3,
		Deleted:     2,
		Skipped:     4,
		FutureDated: 1,
		FailedRows:  []loader.FailedRow{{LineNumber: 12, Reason: "account missing"}},
		SkippedRows: []loader.SkippedRow{{LineNumber: 40, Reason: `account "NOT_THERE" not found`}},
		Duration:    1500 * time.Millisecond,
	}

	resp := toResponse(sum)
	if resp.Added != 90 || resp.Modified != 3 || resp.Deleted != 2 {
		t.Errorf("counts = %d/%d/%d, want 90/3/2", resp.Added, resp.Modified, resp.Deleted)
	}
	if resp.Failed != 1 {
		t.Errorf("failed = %d, want 1", resp.Failed)
	}
	if resp.DurationMS != 1500 {
		t.Errorf("duration_ms = %d, want 1500", resp.DurationMS)
	}
	if len(resp.SkippedRows) != 1 || resp.SkippedRows[0].LineNumber != 40 {
		t.Fatalf("skipped rows = %+v, want one for line 40", resp.SkippedRows)
	}
}

func TestToResponseSkipsAreNotFailures(t *testing.T) {
	sum := &loader.Summary{
		LoadID:      "id-2",
		Kind:        "transaction",
		TotalRows:   1,
		Skipped:     1,
		SkippedRows: []loader.SkippedRow{{LineNumber: 2, Reason: `account "NOT_THERE" not found`}},
	}

	resp := toResponse(sum)
	if resp.Failed != 0 {
		t.Errorf("failed = %d, want 0", resp.Failed)
	}
	if resp.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", resp.Skipped)
	}
	if resp.Added != 0 || resp.Modified != 0 || resp.Deleted != 0 {
		t.Errorf("loaded counts = %d/%d/%d, want all zero", resp.Added, resp.Modified, resp.Deleted)
	}
}
