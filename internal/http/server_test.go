package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"potledger/internal/clock"
	"potledger/internal/services"
	"potledger/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	gate := services.NewRolloverGate()
	ledger := services.NewPotLedger(repo, gate)
	// A deliberately non-wall-clock year so defaults taken from the real
	// clock show up as failures.
	clk := clock.Fixed{T: time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC)}
	coordinator := services.NewPeriodRolloverCoordinator(repo, gate, clk, nil)

	srv := NewServer(":0",
		services.NewPotService(repo),
		services.NewTransactionService(repo, ledger),
		services.NewHistoryService(repo),
		coordinator,
		clk)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndListPots(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/pots/spending", map[string]any{
		"name":                "Groceries",
		"allocated_cents":     30000,
		"rollover_by_default": false,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pot = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		ID        string `json:"id"`
		LeftCents int64  `json:"left_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.LeftCents != 30000 {
		t.Errorf("left = %d, want full allocation", created.LeftCents)
	}

	// Duplicate names are a validation failure.
	rec = doJSON(t, srv, http.MethodPost, "/api/pots/spending", map[string]any{
		"name": "Groceries",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate name = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/pots", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list pots = %d", rec.Code)
	}
	var overview struct {
		Spending []json.RawMessage `json:"spending_pots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(overview.Spending) != 1 {
		t.Errorf("spending pots = %d, want 1", len(overview.Spending))
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/pots/spending/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get pot = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/pots/spending/pot_ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing pot = %d, want 404", rec.Code)
	}
}

func TestRolloverEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/pots/spending", map[string]any{
		"name": "Groceries", "allocated_cents": 0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pot = %d", rec.Code)
	}
	var pot struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &pot); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Missing allocation for an existing pot is rejected.
	rec = doJSON(t, srv, http.MethodPost, "/api/periods/rollover", map[string]any{
		"income_cents": 250000,
		"allocations":  map[string]int64{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing allocation = %d, want 400: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/periods/rollover", map[string]any{
		"income_cents": 250000,
		"allocations":  map[string]int64{pot.ID: 30000},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rollover = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/pots", nil)
	var overview struct {
		Period *struct {
			IncomeCents int64 `json:"income_cents"`
		} `json:"period"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &overview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if overview.Period == nil || overview.Period.IncomeCents != 250000 {
		t.Errorf("period = %+v, want open period with income", overview.Period)
	}
}

func TestDecimalMoneyInputs(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/pots/spending", map[string]any{
		"name":      "Groceries",
		"allocated": "150.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pot = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		AllocatedCents int64 `json:"allocated_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.AllocatedCents != 15000 {
		t.Errorf("allocated = %d, want 15000", created.AllocatedCents)
	}

	// Comma separator is accepted too.
	rec = doJSON(t, srv, http.MethodPost, "/api/pots/savings", map[string]any{
		"name":          "Holiday",
		"balance":       "1000,50",
		"amount_to_add": "100.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create savings pot = %d: %s", rec.Code, rec.Body)
	}
	var sav struct {
		BalanceCents     int64 `json:"balance_cents"`
		AmountToAddCents int64 `json:"amount_to_add_cents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sav); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sav.BalanceCents != 100050 || sav.AmountToAddCents != 10000 {
		t.Errorf("savings = %+v, want 100050 / 10000", sav)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/pots/spending", map[string]any{
		"name":      "Broken",
		"allocated": "12.3.4",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed decimal = %d, want 400", rec.Code)
	}
}

func TestYearlyDefaultsToInjectedClockYear(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/periods/yearly", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("yearly = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Year int `json:"year"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Year != 2030 {
		t.Errorf("year = %d, want 2030 from the injected clock", resp.Year)
	}
}

func TestUpdateTransactionEndpointErrors(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/transactions/tx_ghost/pot", map[string]any{
		"pot_id": nil,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing transaction = %d, want 404", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions/tx_ghost/subscription", map[string]any{
		"frequency": "fortnightly",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad frequency = %d, want 400", rec.Code)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/rules", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want 400", rec.Code)
	}
}

func TestSecurityHeadersAndRateLimit(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/pots", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}

	// Burst past the write limiter from one address.
	var limited bool
	for i := 0; i < 20; i++ {
		body := map[string]any{"name": fmt.Sprintf("Pot %d", i)}
		rec := doJSON(t, srv, http.MethodPost, "/api/pots/spending", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("write burst was never rate limited")
	}
}
