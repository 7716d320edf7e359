package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketsim/internal/market"
	"marketsim/internal/sim"
)

func TestPlaceOrderSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(sim.OrderResult{ID: "o1", CompanyID: "cobolt", Filled: 10, Price: 1000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	out, err := c.PlaceOrder(context.Background(), "cobolt", "buy", "key-1", 10)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if gotKey != "key-1" || gotPath != "/v1/orders" {
		t.Fatalf("unexpected request key=%q path=%q", gotKey, gotPath)
	}
	if gotBody["company_id"] != "cobolt" || gotBody["side"] != "buy" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if out.Filled != 10 || out.ID != "o1" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestAPIErrorsCarryStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"position limit reached"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PlaceOrder(context.Background(), "cobolt", "buy", "", 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsAPIError(err) || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected api status error, got %v", err)
	}
}

func TestNetworkErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Market(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsAPIError(err) {
		t.Fatalf("network failure classified as api error: %v", err)
	}
}

func TestCompanyAndPriceTickQueries(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		switch r.URL.Path {
		case "/v1/price/tick":
			_ = json.NewEncoder(w).Encode(market.TickResponse{})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"company": market.Company{ID: "cobolt"}})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	view, err := c.Company(context.Background(), "cobolt", 5)
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if view.Company.ID != "cobolt" {
		t.Fatalf("unexpected company: %+v", view.Company)
	}
	seed := int64(7)
	if _, err := c.PriceTick(context.Background(), market.TickRequest{}, &seed); err != nil {
		t.Fatalf("price tick: %v", err)
	}
	want := []string{"/v1/market/cobolt?limit=5", "/v1/price/tick?seed=7"}
	for i, q := range want {
		if queries[i] != q {
			t.Fatalf("request %d: expected %q, got %q", i, q, queries[i])
		}
	}
}

func TestReportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	prev := BaseDir
	BaseDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { BaseDir = prev })

	if _, err := LoadReport(); err == nil {
		t.Fatalf("expected error before any report is saved")
	}
	if err := SaveReport(RunReport{SessionID: "s1", Seed: 3, Ticks: 300, Index: 101.5}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadReport()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SessionID != "s1" || got.Ticks != 300 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if err := ClearReport(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearReport(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
