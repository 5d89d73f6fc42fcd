package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/internal/budget"
	"github.com/unite-hub/synthex-gateway/internal/catalog"
	"github.com/unite-hub/synthex-gateway/internal/dispatch"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// fakeDispatcher returns a canned result or error and captures the last
// request it saw.
type fakeDispatcher struct {
	result *dispatch.Result
	err    error
	last   dispatch.Request
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

const adminKey = "test-admin-key-123"

func newTestServer(t *testing.T, d Dispatcher) (*fakeDispatcher, http.Handler) {
	t.Helper()
	fd, _ := d.(*fakeDispatcher)
	guard := budget.NewGuard(budget.NewMemoryStore(), budget.Config{}, nil)
	h := NewHandlers(d, guard, catalog.Default(), nil, nil)
	return fd, NewRouter(h, RouterOptions{AdminAPIKey: adminKey})
}

func postRoute(t *testing.T, srv http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestRoute_Success(t *testing.T) {
	fd := &fakeDispatcher{result: &dispatch.Result{
		Text:         "summary text",
		ModelID:      "sherlock-dash-alpha",
		Provider:     models.ProviderOpenRouterFree,
		InputTokens:  120,
		OutputTokens: 40,
		CostUSD:      decimal.Zero,
		Attempts: []dispatch.Attempt{
			{ModelID: "sherlock-dash-alpha", Provider: models.ProviderOpenRouterFree, Outcome: models.OutcomeSuccess},
		},
	}}
	_, srv := newTestServer(t, fd)

	w := postRoute(t, srv, `{"task_type":"extract_intent","prompt":"classify this email"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshaling response: %v", err)
	}
	if resp["model_used"] != "sherlock-dash-alpha" {
		t.Errorf("expected model_used sherlock-dash-alpha, got %v", resp["model_used"])
	}
	if resp["result"] != "summary text" {
		t.Errorf("unexpected result: %v", resp["result"])
	}
}

func TestRoute_MissingPromptRejected(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	w := postRoute(t, srv, `{"task_type":"extract_intent"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing prompt, got %d", w.Code)
	}
}

func TestRoute_TenantPrecedence(t *testing.T) {
	fd := &fakeDispatcher{result: &dispatch.Result{ModelID: "m", CostUSD: decimal.Zero}}
	_, srv := newTestServer(t, fd)

	// Header only.
	postRoute(t, srv, `{"task_type":"extract_intent","prompt":"p"}`,
		map[string]string{"X-Tenant-ID": "header-tenant"})
	if fd.last.TenantID != "header-tenant" {
		t.Errorf("expected header tenant, got %q", fd.last.TenantID)
	}

	// Body overrides header.
	postRoute(t, srv, `{"task_type":"extract_intent","prompt":"p","tenant_id":"body-tenant"}`,
		map[string]string{"X-Tenant-ID": "header-tenant"})
	if fd.last.TenantID != "body-tenant" {
		t.Errorf("expected body tenant to win, got %q", fd.last.TenantID)
	}
}

func TestRoute_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKey  string
	}{
		{
			name:     "unknown task type",
			err:      fmt.Errorf("router: %q: %w", "bogus", models.ErrUnknownTaskType),
			wantCode: http.StatusBadRequest,
			wantKey:  "unknown_task_type",
		},
		{
			name:     "unknown preferred model",
			err:      fmt.Errorf("router: preferred model %q: %w", "bogus", models.ErrUnknownModel),
			wantCode: http.StatusBadRequest,
			wantKey:  "unknown_model",
		},
		{
			name:     "budget exhausted",
			err:      &dispatch.BudgetExhaustedError{TenantID: "t1"},
			wantCode: http.StatusPaymentRequired,
			wantKey:  "budget_exhausted",
		},
		{
			name:     "all providers exhausted",
			err:      &dispatch.ExhaustedError{},
			wantCode: http.StatusBadGateway,
			wantKey:  "all_providers_exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, &fakeDispatcher{err: tt.err})
			w := postRoute(t, srv, `{"task_type":"extract_intent","prompt":"p"}`, nil)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantKey) {
				t.Errorf("expected error key %q in body: %s", tt.wantKey, w.Body.String())
			}
		})
	}
}

func adminGet(srv http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestManagementAPI_RequiresAdminKey(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	if w := adminGet(srv, "/api/v1/models", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
	if w := adminGet(srv, "/api/v1/models", adminKey); w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestListModelsAndRoutes(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	w := adminGet(srv, "/api/v1/models", adminKey)
	var modelsResp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &modelsResp); err != nil {
		t.Fatalf("unmarshaling: %v", err)
	}
	if modelsResp.Count != len(catalog.DefaultProfiles()) {
		t.Errorf("expected %d models, got %d", len(catalog.DefaultProfiles()), modelsResp.Count)
	}

	w = adminGet(srv, "/api/v1/routes", adminKey)
	if !strings.Contains(w.Body.String(), "extract_intent") {
		t.Errorf("expected routes to include extract_intent: %s", w.Body.String())
	}
}

func TestBudgetEndpoints(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	// Fresh tenant starts open at the default ceiling.
	w := adminGet(srv, "/api/v1/budgets/acme", adminKey)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var ledger models.Ledger
	if err := json.Unmarshal(w.Body.Bytes(), &ledger); err != nil {
		t.Fatalf("unmarshaling ledger: %v", err)
	}
	if ledger.State != models.LedgerOpen {
		t.Errorf("expected open ledger, got %s", ledger.State)
	}
	if !ledger.CeilingUSD.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected default ceiling 25, got %s", ledger.CeilingUSD)
	}

	// Raise the ceiling and read it back.
	req := httptest.NewRequest(http.MethodPut, "/api/v1/budgets/acme", strings.NewReader(`{"ceiling_usd":100}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting ceiling, got %d: %s", rec.Code, rec.Body.String())
	}

	w = adminGet(srv, "/api/v1/budgets/acme", adminKey)
	if err := json.Unmarshal(w.Body.Bytes(), &ledger); err != nil {
		t.Fatalf("unmarshaling ledger: %v", err)
	}
	if !ledger.CeilingUSD.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected ceiling 100 after override, got %s", ledger.CeilingUSD)
	}

	// Non-positive ceilings are rejected.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/budgets/acme", strings.NewReader(`{"ceiling_usd":-5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", adminKey)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative ceiling, got %d", rec.Code)
	}
}

func TestUsageEndpointsWithoutDatabase(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	for _, path := range []string{"/api/v1/usage/summary", "/api/v1/usage/records", "/api/v1/insights", "/api/v1/report"} {
		if w := adminGet(srv, path, adminKey); w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 for %s without a database, got %d", path, w.Code)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	_, srv := newTestServer(t, &fakeDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("unexpected health body: %s", w.Body.String())
	}
}
