package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestGuard(cfg Config, onWarning WarningFunc) (*Guard, *MemoryStore) {
	store := NewMemoryStore()
	g := NewGuard(store, cfg, onWarning)
	return g, store
}

func TestCheckAllowance_Allowed(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("20"), AlertFraction: 0.8}, nil)

	d, err := g.CheckAllowance(context.Background(), "t1", usd("0.10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Allowed {
		t.Errorf("expected Allowed, got %s", d)
	}
}

func TestCheckAllowance_BlockedNearCeiling(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("20"), AlertFraction: 0.8}, nil)

	if err := g.RecordSpend(context.Background(), "t1", usd("19.95")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := g.CheckAllowance(context.Background(), "t1", usd("0.10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Blocked {
		t.Errorf("expected Blocked when estimate overshoots ceiling, got %s", d)
	}
}

func TestCheckAllowance_WarningRegion(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)

	if err := g.RecordSpend(context.Background(), "t1", usd("7.99")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := g.CheckAllowance(context.Background(), "t1", usd("0.05"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != AllowedWithWarning {
		t.Errorf("expected AllowedWithWarning past threshold, got %s", d)
	}
}

func TestCheckAllowance_Idempotent(t *testing.T) {
	g, store := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)

	for i := 0; i < 5; i++ {
		if _, err := g.CheckAllowance(context.Background(), "t1", usd("1.00")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	spent, err := store.Spent(context.Background(), "t1", models.DayKey(time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spent != 0 {
		t.Errorf("allowance checks mutated the ledger: %d micros", spent)
	}
}

func TestLedger_StateTransitions(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)
	ctx := context.Background()

	assertState := func(want models.LedgerState) {
		t.Helper()
		l, err := g.Ledger(ctx, "t1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l.State != want {
			t.Fatalf("expected state %s, got %s (spent=%s)", want, l.State, l.SpentUSD)
		}
	}

	assertState(models.LedgerOpen)

	if err := g.RecordSpend(ctx, "t1", usd("8.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertState(models.LedgerWarning)

	if err := g.RecordSpend(ctx, "t1", usd("2.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertState(models.LedgerExceeded)
}

func TestRecordSpend_ZeroCostIgnored(t *testing.T) {
	g, store := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)

	if err := g.RecordSpend(context.Background(), "t1", decimal.Zero); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spent, _ := store.Spent(context.Background(), "t1", models.DayKey(time.Now()))
	if spent != 0 {
		t.Errorf("zero-cost spend should not touch the ledger, got %d micros", spent)
	}
}

func TestConcurrentRecordSpend_NoLostUpdates(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("100"), AlertFraction: 0.8}, nil)
	ctx := context.Background()

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := g.RecordSpend(ctx, "t1", usd("0.001")); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	l, err := g.Ledger(ctx, "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.SpentUSD.Equal(usd("1.000")) {
		t.Errorf("expected exactly $1.000 after %d increments, got %s", n, l.SpentUSD)
	}
}

func TestDayRollover_ResetsLedger(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 25, 23, 50, 0, 0, time.UTC)
	g.now = func() time.Time { return day1 }

	if err := g.RecordSpend(ctx, "t1", usd("10.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := g.CheckAllowance(ctx, "t1", usd("0.01"))
	if d != Blocked {
		t.Fatalf("expected Blocked at ceiling, got %s", d)
	}

	g.now = func() time.Time { return day1.Add(time.Hour) } // next UTC day
	d, err := g.CheckAllowance(ctx, "t1", usd("0.01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Allowed {
		t.Errorf("expected Allowed after day rollover, got %s", d)
	}
}

func TestCeilingFor_TenantOverride(t *testing.T) {
	g, _ := newTestGuard(Config{
		DefaultCeilingUSD: usd("25"),
		AlertFraction:     0.8,
		TenantCeilingsUSD: map[string]decimal.Decimal{"vip": usd("500")},
	}, nil)

	if c := g.CeilingFor("vip"); !c.Equal(usd("500")) {
		t.Errorf("expected configured ceiling 500, got %s", c)
	}
	if c := g.CeilingFor("other"); !c.Equal(usd("25")) {
		t.Errorf("expected default ceiling 25, got %s", c)
	}

	if err := g.SetCeiling("other", usd("50")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := g.CeilingFor("other"); !c.Equal(usd("50")) {
		t.Errorf("expected runtime override 50, got %s", c)
	}
}

func TestSetCeiling_RejectsNonPositive(t *testing.T) {
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("25"), AlertFraction: 0.8}, nil)
	if err := g.SetCeiling("t1", decimal.Zero); err == nil {
		t.Error("expected error for zero ceiling, got nil")
	}
}

func TestWarning_EmittedOncePerDay(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	g, _ := newTestGuard(Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8},
		func(tenantID string, l models.Ledger) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	ctx := context.Background()

	if err := g.RecordSpend(ctx, "t1", usd("9.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := g.CheckAllowance(ctx, "t1", usd("0.01")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected exactly one warning emission, got %d", calls)
	}
}

func TestCheckAllowance_FailOpen(t *testing.T) {
	g := NewGuard(failingStore{}, Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8, FailOpen: true}, nil)
	d, err := g.CheckAllowance(context.Background(), "t1", usd("1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != Allowed {
		t.Errorf("expected Allowed with fail-open store, got %s", d)
	}
}

func TestCheckAllowance_FailClosed(t *testing.T) {
	g := NewGuard(failingStore{}, Config{DefaultCeilingUSD: usd("10"), AlertFraction: 0.8}, nil)
	d, err := g.CheckAllowance(context.Background(), "t1", usd("1"))
	if err == nil {
		t.Fatal("expected error with fail-closed store, got nil")
	}
	if d != Blocked {
		t.Errorf("expected Blocked with fail-closed store, got %s", d)
	}
}

type failingStore struct{}

func (failingStore) Spent(context.Context, string, string) (int64, error) {
	return 0, context.DeadlineExceeded
}

func (failingStore) Add(context.Context, string, string, int64) (int64, error) {
	return 0, context.DeadlineExceeded
}
