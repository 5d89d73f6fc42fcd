// Package budget enforces per-tenant daily spend ceilings.
//
// The guard keeps one ledger per (tenant, UTC day). Checking an allowance is
// read-only and idempotent; spend is recorded only after a successful call,
// through the store's atomic increment so concurrent dispatches for the same
// tenant never lose updates. Ledgers reset implicitly at day rollover.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Decision is the outcome of an allowance check.
type Decision string

const (
	Allowed            Decision = "allowed"
	AllowedWithWarning Decision = "allowed_with_warning"
	Blocked            Decision = "blocked"
)

// Config holds the guard's enforcement parameters.
type Config struct {
	// DefaultCeilingUSD applies to tenants without an explicit override.
	DefaultCeilingUSD decimal.Decimal
	// AlertFraction of the ceiling at which AllowedWithWarning is returned, in (0,1].
	AlertFraction float64
	// TenantCeilingsUSD overrides the default ceiling per tenant.
	TenantCeilingsUSD map[string]decimal.Decimal
	// FailOpen allows requests through when the ledger store is unreachable.
	FailOpen bool
}

// WarningFunc is invoked (best effort, at most once per tenant per day) when a
// tenant first crosses the alert threshold.
type WarningFunc func(tenantID string, ledger models.Ledger)

// Guard decides whether calls may proceed and accounts completed spend.
type Guard struct {
	store     LedgerStore
	cfg       Config
	onWarning WarningFunc
	now       func() time.Time

	mu        sync.Mutex
	overrides map[string]decimal.Decimal // runtime ceiling overrides, tenant -> USD
	warned    map[string]struct{}        // tenant:day pairs already alerted
}

// NewGuard creates a Guard over the given ledger store. onWarning may be nil.
func NewGuard(store LedgerStore, cfg Config, onWarning WarningFunc) *Guard {
	if cfg.AlertFraction <= 0 || cfg.AlertFraction > 1 {
		cfg.AlertFraction = 0.8
	}
	if cfg.DefaultCeilingUSD.LessThanOrEqual(decimal.Zero) {
		cfg.DefaultCeilingUSD = decimal.NewFromInt(25)
	}
	return &Guard{
		store:     store,
		cfg:       cfg,
		onWarning: onWarning,
		now:       time.Now,
		overrides: make(map[string]decimal.Decimal),
		warned:    make(map[string]struct{}),
	}
}

// CheckAllowance reports whether a call with the given pessimistic cost
// estimate may proceed for the tenant today. It never mutates the ledger, so
// repeated checks without an intervening RecordSpend are side-effect free.
func (g *Guard) CheckAllowance(ctx context.Context, tenantID string, estimateUSD decimal.Decimal) (Decision, error) {
	day := models.DayKey(g.now())

	spent, err := g.store.Spent(ctx, tenantID, day)
	if err != nil {
		if g.cfg.FailOpen {
			log.Warnf("budget: ledger store unavailable for tenant=%s, failing open: %v", tenantID, err)
			return Allowed, nil
		}
		return Blocked, fmt.Errorf("budget: reading ledger for tenant %s: %w", tenantID, err)
	}

	ceiling := models.MicrosFromUSD(g.CeilingFor(tenantID))
	projected := spent + models.MicrosFromUSD(estimateUSD)

	if projected > ceiling {
		return Blocked, nil
	}
	if projected >= g.warnThreshold(ceiling) {
		g.emitWarning(tenantID, day, spent, ceiling)
		return AllowedWithWarning, nil
	}
	return Allowed, nil
}

// RecordSpend atomically adds a completed call's cost to today's ledger.
// Called exactly once per successful dispatch attempt.
func (g *Guard) RecordSpend(ctx context.Context, tenantID string, costUSD decimal.Decimal) error {
	if costUSD.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	day := models.DayKey(g.now())
	if _, err := g.store.Add(ctx, tenantID, day, models.MicrosFromUSD(costUSD)); err != nil {
		return fmt.Errorf("budget: recording spend for tenant %s: %w", tenantID, err)
	}
	return nil
}

// Ledger returns the tenant's current-day ledger with its derived state.
func (g *Guard) Ledger(ctx context.Context, tenantID string) (models.Ledger, error) {
	day := models.DayKey(g.now())
	spent, err := g.store.Spent(ctx, tenantID, day)
	if err != nil {
		return models.Ledger{}, fmt.Errorf("budget: reading ledger for tenant %s: %w", tenantID, err)
	}
	ceiling := models.MicrosFromUSD(g.CeilingFor(tenantID))
	return models.Ledger{
		TenantID:      tenantID,
		Day:           day,
		SpentUSD:      models.USDFromMicros(spent),
		CeilingUSD:    models.USDFromMicros(ceiling),
		AlertFraction: g.cfg.AlertFraction,
		State:         g.state(spent, ceiling),
		UpdatedAt:     g.now().UTC(),
	}, nil
}

// CeilingFor returns the tenant's daily ceiling: runtime override, else
// configured per-tenant ceiling, else the global default.
func (g *Guard) CeilingFor(tenantID string) decimal.Decimal {
	g.mu.Lock()
	override, ok := g.overrides[tenantID]
	g.mu.Unlock()
	if ok {
		return override
	}
	if c, ok := g.cfg.TenantCeilingsUSD[tenantID]; ok {
		return c
	}
	return g.cfg.DefaultCeilingUSD
}

// SetCeiling installs a runtime ceiling override for a tenant.
func (g *Guard) SetCeiling(tenantID string, ceilingUSD decimal.Decimal) error {
	if ceilingUSD.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("budget: ceiling must be positive, got %s", ceilingUSD)
	}
	g.mu.Lock()
	g.overrides[tenantID] = ceilingUSD
	g.mu.Unlock()
	return nil
}

func (g *Guard) state(spentMicros, ceilingMicros int64) models.LedgerState {
	switch {
	case spentMicros >= ceilingMicros:
		return models.LedgerExceeded
	case spentMicros >= g.warnThreshold(ceilingMicros):
		return models.LedgerWarning
	default:
		return models.LedgerOpen
	}
}

func (g *Guard) warnThreshold(ceilingMicros int64) int64 {
	return int64(g.cfg.AlertFraction * float64(ceilingMicros))
}

func (g *Guard) emitWarning(tenantID, day string, spentMicros, ceilingMicros int64) {
	if g.onWarning == nil {
		return
	}
	key := tenantID + ":" + day
	g.mu.Lock()
	if _, seen := g.warned[key]; seen {
		g.mu.Unlock()
		return
	}
	g.warned[key] = struct{}{}
	g.mu.Unlock()

	g.onWarning(tenantID, models.Ledger{
		TenantID:      tenantID,
		Day:           day,
		SpentUSD:      models.USDFromMicros(spentMicros),
		CeilingUSD:    models.USDFromMicros(ceilingMicros),
		AlertFraction: g.cfg.AlertFraction,
		State:         models.LedgerWarning,
	})
}
