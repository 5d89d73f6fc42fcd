package budget

import (
	"context"
	"sync"
)

// LedgerStore is the backing store for per-tenant per-day spend totals.
// Amounts are integer micro-USD. Add must be atomic: concurrent increments
// for the same (tenant, day) serialize with no lost updates.
type LedgerStore interface {
	// Spent returns the accumulated micro-USD for the tenant/day, 0 when no
	// spend has been recorded yet.
	Spent(ctx context.Context, tenantID, day string) (int64, error)
	// Add atomically increments the tenant/day total and returns the new value.
	Add(ctx context.Context, tenantID, day string, deltaMicros int64) (int64, error)
}

// MemoryStore is an in-process LedgerStore for tests and single-node
// deployments. A single mutex serializes all increments, which satisfies the
// per-tenant serialization requirement.
type MemoryStore struct {
	mu     sync.Mutex
	totals map[string]int64
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{totals: make(map[string]int64)}
}

func ledgerKey(tenantID, day string) string {
	return tenantID + ":" + day
}

// Spent implements LedgerStore.
func (s *MemoryStore) Spent(_ context.Context, tenantID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[ledgerKey(tenantID, day)], nil
}

// Add implements LedgerStore.
func (s *MemoryStore) Add(_ context.Context, tenantID, day string, deltaMicros int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey(tenantID, day)
	s.totals[key] += deltaMicros
	return s.totals[key], nil
}
