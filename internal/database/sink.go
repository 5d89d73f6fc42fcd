package database

import (
	"context"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// RecordSink adapts the database to the usage logger's sink interface. Besides
// appending the call record it mirrors successful spend into the ledger table
// so reporting queries do not depend on the live budget store.
type RecordSink struct {
	DB *DB

	// CeilingFor supplies the tenant's current ceiling for the mirrored row.
	// Optional; when nil the mirror keeps its last known ceiling.
	CeilingFor func(tenantID string) decimal.Decimal
}

// Append implements usage.Sink.
func (s *RecordSink) Append(ctx context.Context, rec models.CallRecord) error {
	if err := s.DB.InsertCallRecord(ctx, rec); err != nil {
		return err
	}

	if rec.Outcome != models.OutcomeSuccess || !rec.CostUSD.IsPositive() {
		return nil
	}

	ceiling := decimal.Zero
	if s.CeilingFor != nil {
		ceiling = s.CeilingFor(rec.TenantID)
	}
	day := models.DayKey(rec.Timestamp)
	if err := s.DB.AddLedgerSpend(ctx, rec.TenantID, day, rec.CostUSD, ceiling); err != nil {
		// The mirror is best-effort; the record itself is already stored.
		log.Warnf("database: mirroring ledger for tenant=%s day=%s: %v", rec.TenantID, day, err)
	}
	return nil
}
