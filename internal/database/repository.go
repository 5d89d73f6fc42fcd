package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// InsertCallRecord stores one dispatch attempt record.
func (db *DB) InsertCallRecord(ctx context.Context, rec models.CallRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO call_records (
			id, tenant_id, task_type, model_id, provider,
			input_tokens, output_tokens, cost_usd, outcome,
			failure_reason, latency_ms, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, rec.ID, rec.TenantID, rec.TaskType, rec.ModelID, rec.Provider,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD.StringFixed(6), rec.Outcome,
		rec.FailureReason, rec.LatencyMs, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

// AddLedgerSpend increments the mirrored ledger row for a tenant and day,
// creating it when absent. The mirror serves reporting; the authoritative
// running total lives in the budget guard's store.
func (db *DB) AddLedgerSpend(ctx context.Context, tenantID, day string, spend, ceiling decimal.Decimal) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO budget_ledgers (tenant_id, day, spent_usd, ceiling_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, day) DO UPDATE
		SET spent_usd = budget_ledgers.spent_usd + EXCLUDED.spent_usd,
		    ceiling_usd = CASE WHEN EXCLUDED.ceiling_usd > 0
		                       THEN EXCLUDED.ceiling_usd
		                       ELSE budget_ledgers.ceiling_usd END,
		    updated_at = NOW()
	`, tenantID, day, spend.StringFixed(6), ceiling.StringFixed(6))
	if err != nil {
		return fmt.Errorf("adding ledger spend: %w", err)
	}
	return nil
}

// ListLedgerDays returns the most recent mirrored ledger rows for a tenant.
func (db *DB) ListLedgerDays(ctx context.Context, tenantID string, limit int) ([]models.Ledger, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT tenant_id, day, spent_usd::text, ceiling_usd::text, updated_at
		FROM budget_ledgers WHERE tenant_id = $1
		ORDER BY day DESC LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger days: %w", err)
	}
	defer rows.Close()

	var results []models.Ledger
	for rows.Next() {
		var l models.Ledger
		var spent, ceiling string
		if err := rows.Scan(&l.TenantID, &l.Day, &spent, &ceiling, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger: %w", err)
		}
		if l.SpentUSD, err = decimal.NewFromString(spent); err != nil {
			return nil, fmt.Errorf("parsing spent_usd: %w", err)
		}
		if l.CeilingUSD, err = decimal.NewFromString(ceiling); err != nil {
			return nil, fmt.Errorf("parsing ceiling_usd: %w", err)
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// GetSpendSummary returns aggregated spend grouped by a given dimension.
// Only whitelisted dimension values are accepted; all SQL identifiers are
// derived from the whitelisted map to prevent SQL injection.
func (db *DB) GetSpendSummary(ctx context.Context, dimension string, from, to time.Time) ([]models.SpendSummary, error) {
	// Whitelist: maps user-facing dimension names to SQL column identifiers.
	allowed := map[string]string{
		"tenant":    "tenant_id",
		"model":     "model_id",
		"provider":  "provider",
		"task_type": "task_type",
	}
	col, ok := allowed[dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported dimension: %s", dimension)
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS dimension_id,
			COALESCE(SUM(cost_usd), 0)::text AS total_cost_usd,
			COUNT(*) AS total_requests,
			COALESCE(SUM(input_tokens + output_tokens), 0) AS total_tokens,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms
		FROM call_records
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY %s
		ORDER BY SUM(cost_usd) DESC
	`, col, col)

	rows, err := db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying spend summary: %w", err)
	}
	defer rows.Close()

	var results []models.SpendSummary
	for rows.Next() {
		var s models.SpendSummary
		var cost string
		s.Dimension = dimension
		if err := rows.Scan(&s.DimensionID, &cost, &s.TotalRequests, &s.TotalTokens, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scanning spend summary: %w", err)
		}
		if s.TotalCostUSD, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parsing total_cost_usd: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// GetRecentRecords returns the most recent call records, optionally filtered
// by tenant.
func (db *DB) GetRecentRecords(ctx context.Context, tenantID string, limit int) ([]models.CallRecord, error) {
	var query string
	var args []interface{}

	const cols = `id, tenant_id, task_type, model_id, provider,
	       input_tokens, output_tokens, cost_usd::text, outcome,
	       failure_reason, latency_ms, timestamp`

	if tenantID != "" {
		query = `SELECT ` + cols + ` FROM call_records WHERE tenant_id = $1 ORDER BY timestamp DESC LIMIT $2`
		args = []interface{}{tenantID, limit}
	} else {
		query = `SELECT ` + cols + ` FROM call_records ORDER BY timestamp DESC LIMIT $1`
		args = []interface{}{limit}
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recent records: %w", err)
	}
	defer rows.Close()

	var results []models.CallRecord
	for rows.Next() {
		var r models.CallRecord
		var cost string
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.TaskType, &r.ModelID, &r.Provider,
			&r.InputTokens, &r.OutputTokens, &cost, &r.Outcome,
			&r.FailureReason, &r.LatencyMs, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning call record: %w", err)
		}
		if r.CostUSD, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parsing cost_usd: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
