// Package analytics generates cost insights over recorded usage.
//
// The engine processes call records to detect per-tenant spend spikes and to
// recommend cheaper models where a task's traffic runs on premium pricing.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/internal/catalog"
)

// InsightType categorizes the kind of insight generated.
type InsightType string

const (
	InsightCostSpike      InsightType = "cost_spike"
	InsightModelDowngrade InsightType = "model_downgrade"
)

// Severity indicates the urgency of an insight.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SpikeThreshold is the multiple of the rolling average at which a day's
// spend counts as a spike.
const SpikeThreshold = 2.0

// Insight represents an actionable recommendation or alert.
type Insight struct {
	ID              string      `json:"id"`
	Type            InsightType `json:"type"`
	Severity        Severity    `json:"severity"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	EstimatedSaving float64     `json:"estimated_saving"`
	AffectedEntity  string      `json:"affected_entity"`
	CreatedAt       time.Time   `json:"created_at"`
}

// InsightsEngine generates cost insights from the call-record store.
type InsightsEngine struct {
	pool    *pgxpool.Pool
	catalog *catalog.Catalog
}

// NewInsightsEngine creates an InsightsEngine. A nil pool disables queries;
// every method then returns empty results.
func NewInsightsEngine(pool *pgxpool.Pool, cat *catalog.Catalog) *InsightsEngine {
	return &InsightsEngine{pool: pool, catalog: cat}
}

// DetectSpikes identifies tenants whose daily spend exceeds their 7-day
// rolling average by SpikeThreshold.
func (e *InsightsEngine) DetectSpikes(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		WITH daily_costs AS (
			SELECT
				DATE(timestamp) AS day,
				tenant_id,
				SUM(cost_usd)::float8 AS daily_cost
			FROM call_records
			WHERE timestamp > NOW() - INTERVAL '14 days'
			GROUP BY DATE(timestamp), tenant_id
		),
		rolling_avg AS (
			SELECT
				day,
				tenant_id,
				daily_cost,
				AVG(daily_cost) OVER (
					PARTITION BY tenant_id
					ORDER BY day
					ROWS BETWEEN 7 PRECEDING AND 1 PRECEDING
				) AS avg_cost
			FROM daily_costs
		)
		SELECT day, tenant_id, daily_cost, avg_cost
		FROM rolling_avg
		WHERE daily_cost > avg_cost * $1
		  AND avg_cost > 0
		ORDER BY day DESC
		LIMIT 20
	`, SpikeThreshold)
	if err != nil {
		return nil, fmt.Errorf("detecting spikes: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var day time.Time
		var tenantID string
		var dailyCost, avgCost float64

		if err := rows.Scan(&day, &tenantID, &dailyCost, &avgCost); err != nil {
			return nil, fmt.Errorf("scanning spike row: %w", err)
		}

		spikeMultiple := dailyCost / avgCost
		severity := SeverityWarning
		if spikeMultiple > 5 {
			severity = SeverityCritical
		}

		insights = append(insights, Insight{
			ID:       fmt.Sprintf("spike-%s-%s", tenantID, day.Format("2006-01-02")),
			Type:     InsightCostSpike,
			Severity: severity,
			Title:    fmt.Sprintf("Spend spike detected for tenant %s", tenantID),
			Description: fmt.Sprintf(
				"On %s, tenant %s spent $%.4f, which is %.1fx the 7-day rolling average of $%.4f.",
				day.Format("Jan 2"), tenantID, dailyCost, spikeMultiple, avgCost,
			),
			EstimatedSaving: dailyCost - avgCost,
			AffectedEntity:  tenantID,
			CreatedAt:       time.Now(),
		})
	}

	return insights, rows.Err()
}

// downgradePairs maps premium models to the cheaper alternative the routing
// table already carries for comparable tasks.
var downgradePairs = map[string]string{
	"claude-opus-4":          "claude-sonnet-4",
	"claude-sonnet-4":        "gemini-2.0-flash",
	"gemini-2.0-flash":       "gemini-2.0-flash-lite",
	"llama-3.3-70b-instruct": "sherlock-dash-alpha",
}

// RecommendDowngrades identifies models whose recent successful traffic would
// have cost materially less on a cheaper catalog entry. Savings are computed
// from the catalog's actual per-token prices and the observed token volumes.
func (e *InsightsEngine) RecommendDowngrades(ctx context.Context) ([]Insight, error) {
	if e.pool == nil {
		return nil, nil
	}

	rows, err := e.pool.Query(ctx, `
		SELECT
			model_id,
			provider,
			COUNT(*) AS request_count,
			SUM(cost_usd)::float8 AS total_cost,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens
		FROM call_records
		WHERE timestamp > NOW() - INTERVAL '7 days'
		  AND outcome = 'success'
		GROUP BY model_id, provider
		HAVING SUM(cost_usd) > 1.0
		ORDER BY total_cost DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying model usage: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		var modelID, providerName string
		var reqCount, inTokens, outTokens int64
		var totalCost float64

		if err := rows.Scan(&modelID, &providerName, &reqCount, &totalCost, &inTokens, &outTokens); err != nil {
			return nil, fmt.Errorf("scanning model usage: %w", err)
		}

		cheaperID, ok := downgradePairs[modelID]
		if !ok {
			continue
		}
		saving, ok := e.replaySaving(modelID, cheaperID, inTokens, outTokens)
		if !ok || !saving.IsPositive() {
			continue
		}

		savingF, _ := saving.Round(2).Float64()
		insights = append(insights, Insight{
			ID:       fmt.Sprintf("downgrade-%s-%s", providerName, modelID),
			Type:     InsightModelDowngrade,
			Severity: SeverityInfo,
			Title:    fmt.Sprintf("Consider routing %s traffic to %s", modelID, cheaperID),
			Description: fmt.Sprintf(
				"You spent $%.2f on %s over the last 7 days (%d successful calls). "+
					"The same token volume on %s would have cost ~$%.2f less.",
				totalCost, modelID, reqCount, cheaperID, savingF,
			),
			EstimatedSaving: savingF,
			AffectedEntity:  modelID,
			CreatedAt:       time.Now(),
		})
	}

	return insights, rows.Err()
}

// replaySaving prices the same token volume on both models and returns the
// difference.
func (e *InsightsEngine) replaySaving(fromID, toID string, inTokens, outTokens int64) (decimal.Decimal, bool) {
	from, ok := e.catalog.Profile(fromID)
	if !ok {
		return decimal.Zero, false
	}
	to, ok := e.catalog.Profile(toID)
	if !ok {
		return decimal.Zero, false
	}
	in := decimal.NewFromInt(inTokens).Shift(-6)
	out := decimal.NewFromInt(outTokens).Shift(-6)

	fromCost := in.Mul(from.InputPerMTokens).Add(out.Mul(from.OutputPerMTokens))
	toCost := in.Mul(to.InputPerMTokens).Add(out.Mul(to.OutputPerMTokens))
	return fromCost.Sub(toCost), true
}

// Report is a summary of usage and costs over a time period.
type Report struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	TotalRequests int64     `json:"total_requests"`
	TotalTokens   int64     `json:"total_tokens"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	FailedCalls   int64     `json:"failed_calls"`
	BudgetSkips   int64     `json:"budget_skips"`
}

// GenerateReport creates a summary report for a given time period.
func (e *InsightsEngine) GenerateReport(ctx context.Context, from, to time.Time) (*Report, error) {
	if e.pool == nil {
		return nil, nil
	}

	report := Report{From: from, To: to}
	err := e.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(cost_usd), 0)::float8,
			COUNT(*),
			COALESCE(SUM(input_tokens + output_tokens), 0),
			COALESCE(AVG(latency_ms), 0),
			COUNT(*) FILTER (WHERE outcome = 'failure'),
			COUNT(*) FILTER (WHERE outcome = 'skipped_budget_exceeded')
		FROM call_records
		WHERE timestamp >= $1 AND timestamp <= $2
	`, from, to).Scan(
		&report.TotalCostUSD,
		&report.TotalRequests,
		&report.TotalTokens,
		&report.AvgLatencyMs,
		&report.FailedCalls,
		&report.BudgetSkips,
	)
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	return &report, nil
}
