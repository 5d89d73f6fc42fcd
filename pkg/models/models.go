// Package models defines the core data structures shared across the Synthex AI Gateway.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a provider family a model is dispatched through.
type Provider string

const (
	ProviderOpenRouterFree   Provider = "openrouter_free"
	ProviderOpenRouterBudget Provider = "openrouter_budget"
	ProviderAnthropic        Provider = "anthropic"
	ProviderGemini           Provider = "gemini"
)

// TaskType is a caller-declared category of AI work used to select a routing
// policy. The constants below cover the built-in routes; configuration may
// define additional custom keys.
type TaskType string

const (
	TaskExtractIntent   TaskType = "extract_intent"
	TaskGeneratePersona TaskType = "generate_persona"
	TaskGenerateContent TaskType = "generate_content"
	TaskSecurityAudit   TaskType = "security_audit"
)

// ModelProfile describes one routable model. Profiles are loaded from
// configuration at startup and never mutated afterwards.
type ModelProfile struct {
	ID                  string          `json:"id"`
	Provider            Provider        `json:"provider"`
	InputPerMTokens     decimal.Decimal `json:"input_per_m_tokens"`  // USD per 1M input tokens
	OutputPerMTokens    decimal.Decimal `json:"output_per_m_tokens"` // USD per 1M output tokens
	ContextWindowTokens int             `json:"context_window_tokens"`
	MaxOutputTokens     int             `json:"max_output_tokens"`
	SupportsThinking    bool            `json:"supports_thinking"`
}

// TaskRoute maps a task type to its ordered model candidates,
// highest priority (usually cheapest) first.
type TaskRoute struct {
	TaskType   TaskType `json:"task_type"`
	Candidates []string `json:"candidates"` // ModelProfile IDs
}

// LedgerState classifies a tenant's position against its daily ceiling.
type LedgerState string

const (
	LedgerOpen     LedgerState = "open"
	LedgerWarning  LedgerState = "warning"
	LedgerExceeded LedgerState = "exceeded"
)

// Ledger is the per-tenant, per-UTC-day running spend total consulted by the
// budget guard. Spend only increases within a day; a new day starts a fresh row.
type Ledger struct {
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	Day           string          `json:"day" db:"day"` // UTC calendar day, "2006-01-02"
	SpentUSD      decimal.Decimal `json:"spent_usd" db:"spent_usd"`
	CeilingUSD    decimal.Decimal `json:"ceiling_usd" db:"ceiling_usd"`
	AlertFraction float64         `json:"alert_fraction" db:"alert_fraction"`
	State         LedgerState     `json:"state"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// CallOutcome records how a single dispatch attempt ended.
type CallOutcome string

const (
	OutcomeSuccess       CallOutcome = "success"
	OutcomeFailure       CallOutcome = "failure"
	OutcomeSkippedBudget CallOutcome = "skipped_budget_exceeded"
)

// CallRecord is the append-only usage log entry produced once per dispatch
// attempt. Prompt and response content are never stored.
type CallRecord struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	TaskType      TaskType        `json:"task_type" db:"task_type"`
	ModelID       string          `json:"model_id" db:"model_id"`
	Provider      Provider        `json:"provider" db:"provider"`
	InputTokens   int64           `json:"input_tokens" db:"input_tokens"`
	OutputTokens  int64           `json:"output_tokens" db:"output_tokens"`
	CostUSD       decimal.Decimal `json:"cost_usd" db:"cost_usd"`
	Outcome       CallOutcome     `json:"outcome" db:"outcome"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	LatencyMs     int64           `json:"latency_ms" db:"latency_ms"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// SpendSummary provides aggregated usage data for a given dimension and period.
type SpendSummary struct {
	Dimension     string          `json:"dimension"` // "tenant", "model", "provider", "task_type"
	DimensionID   string          `json:"dimension_id"`
	TotalCostUSD  decimal.Decimal `json:"total_cost_usd"`
	TotalRequests int64           `json:"total_requests"`
	TotalTokens   int64           `json:"total_tokens"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
}

// DayKey formats t as the UTC calendar day used to key ledgers.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
