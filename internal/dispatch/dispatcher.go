// Package dispatch walks the router's candidate chain until a call succeeds.
//
// Per candidate: pessimistic cost estimate, budget allowance check, provider
// call under a timeout. Blocked candidates are skipped without touching the
// provider; failures advance the chain. Every attempt produces a usage
// record regardless of outcome. Attempts are independent; no state carries
// from one candidate to the next.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/internal/budget"
	"github.com/unite-hub/synthex-gateway/internal/pricing"
	"github.com/unite-hub/synthex-gateway/internal/provider"
	"github.com/unite-hub/synthex-gateway/internal/router"
	"github.com/unite-hub/synthex-gateway/internal/usage"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Request is one caller-facing dispatch.
type Request struct {
	TenantID        string
	TaskType        models.TaskType
	Prompt          string
	System          string
	PreferredModel  string
	MaxOutputTokens int
}

// Result is a successful dispatch outcome.
type Result struct {
	Text         string
	ModelID      string
	Provider     models.Provider
	InputTokens  int64
	OutputTokens int64
	CostUSD      decimal.Decimal
	Attempts     []Attempt
}

// Dispatcher ties router, estimator, guard, providers, and usage log together.
type Dispatcher struct {
	router      *router.Router
	estimator   *pricing.Estimator
	guard       *budget.Guard
	providers   provider.Registry
	usageLog    *usage.Logger
	callTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. callTimeout bounds each provider call.
func NewDispatcher(r *router.Router, e *pricing.Estimator, g *budget.Guard,
	p provider.Registry, u *usage.Logger, callTimeout time.Duration) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Dispatcher{
		router:      r,
		estimator:   e,
		guard:       g,
		providers:   p,
		usageLog:    u,
		callTimeout: callTimeout,
	}
}

// Dispatch resolves candidates for the request and walks them in priority
// order. It returns the first success, a *BudgetExhaustedError when every
// candidate was budget-blocked, or an *ExhaustedError when the chain ran out.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	candidates, err := d.router.Resolve(req.TaskType, req.PreferredModel)
	if err != nil {
		return nil, err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = "default"
	}
	inputEstimate := estimateTokenCount(req.Prompt) + estimateTokenCount(req.System)

	attempts := make([]Attempt, 0, len(candidates))
	blocked := 0

	for _, candidate := range candidates {
		estimate, err := d.estimator.Pessimistic(candidate.ID, inputEstimate, req.MaxOutputTokens)
		if err != nil {
			return nil, err
		}

		decision, err := d.guard.CheckAllowance(ctx, tenantID, estimate)
		if err != nil {
			log.Errorf("dispatch: allowance check for tenant=%s model=%s: %v", tenantID, candidate.ID, err)
		}
		if decision == budget.Blocked {
			blocked++
			attempts = append(attempts, Attempt{
				ModelID:  candidate.ID,
				Provider: candidate.Provider,
				Outcome:  models.OutcomeSkippedBudget,
				Reason:   "daily budget ceiling would be exceeded",
			})
			d.record(tenantID, req.TaskType, candidate, 0, 0, decimal.Zero,
				models.OutcomeSkippedBudget, "budget ceiling", 0)
			continue
		}
		if decision == budget.AllowedWithWarning {
			log.Warnf("dispatch: tenant=%s approaching daily budget ceiling", tenantID)
		}

		result, attempt := d.attempt(ctx, tenantID, req, candidate)
		attempts = append(attempts, attempt)
		if result != nil {
			result.Attempts = attempts
			return result, nil
		}
	}

	if blocked == len(candidates) {
		return nil, &BudgetExhaustedError{TenantID: tenantID, Attempts: attempts}
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

// attempt runs a single candidate call and accounts for it. A nil Result
// means the chain should advance.
func (d *Dispatcher) attempt(ctx context.Context, tenantID string, req Request,
	candidate models.ModelProfile) (*Result, Attempt) {

	invoker, err := d.providers.For(candidate.Provider)
	if err != nil {
		d.record(tenantID, req.TaskType, candidate, 0, 0, decimal.Zero,
			models.OutcomeFailure, err.Error(), 0)
		return nil, Attempt{ModelID: candidate.ID, Provider: candidate.Provider,
			Outcome: models.OutcomeFailure, Reason: err.Error()}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := invoker.Invoke(callCtx, candidate, provider.Request{
		Prompt:          req.Prompt,
		System:          req.System,
		MaxOutputTokens: req.MaxOutputTokens,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		// Best-effort cost from partial usage when the provider reported any.
		cost := decimal.Zero
		var in, out int64
		if resp != nil && (resp.InputTokens > 0 || resp.OutputTokens > 0) {
			in, out = resp.InputTokens, resp.OutputTokens
			if c, cerr := d.estimator.Cost(candidate.ID, in, out); cerr == nil {
				cost = c
			}
		}
		d.record(tenantID, req.TaskType, candidate, in, out, cost,
			models.OutcomeFailure, err.Error(), latency)
		log.Warnf("dispatch: model=%s failed, advancing chain: %v", candidate.ID, err)
		return nil, Attempt{ModelID: candidate.ID, Provider: candidate.Provider,
			Outcome: models.OutcomeFailure, Reason: err.Error()}
	}

	cost, err := d.estimator.Cost(candidate.ID, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		// Candidate came from the catalog, so this cannot miss; guard anyway.
		cost = decimal.Zero
		log.Errorf("dispatch: costing successful call for model=%s: %v", candidate.ID, err)
	}
	if err := d.guard.RecordSpend(ctx, tenantID, cost); err != nil {
		log.Errorf("dispatch: recording spend for tenant=%s: %v", tenantID, err)
	}
	d.record(tenantID, req.TaskType, candidate, resp.InputTokens, resp.OutputTokens,
		cost, models.OutcomeSuccess, "", latency)

	return &Result{
		Text:         resp.Text,
		ModelID:      candidate.ID,
		Provider:     candidate.Provider,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      cost,
	}, Attempt{ModelID: candidate.ID, Provider: candidate.Provider, Outcome: models.OutcomeSuccess}
}

func (d *Dispatcher) record(tenantID string, task models.TaskType, candidate models.ModelProfile,
	inputTokens, outputTokens int64, cost decimal.Decimal, outcome models.CallOutcome,
	reason string, latencyMs int64) {

	d.usageLog.Record(models.CallRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		TaskType:      task,
		ModelID:       candidate.ID,
		Provider:      candidate.Provider,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		CostUSD:       cost,
		Outcome:       outcome,
		FailureReason: reason,
		LatencyMs:     latencyMs,
		Timestamp:     time.Now().UTC(),
	})
}

// estimateTokenCount approximates tokens from text length, ~4 characters per
// token for English.
func estimateTokenCount(text string) int64 {
	return int64(len(text) / 4)
}
