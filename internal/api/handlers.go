// Package api implements the REST endpoints for the Synthex AI Gateway:
// the caller-facing route endpoint and the management API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/internal/analytics"
	"github.com/unite-hub/synthex-gateway/internal/budget"
	"github.com/unite-hub/synthex-gateway/internal/catalog"
	"github.com/unite-hub/synthex-gateway/internal/database"
	"github.com/unite-hub/synthex-gateway/internal/dispatch"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Dispatcher is the dispatch surface the route handler needs; satisfied by
// *dispatch.Dispatcher and faked in tests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Handlers provides REST API endpoint handlers.
type Handlers struct {
	dispatcher Dispatcher
	guard      *budget.Guard
	catalog    *catalog.Catalog
	db         *database.DB
	insights   *analytics.InsightsEngine
}

// NewHandlers creates a new Handlers instance. db and insights may be nil
// when PostgreSQL is unavailable; the affected endpoints then return 503.
func NewHandlers(d Dispatcher, g *budget.Guard, cat *catalog.Catalog,
	db *database.DB, insights *analytics.InsightsEngine) *Handlers {
	return &Handlers{dispatcher: d, guard: g, catalog: cat, db: db, insights: insights}
}

// HealthCheck returns the service health status.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "synthex-gateway",
		"version": "0.1.0",
	})
}

// routeRequest is the POST /v1/route payload.
type routeRequest struct {
	TaskType        string `json:"task_type" binding:"required"`
	Prompt          string `json:"prompt" binding:"required"`
	System          string `json:"system"`
	TenantID        string `json:"tenant_id"`
	PreferredModel  string `json:"preferred_model"`
	MaxOutputTokens int    `json:"max_output_tokens"`
}

// Route dispatches one AI task through the fallback chain.
func (h *Handlers) Route(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	// Body tenant wins over the header-derived one.
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = c.GetString("tenant_id")
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), dispatch.Request{
		TenantID:        tenantID,
		TaskType:        models.TaskType(req.TaskType),
		Prompt:          req.Prompt,
		System:          req.System,
		PreferredModel:  req.PreferredModel,
		MaxOutputTokens: req.MaxOutputTokens,
	})
	if err != nil {
		h.routeError(c, tenantID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":        result.Text,
		"model_used":    result.ModelID,
		"provider":      result.Provider,
		"input_tokens":  result.InputTokens,
		"output_tokens": result.OutputTokens,
		"cost_usd":      result.CostUSD,
		"attempts":      result.Attempts,
	})
}

// routeError maps dispatch errors onto the API contract: unknown inputs are
// client errors, budget exhaustion is a billing condition, and provider
// exhaustion is an upstream failure.
func (h *Handlers) routeError(c *gin.Context, tenantID string, err error) {
	var budgetErr *dispatch.BudgetExhaustedError
	var exhaustedErr *dispatch.ExhaustedError

	switch {
	case errors.Is(err, models.ErrUnknownTaskType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_task_type", "message": err.Error()})
	case errors.Is(err, models.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_model", "message": err.Error()})
	case errors.As(err, &budgetErr):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     "budget_exhausted",
			"message":   "Daily AI budget exhausted. Raise the tenant ceiling or retry tomorrow.",
			"tenant_id": budgetErr.TenantID,
			"attempts":  budgetErr.Attempts,
		})
	case errors.As(err, &exhaustedErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "all_providers_exhausted",
			"message":  "Every candidate model failed.",
			"attempts": exhaustedErr.Attempts,
		})
	default:
		log.Errorf("api: dispatch for tenant=%s: %v", tenantID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// ListModels returns the catalog snapshot.
func (h *Handlers) ListModels(c *gin.Context) {
	profiles := h.catalog.Profiles()
	c.JSON(http.StatusOK, gin.H{"count": len(profiles), "data": profiles})
}

// ListRoutes returns the task routing table.
func (h *Handlers) ListRoutes(c *gin.Context) {
	routes := h.catalog.Routes()
	c.JSON(http.StatusOK, gin.H{"count": len(routes), "data": routes})
}

// GetBudget returns a tenant's current-day ledger.
func (h *Handlers) GetBudget(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	ledger, err := h.guard.Ledger(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger_unavailable", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// setBudgetRequest is the PUT /api/v1/budgets/:tenant_id payload.
type setBudgetRequest struct {
	CeilingUSD float64 `json:"ceiling_usd" binding:"required"`
}

// SetBudget installs a runtime ceiling override for a tenant.
func (h *Handlers) SetBudget(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	var req setBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	ceiling := decimal.NewFromFloat(req.CeilingUSD)
	if err := h.guard.SetCeiling(tenantID, ceiling); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_ceiling", "message": err.Error()})
		return
	}

	ledger, err := h.guard.Ledger(c.Request.Context(), tenantID)
	if err != nil {
		// Override installed; report it even if the ledger read failed.
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID, "ceiling_usd": ceiling})
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// requireDB returns true if the database is available, or sends a 503 and
// returns false.
func (h *Handlers) requireDB(c *gin.Context) bool {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database_unavailable"})
		return false
	}
	return true
}

// GetUsageSummary returns aggregated spend data.
// Query params: dimension (tenant|model|provider|task_type), from, to.
func (h *Handlers) GetUsageSummary(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	dimension := c.DefaultQuery("dimension", "tenant")
	fromStr := c.DefaultQuery("from", time.Now().AddDate(0, -1, 0).Format(time.RFC3339))
	toStr := c.DefaultQuery("to", time.Now().Format(time.RFC3339))

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid 'from' date format, use RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid 'to' date format, use RFC3339"})
		return
	}

	summaries, err := h.db.GetSpendSummary(c.Request.Context(), dimension, from, to)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dimension": dimension,
		"from":      from,
		"to":        to,
		"data":      summaries,
	})
}

// GetUsageRecords returns the most recent call records, optionally filtered
// by tenant.
func (h *Handlers) GetUsageRecords(c *gin.Context) {
	if !h.requireDB(c) {
		return
	}

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 1000 {
		limit = 50
	}

	records, err := h.db.GetRecentRecords(c.Request.Context(), c.Query("tenant_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(records), "data": records})
}

// GetInsights returns spend spikes and downgrade recommendations.
func (h *Handlers) GetInsights(c *gin.Context) {
	if h.insights == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics_unavailable"})
		return
	}

	spikes, err := h.insights.DetectSpikes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	downgrades, err := h.insights.RecommendDowngrades(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	all := append(spikes, downgrades...)
	c.JSON(http.StatusOK, gin.H{"count": len(all), "data": all})
}

// GetReport returns a usage summary report for the requested period
// (defaults to the last 30 days).
func (h *Handlers) GetReport(c *gin.Context) {
	if h.insights == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analytics_unavailable"})
		return
	}

	from := time.Now().AddDate(0, -1, 0)
	to := time.Now()
	report, err := h.insights.GenerateReport(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
