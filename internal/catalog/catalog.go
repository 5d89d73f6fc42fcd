// Package catalog holds the immutable model and routing tables.
//
// The catalog is built once at process start from configuration and passed
// explicitly to the router and cost estimator. It is read-only after load;
// changing the tables requires a restart.
package catalog

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Catalog is a validated, immutable snapshot of model profiles and task routes.
type Catalog struct {
	profiles map[string]models.ModelProfile
	routes   map[models.TaskType][]string
}

// New builds a Catalog from the given profiles and routes, enforcing the
// table invariants: model IDs unique, prices non-negative, context window
// positive, every route non-empty and resolvable.
func New(profiles []models.ModelProfile, routes []models.TaskRoute) (*Catalog, error) {
	c := &Catalog{
		profiles: make(map[string]models.ModelProfile, len(profiles)),
		routes:   make(map[models.TaskType][]string, len(routes)),
	}

	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: model profile with empty id")
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate model id %q", p.ID)
		}
		if p.InputPerMTokens.IsNegative() || p.OutputPerMTokens.IsNegative() {
			return nil, fmt.Errorf("catalog: model %q has negative pricing", p.ID)
		}
		if p.ContextWindowTokens <= 0 {
			return nil, fmt.Errorf("catalog: model %q has non-positive context window", p.ID)
		}
		switch p.Provider {
		case models.ProviderOpenRouterFree, models.ProviderOpenRouterBudget,
			models.ProviderAnthropic, models.ProviderGemini:
		default:
			return nil, fmt.Errorf("catalog: model %q has unknown provider %q", p.ID, p.Provider)
		}
		c.profiles[p.ID] = p
	}

	for _, r := range routes {
		if r.TaskType == "" {
			return nil, fmt.Errorf("catalog: route with empty task type")
		}
		if _, dup := c.routes[r.TaskType]; dup {
			return nil, fmt.Errorf("catalog: duplicate route for task type %q", r.TaskType)
		}
		if len(r.Candidates) == 0 {
			return nil, fmt.Errorf("catalog: route %q has no candidates", r.TaskType)
		}
		for _, id := range r.Candidates {
			if _, ok := c.profiles[id]; !ok {
				return nil, fmt.Errorf("catalog: route %q references unknown model %q", r.TaskType, id)
			}
		}
		c.routes[r.TaskType] = append([]string(nil), r.Candidates...)
	}

	return c, nil
}

// Profile returns the model profile for the given id.
func (c *Catalog) Profile(id string) (models.ModelProfile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// Route returns the ordered candidate ids configured for the given task type.
func (c *Catalog) Route(task models.TaskType) ([]string, bool) {
	ids, ok := c.routes[task]
	if !ok {
		return nil, false
	}
	return append([]string(nil), ids...), true
}

// Profiles returns all model profiles sorted by id.
func (c *Catalog) Profiles() []models.ModelProfile {
	out := make([]models.ModelProfile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Routes returns all task routes sorted by task type.
func (c *Catalog) Routes() []models.TaskRoute {
	out := make([]models.TaskRoute, 0, len(c.routes))
	for task, ids := range c.routes {
		out = append(out, models.TaskRoute{TaskType: task, Candidates: append([]string(nil), ids...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskType < out[j].TaskType })
	return out
}

// usd is a price-table literal helper.
func usd(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// DefaultProfiles returns the built-in model table. Prices are USD per 1M
// tokens, based on published rates; configuration overrides this table.
func DefaultProfiles() []models.ModelProfile {
	return []models.ModelProfile{
		// Free tier (OpenRouter-hosted, request-logged)
		{ID: "sherlock-dash-alpha", Provider: models.ProviderOpenRouterFree,
			InputPerMTokens: usd(0), OutputPerMTokens: usd(0),
			ContextWindowTokens: 128000, MaxOutputTokens: 8192},
		{ID: "sherlock-think-alpha", Provider: models.ProviderOpenRouterFree,
			InputPerMTokens: usd(0), OutputPerMTokens: usd(0),
			ContextWindowTokens: 128000, MaxOutputTokens: 16384, SupportsThinking: true},

		// Budget tier
		{ID: "llama-3.3-70b-instruct", Provider: models.ProviderOpenRouterBudget,
			InputPerMTokens: usd(0.12), OutputPerMTokens: usd(0.30),
			ContextWindowTokens: 131072, MaxOutputTokens: 8192},
		{ID: "gemini-2.0-flash-lite", Provider: models.ProviderGemini,
			InputPerMTokens: usd(0.075), OutputPerMTokens: usd(0.30),
			ContextWindowTokens: 1048576, MaxOutputTokens: 8192},
		{ID: "gemini-2.0-flash", Provider: models.ProviderGemini,
			InputPerMTokens: usd(0.10), OutputPerMTokens: usd(0.40),
			ContextWindowTokens: 1048576, MaxOutputTokens: 8192},

		// Premium tier
		{ID: "claude-sonnet-4", Provider: models.ProviderAnthropic,
			InputPerMTokens: usd(3.00), OutputPerMTokens: usd(15.00),
			ContextWindowTokens: 200000, MaxOutputTokens: 16384, SupportsThinking: true},
		{ID: "claude-opus-4", Provider: models.ProviderAnthropic,
			InputPerMTokens: usd(15.00), OutputPerMTokens: usd(75.00),
			ContextWindowTokens: 200000, MaxOutputTokens: 16384, SupportsThinking: true},
	}
}

// DefaultRoutes returns the built-in task routing table, ordered free to
// premium within each route.
func DefaultRoutes() []models.TaskRoute {
	return []models.TaskRoute{
		{TaskType: models.TaskExtractIntent,
			Candidates: []string{"sherlock-dash-alpha", "gemini-2.0-flash-lite"}},
		{TaskType: models.TaskGeneratePersona,
			Candidates: []string{"sherlock-dash-alpha", "llama-3.3-70b-instruct", "gemini-2.0-flash"}},
		{TaskType: models.TaskGenerateContent,
			Candidates: []string{"llama-3.3-70b-instruct", "gemini-2.0-flash", "claude-sonnet-4"}},
		{TaskType: models.TaskSecurityAudit,
			Candidates: []string{"sherlock-think-alpha", "claude-sonnet-4", "claude-opus-4"}},
	}
}

// Default builds the catalog from the built-in tables.
func Default() *Catalog {
	c, err := New(DefaultProfiles(), DefaultRoutes())
	if err != nil {
		// Built-in tables are compile-time data; failing to validate is a bug.
		panic(fmt.Sprintf("catalog: default tables invalid: %v", err))
	}
	return c
}
