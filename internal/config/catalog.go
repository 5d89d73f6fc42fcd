package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/unite-hub/synthex-gateway/internal/catalog"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// CatalogFile is the YAML shape of the model catalog. Prices are plain
// floating-point in the file and converted to decimals at load; catalog
// validation runs on the converted values.
type CatalogFile struct {
	Models  []ModelEntry        `yaml:"models"`
	Routes  map[string][]string `yaml:"routes"`
	Budgets BudgetEntry         `yaml:"budgets"`
}

// ModelEntry is one catalog model in the YAML file.
type ModelEntry struct {
	ID                  string  `yaml:"id"`
	Provider            string  `yaml:"provider"`
	InputPerMTokens     float64 `yaml:"input_per_m_tokens"`
	OutputPerMTokens    float64 `yaml:"output_per_m_tokens"`
	ContextWindowTokens int     `yaml:"context_window_tokens"`
	MaxOutputTokens     int     `yaml:"max_output_tokens"`
	SupportsThinking    bool    `yaml:"supports_thinking"`
}

// BudgetEntry carries ceiling configuration from the catalog file.
type BudgetEntry struct {
	DefaultDailyUSD float64            `yaml:"default_daily_usd"`
	AlertFraction   float64            `yaml:"alert_fraction"`
	Tenants         map[string]float64 `yaml:"tenants"`
}

// LoadCatalog builds the catalog snapshot from the YAML file at path. An
// empty path returns the built-in catalog with no tenant overrides.
func LoadCatalog(path string) (*catalog.Catalog, *CatalogFile, error) {
	if path == "" {
		return catalog.Default(), &CatalogFile{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var file CatalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	profiles := make([]models.ModelProfile, 0, len(file.Models))
	for _, m := range file.Models {
		profiles = append(profiles, models.ModelProfile{
			ID:                  m.ID,
			Provider:            models.Provider(m.Provider),
			InputPerMTokens:     decimal.NewFromFloat(m.InputPerMTokens),
			OutputPerMTokens:    decimal.NewFromFloat(m.OutputPerMTokens),
			ContextWindowTokens: m.ContextWindowTokens,
			MaxOutputTokens:     m.MaxOutputTokens,
			SupportsThinking:    m.SupportsThinking,
		})
	}

	routes := make([]models.TaskRoute, 0, len(file.Routes))
	for task, candidates := range file.Routes {
		routes = append(routes, models.TaskRoute{
			TaskType:   models.TaskType(task),
			Candidates: candidates,
		})
	}

	cat, err := catalog.New(profiles, routes)
	if err != nil {
		return nil, nil, fmt.Errorf("validating catalog file: %w", err)
	}
	return cat, &file, nil
}

// TenantCeilings converts the file's per-tenant ceilings to decimals,
// skipping non-positive entries.
func (f *CatalogFile) TenantCeilings() map[string]decimal.Decimal {
	if len(f.Budgets.Tenants) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(f.Budgets.Tenants))
	for tenant, usd := range f.Budgets.Tenants {
		if usd <= 0 {
			continue
		}
		out[tenant] = decimal.NewFromFloat(usd)
	}
	return out
}

// DefaultCeiling returns the file's default daily ceiling, falling back to
// the given value when the file does not set one.
func (f *CatalogFile) DefaultCeiling(fallback decimal.Decimal) decimal.Decimal {
	if f.Budgets.DefaultDailyUSD > 0 {
		return decimal.NewFromFloat(f.Budgets.DefaultDailyUSD)
	}
	return fallback
}
