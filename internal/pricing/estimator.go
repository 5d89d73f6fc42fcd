// Package pricing computes monetary costs for model calls.
//
// Costs are computed with decimal arithmetic and rounded to 4 decimal places
// so that summing thousands of per-call costs into a ledger stays exact;
// binary floats would drift under accumulation.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/unite-hub/synthex-gateway/internal/catalog"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// CostScale is the number of decimal places a computed cost is rounded to.
const CostScale = 4

// Estimator computes actual and pessimistic pre-call costs from the
// catalog's price table. It is a pure function of the catalog snapshot.
type Estimator struct {
	catalog          *catalog.Catalog
	defaultMaxOutput int
}

// NewEstimator creates an Estimator. defaultMaxOutput is the output-token
// assumption used for pessimistic estimates when a profile does not declare
// its own maximum.
func NewEstimator(c *catalog.Catalog, defaultMaxOutput int) *Estimator {
	return &Estimator{catalog: c, defaultMaxOutput: defaultMaxOutput}
}

// Cost returns the USD cost of a completed call:
// inputTokens/1e6 * inputPrice + outputTokens/1e6 * outputPrice, rounded to
// CostScale decimal places.
func (e *Estimator) Cost(modelID string, inputTokens, outputTokens int64) (decimal.Decimal, error) {
	p, ok := e.catalog.Profile(modelID)
	if !ok {
		return decimal.Zero, fmt.Errorf("pricing: %q: %w", modelID, models.ErrUnknownModel)
	}
	return costFor(p, inputTokens, outputTokens), nil
}

// Pessimistic returns a pre-call cost upper bound for the budget check,
// assuming the model emits its maximum output tokens. maxOutputOverride
// caps the assumption when the caller requested fewer tokens; pass 0 to use
// the profile's (or global) default.
func (e *Estimator) Pessimistic(modelID string, inputTokens int64, maxOutputOverride int) (decimal.Decimal, error) {
	p, ok := e.catalog.Profile(modelID)
	if !ok {
		return decimal.Zero, fmt.Errorf("pricing: %q: %w", modelID, models.ErrUnknownModel)
	}

	maxOut := p.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = e.defaultMaxOutput
	}
	if maxOutputOverride > 0 && maxOutputOverride < maxOut {
		maxOut = maxOutputOverride
	}
	return costFor(p, inputTokens, int64(maxOut)), nil
}

// costFor computes the exact token cost for a profile. Shift(-6) divides by
// 1e6 exactly in decimal space.
func costFor(p models.ModelProfile, inputTokens, outputTokens int64) decimal.Decimal {
	in := decimal.NewFromInt(inputTokens).Mul(p.InputPerMTokens).Shift(-6)
	out := decimal.NewFromInt(outputTokens).Mul(p.OutputPerMTokens).Shift(-6)
	return in.Add(out).Round(CostScale)
}
