package dispatch

import (
	"fmt"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Attempt summarizes one candidate's outcome, kept in priority order for
// terminal-error diagnostics.
type Attempt struct {
	ModelID  string             `json:"model_id"`
	Provider models.Provider    `json:"provider"`
	Outcome  models.CallOutcome `json:"outcome"`
	Reason   string             `json:"reason,omitempty"`
}

// BudgetExhaustedError is returned when every candidate was skipped by the
// budget guard. It is an expected business condition, surfaced distinctly so
// callers can show a billing message rather than a generic failure.
type BudgetExhaustedError struct {
	TenantID string
	Attempts []Attempt
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for tenant %s: %d candidate(s) blocked", e.TenantID, len(e.Attempts))
}

// ExhaustedError is returned when the fallback chain ran out of candidates
// due to provider-side failures. Attempts carries one record per candidate.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted after %d attempt(s)", len(e.Attempts))
}
