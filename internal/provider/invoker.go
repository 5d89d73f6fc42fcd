// Package provider implements the upstream clients the dispatcher calls into.
//
// Each provider family (OpenRouter-compatible, Anthropic, Gemini) gets one
// Invoker. The dispatcher is agnostic to wire formats; it only needs the
// output text, token counts, and success or failure back.
package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Request carries the prompt payload for one model call.
type Request struct {
	Prompt          string
	System          string
	MaxOutputTokens int
}

// Response carries the provider's answer and reported token usage.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Invoker dispatches one call to an upstream provider. Implementations must
// honor ctx cancellation; the dispatcher applies the per-call timeout through
// it. On failure a non-nil Response may still carry partial usage when the
// provider reports it.
type Invoker interface {
	Invoke(ctx context.Context, profile models.ModelProfile, req Request) (*Response, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Provider models.Provider
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Code, e.Body)
}

// Keys holds the provider API credentials, passed through from configuration
// and never persisted.
type Keys struct {
	OpenRouter string
	Anthropic  string
	Gemini     string
}

// Registry maps provider families to their invokers.
type Registry map[models.Provider]Invoker

// NewRegistry wires the default invoker per provider family. Both OpenRouter
// tiers share one client; they differ only in which models they carry.
func NewRegistry(keys Keys) Registry {
	// No client-level timeout: the dispatcher bounds each call via context.
	httpClient := &http.Client{Timeout: 0}

	openRouter := NewOpenRouterClient(httpClient, keys.OpenRouter)
	return Registry{
		models.ProviderOpenRouterFree:   openRouter,
		models.ProviderOpenRouterBudget: openRouter,
		models.ProviderAnthropic:        NewAnthropicClient(httpClient, keys.Anthropic),
		models.ProviderGemini:           NewGeminiClient(httpClient, keys.Gemini),
	}
}

// For returns the invoker for a provider family.
func (r Registry) For(p models.Provider) (Invoker, error) {
	inv, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("provider: no invoker registered for %q", p)
	}
	return inv, nil
}

// truncateBody caps upstream error bodies kept in failure reasons.
func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
