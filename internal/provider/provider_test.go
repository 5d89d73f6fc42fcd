package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

func TestOpenRouterInvoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "sherlock-dash-alpha" {
			t.Errorf("unexpected model %q", req.Model)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello"}},
			},
			"usage": map[string]int64{"prompt_tokens": 500, "completion_tokens": 200},
		})
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.Client(), "test-key")
	c.baseURL = srv.URL

	resp, err := c.Invoke(context.Background(),
		models.ModelProfile{ID: "sherlock-dash-alpha", Provider: models.ProviderOpenRouterFree},
		Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("expected text hello, got %q", resp.Text)
	}
	if resp.InputTokens != 500 || resp.OutputTokens != 200 {
		t.Errorf("expected usage 500/200, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenRouterInvoke_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenRouterClient(srv.Client(), "")
	c.baseURL = srv.URL

	_, err := c.Invoke(context.Background(),
		models.ModelProfile{ID: "m", Provider: models.ProviderOpenRouterFree}, Request{Prompt: "hi"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", statusErr.Code)
	}
}

func TestAnthropicInvoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "ant-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("unexpected version header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "claude says hi"}},
			"usage":   map[string]int64{"input_tokens": 12, "output_tokens": 8},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.Client(), "ant-key")
	c.baseURL = srv.URL

	resp, err := c.Invoke(context.Background(),
		models.ModelProfile{ID: "claude-opus-4", Provider: models.ProviderAnthropic, MaxOutputTokens: 1024},
		Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "claude says hi" {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 8 {
		t.Errorf("expected usage 12/8, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGeminiInvoke_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Goog-Api-Key"); got != "gem-key" {
			t.Errorf("unexpected api key header %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]string{{"text": "gemini says hi"}},
				}},
			},
			"usageMetadata": map[string]int64{"promptTokenCount": 30, "candidatesTokenCount": 10},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.Client(), "gem-key")
	c.baseURL = srv.URL

	resp, err := c.Invoke(context.Background(),
		models.ModelProfile{ID: "gemini-2.0-flash", Provider: models.ProviderGemini},
		Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "gemini says hi" {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 10 {
		t.Errorf("expected usage 30/10, got %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestGeminiInvoke_EmptyCandidatesKeepsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates":    []interface{}{},
			"usageMetadata": map[string]int64{"promptTokenCount": 30, "candidatesTokenCount": 0},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.Client(), "gem-key")
	c.baseURL = srv.URL

	resp, err := c.Invoke(context.Background(),
		models.ModelProfile{ID: "gemini-2.0-flash", Provider: models.ProviderGemini},
		Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for empty candidates, got nil")
	}
	if resp == nil || resp.InputTokens != 30 {
		t.Error("expected partial usage to survive the failure for best-effort accounting")
	}
}

func TestRegistry_For(t *testing.T) {
	reg := NewRegistry(Keys{})

	free, err := reg.For(models.ProviderOpenRouterFree)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	budget, err := reg.For(models.ProviderOpenRouterBudget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free != budget {
		t.Error("expected free and budget tiers to share the OpenRouter client")
	}

	if _, err := reg.For("mystery"); err == nil {
		t.Error("expected error for unregistered provider, got nil")
	}
}
