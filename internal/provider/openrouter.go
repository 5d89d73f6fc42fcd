package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api"

// OpenRouterClient invokes models through an OpenRouter-compatible chat
// completions endpoint. It serves both the free and budget tiers.
type OpenRouterClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// NewOpenRouterClient creates an OpenRouter invoker.
func NewOpenRouterClient(client *http.Client, apiKey string) *OpenRouterClient {
	return &OpenRouterClient{client: client, apiKey: apiKey, baseURL: defaultOpenRouterBaseURL}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Invoke implements Invoker.
func (c *OpenRouterClient) Invoke(ctx context.Context, profile models.ModelProfile, req Request) (*Response, error) {
	payload := chatRequest{Model: profile.ID, MaxTokens: req.MaxOutputTokens}
	if req.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openrouter: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openrouter: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: profile.Provider, Code: resp.StatusCode, Body: truncateBody(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openrouter: malformed response: %w", err)
	}
	out := &Response{
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}
	if len(parsed.Choices) == 0 {
		// Usage may still be present; surface it for best-effort accounting.
		return out, fmt.Errorf("openrouter: response contained no choices")
	}
	out.Text = parsed.Choices[0].Message.Content
	return out, nil
}
