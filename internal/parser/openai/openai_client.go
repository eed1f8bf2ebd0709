// Package openai implements port.TextGenerator against OpenAI-compatible
// chat completion endpoints, including Ollama's /v1 API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"medorders/internal/config"
	"medorders/internal/parser"
	"medorders/internal/port"
)

const (
	apiURL             = "https://api.openai.com/v1/chat/completions"
	completionsSuffix  = "/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
)

func init() {
	parser.RegisterProvider("openai", func(cfg *config.ModelConfig) (port.TextGenerator, error) {
		return NewClient(cfg), nil
	})
}

// Client calls the Chat Completions API.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

var _ port.TextGenerator = (*Client)(nil)

// NewClient creates a client from the model config. cfg.Endpoint may be an
// API base such as "http://localhost:11434/v1" or a full completions URL.
func NewClient(cfg *config.ModelConfig) *Client {
	return newClient(cfg, completionsURL(cfg.Endpoint))
}

// NewClientWithEndpoint creates a client pointing at a custom completions URL (for testing).
func NewClientWithEndpoint(cfg *config.ModelConfig, endpoint string) *Client {
	return newClient(cfg, endpoint)
}

func completionsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case base == "":
		return apiURL
	case strings.HasSuffix(base, completionsSuffix):
		return base
	default:
		return base + completionsSuffix
	}
}

func newClient(cfg *config.ModelConfig, endpoint string) *Client {
	model := cfg.Name
	if model == "" {
		model = defaultOpenAIModel
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Generate sends a single chat completion request.
func (c *Client) Generate(ctx context.Context, req port.GenerateRequest) (*port.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	ep := parser.Endpoint{Provider: "openai", URL: c.endpoint, Model: model}

	messages := []map[string]interface{}{}
	if req.System != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": req.Prompt})

	reqBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": req.Temperature,
	}
	if req.JSON {
		reqBody["response_format"] = map[string]interface{}{"type": "json_object"}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, ep.TransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ep.TransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ep.StatusError(resp.StatusCode, string(respBody), resp.Header.Get("Retry-After"))
	}

	return parseResponse(respBody, model)
}

// apiResponse models the Chat Completions API response.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte, model string) (*port.GenerateResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &port.GenerateResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
