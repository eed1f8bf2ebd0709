// Package ollama implements port.TextGenerator against a local Ollama server.
package ollama

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
	defaultEndpoint = "http://localhost:11434"
	defaultModel    = "llama3.1:8b"
	chatPath        = "/api/chat"
)

func init() {
	parser.RegisterProvider("ollama", func(cfg *config.ModelConfig) (port.TextGenerator, error) {
		return NewClient(cfg), nil
	})
}

// Client calls Ollama's native chat endpoint.
type Client struct {
	endpoint string
	model    string
	client   *http.Client
}

var _ port.TextGenerator = (*Client)(nil)

// NewClient creates an Ollama client from the model config.
func NewClient(cfg *config.ModelConfig) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Name
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout()
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options"`
}

// chatResponse models the non-streaming /api/chat response.
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// Generate sends a single non-streaming chat request.
func (c *Client) Generate(ctx context.Context, req port.GenerateRequest) (*port.GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	ep := parser.Endpoint{Provider: "ollama", URL: c.endpoint, Model: model}

	body := chatRequest{
		Model:    model,
		Messages: buildMessages(req),
		Stream:   false,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.JSON {
		body.Format = "json"
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+chatPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshaling ollama response: %w", err)
	}
	if out.Error != "" {
		return nil, ep.StatusError(http.StatusInternalServerError, out.Error, "")
	}

	return &port.GenerateResponse{
		Content:          out.Message.Content,
		Model:            out.Model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}

func buildMessages(req port.GenerateRequest) []chatMessage {
	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}
