package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/config"
	"medorders/internal/domain"
	"medorders/internal/parser"
	"medorders/internal/parser/ollama"
	"medorders/internal/port"
)

func newTestClient(endpoint string) *ollama.Client {
	return ollama.NewClient(&config.ModelConfig{
		Provider:    "ollama",
		Endpoint:    endpoint,
		Name:        "llama3.1:8b",
		Temperature: 0.1,
		TimeoutSecs: 5,
	})
}

func TestClient_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.1:8b", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "json", body["format"])
		options := body["options"].(map[string]interface{})
		assert.InDelta(t, 0.1, options["temperature"], 1e-9)

		messages := body["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		user := messages[1].(map[string]interface{})
		assert.Equal(t, "user", user["role"])
		assert.Equal(t, "extract this", user["content"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"model":             "llama3.1:8b",
			"message":           map[string]interface{}{"role": "assistant", "content": `{"patient":null}`},
			"done":              true,
			"prompt_eval_count": 120,
			"eval_count":        40,
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Generate(context.Background(), port.GenerateRequest{
		System:      "you are a parser",
		Prompt:      "extract this",
		Temperature: 0.1,
		JSON:        true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"patient":null}`, resp.Content)
	assert.Equal(t, "llama3.1:8b", resp.Model)
	assert.Equal(t, 120, resp.PromptTokens)
	assert.Equal(t, 40, resp.CompletionTokens)
}

func TestClient_Generate_NoFormatWithoutJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasFormat := body["format"]
		assert.False(t, hasFormat)
		assert.Len(t, body["messages"], 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"content": "ok"},
		})
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestClient_Generate_ModelNotPulled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama3.1:8b\" not found, try pulling it first"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "ollama pull llama3.1:8b")
	assert.Contains(t, err.Error(), server.URL)
}

func TestClient_Generate_ServerNotRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := newTestClient(endpoint).Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	var mu *domain.ModelUnavailableError
	require.True(t, errors.As(err, &mu))
	assert.Equal(t, "ollama", mu.Provider)
	assert.Contains(t, err.Error(), "ollama serve")
}

func TestClient_Generate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Generate(ctx, port.GenerateRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelTimeout)
}

func TestClient_Generate_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "out of memory"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestOllamaRegistered(t *testing.T) {
	assert.Contains(t, parser.Providers(), "ollama")

	gen, err := parser.NewGenerator(&config.ModelConfig{Provider: "ollama", TimeoutSecs: 1})
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, gen)
}
