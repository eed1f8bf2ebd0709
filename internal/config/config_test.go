package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medorders/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes())
	assert.Equal(t, 10, cfg.Extraction.MinTextChars)
	assert.Equal(t, "ollama", cfg.Model.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Model.Endpoint)
	assert.Equal(t, "llama3.1:8b", cfg.Model.Name)
	assert.InDelta(t, 0.1, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.Model.Timeout())
	assert.Equal(t, "tesseract", cfg.OCR.Engine)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 3, cfg.Duplicate.ExactWeight)
	assert.Equal(t, 2, cfg.Duplicate.PartialWeight)
	assert.Equal(t, 1, cfg.Duplicate.QuantityWeight)
	assert.Equal(t, 2, cfg.Duplicate.MinScore)
	assert.Equal(t, 5, cfg.Duplicate.MaxResults)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 5*time.Second, cfg.Inbox.PollInterval)
	assert.Equal(t, 2, cfg.Inbox.Concurrency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEDORDERS_MODEL_NAME", "mistral:7b")
	t.Setenv("MEDORDERS_MODEL_TEMPERATURE", "0.3")
	t.Setenv("MEDORDERS_OCR_ENHANCE", "true")
	t.Setenv("MEDORDERS_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "mistral:7b", cfg.Model.Name)
	assert.InDelta(t, 0.3, cfg.Model.Temperature, 1e-9)
	assert.True(t, cfg.OCR.Enhance)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_PortEnvFallback(t *testing.T) {
	t.Setenv("PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Port)
}

func TestLoad_RejectsTemperatureOutOfRange(t *testing.T) {
	t.Setenv("MEDORDERS_MODEL_TEMPERATURE", "1.5")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.temperature")
}

func TestValidate_AzureRequiresCredentials(t *testing.T) {
	t.Setenv("MEDORDERS_OCR_ENGINE", "azure")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "azure_endpoint")
}

func TestValidate_UnknownProvider(t *testing.T) {
	t.Setenv("MEDORDERS_MODEL_PROVIDER", "claude")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model.provider")
}

func TestDBConfig_DSN(t *testing.T) {
	db := config.DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "orders", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/orders?sslmode=disable", db.DSN())
}
