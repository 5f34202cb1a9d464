package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/confluence/internal/model"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONFLUENCE_DETECTION_NUMERIC_THRESHOLD", "0.25")
	t.Setenv("CONFLUENCE_LLM_PROVIDER", "mock")
	t.Setenv("CONFLUENCE_LLM_TIMEOUT", "5s")

	v := viper.New()
	configureEnv(v)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Detection.NumericThreshold)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 0.95, cfg.Reliability.StructuredQuery)
}

func TestLoadConfig_DefaultFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Confluence Configuration File"))
	assert.Contains(t, string(data), "numeric_threshold: 0.1")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestWriteDefaultConfig_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	err := writeDefaultConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, _ := os.ReadFile(path)
	assert.Equal(t, "log:\n  level: debug\n", string(data))
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	openai := model.LLMConfig{Provider: "openai"}
	require.NoError(t, resolveAPIKey(&openai))
	assert.Equal(t, "sk-test", openai.APIKey)

	explicit := model.LLMConfig{Provider: "openai", APIKey: "sk-config"}
	require.NoError(t, resolveAPIKey(&explicit))
	assert.Equal(t, "sk-config", explicit.APIKey)

	anthropic := model.LLMConfig{Provider: "anthropic"}
	assert.Error(t, resolveAPIKey(&anthropic))

	ollama := model.LLMConfig{Provider: "ollama"}
	require.NoError(t, resolveAPIKey(&ollama))
	assert.Equal(t, "http://ollama:11434", ollama.BaseURL)

	disabled := model.LLMConfig{}
	assert.NoError(t, resolveAPIKey(&disabled))
}

func TestReadRequest(t *testing.T) {
	body := `{"query":"revenue?","tenant_id":"acme","documents":[{"content":"<p>hi</p>","document_id":"d1"}]}`

	req, err := readRequest("-", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "revenue?", req.Query)
	assert.Equal(t, "acme", req.TenantID)
	require.Len(t, req.Documents, 1)
	assert.Equal(t, "d1", req.Documents[0].DocumentID)

	path := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	fromFile, err := readRequest(path, nil)
	require.NoError(t, err)
	assert.Equal(t, req.Query, fromFile.Query)

	_, err = readRequest("-", strings.NewReader("{"))
	assert.Error(t, err)

	_, err = readRequest(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"

	shown := redacted(cfg)
	assert.Equal(t, "***", shown.LLM.APIKey)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestInitLogger(t *testing.T) {
	assert.NoError(t, InitLogger(model.LogConfig{Level: "debug", Format: "json"}))
	assert.NoError(t, InitLogger(model.LogConfig{Level: "info", Format: "console"}))
	assert.Error(t, InitLogger(model.LogConfig{Level: "loud"}))
}
