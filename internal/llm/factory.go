package llm

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/confluence/internal/model"
	"github.com/ppiankov/confluence/internal/util"
)

// NewProvider creates a provider from configuration. An empty provider name
// returns nil: synthesis is disabled.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "mock":
		return NewMockProvider(), nil

	case "", "none":
		return nil, nil

	default:
		return nil, eris.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, mock)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Timeout:     c.Timeout,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		HTTPProxy:   c.HTTPProxy,
		HTTPSProxy:  c.HTTPSProxy,
		NoProxy:     c.NoProxy,
	}
}

// newHTTPClient builds the client shared by HTTP-based providers.
// Call deadlines come from the request context.
func newHTTPClient(config Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}
}
