package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/confluence/internal/cache"
	"github.com/ppiankov/confluence/internal/model"
)

// ErrEmptyNarrative is returned when a provider answers with no text
var ErrEmptyNarrative = eris.New("synthesizer returned an empty narrative")

// NarrationInput is everything the synthesizer needs for one fusion run
type NarrationInput struct {
	Query     string
	TenantID  string
	Fused     model.FusedContent
	Conflicts []model.Conflict
}

// Narration is a synthesized answer
type Narration struct {
	Text       string `json:"text"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
	Cached     bool   `json:"-"`
}

// Synthesizer turns fused content into a narrative answer through a provider,
// memoizing answers by provider, model and prompt
type Synthesizer struct {
	provider Provider
	config   Config
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewSynthesizer creates a synthesizer from config. With no provider
// configured it returns a disabled synthesizer, not an error.
func NewSynthesizer(config Config, c cache.Cache) (*Synthesizer, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, eris.Wrap(err, "create provider")
	}
	return NewSynthesizerWithProvider(provider, config, c), nil
}

// NewSynthesizerWithProvider wraps an existing provider
func NewSynthesizerWithProvider(provider Provider, config Config, c cache.Cache) *Synthesizer {
	defaults := DefaultConfig()
	if config.Temperature == 0 {
		config.Temperature = defaults.Temperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Synthesizer{
		provider: provider,
		config:   config,
		cache:    c,
	}
}

// SetCacheTTL overrides the TTL used for new cache entries
func (s *Synthesizer) SetCacheTTL(ttl time.Duration) {
	s.cacheTTL = ttl
}

// IsEnabled reports whether a provider is configured
func (s *Synthesizer) IsEnabled() bool {
	return s != nil && s.provider != nil
}

// ProviderName returns the configured provider name, or "" when disabled
func (s *Synthesizer) ProviderName() string {
	if !s.IsEnabled() {
		return ""
	}
	return s.provider.Name()
}

// Timeout is the deadline applied to one synthesis call
func (s *Synthesizer) Timeout() time.Duration {
	return s.config.Timeout
}

// Narrate synthesizes an answer for the fused content. Errors, timeouts and
// empty answers are returned to the caller, which decides how to degrade.
func (s *Synthesizer) Narrate(ctx context.Context, in NarrationInput) (*Narration, error) {
	if !s.IsEnabled() {
		return nil, eris.New("synthesizer disabled")
	}

	prompt := BuildPrompt(in.Query, in.TenantID, in.Fused, in.Conflicts)
	key := cache.NarrativeKey(s.provider.Name(), s.config.Model, prompt)

	var cached Narration
	if cache.GetJSON(s.cache, key, &cached) && cached.Text != "" {
		zap.L().Debug("narrative cache hit", zap.String("provider", cached.Provider))
		cached.Cached = true
		return &cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.provider.Synthesize(ctx, SynthesisRequest{
		Prompt:      prompt,
		System:      SystemInstruction,
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "%s: synthesize", s.provider.Name())
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, ErrEmptyNarrative
	}

	narration := &Narration{
		Text:       strings.TrimSpace(resp.Text),
		Provider:   s.provider.Name(),
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
	}

	if err := cache.SetJSON(s.cache, key, narration, s.cacheTTL); err != nil {
		zap.L().Warn("narrative cache write failed", zap.Error(err))
	}
	return narration, nil
}
