package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var sourceTagPattern = regexp.MustCompile(`(?m)^\[([a-z_]+_\d+)\] `)

// MockProvider answers locally without a network call. It cites every
// source id found in the prompt and records each request it receives.
type MockProvider struct {
	// Reply overrides the generated text when set
	Reply string
	// Err is returned from Synthesize when set
	Err error
	// Available is reported by IsAvailable
	Available bool

	mu    sync.Mutex
	calls []SynthesisRequest
}

// NewMockProvider creates an available mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{Available: true}
}

// Name returns the provider name
func (m *MockProvider) Name() string {
	return "mock"
}

// IsAvailable returns the configured availability
func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.Available
}

// Synthesize records the request and returns a deterministic answer
func (m *MockProvider) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}

	text := m.Reply
	if text == "" {
		var ids []string
		for _, match := range sourceTagPattern.FindAllStringSubmatch(req.Prompt, -1) {
			ids = append(ids, "["+match[1]+"]")
		}
		text = fmt.Sprintf("Synthesized answer drawing on %d source(s): %s.", len(ids), strings.Join(ids, " "))
	}

	return &SynthesisResponse{
		Text:       text,
		Model:      firstNonEmpty(req.Model, "mock-1"),
		TokensUsed: (len(req.Prompt) + len(text)) / 4,
	}, nil
}

// Calls returns the requests received so far
func (m *MockProvider) Calls() []SynthesisRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SynthesisRequest, len(m.calls))
	copy(out, m.calls)
	return out
}
