package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/confluence/internal/cache"
	"github.com/ppiankov/confluence/internal/model"
)

func fusedFixture() model.FusedContent {
	return model.FusedContent{
		PerSource: []model.FusedSource{
			{ID: "structured_query_0", Kind: model.SourceStructuredQuery, Confidence: 0.9, Content: `"revenue":120000`},
			{ID: "document_0", Kind: model.SourceDocument, Confidence: 0.85, Content: strings.Repeat("长", 800)},
		},
		OverallConfidence: 0.87,
		SourceCount:       2,
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	fused := fusedFixture()
	conflicts := []model.Conflict{{
		Kind:           model.ConflictNumeric,
		ParticipantIDs: []string{"structured_query_0", "document_0"},
		Description:    "values differ",
		Resolution:     "trusted structured_query_0",
	}}

	p1 := BuildPrompt("What was revenue?", "tenant-a", fused, conflicts)
	p2 := BuildPrompt("What was revenue?", "tenant-a", fused, conflicts)
	assert.Equal(t, p1, p2)

	assert.Contains(t, p1, "Question: What was revenue?")
	assert.Contains(t, p1, "Tenant: tenant-a")
	assert.Contains(t, p1, "[structured_query_0] kind=STRUCTURED_QUERY confidence=0.90")
	assert.Contains(t, p1, "Detected discrepancies:")
	assert.Less(t, strings.Index(p1, "[structured_query_0]"), strings.Index(p1, "[document_0]"))

	// Long content is cut to the excerpt limit
	assert.NotContains(t, p1, strings.Repeat("长", ExcerptLimit+1))
	assert.Contains(t, p1, strings.Repeat("长", ExcerptLimit)+"...")
}

func TestBuildPrompt_NoSources(t *testing.T) {
	p := BuildPrompt("q", "", model.FusedContent{}, nil)
	assert.Contains(t, p, "(no sources available)")
	assert.NotContains(t, p, "Tenant:")
	assert.True(t, utf8.ValidString(p))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{Provider: ""})
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = NewProvider(Config{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	p, err = NewProvider(Config{Provider: "Claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = NewProvider(Config{Provider: "openai"})
	assert.Error(t, err, "missing key")

	_, err = NewProvider(Config{Provider: "bard"})
	assert.Error(t, err)
}

func TestSynthesizer_Disabled(t *testing.T) {
	s, err := NewSynthesizer(Config{}, nil)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())
	assert.Equal(t, "", s.ProviderName())

	_, err = s.Narrate(context.Background(), NarrationInput{Query: "q"})
	assert.Error(t, err)
}

func TestSynthesizer_Narrate_UsesContract(t *testing.T) {
	mock := NewMockProvider()
	s := NewSynthesizerWithProvider(mock, Config{Model: "mock-1"}, nil)

	n, err := s.Narrate(context.Background(), NarrationInput{Query: "What was revenue?", Fused: fusedFixture()})
	require.NoError(t, err)
	assert.Equal(t, "Synthesized answer drawing on 2 source(s): [structured_query_0] [document_0].", n.Text)
	assert.Equal(t, "mock", n.Provider)
	assert.False(t, n.Cached)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SystemInstruction, calls[0].System)
	assert.Equal(t, 0.6, calls[0].Temperature)
	assert.Equal(t, 1500, calls[0].MaxTokens)
}

func TestSynthesizer_Narrate_Cache(t *testing.T) {
	mock := NewMockProvider()
	s := NewSynthesizerWithProvider(mock, Config{}, cache.NewMemoryCache(time.Minute, time.Minute))
	in := NarrationInput{Query: "q", Fused: fusedFixture()}

	first, err := s.Narrate(context.Background(), in)
	require.NoError(t, err)
	second, err := s.Narrate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.True(t, second.Cached)
	assert.Len(t, mock.Calls(), 1)

	// A different query is a different prompt
	_, err = s.Narrate(context.Background(), NarrationInput{Query: "other", Fused: fusedFixture()})
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestSynthesizer_Narrate_Failures(t *testing.T) {
	tests := []struct {
		name string
		mock *MockProvider
	}{
		{"provider error", &MockProvider{Err: errors.New("upstream down")}},
		{"empty answer", &MockProvider{Reply: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSynthesizerWithProvider(tt.mock, Config{}, cache.NewMemoryCache(time.Minute, time.Minute))
			_, err := s.Narrate(context.Background(), NarrationInput{Query: "q", Fused: fusedFixture()})
			assert.Error(t, err)
		})
	}
}

// slowProvider blocks until its context is done
type slowProvider struct{}

func (slowProvider) Name() string                     { return "slow" }
func (slowProvider) IsAvailable(context.Context) bool { return true }
func (slowProvider) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSynthesizer_Narrate_Timeout(t *testing.T) {
	s := NewSynthesizerWithProvider(slowProvider{}, Config{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := s.Narrate(context.Background(), NarrationInput{Query: "q"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
