package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/confluence/internal/fusion"
	"github.com/ppiankov/confluence/internal/model"
)

// SystemInstruction is the fixed instruction sent with every synthesis request
const SystemInstruction = "You synthesize one answer to the user's question from multiple sources. " +
	"Cite the source ids you rely on in square brackets, e.g. [structured_query_0]. " +
	"Where sources disagree, say so and explain the discrepancy instead of hiding it. " +
	"Do not use information that is not in the sources."

// ExcerptLimit bounds the per-source content excerpt in prompts (runes)
const ExcerptLimit = 500

// Provider defines the interface for narrative synthesis backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Synthesize generates free text for a prompt
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// SynthesisRequest is one text-generation call
type SynthesisRequest struct {
	Prompt      string
	System      string
	Model       string // Empty = provider default
	Temperature float64
	MaxTokens   int
}

// SynthesisResponse is the provider's output
type SynthesisResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "mock", "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout bounds a single synthesis call
	Timeout time.Duration

	Temperature float64
	MaxTokens   int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns the synthesis defaults
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Temperature: 0.6,
		MaxTokens:   1500,
	}
}

// BuildPrompt renders the synthesis prompt. Sources appear in fused order
// with a bounded excerpt each, so equal inputs always give equal prompts.
func BuildPrompt(query, tenantID string, fused model.FusedContent, conflicts []model.Conflict) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", strings.TrimSpace(query))
	if tenantID != "" {
		fmt.Fprintf(&b, "Tenant: %s\n", tenantID)
	}
	fmt.Fprintf(&b, "Overall confidence: %.2f across %d source(s)\n\n", fused.OverallConfidence, fused.SourceCount)

	b.WriteString("Sources:\n")
	if len(fused.PerSource) == 0 {
		b.WriteString("(no sources available)\n")
	}
	for _, s := range fused.PerSource {
		fmt.Fprintf(&b, "[%s] kind=%s confidence=%.2f\n%s\n\n", s.ID, s.Kind, s.Confidence, fusion.Excerpt(s.Content, ExcerptLimit))
	}

	if len(conflicts) > 0 {
		b.WriteString("Detected discrepancies:\n")
		for _, c := range conflicts {
			fmt.Fprintf(&b, "- %s between %s: %s. Resolution: %s\n",
				c.Kind, strings.Join(c.ParticipantIDs, ", "), c.Description, c.Resolution)
		}
		b.WriteString("\n")
	}

	b.WriteString("Write one answer to the question, citing source ids and explaining any discrepancies.")
	return b.String()
}
