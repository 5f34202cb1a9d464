package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/confluence/internal/fusion"
	"github.com/ppiankov/confluence/internal/model"
)

const footer = "_Generated by confluence. Confidence values are heuristics, not guarantees._"

// Renderer writes fusion results as JSON, Markdown or a terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the result as indented JSON
func (r *Renderer) RenderJSON(result *model.FusionResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the result as a Markdown report
func (r *Renderer) RenderMarkdown(result *model.FusionResult, path string) error {
	return writeFile(path, []byte(r.Markdown(result)))
}

// Markdown renders the result as a Markdown document
func (r *Renderer) Markdown(result *model.FusionResult) string {
	var b strings.Builder

	query, _ := result.Metadata.Get("query")
	fmt.Fprintf(&b, "# Fusion report\n\n")
	fmt.Fprintf(&b, "**Question:** %v\n\n", query)
	fmt.Fprintf(&b, "| confidence | quality | sources | conflicts | time |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %.2f | %.2f | %d | %d | %s |\n\n",
		result.Confidence, result.AnswerQualityScore, len(result.Sources), len(result.Conflicts), result.ProcessingTime)

	if reason := result.FailureReason(); reason != "" {
		fmt.Fprintf(&b, "> **Run failed:** %s\n\n", reason)
	}

	b.WriteString("## Answer\n\n")
	b.WriteString(result.Answer)
	b.WriteString("\n\n")
	if n := result.Narrative; n != nil {
		fmt.Fprintf(&b, "_Answer source: %s", n.Source)
		if n.Provider != "" {
			fmt.Fprintf(&b, " (%s", n.Provider)
			if n.Model != "" {
				fmt.Fprintf(&b, ", %s", n.Model)
			}
			if n.Cached {
				b.WriteString(", cached")
			}
			b.WriteString(")")
		}
		b.WriteString("_\n\n")
		for _, w := range n.Warnings {
			fmt.Fprintf(&b, "> Warning: %s\n\n", w)
		}
	}

	if len(result.Conflicts) > 0 {
		b.WriteString("## Conflicts\n\n")
		b.WriteString("| kind | participants | strategy | resolution | impact |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, c := range result.Conflicts {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %.2f |\n",
				c.Kind, strings.Join(c.ParticipantIDs, ", "), c.Strategy, escapeCell(c.Resolution), c.ConfidenceImpact)
		}
		b.WriteString("\n")
	}

	if len(result.ReasoningLog) > 0 {
		b.WriteString("## Reasoning\n\n")
		for _, step := range result.ReasoningLog {
			fmt.Fprintf(&b, "%d. **%s** (%.2f): %s\n", step.StepNumber, step.Action, step.Confidence, step.Description)
		}
		b.WriteString("\n")
	}

	if len(result.Sources) > 0 {
		b.WriteString("## Sources\n\n")
		b.WriteString("| id | kind | confidence | relevance | created |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range result.Sources {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %.2f | %s |\n", s.SourceID, s.SourceKind, s.Confidence, s.Relevance, s.CreatedAt)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString(footer)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSummary prints a short human-readable summary
func (r *Renderer) RenderSummary(w io.Writer, result *model.FusionResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	if reason := result.FailureReason(); reason != "" {
		fmt.Fprintf(w, "✗ Fusion failed: %s\n", reason)
	} else {
		fmt.Fprintf(w, "✓ Fused %d source(s)\n", len(result.Sources))
	}
	fmt.Fprintf(w, "  Confidence: %.2f   Quality: %.2f   Conflicts: %d\n",
		result.Confidence, result.AnswerQualityScore, len(result.Conflicts))
	for _, c := range result.Conflicts {
		fmt.Fprintf(w, "  ⚠ %s conflict [%s]: %s\n", c.Kind, strings.Join(c.ParticipantIDs, " vs "), c.Resolution)
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintln(w, fusion.Excerpt(result.Answer, 600))
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create directory %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

// RenderReport renders the result to the requested outputs and prints the summary
func (e *Engine) RenderReport(w io.Writer, result *model.FusionResult, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := e.renderer.RenderJSON(result, jsonPath); err != nil {
			return eris.Wrap(err, "render JSON")
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := e.renderer.RenderMarkdown(result, mdPath); err != nil {
			return eris.Wrap(err, "render markdown")
		}
		if verbose {
			fmt.Fprintf(w, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	e.renderer.RenderSummary(w, result)
	return nil
}
