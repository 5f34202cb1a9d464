package fusion

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/confluence/internal/model"
)

const (
	summarySources = 3
	summaryExcerpt = 200
)

// Summarize builds a deterministic extractive answer from the most confident
// sources. It is used when no synthesizer is configured; synthesis failures
// yield the apology answer instead.
func Summarize(query string, fused model.FusedContent) string {
	if len(fused.PerSource) == 0 {
		return ""
	}

	ranked := make([]model.FusedSource, 0, len(fused.PerSource))
	for _, s := range fused.PerSource {
		if strings.TrimSpace(s.Content) != "" {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return ""
	}

	// Stable: equal confidence keeps input order
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})
	if len(ranked) > summarySources {
		ranked = ranked[:summarySources]
	}

	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "Regarding %q: ", query)
	}
	fmt.Fprintf(&b, "based on %d source(s) (overall confidence %.0f%%).", fused.SourceCount, fused.OverallConfidence*100)
	for _, s := range ranked {
		fmt.Fprintf(&b, "\n- [%s] %s", s.ID, Excerpt(s.Content, summaryExcerpt))
	}
	return b.String()
}

// Excerpt truncates content to at most limit runes, marking the cut
func Excerpt(content string, limit int) string {
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
