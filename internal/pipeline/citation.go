package pipeline

import (
	"time"

	"github.com/ppiankov/confluence/internal/model"
)

// PrepareCitations projects each record into a citation, in input order.
// Records are neither filtered nor ranked.
func PrepareCitations(records []model.SourceRecord) []model.Citation {
	citations := make([]model.Citation, 0, len(records))
	for _, rec := range records {
		citations = append(citations, model.Citation{
			SourceID:   rec.ID,
			SourceKind: rec.Kind,
			Confidence: rec.Confidence,
			Relevance:  rec.Relevance,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
			Metadata:   rec.Metadata.Clone(),
		})
	}
	return citations
}
