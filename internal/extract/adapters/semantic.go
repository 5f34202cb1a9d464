package adapters

import (
	"sort"

	"github.com/ppiankov/confluence/internal/model"
)

// SemanticAdapter normalizes semantic-retrieval hits
type SemanticAdapter struct{}

// NewSemanticAdapter creates a new semantic-retrieval adapter
func NewSemanticAdapter() *SemanticAdapter {
	return &SemanticAdapter{}
}

// Kind returns SEMANTIC_RETRIEVAL
func (a *SemanticAdapter) Kind() model.SourceKind {
	return model.SourceSemanticRetrieval
}

// Normalize converts each hit into a record. The similarity score stands in
// for confidence when no explicit confidence is given.
func (a *SemanticAdapter) Normalize(req model.FusionRequest, d Defaults) []model.SourceRecord {
	records := make([]model.SourceRecord, 0, len(req.Semantic))
	for i, hit := range req.Semantic {
		confidence := hit.Confidence
		if confidence == nil {
			confidence = hit.Score
		}

		rec := newRecord(a.Kind(), i, model.ContentString(hit.Content), d, confidence, hit.Relevance, hit.CreatedAt)

		if hit.Score != nil {
			rec.Metadata.Set("score", *hit.Score)
		}
		if hit.Collection != "" {
			rec.Metadata.Set("collection", hit.Collection)
		}

		// Backend metadata is copied in sorted key order; engine keys win on collision
		keys := make([]string, 0, len(hit.Metadata))
		for k := range hit.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, exists := rec.Metadata.Get(k); !exists {
				rec.Metadata.Set(k, hit.Metadata[k])
			}
		}

		records = append(records, rec)
	}
	return records
}
