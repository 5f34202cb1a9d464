package adapters

import (
	"github.com/ppiankov/confluence/internal/model"
)

// StructuredAdapter normalizes structured-query results
type StructuredAdapter struct{}

// NewStructuredAdapter creates a new structured-query adapter
func NewStructuredAdapter() *StructuredAdapter {
	return &StructuredAdapter{}
}

// Kind returns STRUCTURED_QUERY
func (a *StructuredAdapter) Kind() model.SourceKind {
	return model.SourceStructuredQuery
}

// Normalize converts each structured fragment into a record.
// A fragment without data yields an empty-content record.
func (a *StructuredAdapter) Normalize(req model.FusionRequest, d Defaults) []model.SourceRecord {
	records := make([]model.SourceRecord, 0, len(req.Structured))
	for i, frag := range req.Structured {
		rec := newRecord(a.Kind(), i, model.ContentString(frag.Data), d, frag.Confidence, frag.Relevance, frag.CreatedAt)

		rec.Metadata.Set("sql_query", frag.Query)
		if frag.Table != "" {
			rec.Metadata.Set("table", frag.Table)
		}
		rec.Metadata.Set("row_count", rowCount(frag))

		records = append(records, rec)
	}
	return records
}

// rowCount prefers the reported count, else counts list-shaped data
func rowCount(frag model.StructuredFragment) int {
	if frag.RowCount != nil && *frag.RowCount >= 0 {
		return *frag.RowCount
	}
	switch data := frag.Data.(type) {
	case nil:
		return 0
	case []any:
		return len(data)
	default:
		return 1
	}
}
