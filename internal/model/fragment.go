package model

import "time"

// StructuredFragment is one result from the structured-query backend.
// Pointer fields are optional; adapters substitute defaults when nil.
type StructuredFragment struct {
	Data       any        `json:"data"`                 // Result rows or scalar (any JSON shape)
	Query      string     `json:"sql_query,omitempty"`  // The translated query that produced the rows
	Table      string     `json:"table,omitempty"`
	RowCount   *int       `json:"row_count,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Relevance  *float64   `json:"relevance,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// RetrievalHit is one hit from the semantic-retrieval backend
type RetrievalHit struct {
	Content    any            `json:"content"` // String, or a list of strings/chunks
	Score      *float64       `json:"score,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Relevance  *float64       `json:"relevance,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
}

// DocumentExcerpt is one excerpt from the document backend
type DocumentExcerpt struct {
	Content    any        `json:"content"` // Plain text or HTML
	DocumentID string     `json:"document_id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Page       *int       `json:"page,omitempty"`
	ChunkIndex *int       `json:"chunk_index,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	Relevance  *float64   `json:"relevance,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// FusionRequest is the full input of one fusion run
type FusionRequest struct {
	Query      string               `json:"query"`
	TenantID   string               `json:"tenant_id"`
	Structured []StructuredFragment `json:"structured,omitempty"`
	Semantic   []RetrievalHit       `json:"semantic,omitempty"`
	Documents  []DocumentExcerpt    `json:"documents,omitempty"`
}

// FragmentCount returns the total number of raw fragments
func (r FusionRequest) FragmentCount() int {
	return len(r.Structured) + len(r.Semantic) + len(r.Documents)
}
