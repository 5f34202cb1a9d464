package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceKind identifies which retrieval backend produced a fragment
type SourceKind string

const (
	SourceStructuredQuery   SourceKind = "STRUCTURED_QUERY"   // Rows returned by a translated structured query
	SourceSemanticRetrieval SourceKind = "SEMANTIC_RETRIEVAL" // Vector / semantic search hits
	SourceDocument          SourceKind = "DOCUMENT"           // Excerpts from uploaded documents
)

// IDPrefix returns the lower-case prefix used for generated source ids
func (k SourceKind) IDPrefix() string {
	return strings.ToLower(string(k))
}

// Label returns a short human-readable name
func (k SourceKind) Label() string {
	switch k {
	case SourceStructuredQuery:
		return "structured query"
	case SourceSemanticRetrieval:
		return "semantic retrieval"
	case SourceDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Features holds values extracted from a record's cleaned content
type Features struct {
	Numbers     []float64 `json:"numbers"`
	Dates       []string  `json:"dates"`
	Percentages []string  `json:"percentages"`
}

// SourceRecord is one normalized fragment
type SourceRecord struct {
	ID          string     `json:"source_id"`
	Kind        SourceKind `json:"source_kind"`
	Content     string     `json:"content"`
	Metadata    Metadata   `json:"metadata"`
	Confidence  float64    `json:"confidence"`  // Caller-supplied prior belief in correctness
	Relevance   float64    `json:"relevance"`   // Topical match strength
	Reliability float64    `json:"reliability"` // Source-kind prior
	CreatedAt   time.Time  `json:"created_at"`

	Features Features `json:"-"` // Typed mirror of the extracted metadata fields
}

// Weight is the record's contribution weight during fusion
func (r SourceRecord) Weight() float64 {
	return r.Confidence * r.Relevance * r.Reliability
}

// Clone returns a copy that shares no mutable state with r
func (r SourceRecord) Clone() SourceRecord {
	c := r
	c.Metadata = r.Metadata.Clone()
	c.Features = Features{
		Numbers:     append([]float64(nil), r.Features.Numbers...),
		Dates:       append([]string(nil), r.Features.Dates...),
		Percentages: append([]string(nil), r.Features.Percentages...),
	}
	return c
}

// Clamp01 bounds v to [0, 1]
func Clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ContentString coerces loosely-typed fragment content into text.
// Strings pass through, lists are joined with a single space, nil becomes
// empty and anything else is JSON-encoded.
func ContentString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []string:
		return strings.Join(c, " ")
	case []any:
		parts := make([]string, 0, len(c))
		for _, item := range c {
			if s := ContentString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(c, &decoded); err != nil {
			return string(c)
		}
		return ContentString(decoded)
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(data)
	}
}
