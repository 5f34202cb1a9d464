package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fragments arrive loosely typed. Each variant decodes through a generic map
// so a wrong-typed field degrades to "absent" instead of failing the request.

// UnmarshalJSON decodes a structured fragment, salvaging well-typed fields
func (f *StructuredFragment) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	*f = StructuredFragment{
		Data:       m["data"],
		Query:      stringField(m, "sql_query"),
		Table:      stringField(m, "table"),
		RowCount:   intField(m, "row_count"),
		Confidence: floatField(m, "confidence"),
		Relevance:  floatField(m, "relevance"),
		CreatedAt:  timeField(m, "created_at"),
	}
	return nil
}

// UnmarshalJSON decodes a retrieval hit, salvaging well-typed fields
func (h *RetrievalHit) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	*h = RetrievalHit{
		Content:    m["content"],
		Score:      floatField(m, "score"),
		Confidence: floatField(m, "confidence"),
		Relevance:  floatField(m, "relevance"),
		Collection: stringField(m, "collection"),
		CreatedAt:  timeField(m, "created_at"),
	}
	if md, ok := m["metadata"].(map[string]any); ok {
		h.Metadata = md
	}
	return nil
}

// UnmarshalJSON decodes a document excerpt, salvaging well-typed fields
func (d *DocumentExcerpt) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	*d = DocumentExcerpt{
		Content:    m["content"],
		DocumentID: stringField(m, "document_id"),
		Title:      stringField(m, "title"),
		Page:       intField(m, "page"),
		ChunkIndex: intField(m, "chunk_index"),
		Confidence: floatField(m, "confidence"),
		Relevance:  floatField(m, "relevance"),
		CreatedAt:  timeField(m, "created_at"),
	}
	return nil
}

// decodeObject decodes data as an object. Non-object items (a bare string or
// number where an object was expected) become {"content": item, "data": item}.
func decodeObject(data []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"content": raw, "data": raw}, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func floatField(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func intField(m map[string]any, key string) *int {
	f := floatField(m, key)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

func timeField(m map[string]any, key string) *time.Time {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
