package adapters

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/confluence/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *Registry {
	r := NewRegistry(model.DefaultConfig().Reliability)
	r.SetClock(func() time.Time { return fixedNow })
	return r
}

func floatPtr(f float64) *float64 { return &f }

func TestRegistry_Normalize_IDsAndOrder(t *testing.T) {
	req := model.FusionRequest{
		Structured: []model.StructuredFragment{{Data: "a"}, {Data: "b"}},
		Semantic:   []model.RetrievalHit{{Content: "c"}},
		Documents:  []model.DocumentExcerpt{{Content: "d"}, {Content: "e"}},
	}

	records := newTestRegistry().Normalize(req)
	require.Len(t, records, 5)

	want := []string{
		"structured_query_0", "structured_query_1",
		"semantic_retrieval_0",
		"document_0", "document_1",
	}
	seen := make(map[string]bool)
	for i, rec := range records {
		assert.Equal(t, want[i], rec.ID)
		assert.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestRegistry_Normalize_Defaults(t *testing.T) {
	req := model.FusionRequest{
		Structured: []model.StructuredFragment{{Data: map[string]any{"revenue": 120000.0}}},
		Semantic:   []model.RetrievalHit{{Content: "hit"}},
		Documents:  []model.DocumentExcerpt{{Content: "doc"}},
	}

	records := newTestRegistry().Normalize(req)
	require.Len(t, records, 3)

	sq := records[0]
	assert.Equal(t, model.SourceStructuredQuery, sq.Kind)
	assert.Equal(t, `{"revenue":120000}`, sq.Content)
	assert.InDelta(t, 0.9, sq.Confidence, 1e-9)
	assert.InDelta(t, 0.8, sq.Relevance, 1e-9)
	assert.InDelta(t, 0.95, sq.Reliability, 1e-9)
	assert.Equal(t, fixedNow, sq.CreatedAt)
	rows, _ := sq.Metadata.Get("row_count")
	assert.Equal(t, 1, rows)

	assert.InDelta(t, 0.8, records[1].Confidence, 1e-9)
	assert.InDelta(t, 0.8, records[1].Reliability, 1e-9)

	assert.InDelta(t, 0.85, records[2].Confidence, 1e-9)
	assert.InDelta(t, 0.8, records[2].Reliability, 1e-9)
}

func TestRegistry_Normalize_ClampsWeights(t *testing.T) {
	req := model.FusionRequest{
		Semantic: []model.RetrievalHit{{Content: "x", Confidence: floatPtr(1.7), Relevance: floatPtr(-0.2)}},
	}

	rec := newTestRegistry().Normalize(req)[0]
	assert.Equal(t, 1.0, rec.Confidence)
	assert.Equal(t, 0.0, rec.Relevance)
}

func TestSemanticAdapter_ScoreAsConfidence(t *testing.T) {
	req := model.FusionRequest{
		Semantic: []model.RetrievalHit{
			{Content: "x", Score: floatPtr(0.66)},
			{Content: "y", Score: floatPtr(0.66), Confidence: floatPtr(0.4)},
		},
	}

	records := newTestRegistry().Normalize(req)
	assert.InDelta(t, 0.66, records[0].Confidence, 1e-9)
	assert.InDelta(t, 0.4, records[1].Confidence, 1e-9)
}

func TestSemanticAdapter_ListContent(t *testing.T) {
	req := model.FusionRequest{
		Semantic: []model.RetrievalHit{{Content: []any{"first chunk", "second chunk"}}},
	}

	rec := newTestRegistry().Normalize(req)[0]
	assert.Equal(t, "first chunk second chunk", rec.Content)
}

func TestDocumentAdapter_StripsHTML(t *testing.T) {
	req := model.FusionRequest{
		Documents: []model.DocumentExcerpt{{
			Content:    "<p>Revenue <b>grew</b> in 2024.</p><script>var x = 1;</script>",
			DocumentID: "doc-1",
		}},
	}

	rec := newTestRegistry().Normalize(req)[0]
	assert.Equal(t, "Revenue grew in 2024.", rec.Content)
	stripped, ok := rec.Metadata.Get("html_stripped")
	assert.True(t, ok)
	assert.Equal(t, true, stripped)
}

func TestDocumentAdapter_PlainTextUntouched(t *testing.T) {
	req := model.FusionRequest{
		Documents: []model.DocumentExcerpt{{Content: "Growth was 5% < 10% > 2%"}},
	}

	rec := newTestRegistry().Normalize(req)[0]
	assert.Equal(t, "Growth was 5% < 10% > 2%", rec.Content)
}

func TestNormalize_MalformedJSONFragments(t *testing.T) {
	raw := `{
		"query": "q",
		"structured": [{"sql_query": "SELECT 1"}, {"data": [1, 2], "confidence": "0.7", "row_count": "two"}],
		"semantic": [{"content": ["a", "b"], "score": "high"}, "bare string hit"],
		"documents": [{"content": 42, "created_at": "not a date", "page": 3}]
	}`

	var req model.FusionRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	records := newTestRegistry().Normalize(req)
	require.Len(t, records, 5)

	// Missing data -> empty content, defaults retained
	assert.Equal(t, "", records[0].Content)
	query, _ := records[0].Metadata.Get("sql_query")
	assert.Equal(t, "SELECT 1", query)

	// Numeric string confidence is salvaged, bad row_count falls back to list length
	assert.InDelta(t, 0.7, records[1].Confidence, 1e-9)
	rows, _ := records[1].Metadata.Get("row_count")
	assert.Equal(t, 2, rows)

	// Non-numeric score is dropped, default confidence applies
	assert.Equal(t, "a b", records[2].Content)
	assert.InDelta(t, 0.8, records[2].Confidence, 1e-9)

	// Bare string item becomes content
	assert.Equal(t, "bare string hit", records[3].Content)

	// Numeric content is coerced, invalid timestamp falls back to now
	assert.Equal(t, "42", records[4].Content)
	assert.Equal(t, fixedNow, records[4].CreatedAt)
}
