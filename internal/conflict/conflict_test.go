package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/confluence/internal/model"
)

func rec(id string, kind model.SourceKind, content string, confidence float64, numbers ...float64) model.SourceRecord {
	return model.SourceRecord{
		ID:          id,
		Kind:        kind,
		Content:     content,
		Metadata:    model.NewMetadata(),
		Confidence:  confidence,
		Relevance:   0.8,
		Reliability: 0.8,
		Features:    model.Features{Numbers: numbers},
	}
}

func newDetector() *Detector {
	return NewDetector(model.DefaultConfig().Detection)
}

func TestRelativeDifference(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"smaller value is denominator", 100, 109, 0.09},
		{"order does not matter", 111, 100, 0.11},
		{"negative values", -100, -50, 1},
		{"zero against non-zero", 0, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := RelativeDifference(tt.a, tt.b)
			require.True(t, ok)
			assert.InDelta(t, tt.want, d, 1e-9)
		})
	}

	_, ok := RelativeDifference(0, 0)
	assert.False(t, ok)
}

func TestDetect_NumericThreshold(t *testing.T) {
	tests := []struct {
		name     string
		a, b     float64
		conflict bool
	}{
		{"within threshold", 100, 109, false},
		{"beyond threshold", 100, 111, true},
		{"exactly at threshold", 100, 110, false},
		{"negative values", -100, -50, true},
		{"zero against non-zero", 0, 5, true},
		{"both zero", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []model.SourceRecord{
				rec("a", model.SourceDocument, "value", 0.8, tt.a),
				rec("b", model.SourceDocument, "value", 0.8, tt.b),
			}
			conflicts, err := newDetector().Detect(context.Background(), records)
			require.NoError(t, err)
			if tt.conflict {
				require.Len(t, conflicts, 1)
				assert.Equal(t, model.ConflictNumeric, conflicts[0].Kind)
				assert.Equal(t, model.StrategyTrustSQLOverRAG, conflicts[0].Strategy)
				assert.Equal(t, 0.2, conflicts[0].ConfidenceImpact)
				assert.Equal(t, model.ResolutionPending, conflicts[0].Resolution)
			} else {
				assert.Empty(t, conflicts)
			}
		})
	}
}

func TestDetect_FewerThanTwoRecords(t *testing.T) {
	conflicts, err := newDetector().Detect(context.Background(), []model.SourceRecord{rec("a", model.SourceDocument, "x", 0.5, 1)})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.NotNil(t, conflicts)
}

func TestDetect_RecordWithoutNumbersSkipsNumeric(t *testing.T) {
	records := []model.SourceRecord{
		rec("a", model.SourceDocument, "revenue 100", 0.8, 100),
		rec("b", model.SourceDocument, "revenue unknown", 0.8),
	}
	conflicts, err := newDetector().Detect(context.Background(), records)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetect_Factual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		conflict bool
	}{
		{"is vs is not", "The service is available", "The service is not available", true},
		{"has vs hasn't", "The account has a balance", "The account hasn't a balance", true},
		{"already vs not yet", "The order already shipped", "The order has not yet shipped", true},
		{"chinese", "该产品是免费的", "该产品不是免费的", true},
		{"chinese has", "库存有货", "库存没有货", true},
		{"both affirm", "It is open", "It is ready", false},
		{"no markers", "Revenue grew", "Revenue fell", false},
		{"both negate", "It is not open", "It is not ready", false},
		{"negation alongside plain is", "The service is available", "The service is not available, which is unexpected", true},
		{"not yet alongside already", "The project already shipped", "The project has not yet shipped but already has a date", true},
		{"yes vs no", "Yes the vendor is approved", "No, the vendor is not approved", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []model.SourceRecord{
				rec("a", model.SourceDocument, tt.a, 0.8),
				rec("b", model.SourceDocument, tt.b, 0.8),
			}
			conflicts, err := newDetector().Detect(context.Background(), records)
			require.NoError(t, err)
			if tt.conflict {
				require.Len(t, conflicts, 1)
				assert.Equal(t, model.ConflictFactual, conflicts[0].Kind)
				assert.Equal(t, model.StrategyTrustHighestConfidence, conflicts[0].Strategy)
				assert.Equal(t, 0.3, conflicts[0].ConfidenceImpact)
				assert.Equal(t, []string{"a", "b"}, conflicts[0].ParticipantIDs)
			} else {
				assert.Empty(t, conflicts)
			}
		})
	}
}

func TestDetect_TemporalNeverEmits(t *testing.T) {
	a := rec("a", model.SourceDocument, "launched 2024-01-01", 0.8)
	a.Features.Dates = []string{"2024-01-01"}
	b := rec("b", model.SourceDocument, "launched 2020-06-30", 0.8)
	b.Features.Dates = []string{"2020-06-30"}

	conflicts, err := newDetector().Detect(context.Background(), []model.SourceRecord{a, b})
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetect_DeterministicOrder(t *testing.T) {
	records := []model.SourceRecord{
		rec("r0", model.SourceDocument, "x", 0.8, 10),
		rec("r1", model.SourceDocument, "x", 0.8, 20),
		rec("r2", model.SourceDocument, "x", 0.8, 40),
		rec("r3", model.SourceDocument, "x", 0.8, 80),
	}

	first, err := newDetector().Detect(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, first, 6)

	for i := 0; i < 5; i++ {
		again, err := newDetector().Detect(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []string{"r0", "r1"}, first[0].ParticipantIDs)
	assert.Equal(t, []string{"r2", "r3"}, first[5].ParticipantIDs)
}

func TestDetect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []model.SourceRecord{
		rec("a", model.SourceDocument, "x", 0.8, 1),
		rec("b", model.SourceDocument, "x", 0.8, 2),
	}
	_, err := newDetector().Detect(ctx, records)
	assert.Error(t, err)
}

func TestResolve_Strategies(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := rec("document_0", model.SourceDocument, "x", 0.95)
	older.CreatedAt = now.Add(-time.Hour)
	newer := rec("semantic_retrieval_0", model.SourceSemanticRetrieval, "y", 0.6)
	newer.CreatedAt = now
	sql := rec("structured_query_0", model.SourceStructuredQuery, "z", 0.5)
	sql.CreatedAt = now.Add(-2 * time.Hour)

	records := []model.SourceRecord{older, newer, sql}

	tests := []struct {
		strategy     model.Strategy
		participants []string
		winner       string
	}{
		{model.StrategyTrustMostRecent, []string{"document_0", "semantic_retrieval_0"}, "semantic_retrieval_0"},
		{model.StrategyTrustHighestConfidence, []string{"semantic_retrieval_0", "document_0"}, "document_0"},
		{model.StrategyTrustSQLOverRAG, []string{"document_0", "structured_query_0"}, "structured_query_0"},
		{model.StrategyTrustSQLOverRAG, []string{"semantic_retrieval_0", "document_0"}, "document_0"},
		{model.StrategyTrustConsensus, []string{"document_0", "semantic_retrieval_0"}, ""},
		{model.StrategyWeightedAverage, []string{"document_0", "semantic_retrieval_0"}, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			in := []model.Conflict{{
				Kind:           model.ConflictNumeric,
				ParticipantIDs: tt.participants,
				Strategy:       tt.strategy,
				Resolution:     model.ResolutionPending,
			}}
			out := NewResolver().Resolve(records, in)
			require.Len(t, out, 1)
			assert.Equal(t, tt.winner, out[0].WinnerID)
			assert.NotEqual(t, model.ResolutionPending, out[0].Resolution)
			assert.NotEqual(t, model.ResolutionFailed, out[0].Resolution)
			assert.Equal(t, model.ResolutionPending, in[0].Resolution, "input conflict must not be mutated")
		})
	}
}

func TestResolve_SQLOverRAGPicksMostConfidentStructured(t *testing.T) {
	records := []model.SourceRecord{
		rec("structured_query_0", model.SourceStructuredQuery, "120000", 0.9, 120000),
		rec("structured_query_1", model.SourceStructuredQuery, "100000", 0.8, 100000),
	}
	out := NewResolver().Resolve(records, []model.Conflict{{
		ParticipantIDs: []string{"structured_query_1", "structured_query_0"},
		Strategy:       model.StrategyTrustSQLOverRAG,
	}})
	assert.Equal(t, "structured_query_0", out[0].WinnerID)
}

func TestResolve_FailuresAreContained(t *testing.T) {
	records := []model.SourceRecord{
		rec("a", model.SourceDocument, "x", 0.9),
		rec("b", model.SourceDocument, "y", 0.8),
	}

	r := NewResolver()
	r.handlers[model.StrategyTrustMostRecent] = func([]model.SourceRecord) (Outcome, error) {
		panic("handler exploded")
	}
	r.handlers[model.StrategyWeightedAverage] = func([]model.SourceRecord) (Outcome, error) {
		return Outcome{}, errors.New("blend failed")
	}

	in := []model.Conflict{
		{ParticipantIDs: []string{"a", "b"}, Strategy: model.StrategyTrustMostRecent},
		{ParticipantIDs: []string{"a", "b"}, Strategy: model.StrategyWeightedAverage},
		{ParticipantIDs: []string{"a", "missing"}, Strategy: model.StrategyTrustHighestConfidence},
		{ParticipantIDs: []string{"a", "b"}, Strategy: model.Strategy("UNKNOWN")},
		{ParticipantIDs: []string{"a", "b"}, Strategy: model.StrategyTrustHighestConfidence},
	}

	out := r.Resolve(records, in)
	require.Len(t, out, 5)
	for i := 0; i < 4; i++ {
		assert.Equal(t, model.ResolutionFailed, out[i].Resolution, "conflict %d", i)
		assert.Empty(t, out[i].WinnerID)
	}
	assert.Equal(t, "a", out[4].WinnerID)
}

func TestScenario_RevenueDisagreement(t *testing.T) {
	records := []model.SourceRecord{
		rec("structured_query_0", model.SourceStructuredQuery, `"revenue":120000`, 0.9, 120000),
		rec("structured_query_1", model.SourceStructuredQuery, `"revenue":100000`, 0.8, 100000),
		rec("semantic_retrieval_0", model.SourceSemanticRetrieval, "Revenue grew strongly this year", 0.85),
	}

	conflicts, err := newDetector().Detect(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, model.ConflictNumeric, conflicts[0].Kind)
	assert.Equal(t, model.StrategyTrustSQLOverRAG, conflicts[0].Strategy)

	resolved := NewResolver().Resolve(records, conflicts)
	assert.Equal(t, "structured_query_0", resolved[0].WinnerID)
}
