package fusion

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/confluence/internal/model"
)

// DegradedConfidence is reported when aggregation fails
const DegradedConfidence = 0.1

// Aggregator merges records into weighted-confidence fused content
type Aggregator struct{}

// NewAggregator creates a new aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Aggregate computes fused content from records. Every record, including
// conflict losers, is kept. On error the returned content is Degraded().
//
//	weight_i           = confidence_i * relevance_i * reliability_i
//	overall_confidence = Σ(confidence_i * weight_i) / Σ weight_i   (0 when Σ weight_i = 0)
func (a *Aggregator) Aggregate(records []model.SourceRecord) (fused model.FusedContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			fused = Degraded()
			err = eris.New(fmt.Sprintf("aggregate: %v", r))
		}
	}()

	seen := make(map[string]struct{}, len(records))
	perSource := make([]model.FusedSource, 0, len(records))

	var weightSum, weightedConfidence float64
	for _, rec := range records {
		if _, dup := seen[rec.ID]; dup {
			return Degraded(), eris.Errorf("aggregate: duplicate source id %s", rec.ID)
		}
		seen[rec.ID] = struct{}{}

		if !finite(rec.Confidence) || !finite(rec.Relevance) || !finite(rec.Reliability) {
			return Degraded(), eris.Errorf("aggregate: non-finite weighting on %s", rec.ID)
		}

		w := rec.Weight()
		weightSum += w
		weightedConfidence += rec.Confidence * w

		perSource = append(perSource, model.FusedSource{
			ID:         rec.ID,
			Content:    rec.Content,
			Kind:       rec.Kind,
			Confidence: rec.Confidence,
			Metadata:   rec.Metadata.Clone(),
		})
	}

	overall := 0.0
	if weightSum > 0 {
		overall = model.Clamp01(weightedConfidence / weightSum)
	}

	return model.FusedContent{
		PerSource:         perSource,
		OverallConfidence: overall,
		SourceCount:       len(perSource),
	}, nil
}

// Degraded is the fused content reported when aggregation fails
func Degraded() model.FusedContent {
	return model.FusedContent{
		PerSource:         []model.FusedSource{},
		OverallConfidence: DegradedConfidence,
		SourceCount:       0,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
