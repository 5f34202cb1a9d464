package score

import (
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/confluence/internal/model"
)

// FallbackConfidence is the confidence of the single step emitted when the
// explanation cannot be built
const FallbackConfidence = 0.1

// Quality is the answer quality score with its per-term contributions
type Quality struct {
	Score     float64 `json:"score"`
	Length    float64 `json:"length"`
	Sources   float64 `json:"sources"`
	Reasoning float64 `json:"reasoning"`
	Fusion    float64 `json:"fusion"`
}

// Factors returns the breakdown as decision-factor style data
func (q Quality) Factors() map[string]any {
	return map[string]any{
		"length":    q.Length,
		"sources":   q.Sources,
		"reasoning": q.Reasoning,
		"fusion":    q.Fusion,
		"score":     q.Score,
		"formula":   "min(length_bonus + source_bonus + mean_step_confidence*0.25 + overall_confidence*0.2, 1)",
	}
}

// Scorer derives the answer quality score and the explanation steps
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Quality scores an answer:
//
//	length  >= 100 runes -> 0.3, >= 50 -> 0.2
//	sources >= 3 -> 0.25, >= 2 -> 0.15
//	mean step confidence * 0.25
//	overall confidence * 0.2
func (s *Scorer) Quality(answer string, fused model.FusedContent, steps []model.ExplanationStep) Quality {
	var q Quality

	switch n := utf8.RuneCountInString(answer); {
	case n >= 100:
		q.Length = 0.3
	case n >= 50:
		q.Length = 0.2
	}

	switch {
	case fused.SourceCount >= 3:
		q.Sources = 0.25
	case fused.SourceCount >= 2:
		q.Sources = 0.15
	}

	if len(steps) > 0 {
		sum := 0.0
		for _, step := range steps {
			sum += model.Clamp01(step.Confidence)
		}
		q.Reasoning = sum / float64(len(steps)) * 0.25
	}

	q.Fusion = model.Clamp01(fused.OverallConfidence) * 0.2

	q.Score = math.Min(q.Length+q.Sources+q.Reasoning+q.Fusion, 1.0)
	return q
}

// Explain builds the ordered reasoning log. The conflict step is emitted only
// when there are conflicts. With no records, or if building fails, a single
// fallback step is returned instead of an empty log.
func (s *Scorer) Explain(records []model.SourceRecord, conflicts []model.Conflict, fused model.FusedContent) (steps []model.ExplanationStep) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("explanation builder failed", zap.Any("panic", r))
			steps = FallbackSteps(fmt.Sprintf("explanation unavailable: %v", r))
		}
	}()

	if len(records) == 0 {
		return FallbackSteps("no source records available")
	}

	steps = append(steps, s.collectionStep(records))
	steps = append(steps, s.qualityStep(records))
	if len(conflicts) > 0 {
		steps = append(steps, s.conflictStep(conflicts))
	}
	steps = append(steps, s.fusionStep(fused))

	for i := range steps {
		steps[i].StepNumber = i + 1
	}
	return steps
}

// FallbackSteps is the minimal reasoning log used when no explanation can be built
func FallbackSteps(reason string) []model.ExplanationStep {
	return []model.ExplanationStep{{
		StepNumber:  1,
		Description: "Explanation fallback",
		Action:      "fallback",
		Evidence:    []string{reason},
		Confidence:  FallbackConfidence,
	}}
}

// collectionStep records how many sources of each kind were collected.
// Its confidence is the mean source-kind reliability.
func (s *Scorer) collectionStep(records []model.SourceRecord) model.ExplanationStep {
	counts := make(map[model.SourceKind]int)
	var order []model.SourceKind
	reliability := 0.0
	for _, r := range records {
		if counts[r.Kind] == 0 {
			order = append(order, r.Kind)
		}
		counts[r.Kind]++
		reliability += r.Reliability
	}

	evidence := []string{fmt.Sprintf("%d source record(s) collected", len(records))}
	kinds := make(map[string]any, len(order))
	for _, k := range order {
		evidence = append(evidence, fmt.Sprintf("%s: %d", k, counts[k]))
		kinds[string(k)] = counts[k]
	}

	return model.ExplanationStep{
		Description: "Data collection",
		Action:      "collect_sources",
		Evidence:    evidence,
		Confidence:  model.Clamp01(reliability / float64(len(records))),
		DecisionFactors: map[string]any{
			"source_count": len(records),
			"kinds":        kinds,
		},
	}
}

// qualityStep records per-record weighting. Its confidence is the mean
// per-record confidence.
func (s *Scorer) qualityStep(records []model.SourceRecord) model.ExplanationStep {
	evidence := make([]string, 0, len(records))
	sum := 0.0
	lowest, highest := records[0], records[0]
	for _, r := range records {
		sum += r.Confidence
		evidence = append(evidence, fmt.Sprintf("%s: confidence %.2f, relevance %.2f, reliability %.2f",
			r.ID, r.Confidence, r.Relevance, r.Reliability))
		if r.Confidence < lowest.Confidence {
			lowest = r
		}
		if r.Confidence > highest.Confidence {
			highest = r
		}
	}
	mean := sum / float64(len(records))

	return model.ExplanationStep{
		Description: "Data quality assessment",
		Action:      "assess_quality",
		Evidence:    evidence,
		Confidence:  model.Clamp01(mean),
		DecisionFactors: map[string]any{
			"mean_confidence": mean,
			"lowest":          lowest.ID,
			"highest":         highest.ID,
		},
	}
}

// conflictStep records conflicts and the strategies used. Its confidence is
// reduced by the total conflict impact.
func (s *Scorer) conflictStep(conflicts []model.Conflict) model.ExplanationStep {
	evidence := make([]string, 0, len(conflicts))
	strategySet := make(map[string]struct{})
	kinds := make(map[string]any)
	failed := 0
	for _, c := range conflicts {
		evidence = append(evidence, fmt.Sprintf("%s conflict between %v: %s", c.Kind, c.ParticipantIDs, c.Resolution))
		strategySet[string(c.Strategy)] = struct{}{}
		n, _ := kinds[string(c.Kind)].(int)
		kinds[string(c.Kind)] = n + 1
		if c.Resolution == model.ResolutionFailed {
			failed++
		}
	}

	strategies := make([]string, 0, len(strategySet))
	for st := range strategySet {
		strategies = append(strategies, st)
	}
	sort.Strings(strategies)

	impact := model.TotalImpact(conflicts)

	return model.ExplanationStep{
		Description: "Conflict detection & resolution",
		Action:      "resolve_conflicts",
		Evidence:    evidence,
		Confidence:  model.Clamp01(math.Max(FallbackConfidence, 1-impact)),
		DecisionFactors: map[string]any{
			"conflict_count":      len(conflicts),
			"kinds":               kinds,
			"strategies":          strategies,
			"failed_resolutions":  failed,
			"total_impact":        impact,
			"confidence_formula":  "max(0.1, 1 - sum(confidence_impact))",
			"losing_sources_kept": true,
		},
	}
}

// fusionStep records the overall confidence
func (s *Scorer) fusionStep(fused model.FusedContent) model.ExplanationStep {
	return model.ExplanationStep{
		Description: "Information fusion",
		Action:      "fuse",
		Evidence: []string{
			fmt.Sprintf("%d source(s) fused with overall confidence %.2f", fused.SourceCount, fused.OverallConfidence),
		},
		Confidence: model.Clamp01(fused.OverallConfidence),
		DecisionFactors: map[string]any{
			"overall_confidence": fused.OverallConfidence,
			"source_count":       fused.SourceCount,
			"formula":            "sum(confidence*weight) / sum(weight), weight = confidence*relevance*reliability",
		},
	}
}
