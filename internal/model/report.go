package model

import "time"

// ApologyAnswer is returned whenever no narrative could be produced
const ApologyAnswer = "Sorry, I could not produce a reliable answer from the available sources. Please try rephrasing the question or adding more sources."

// FusedSource is one per-source entry of the fused content
type FusedSource struct {
	ID         string     `json:"source_id"`
	Content    string     `json:"content"`
	Kind       SourceKind `json:"source_kind"`
	Confidence float64    `json:"confidence"`
	Metadata   Metadata   `json:"metadata"`
}

// FusedContent is the aggregator output.
// PerSource keeps input order so prompt construction is deterministic.
type FusedContent struct {
	PerSource         []FusedSource `json:"per_source"`
	OverallConfidence float64       `json:"overall_confidence"`
	SourceCount       int           `json:"source_count"`
}

// Source looks up a per-source entry by id
func (f FusedContent) Source(id string) (FusedSource, bool) {
	for _, s := range f.PerSource {
		if s.ID == id {
			return s, true
		}
	}
	return FusedSource{}, false
}

// ExplanationStep is one ordered record of engine reasoning
type ExplanationStep struct {
	StepNumber      int            `json:"step_number"`
	Description     string         `json:"description"`
	Action          string         `json:"action"`
	Evidence        []string       `json:"evidence"`
	Confidence      float64        `json:"confidence"`
	DecisionFactors map[string]any `json:"decision_factors,omitempty"` // Transparent diagnostic data (formulas, inputs)
}

// Citation is the client-facing projection of a source record
type Citation struct {
	SourceID   string     `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
	Confidence float64    `json:"confidence"`
	Relevance  float64    `json:"relevance"`
	CreatedAt  string     `json:"created_at"` // RFC 3339
	Metadata   Metadata   `json:"metadata"`
}

// Stage is a pipeline orchestrator state
type Stage string

const (
	StageStandardizing      Stage = "STANDARDIZING"
	StagePreprocessing      Stage = "PREPROCESSING"
	StageDetectingConflicts Stage = "DETECTING_CONFLICTS"
	StageResolving          Stage = "RESOLVING"
	StageFusing             Stage = "FUSING"
	StageSynthesizing       Stage = "SYNTHESIZING"
	StageDone               Stage = "DONE"
	StageFailed             Stage = "FAILED"
)

// FusionResult is the final artifact of one fusion run
type FusionResult struct {
	Answer             string            `json:"answer"`
	Sources            []Citation        `json:"sources"`
	ReasoningLog       []ExplanationStep `json:"reasoning_log"`
	Confidence         float64           `json:"confidence"`
	Conflicts          []Conflict        `json:"conflicts"`
	AnswerQualityScore float64           `json:"answer_quality_score"`
	ProcessingTime     time.Duration     `json:"processing_time"`
	Metadata           Metadata          `json:"metadata"`

	Narrative *NarrativeInfo `json:"narrative,omitempty"` // How the answer text was produced
	Fused     *FusedContent  `json:"fused,omitempty"`
}

// NarrativeInfo describes the synthesis call that produced the answer
type NarrativeInfo struct {
	Source     string   `json:"source"` // "synthesizer", "local_summary" or "apology"
	Provider   string   `json:"provider,omitempty"`
	Model      string   `json:"model,omitempty"`
	Cached     bool     `json:"cached"`
	TokensUsed int      `json:"tokens_used,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// FailureReason returns the error recorded in the result metadata, if any
func (r FusionResult) FailureReason() string {
	if v, ok := r.Metadata.Get("error"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
