package model

// ConflictKind classifies a disagreement between records
type ConflictKind string

const (
	ConflictNumeric  ConflictKind = "NUMERIC"  // First extracted numbers differ beyond the threshold
	ConflictFactual  ConflictKind = "FACTUAL"  // Affirmative vs negated statement of the same concept
	ConflictTemporal ConflictKind = "TEMPORAL" // Contradictory date orderings (detection reserved)
)

// Strategy names a conflict-resolution rule
type Strategy string

const (
	StrategyTrustMostRecent        Strategy = "TRUST_MOST_RECENT"
	StrategyTrustHighestConfidence Strategy = "TRUST_HIGHEST_CONFIDENCE"
	StrategyTrustSQLOverRAG        Strategy = "TRUST_SQL_OVER_RAG"
	StrategyTrustConsensus         Strategy = "TRUST_CONSENSUS"
	StrategyWeightedAverage        Strategy = "WEIGHTED_AVERAGE"
)

const (
	ResolutionPending = "pending"
	ResolutionFailed  = "resolution_failed"
)

// Conflict is one detected disagreement between two or more records
type Conflict struct {
	Kind             ConflictKind `json:"kind"`
	ParticipantIDs   []string     `json:"participant_ids"`
	Description      string       `json:"description"`
	Strategy         Strategy     `json:"strategy"`
	Resolution       string       `json:"resolution"`
	WinnerID         string       `json:"winner_id,omitempty"` // Empty when the strategy picks no record
	ConfidenceImpact float64      `json:"confidence_impact"`   // Subtracted downstream, never negative
}

// TotalImpact sums the confidence impact of all conflicts
func TotalImpact(conflicts []Conflict) float64 {
	total := 0.0
	for _, c := range conflicts {
		if c.ConfidenceImpact > 0 {
			total += c.ConfidenceImpact
		}
	}
	return total
}
