package conflict

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/confluence/internal/model"
)

// Outcome is what a strategy decided for one conflict
type Outcome struct {
	Description string
	WinnerID    string // Empty when the strategy picks no record
}

// Handler resolves one conflict given the participant records in
// participant order
type Handler func(participants []model.SourceRecord) (Outcome, error)

// Resolver dispatches conflicts to strategy handlers.
// The handler table is built once and only read afterwards.
type Resolver struct {
	handlers map[model.Strategy]Handler
}

// NewResolver creates a resolver with the built-in strategies
func NewResolver() *Resolver {
	return &Resolver{
		handlers: map[model.Strategy]Handler{
			model.StrategyTrustMostRecent:        trustMostRecent,
			model.StrategyTrustHighestConfidence: trustHighestConfidence,
			model.StrategyTrustSQLOverRAG:        trustSQLOverRAG,
			model.StrategyTrustConsensus:         trustConsensus,
			model.StrategyWeightedAverage:        weightedAverage,
		},
	}
}

// Resolve returns resolved copies of conflicts in input order. Records are
// never removed or modified; a failing handler marks only its own conflict
// as resolution_failed.
func (r *Resolver) Resolve(records []model.SourceRecord, conflicts []model.Conflict) []model.Conflict {
	byID := make(map[string]model.SourceRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	resolved := make([]model.Conflict, len(conflicts))
	for i, c := range conflicts {
		c.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)

		outcome, err := r.resolveOne(byID, c)
		if err != nil {
			zap.L().Warn("conflict resolution failed",
				zap.String("kind", string(c.Kind)),
				zap.String("strategy", string(c.Strategy)),
				zap.Strings("participants", c.ParticipantIDs),
				zap.Error(err))
			c.Resolution = model.ResolutionFailed
			c.WinnerID = ""
		} else {
			c.Resolution = outcome.Description
			c.WinnerID = outcome.WinnerID
		}
		resolved[i] = c
	}
	return resolved
}

func (r *Resolver) resolveOne(byID map[string]model.SourceRecord, c model.Conflict) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.New(fmt.Sprintf("strategy %s panicked: %v", c.Strategy, p))
		}
	}()

	handler, ok := r.handlers[c.Strategy]
	if !ok {
		return Outcome{}, eris.Errorf("unknown strategy %q", c.Strategy)
	}

	participants := make([]model.SourceRecord, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		rec, ok := byID[id]
		if !ok {
			return Outcome{}, eris.Errorf("participant %s not found", id)
		}
		participants = append(participants, rec)
	}
	if len(participants) == 0 {
		return Outcome{}, eris.New("conflict has no participants")
	}

	return handler(participants)
}

func trustMostRecent(participants []model.SourceRecord) (Outcome, error) {
	winner := participants[0]
	for _, p := range participants[1:] {
		if p.CreatedAt.After(winner.CreatedAt) {
			winner = p
		}
	}
	return Outcome{
		Description: fmt.Sprintf("trusted %s: most recent source (created %s)", winner.ID, winner.CreatedAt.UTC().Format(time.RFC3339)),
		WinnerID:    winner.ID,
	}, nil
}

func trustHighestConfidence(participants []model.SourceRecord) (Outcome, error) {
	winner := highestConfidence(participants)
	return Outcome{
		Description: fmt.Sprintf("trusted %s: highest confidence (%.2f)", winner.ID, winner.Confidence),
		WinnerID:    winner.ID,
	}, nil
}

// trustSQLOverRAG prefers structured-query participants, choosing the most
// confident among them. Without one it falls back to highest confidence.
func trustSQLOverRAG(participants []model.SourceRecord) (Outcome, error) {
	var structured []model.SourceRecord
	for _, p := range participants {
		if p.Kind == model.SourceStructuredQuery {
			structured = append(structured, p)
		}
	}

	if len(structured) == 0 {
		out, err := trustHighestConfidence(participants)
		out.Description = "no structured-query participant; " + out.Description
		return out, err
	}

	winner := highestConfidence(structured)
	return Outcome{
		Description: fmt.Sprintf("trusted %s: structured query preferred over retrieval (confidence %.2f)", winner.ID, winner.Confidence),
		WinnerID:    winner.ID,
	}, nil
}

// trustConsensus is reserved; majority voting is not yet implemented
func trustConsensus(participants []model.SourceRecord) (Outcome, error) {
	return Outcome{Description: "consensus resolution not yet implemented; all sources retained"}, nil
}

// weightedAverage is reserved; numeric blending is not yet implemented
func weightedAverage(participants []model.SourceRecord) (Outcome, error) {
	return Outcome{Description: "weighted average resolution not yet implemented; all sources retained"}, nil
}

// highestConfidence returns the first participant with the maximum confidence
func highestConfidence(participants []model.SourceRecord) model.SourceRecord {
	winner := participants[0]
	for _, p := range participants[1:] {
		if p.Confidence > winner.Confidence {
			winner = p
		}
	}
	return winner
}
