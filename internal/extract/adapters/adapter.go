package adapters

import (
	"fmt"
	"time"

	"github.com/ppiankov/confluence/internal/model"
)

// Defaults are the values substituted for missing fragment fields
type Defaults struct {
	Confidence  float64
	Relevance   float64
	Reliability float64
	Now         time.Time
}

// Adapter normalizes the fragments of one source kind
type Adapter interface {
	// Kind returns the source kind this adapter produces
	Kind() model.SourceKind

	// Normalize converts the request's fragments of this kind into records.
	// Malformed items are salvaged, never rejected.
	Normalize(req model.FusionRequest, d Defaults) []model.SourceRecord
}

// Registry holds one adapter per source kind in a fixed order
type Registry struct {
	adapters    []Adapter
	reliability model.ReliabilityConfig
	now         func() time.Time
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry(reliability model.ReliabilityConfig) *Registry {
	registry := &Registry{
		reliability: reliability,
		now:         time.Now,
	}

	// Order defines record order: structured, semantic, documents
	registry.Register(NewStructuredAdapter())
	registry.Register(NewSemanticAdapter())
	registry.Register(NewDocumentAdapter())

	return registry
}

// Register appends an adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// SetClock overrides the clock used for default created_at values
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Normalize produces the flat ordered record list for a request
func (r *Registry) Normalize(req model.FusionRequest) []model.SourceRecord {
	now := r.now().UTC()
	records := make([]model.SourceRecord, 0, req.FragmentCount())
	for _, adapter := range r.adapters {
		d := Defaults{
			Confidence:  defaultConfidence(adapter.Kind()),
			Relevance:   r.reliability.DefaultRelevance,
			Reliability: r.reliability.For(adapter.Kind()),
			Now:         now,
		}
		records = append(records, adapter.Normalize(req, d)...)
	}
	return records
}

// defaultConfidence is the prior used when a fragment carries no confidence
func defaultConfidence(kind model.SourceKind) float64 {
	switch kind {
	case model.SourceStructuredQuery:
		return 0.9
	case model.SourceDocument:
		return 0.85
	default:
		return 0.8
	}
}

// SourceID builds the deterministic id "{kind}_{index}"
func SourceID(kind model.SourceKind, index int) string {
	return fmt.Sprintf("%s_%d", kind.IDPrefix(), index)
}

// newRecord fills the fields every adapter shares
func newRecord(kind model.SourceKind, index int, content string, d Defaults, confidence, relevance *float64, createdAt *time.Time) model.SourceRecord {
	rec := model.SourceRecord{
		ID:          SourceID(kind, index),
		Kind:        kind,
		Content:     content,
		Metadata:    model.NewMetadata(),
		Confidence:  model.Clamp01(orDefault(confidence, d.Confidence)),
		Relevance:   model.Clamp01(orDefault(relevance, d.Relevance)),
		Reliability: model.Clamp01(d.Reliability),
		CreatedAt:   d.Now,
	}
	if createdAt != nil && !createdAt.IsZero() {
		rec.CreatedAt = createdAt.UTC()
	}
	return rec
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
