package conflict

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/confluence/internal/model"
)

// negationFamily is one affirm/negate marker pair for the same concept
type negationFamily struct {
	name   string
	affirm *regexp.Regexp
	negate *regexp.Regexp
}

// Families are checked in order; the first family on which two records take
// opposite stances produces the conflict
var families = []negationFamily{
	{
		name:   "is / is not",
		affirm: regexp.MustCompile(`\bis\b|是`),
		negate: regexp.MustCompile(`\bis not\b|\bisn't\b|不是`),
	},
	{
		name:   "has / has not",
		affirm: regexp.MustCompile(`\bhas\b|有`),
		negate: regexp.MustCompile(`\bhas not\b|\bhasn't\b|\bhas no\b|没有`),
	},
	{
		name:   "already / not yet",
		affirm: regexp.MustCompile(`\balready\b|已经`),
		negate: regexp.MustCompile(`\bnot yet\b|还没`),
	},
	{
		name:   "yes / no",
		affirm: regexp.MustCompile(`\byes\b`),
		negate: regexp.MustCompile(`\bno\b`),
	},
}

// Detector flags numeric, factual and temporal disagreements between pairs
// of preprocessed records
type Detector struct {
	threshold     float64
	numericImpact float64
	factualImpact float64
	workers       int
}

// NewDetector creates a detector from config
func NewDetector(cfg model.DetectionConfig) *Detector {
	defaults := model.DefaultConfig().Detection
	d := &Detector{
		threshold:     cfg.NumericThreshold,
		numericImpact: math.Max(cfg.NumericImpact, 0),
		factualImpact: math.Max(cfg.FactualImpact, 0),
		workers:       cfg.Workers,
	}
	if d.threshold <= 0 {
		d.threshold = defaults.NumericThreshold
	}
	if d.workers <= 0 {
		d.workers = runtime.NumCPU()
	}
	return d
}

// Detect compares every unordered pair of records. Output order is
// deterministic: by first participant, then second, numeric before factual.
func (d *Detector) Detect(ctx context.Context, records []model.SourceRecord) ([]model.Conflict, error) {
	if len(records) < 2 {
		return []model.Conflict{}, nil
	}

	// Each outer index owns its own bucket, so no locking is needed
	buckets := make([][]model.Conflict, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := 0; i < len(records)-1; i++ {
		g.Go(func() error {
			for j := i + 1; j < len(records); j++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				buckets[i] = append(buckets[i], d.comparePair(records[i], records[j])...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "detect conflicts")
	}

	conflicts := []model.Conflict{}
	for _, b := range buckets {
		conflicts = append(conflicts, b...)
	}
	return conflicts, nil
}

func (d *Detector) comparePair(a, b model.SourceRecord) []model.Conflict {
	var found []model.Conflict
	if c, ok := d.numeric(a, b); ok {
		found = append(found, c)
	}
	if c, ok := d.factual(a, b); ok {
		found = append(found, c)
	}
	if c, ok := d.temporal(a, b); ok {
		found = append(found, c)
	}
	return found
}

// numeric compares the first extracted number of each record
func (d *Detector) numeric(a, b model.SourceRecord) (model.Conflict, bool) {
	if len(a.Features.Numbers) == 0 || len(b.Features.Numbers) == 0 {
		return model.Conflict{}, false
	}

	x, y := a.Features.Numbers[0], b.Features.Numbers[0]
	diff, ok := RelativeDifference(x, y)
	if !ok || diff <= d.threshold {
		return model.Conflict{}, false
	}

	return model.Conflict{
		Kind:           model.ConflictNumeric,
		ParticipantIDs: []string{a.ID, b.ID},
		Description: fmt.Sprintf("%s reports %g but %s reports %g (relative difference %.1f%%, threshold %.1f%%)",
			a.ID, x, b.ID, y, diff*100, d.threshold*100),
		Strategy:         model.StrategyTrustSQLOverRAG,
		Resolution:       model.ResolutionPending,
		ConfidenceImpact: d.numericImpact,
	}, true
}

// RelativeDifference returns |a-b| / min(|a|,|b|), so (100, 109) is 0.09 and
// (100, 111) is 0.11. When the smaller magnitude is zero the larger one is the
// denominator. It reports false when both values are zero.
func RelativeDifference(a, b float64) (float64, bool) {
	lo, hi := math.Abs(a), math.Abs(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 0, false
	}
	denom := lo
	if denom == 0 {
		denom = hi
	}
	return math.Abs(a-b) / denom, true
}

// factual looks for the first concept family on which one record affirms
// and the other negates
func (d *Detector) factual(a, b model.SourceRecord) (model.Conflict, bool) {
	left := strings.ToLower(a.Content)
	right := strings.ToLower(b.Content)

	for _, f := range families {
		affirmA, negateA := f.markers(left)
		affirmB, negateB := f.markers(right)

		var affirming, negating string
		switch {
		case affirmA && negateB:
			affirming, negating = a.ID, b.ID
		case negateA && affirmB:
			affirming, negating = b.ID, a.ID
		default:
			continue
		}

		return model.Conflict{
			Kind:             model.ConflictFactual,
			ParticipantIDs:   []string{a.ID, b.ID},
			Description:      fmt.Sprintf("%s affirms and %s negates the same statement (%s)", affirming, negating, f.name),
			Strategy:         model.StrategyTrustHighestConfidence,
			Resolution:       model.ResolutionPending,
			ConfidenceImpact: d.factualImpact,
		}, true
	}
	return model.Conflict{}, false
}

// markers reports whether content carries the affirmative and the negated
// marker. Negation phrases are removed before testing for the affirmative
// marker so "is not" does not also count as "is".
func (f negationFamily) markers(content string) (affirmed, negated bool) {
	negated = f.negate.MatchString(content)
	affirmed = f.affirm.MatchString(f.negate.ReplaceAllString(content, " "))
	return affirmed, negated
}

// temporal is reserved: dates are extracted per record but contradictory
// orderings are not yet detected
func (d *Detector) temporal(a, b model.SourceRecord) (model.Conflict, bool) {
	return model.Conflict{}, false
}
