package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/confluence/internal/cache"
	"github.com/ppiankov/confluence/internal/conflict"
	"github.com/ppiankov/confluence/internal/extract"
	"github.com/ppiankov/confluence/internal/extract/adapters"
	"github.com/ppiankov/confluence/internal/fusion"
	"github.com/ppiankov/confluence/internal/llm"
	"github.com/ppiankov/confluence/internal/model"
	"github.com/ppiankov/confluence/internal/score"
)

// FailedConfidence is reported for both confidence and quality on FAILED runs
const FailedConfidence = 0.1

var (
	// ErrNoRecords means the request carried no fragments at all
	ErrNoRecords = eris.New("no source records to fuse")
	// ErrNoContent means every record was empty after preprocessing
	ErrNoContent = eris.New("all source records are empty after preprocessing")
)

// Narrator produces the answer text for fused content
type Narrator interface {
	Narrate(ctx context.Context, in llm.NarrationInput) (*llm.Narration, error)
	IsEnabled() bool
	ProviderName() string
}

// Engine orchestrates one fusion run per call. It holds no per-run state,
// so one Engine may serve concurrent runs.
type Engine struct {
	registry     *adapters.Registry
	preprocessor *extract.Preprocessor
	detector     *conflict.Detector
	resolver     *conflict.Resolver
	aggregator   *fusion.Aggregator
	scorer       *score.Scorer
	narrator     Narrator // nil = local extractive summary
	renderer     *Renderer
	timeout      time.Duration
	newRunID     func() string
}

// NewEngine creates an engine with the given narrator (nil for none)
func NewEngine(cfg *model.Config, narrator Narrator) *Engine {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	return &Engine{
		registry:     adapters.NewRegistry(cfg.Reliability),
		preprocessor: extract.NewPreprocessor(cfg.Preprocess),
		detector:     conflict.NewDetector(cfg.Detection),
		resolver:     conflict.NewResolver(),
		aggregator:   fusion.NewAggregator(),
		scorer:       score.NewScorer(),
		narrator:     narrator,
		renderer:     NewRenderer(cfg.Output.IncludeFooter),
		timeout:      cfg.LLM.Timeout,
		newRunID:     uuid.NewString,
	}
}

// NewEngineFromConfig creates an engine whose narrator is built from the LLM
// and cache sections of cfg. A provider that cannot be created is logged and
// the engine falls back to local summaries.
func NewEngineFromConfig(cfg *model.Config) *Engine {
	var narrator Narrator
	if cfg.LLM.Provider != "" {
		synth, err := llm.NewSynthesizer(llm.ConfigFromModel(cfg.LLM), cache.New(cfg.Cache))
		if err != nil {
			zap.L().Warn("synthesizer unavailable, using local summaries", zap.Error(err))
		} else {
			synth.SetCacheTTL(cfg.Cache.MemoryTTL)
			narrator = synth
		}
	}
	return NewEngine(cfg, narrator)
}

// Registry exposes the normalizer so callers can pin its clock
func (e *Engine) Registry() *adapters.Registry {
	return e.registry
}

// run carries the state of one fusion run
type run struct {
	id     string
	stage  model.Stage
	stages []model.Stage
	start  time.Time
	req    model.FusionRequest
}

func (r *run) enter(stage model.Stage) {
	r.stage = stage
	r.stages = append(r.stages, stage)
	zap.L().Debug("fusion stage", zap.String("run_id", r.id), zap.String("stage", string(stage)))
}

// Fuse runs the full pipeline for one request. It always returns a result:
// stage-fatal errors and panics end in the FAILED state, synthesis errors
// degrade the answer only.
func (e *Engine) Fuse(ctx context.Context, req model.FusionRequest) (result model.FusionResult) {
	r := &run{id: e.newRunID(), start: time.Now(), req: req}

	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("fusion run panicked",
				zap.String("run_id", r.id),
				zap.String("stage", string(r.stage)),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			result = e.failed(r, eris.New(fmt.Sprintf("panic in %s: %v", r.stage, p)))
		}
	}()

	// STANDARDIZING
	r.enter(model.StageStandardizing)
	records := e.registry.Normalize(req)
	if len(records) == 0 {
		return e.failed(r, ErrNoRecords)
	}

	// PREPROCESSING
	r.enter(model.StagePreprocessing)
	processed := e.preprocessor.Process(ctx, records)
	citations := PrepareCitations(processed)

	active := make([]model.SourceRecord, 0, len(processed))
	for _, rec := range processed {
		if strings.TrimSpace(rec.Content) != "" {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		return e.failed(r, ErrNoContent)
	}

	// DETECTING_CONFLICTS
	r.enter(model.StageDetectingConflicts)
	detected, err := e.detector.Detect(ctx, active)
	if err != nil {
		return e.failed(r, err)
	}

	// RESOLVING
	r.enter(model.StageResolving)
	conflicts := e.resolver.Resolve(active, detected)

	// FUSING
	r.enter(model.StageFusing)
	fused, fuseErr := e.aggregator.Aggregate(active)
	if fuseErr != nil {
		zap.L().Warn("fusion degraded", zap.String("run_id", r.id), zap.Error(fuseErr))
	}
	steps := e.scorer.Explain(active, conflicts, fused)

	// SYNTHESIZING
	r.enter(model.StageSynthesizing)
	answer, narrative := e.narrate(ctx, r, fused, conflicts)

	quality := e.scorer.Quality(answer, fused, steps)
	confidence := model.Clamp01(fused.OverallConfidence - model.TotalImpact(conflicts))

	r.enter(model.StageDone)

	md := e.baseMetadata(r)
	md.Set("record_count", len(records))
	md.Set("fused_record_count", len(active))
	md.Set("dropped_empty", len(records)-len(active))
	md.Set("conflict_count", len(conflicts))
	md.Set("overall_confidence", fused.OverallConfidence)
	md.Set("confidence_impact", model.TotalImpact(conflicts))
	md.Set("quality_breakdown", quality.Factors())
	if fuseErr != nil {
		md.Set("fusion_degraded", true)
		md.Set("fusion_error", fuseErr.Error())
	}

	return model.FusionResult{
		Answer:             answer,
		Sources:            citations,
		ReasoningLog:       steps,
		Confidence:         confidence,
		Conflicts:          conflicts,
		AnswerQualityScore: quality.Score,
		ProcessingTime:     time.Since(r.start),
		Metadata:           md,
		Narrative:          narrative,
		Fused:              &fused,
	}
}

// narrate calls the narrator under a deadline. Without a narrator the local
// summary is used; any narrator failure yields the apology text. A narrator
// that ignores ctx is abandoned once the deadline passes.
func (e *Engine) narrate(ctx context.Context, r *run, fused model.FusedContent, conflicts []model.Conflict) (string, *model.NarrativeInfo) {
	if e.narrator == nil || !e.narrator.IsEnabled() {
		if summary := fusion.Summarize(r.req.Query, fused); summary != "" {
			return summary, &model.NarrativeInfo{Source: "local_summary"}
		}
		return model.ApologyAnswer, &model.NarrativeInfo{Source: "apology"}
	}

	apology := func(err error) (string, *model.NarrativeInfo) {
		zap.L().Warn("synthesis failed", zap.String("run_id", r.id), zap.Error(err))
		return model.ApologyAnswer, &model.NarrativeInfo{
			Source:   "apology",
			Provider: e.narrator.ProviderName(),
			Warnings: []string{err.Error()},
		}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type outcome struct {
		n   *llm.Narration
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: eris.New(fmt.Sprintf("synthesizer panicked: %v", p))}
			}
		}()
		n, err := e.narrator.Narrate(ctx, llm.NarrationInput{
			Query:     r.req.Query,
			TenantID:  r.req.TenantID,
			Fused:     fused,
			Conflicts: conflicts,
		})
		done <- outcome{n: n, err: err}
	}()

	var n *llm.Narration
	select {
	case out := <-done:
		if out.err != nil {
			return apology(out.err)
		}
		n = out.n
	case <-ctx.Done():
		return apology(eris.Wrap(ctx.Err(), "synthesis abandoned"))
	}
	if n == nil || strings.TrimSpace(n.Text) == "" {
		return apology(llm.ErrEmptyNarrative)
	}

	return n.Text, &model.NarrativeInfo{
		Source:     "synthesizer",
		Provider:   n.Provider,
		Model:      n.Model,
		Cached:     n.Cached,
		TokensUsed: n.TokensUsed,
	}
}

// failed builds the FAILED-state result
func (e *Engine) failed(r *run, err error) model.FusionResult {
	failedStage := r.stage
	r.enter(model.StageFailed)

	zap.L().Warn("fusion run failed",
		zap.String("run_id", r.id),
		zap.String("stage", string(failedStage)),
		zap.Error(err))

	md := e.baseMetadata(r)
	md.Set("error", err.Error())
	md.Set("failed_stage", string(failedStage))

	return model.FusionResult{
		Answer:             model.ApologyAnswer,
		Sources:            []model.Citation{},
		ReasoningLog:       []model.ExplanationStep{},
		Confidence:         FailedConfidence,
		Conflicts:          []model.Conflict{},
		AnswerQualityScore: FailedConfidence,
		ProcessingTime:     time.Since(r.start),
		Metadata:           md,
		Narrative:          &model.NarrativeInfo{Source: "apology"},
	}
}

func (e *Engine) baseMetadata(r *run) model.Metadata {
	md := model.NewMetadata()
	md.Set("run_id", r.id)
	md.Set("query", r.req.Query)
	if r.req.TenantID != "" {
		md.Set("tenant_id", r.req.TenantID)
	}
	md.Set("stage", string(r.stage))

	stages := make([]string, len(r.stages))
	for i, s := range r.stages {
		stages[i] = string(s)
	}
	md.Set("stages", stages)
	return md
}
