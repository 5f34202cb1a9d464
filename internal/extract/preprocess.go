package extract

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/confluence/internal/model"
	"github.com/ppiankov/confluence/internal/worker"
)

// TruncationMarker is appended to content cut at the length limit
const TruncationMarker = "..."

var (
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Anything outside word characters, CJK ideographs and a fixed
	// punctuation set is stripped
	disallowedPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Han}.,;:!?'"()\[\]%/$+\-，。！？；：]`)

	numberPattern     = regexp.MustCompile(`\d+(?:\.\d+)?`)
	datePattern       = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
	percentagePattern = regexp.MustCompile(`\d+(?:\.\d+)?%`)
)

// Preprocessor cleans record content and extracts numbers, dates and
// percentages into metadata
type Preprocessor struct {
	maxLength int
	workers   int

	// clean is swappable so tests can force a per-record failure
	clean func(content string, maxLength int) string
}

// NewPreprocessor creates a preprocessor from config
func NewPreprocessor(cfg model.PreprocessConfig) *Preprocessor {
	maxLength := cfg.MaxContentLength
	if maxLength <= 0 {
		maxLength = model.DefaultConfig().Preprocess.MaxContentLength
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Preprocessor{
		maxLength: maxLength,
		workers:   workers,
		clean:     CleanContent,
	}
}

// Process returns preprocessed copies of records in input order. The input
// slice is not modified. A record whose preprocessing fails is passed through
// with its original content and empty extracted fields.
func (p *Preprocessor) Process(ctx context.Context, records []model.SourceRecord) []model.SourceRecord {
	jobs := make([]worker.Job, len(records))
	for i, rec := range records {
		jobs[i] = &preprocessJob{record: rec, p: p}
	}

	results := worker.Run(ctx, min(len(records), p.workers), jobs)

	out := make([]model.SourceRecord, len(records))
	for i, res := range results {
		r, ok := res.(*preprocessResult)
		if !ok || r == nil {
			// Never ran (context cancelled)
			out[i] = passThrough(records[i], "preprocessing cancelled")
			continue
		}
		if r.err != nil {
			zap.L().Warn("record passed through unprocessed",
				zap.String("source_id", records[i].ID),
				zap.Error(r.err))
		}
		out[i] = r.record
	}
	return out
}

// ProcessRecord cleans one record and annotates its metadata
func (p *Preprocessor) ProcessRecord(rec model.SourceRecord) (out model.SourceRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("preprocess %s: %v", rec.ID, r))
			out = passThrough(rec, err.Error())
		}
	}()

	out = rec.Clone()
	out.Content = p.clean(rec.Content, p.maxLength)
	out.Features = ExtractFeatures(out.Content)
	annotate(&out, out.Features)
	return out, nil
}

// CleanContent collapses whitespace, strips disallowed characters and
// truncates to maxLength runes
func CleanContent(content string, maxLength int) string {
	cleaned := whitespacePattern.ReplaceAllString(content, " ")
	cleaned = disallowedPattern.ReplaceAllString(cleaned, "")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if maxLength > 0 && utf8.RuneCountInString(cleaned) > maxLength {
		runes := []rune(cleaned)
		cleaned = string(runes[:maxLength]) + TruncationMarker
	}
	return cleaned
}

// ExtractFeatures pulls numbers, dates and percentages out of content
func ExtractFeatures(content string) model.Features {
	f := model.Features{
		Numbers:     []float64{},
		Dates:       []string{},
		Percentages: []string{},
	}

	for _, m := range numberPattern.FindAllString(content, -1) {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			f.Numbers = append(f.Numbers, v)
		}
	}
	f.Dates = append(f.Dates, datePattern.FindAllString(content, -1)...)
	f.Percentages = append(f.Percentages, percentagePattern.FindAllString(content, -1)...)

	return f
}

func annotate(rec *model.SourceRecord, f model.Features) {
	rec.Metadata.Set("numbers", f.Numbers)
	rec.Metadata.Set("dates", f.Dates)
	rec.Metadata.Set("percentages", f.Percentages)
	rec.Metadata.Set("content_length", utf8.RuneCountInString(rec.Content))
	rec.Metadata.Set("word_count", len(strings.Fields(rec.Content)))
}

// passThrough keeps the original content and records empty extracted fields
func passThrough(rec model.SourceRecord, reason string) model.SourceRecord {
	out := rec.Clone()
	out.Features = model.Features{Numbers: []float64{}, Dates: []string{}, Percentages: []string{}}
	annotate(&out, out.Features)
	out.Metadata.Set("preprocess_error", reason)
	return out
}

type preprocessJob struct {
	record model.SourceRecord
	p      *Preprocessor
}

func (j *preprocessJob) Execute(ctx context.Context) worker.Result {
	rec, err := j.p.ProcessRecord(j.record)
	return &preprocessResult{record: rec, err: err}
}

type preprocessResult struct {
	record model.SourceRecord
	err    error
}

func (r *preprocessResult) GetError() error {
	return r.err
}
