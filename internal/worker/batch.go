package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/confluence/internal/model"
)

// maxLineBytes bounds a single JSON-lines request
const maxLineBytes = 8 << 20

// Fuser runs one fusion run. It must always return a result.
type Fuser interface {
	Fuse(ctx context.Context, req model.FusionRequest) model.FusionResult
}

// BatchEntry is one request read from a batch file
type BatchEntry struct {
	Line    int
	Request model.FusionRequest
	Err     error // Decode error; the entry is reported but never fused
}

// FusionJob represents one fusion run in a batch
type FusionJob struct {
	Entry BatchEntry
	Fuser Fuser
}

// Execute executes the fusion job
func (j *FusionJob) Execute(ctx context.Context) Result {
	if j.Entry.Err != nil {
		return &FusionJobResult{Line: j.Entry.Line, Query: j.Entry.Request.Query, Error: j.Entry.Err}
	}
	if err := ctx.Err(); err != nil {
		return &FusionJobResult{Line: j.Entry.Line, Query: j.Entry.Request.Query, Error: err}
	}

	result := j.Fuser.Fuse(ctx, j.Entry.Request)
	return &FusionJobResult{
		Line:   j.Entry.Line,
		Query:  j.Entry.Request.Query,
		Result: &result,
	}
}

// FusionJobResult is the outcome of one batch entry
type FusionJobResult struct {
	Line   int
	Query  string
	Result *model.FusionResult
	Error  error
}

// GetError returns the entry's decode or cancellation error. A run that
// ended in the FAILED state is reported through Result, not here.
func (r *FusionJobResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many independent fusion runs on a bounded pool
type BatchProcessor struct {
	fuser       Fuser
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(fuser Fuser, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		fuser:       fuser,
		concurrency: concurrency,
	}
}

// Process runs every entry and returns one result per entry, in input order
func (b *BatchProcessor) Process(ctx context.Context, entries []BatchEntry) []*FusionJobResult {
	if len(entries) == 0 {
		return []*FusionJobResult{}
	}

	jobs := make([]Job, len(entries))
	for i, entry := range entries {
		jobs[i] = &FusionJob{Entry: entry, Fuser: b.fuser}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*FusionJobResult, len(results))
	for i, r := range results {
		if r == nil {
			// Never ran: the batch was cancelled first
			out[i] = &FusionJobResult{
				Line:  entries[i].Line,
				Query: entries[i].Request.Query,
				Error: eris.Wrap(context.Canceled, "batch cancelled"),
			}
			continue
		}
		out[i] = r.(*FusionJobResult)
	}
	return out
}

// ProcessRequests wraps plain requests as entries and processes them
func (b *BatchProcessor) ProcessRequests(ctx context.Context, reqs []model.FusionRequest) []*FusionJobResult {
	entries := make([]BatchEntry, len(reqs))
	for i, req := range reqs {
		entries[i] = BatchEntry{Line: i + 1, Request: req}
	}
	return b.Process(ctx, entries)
}

// ProcessFile reads requests from a JSON-lines file and processes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*FusionJobResult, error) {
	entries, err := ReadRequestsFromFile(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "read requests")
	}

	return b.Process(ctx, entries), nil
}

// ReadRequestsFromFile reads one JSON request per line. Blank lines and
// lines starting with '#' are skipped; undecodable lines become entries
// carrying the decode error.
func ReadRequestsFromFile(filePath string) ([]BatchEntry, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, eris.Wrap(err, "open file")
	}
	defer func() { _ = file.Close() }()

	var entries []BatchEntry

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		entry := BatchEntry{Line: lineNo}
		if err := json.Unmarshal([]byte(line), &entry.Request); err != nil {
			entry.Err = eris.Wrapf(err, "line %d", lineNo)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "scan file")
	}

	return entries, nil
}
