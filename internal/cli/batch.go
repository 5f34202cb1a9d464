package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ppiankov/confluence/internal/pipeline"
	"github.com/ppiankov/confluence/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <requests.jsonl>",
	Short: "Fuse many requests from a JSON-lines file in parallel",
	Long: `Batch runs independent fusion runs concurrently:
- Read one JSON request per line (blank lines and # comments skipped)
- Run requests in parallel with a configurable worker count
- Report undecodable lines without stopping the batch
- Write a JSON and Markdown report per request

Example:
  confluence batch requests.jsonl
  confluence batch requests.jsonl --concurrency 8 --output-dir ./reports
  confluence batch requests.jsonl --llm --llm-provider ollama --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent runs (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./confluence-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable narrative cache")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	addLLMFlags(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Confluence Batch Fusion\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return eris.Wrap(err, "create output directory")
	}

	// One engine serves every run; runs share no mutable state
	engine := pipeline.NewEngineFromConfig(cfg)
	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	processor := worker.NewBatchProcessor(engine, cfg.Concurrency.Workers)

	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return eris.Wrap(err, "process file")
	}

	successCount := 0
	degradedCount := 0
	failureCount := 0

	for _, res := range results {
		if res.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ line %d: %v\n", res.Line, res.Error)
			continue
		}

		base := filepath.Join(outputDir, fmt.Sprintf("line-%04d", res.Line))
		if err := renderer.RenderJSON(res.Result, base+".json"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ line %d: failed to write JSON: %v\n", res.Line, err)
			failureCount++
			continue
		}
		if err := renderer.RenderMarkdown(res.Result, base+".md"); err != nil {
			fmt.Fprintf(os.Stderr, "✗ line %d: failed to write Markdown: %v\n", res.Line, err)
			failureCount++
			continue
		}

		if reason := res.Result.FailureReason(); reason != "" {
			degradedCount++
			fmt.Fprintf(os.Stderr, "⚠ line %d: %q failed: %s\n", res.Line, res.Query, reason)
			continue
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ line %d: %q (confidence %.2f, %d conflict(s))\n",
			res.Line, res.Query, res.Result.Confidence, len(res.Result.Conflicts))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d requests\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failed:    %d\n", degradedCount)
	fmt.Fprintf(os.Stderr, "  Skipped:   %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
