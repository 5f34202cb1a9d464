package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/confluence/internal/model"
	"github.com/ppiankov/confluence/internal/pipeline"
)

var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	noCache     bool
	noFooter    bool
	llmEnabled  bool
	llmProvider string
	llmModel    string
)

// fuseCmd represents the fuse command
var fuseCmd = &cobra.Command{
	Use:   "fuse <request.json|->",
	Short: "Fuse one request into a single answer with conflict report",
	Long: `Fuse reads one fusion request (JSON) and:
- Normalizes structured, semantic and document fragments into records
- Cleans content and extracts numbers, dates and percentages
- Detects numeric and factual conflicts between records
- Resolves each conflict with an explicit strategy
- Computes a weighted confidence and an ordered reasoning log
- Synthesizes an answer with an LLM provider, or a local summary

Example:
  confluence fuse request.json
  confluence fuse request.json --json result.json --md result.md
  cat request.json | confluence fuse - --llm --llm-provider anthropic`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func init() {
	rootCmd.AddCommand(fuseCmd)

	// Output flags
	fuseCmd.Flags().StringVar(&outJSON, "json", "result.json", "output JSON path (empty to skip)")
	fuseCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	fuseCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall run timeout")
	fuseCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable narrative cache")
	fuseCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	addLLMFlags(fuseCmd)
}

// addLLMFlags registers the synthesizer flags shared by fuse and batch
func addLLMFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&llmEnabled, "llm", false, "enable LLM answer synthesis")
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama, mock)")
	cmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model name (provider default when empty)")
}

// buildConfig loads the effective config and applies command flags
func buildConfig() (*model.Config, error) {
	cfg, err := LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose

	if llmEnabled {
		cfg.LLM.Provider = llmProvider
		if llmModel != "" {
			cfg.LLM.Model = llmModel
		}
	}
	if err := resolveAPIKey(&cfg.LLM); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAPIKey fills provider credentials from the environment
func resolveAPIKey(c *model.LLMConfig) error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.APIKey == "" {
			return eris.New("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if c.APIKey == "" {
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if c.APIKey == "" {
			return eris.New("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && c.BaseURL == "" {
			c.BaseURL = baseURL
		}
	}
	return nil
}

// readRequest decodes a request from a file, or stdin for "-"
func readRequest(path string, stdin io.Reader) (model.FusionRequest, error) {
	var req model.FusionRequest

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return req, eris.Wrapf(err, "read request %s", path)
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, eris.Wrapf(err, "decode request %s", path)
	}
	return req, nil
}

func runFuse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	req, err := readRequest(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Query: %s\n", req.Query)
		fmt.Fprintf(os.Stderr, "Fragments: %d structured, %d semantic, %d documents\n",
			len(req.Structured), len(req.Semantic), len(req.Documents))
		if cfg.LLM.Provider != "" {
			fmt.Fprintf(os.Stderr, "LLM: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		}
		fmt.Fprintln(os.Stderr)
	}

	engine := pipeline.NewEngineFromConfig(cfg)
	result := engine.Fuse(ctx, req)

	if err := engine.RenderReport(cmd.OutOrStdout(), &result, outJSON, outMD, cfg.Output.Verbose); err != nil {
		return eris.Wrap(err, "render failed")
	}

	if reason := result.FailureReason(); reason != "" {
		return eris.Errorf("fusion failed: %s", reason)
	}
	return nil
}
