package model

import "time"

// Config holds the full engine and CLI configuration
type Config struct {
	Preprocess  PreprocessConfig  `yaml:"preprocess" mapstructure:"preprocess"`
	Detection   DetectionConfig   `yaml:"detection" mapstructure:"detection"`
	Reliability ReliabilityConfig `yaml:"reliability" mapstructure:"reliability"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// PreprocessConfig configures content cleaning
type PreprocessConfig struct {
	MaxContentLength int `yaml:"max_content_length" mapstructure:"max_content_length"` // Runes kept before truncation
	Workers          int `yaml:"workers" mapstructure:"workers"`                       // 0 = number of CPUs
}

// DetectionConfig configures pairwise conflict detection
type DetectionConfig struct {
	NumericThreshold float64 `yaml:"numeric_threshold" mapstructure:"numeric_threshold"` // Relative difference that flags a conflict
	NumericImpact    float64 `yaml:"numeric_impact" mapstructure:"numeric_impact"`
	FactualImpact    float64 `yaml:"factual_impact" mapstructure:"factual_impact"`
	Workers          int     `yaml:"workers" mapstructure:"workers"`
}

// ReliabilityConfig holds source-kind priors and input defaults
type ReliabilityConfig struct {
	StructuredQuery   float64 `yaml:"structured_query" mapstructure:"structured_query"`
	SemanticRetrieval float64 `yaml:"semantic_retrieval" mapstructure:"semantic_retrieval"`
	Document          float64 `yaml:"document" mapstructure:"document"`
	DefaultRelevance  float64 `yaml:"default_relevance" mapstructure:"default_relevance"`
}

// For returns the prior for a source kind
func (r ReliabilityConfig) For(kind SourceKind) float64 {
	switch kind {
	case SourceStructuredQuery:
		return r.StructuredQuery
	case SourceSemanticRetrieval:
		return r.SemanticRetrieval
	case SourceDocument:
		return r.Document
	default:
		return 0
	}
}

// LLMConfig configures the narrative synthesizer
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, mock, "" (disabled)
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy   string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy     string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the narrative cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"` // Empty = memory only
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures batch processing
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Preprocess: PreprocessConfig{
			MaxContentLength: 10000,
		},
		Detection: DetectionConfig{
			NumericThreshold: 0.10,
			NumericImpact:    0.2,
			FactualImpact:    0.3,
		},
		Reliability: ReliabilityConfig{
			StructuredQuery:   0.95,
			SemanticRetrieval: 0.8,
			Document:          0.8,
			DefaultRelevance:  0.8,
		},
		LLM: LLMConfig{
			Timeout:     30 * time.Second,
			Temperature: 0.6,
			MaxTokens:   1500,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
