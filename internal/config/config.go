// Package config loads the service configuration from YAML with environment
// variable overrides for secrets, matching the nested-struct-per-concern
// layout used throughout this codebase.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// EmbeddingProviderConfig describes one embedding provider endpoint.
type EmbeddingProviderConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	APIKey    string `yaml:"api_key"`
	APIHeader string `yaml:"api_header"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	TimeoutS  int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds the primary/fallback embedding provider pair and
// batching parameters (spec §4.4, §6).
type EmbeddingConfig struct {
	Primary  EmbeddingProviderConfig `yaml:"primary"`
	Fallback EmbeddingProviderConfig `yaml:"fallback"`
	Batch    int                     `yaml:"batch"`
}

// VectorStoreConfig selects and configures the vector store backend
// (spec §4.5).
type VectorStoreConfig struct {
	Backend    string `yaml:"backend"` // "memory", "qdrant", "pgvector"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	Metric     string `yaml:"metric"` // cosine, l2, ip
}

// RetrievalConfig carries the hybrid retrieval tunables (spec §4.6, §6).
type RetrievalConfig struct {
	KDense        int     `yaml:"k_dense"`
	KFinal        int     `yaml:"k_final"`
	DenseWeight   float64 `yaml:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight"`
	SnippetMaxLen int     `yaml:"snippet_max_len"`
}

// ChunkingConfig carries the chunker's token targets (spec §4.3, §6).
type ChunkingConfig struct {
	TokenTarget int `yaml:"token_target"`
	TokenCap    int `yaml:"token_cap"`
	Overlap     int `yaml:"overlap"`
}

// IngestionConfig carries the ingestion workflow's resource limits
// (spec §4.9, §5, §6).
type IngestionConfig struct {
	MaxUploadBytes   int64   `yaml:"max_upload_bytes"`
	RetryInitialMs   int     `yaml:"retry_initial_ms"`
	RetryMultiplier  float64 `yaml:"retry_multiplier"`
	RetryCapMs       int     `yaml:"retry_cap_ms"`
	RetryBudgetMs    int     `yaml:"retry_budget_ms"`
	ActivityTimeoutS int     `yaml:"activity_timeout_seconds"`
}

// SessionConfig carries the session store's TTL and concurrency limits
// (spec §4.8, §5, §6).
type SessionConfig struct {
	TTLSeconds           int `yaml:"ttl_seconds"`
	HistoryMessages      int `yaml:"history_messages"`
	ConcurrentQueriesMax int `yaml:"concurrent_queries_max"`
	LockTimeoutMs        int `yaml:"lock_timeout_ms"`
}

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheMessages bool `yaml:"cache_messages"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	BaseURL     string                     `yaml:"base_url,omitempty"`
	Model       string                     `yaml:"model"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache"`
}

// OpenAIConfig configures the OpenAI-compatible provider (also used for
// self-hosted OpenAI-API-compatible servers via BaseURL, including the
// "local" provider option).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// GoogleConfig configures the Google Gemini provider.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout_seconds"`
}

// LLMProviderConfig describes the configured LLM provider and its
// per-provider settings (spec §2, §6 LLM Client).
type LLMProviderConfig struct {
	Provider    string          `yaml:"provider"` // anthropic, openai, google, local
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature float64         `yaml:"temperature"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
	OpenAI      OpenAIConfig    `yaml:"openai"`
	Google      GoogleConfig    `yaml:"google"`
}

// S3SSEConfig controls server-side encryption on staging uploads.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "AES256", "aws:kms"
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures the S3-compatible staging backend (spec §4.9
// Materialise, §6 Staging layout).
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Prefix                string      `yaml:"prefix"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// StagingConfig carries the object store used for the content-addressed
// staging area (spec §4.9 Materialise, §6 Staging layout).
type StagingConfig struct {
	Backend string   `yaml:"backend"` // "memory", "s3", "disk"
	S3      S3Config `yaml:"s3"`
}

// TelemetryConfig controls OpenTelemetry tracing/metrics export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// Config is the top-level configuration object.
type Config struct {
	LogLevel  string            `yaml:"log_level"`
	LogPath   string            `yaml:"log_path,omitempty"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Vector    VectorStoreConfig `yaml:"vector_store"`
	Retrieval RetrievalConfig   `yaml:"retrieval"`
	Chunking  ChunkingConfig    `yaml:"chunking"`
	Ingestion IngestionConfig   `yaml:"ingestion"`
	Session   SessionConfig     `yaml:"session"`
	LLM       LLMProviderConfig `yaml:"llm"`
	Staging   StagingConfig     `yaml:"staging"`
	OTel      TelemetryConfig   `yaml:"otel"`
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides for secrets via godotenv, and fills in defaults for any
// unset field.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMBEDDING_PRIMARY_API_KEY"); v != "" {
		cfg.Embedding.Primary.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_FALLBACK_API_KEY"); v != "" {
		cfg.Embedding.Fallback.APIKey = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		switch cfg.LLM.Provider {
		case "google":
			cfg.LLM.Google.APIKey = v
		case "openai", "local":
			cfg.LLM.OpenAI.APIKey = v
		default:
			cfg.LLM.Anthropic.APIKey = v
		}
	}
	if v := os.Getenv("VECTOR_STORE_DSN"); v != "" {
		cfg.Vector.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Embedding.Batch <= 0 {
		cfg.Embedding.Batch = 100
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "chunks"
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Retrieval.KDense <= 0 {
		cfg.Retrieval.KDense = 20
	}
	if cfg.Retrieval.KFinal <= 0 {
		cfg.Retrieval.KFinal = 5
	}
	if cfg.Retrieval.DenseWeight == 0 && cfg.Retrieval.SparseWeight == 0 {
		cfg.Retrieval.DenseWeight = 0.7
		cfg.Retrieval.SparseWeight = 0.3
	}
	if cfg.Retrieval.SnippetMaxLen <= 0 {
		cfg.Retrieval.SnippetMaxLen = 400
	}
	if cfg.Chunking.TokenTarget <= 0 {
		cfg.Chunking.TokenTarget = 800
	}
	if cfg.Chunking.TokenCap <= 0 {
		cfg.Chunking.TokenCap = 1500
	}
	if cfg.Chunking.Overlap <= 0 {
		cfg.Chunking.Overlap = 75
	}
	if cfg.Ingestion.MaxUploadBytes <= 0 {
		cfg.Ingestion.MaxUploadBytes = 100 * 1024 * 1024
	}
	if cfg.Ingestion.RetryInitialMs <= 0 {
		cfg.Ingestion.RetryInitialMs = 2000
	}
	if cfg.Ingestion.RetryMultiplier <= 0 {
		cfg.Ingestion.RetryMultiplier = 2.0
	}
	if cfg.Ingestion.RetryCapMs <= 0 {
		cfg.Ingestion.RetryCapMs = 60000
	}
	if cfg.Ingestion.RetryBudgetMs <= 0 {
		cfg.Ingestion.RetryBudgetMs = 1800000
	}
	if cfg.Ingestion.ActivityTimeoutS <= 0 {
		cfg.Ingestion.ActivityTimeoutS = 60
	}
	if cfg.Session.TTLSeconds <= 0 {
		cfg.Session.TTLSeconds = 604800
	}
	if cfg.Session.HistoryMessages <= 0 {
		cfg.Session.HistoryMessages = 5
	}
	if cfg.Session.ConcurrentQueriesMax <= 0 {
		cfg.Session.ConcurrentQueriesMax = 10
	}
	if cfg.Session.LockTimeoutMs <= 0 {
		cfg.Session.LockTimeoutMs = 1000
	}
	if cfg.LLM.MaxTokens <= 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.Staging.Backend == "" {
		cfg.Staging.Backend = "memory"
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "code-doc-assistant"
	}
}

// RetryPolicy is the reusable retry policy value described in spec §9,
// derived from IngestionConfig so every external call site shares one
// source of truth for backoff parameters.
type RetryPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
	Budget     time.Duration
}

// RetryPolicy builds the retry policy value from the loaded configuration.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    time.Duration(c.Ingestion.RetryInitialMs) * time.Millisecond,
		Multiplier: c.Ingestion.RetryMultiplier,
		Cap:        time.Duration(c.Ingestion.RetryCapMs) * time.Millisecond,
		Budget:     time.Duration(c.Ingestion.RetryBudgetMs) * time.Millisecond,
	}
}
