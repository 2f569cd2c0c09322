// Package config loads the memory subsystem configuration.
//
// Resolution precedence, highest first:
//  1. Environment variables (MEMORY_* keys)
//  2. YAML configuration file (the "memory" document)
//  3. Compiled defaults
//
// A Config is loaded once and treated as immutable; components that need a
// different configuration are reconstructed rather than mutated.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects the memory storage backend.
const (
	BackendBasic  = "basic"  // retention store only
	BackendVector = "vector" // retention store + similarity index
)

// Retrieval modes.
const (
	RetrieveRecent     = "recent"
	RetrieveSimilarity = "similarity"
)

// Summary trigger policies.
const (
	TriggerAlways    = "always"
	TriggerThreshold = "threshold"
	TriggerManual    = "manual"
)

// StoreConfig configures the durable vector collection store.
type StoreConfig struct {
	// PersistDir is the directory for the durable collection store.
	// Empty means in-memory only.
	PersistDir string `yaml:"persist_dir"`

	// Collection is the collection name prefix for session collections.
	Collection string `yaml:"collection"`
}

// StrategyConfig configures retrieval behavior.
type StrategyConfig struct {
	// RetrievalMode is "recent" or "similarity".
	RetrievalMode string `yaml:"retrieval_mode"`

	// MaxHistory is the retention bound: the maximum number of turns kept
	// before oldest-first eviction.
	MaxHistory int `yaml:"max_history"`

	// MaxRecentTurns is the recency window injected into prompts.
	MaxRecentTurns int `yaml:"max_recent_turns"`

	// MaxSimilarityResults caps similarity retrieval results.
	MaxSimilarityResults int `yaml:"max_similarity_results"`

	// SimilarityThreshold drops results scoring below it, in [0,1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// EnableLLMSummary turns on model-assisted summarization.
	EnableLLMSummary bool `yaml:"enable_llm_summary"`
}

// SummaryConfig configures digest generation.
type SummaryConfig struct {
	// Trigger is "always", "threshold" or "manual".
	Trigger string `yaml:"trigger"`

	// TurnsThreshold triggers a model-assisted summary once this many turns
	// accumulated since the last one.
	TurnsThreshold int `yaml:"turns_threshold"`

	// TextLengthThreshold triggers a model-assisted summary once this many
	// bytes of conversation accumulated since the last one.
	TextLengthThreshold int `yaml:"text_length_threshold"`

	// MaxSummaryLength is the character budget for a single digest.
	MaxSummaryLength int `yaml:"max_summary_length"`
}

// SessionConfig configures session lifecycle.
type SessionConfig struct {
	// DefaultSessionPrefix prefixes generated session identifiers.
	DefaultSessionPrefix string `yaml:"default_session_prefix"`

	// Timeout is the idle timeout in seconds. 0 means never.
	Timeout int `yaml:"timeout"`

	// AutoCleanup clears expired sessions on timeout.
	AutoCleanup bool `yaml:"auto_cleanup"`
}

// PerformanceConfig configures caching and batching.
type PerformanceConfig struct {
	EnableCache bool `yaml:"enable_cache"`
	CacheSize   int  `yaml:"cache_size"`
	BatchSize   int  `yaml:"batch_size"`
}

// Config is the complete memory subsystem configuration.
type Config struct {
	// Enabled toggles the whole memory subsystem. When false the facade
	// accepts turns but always returns empty context.
	Enabled bool `yaml:"enabled"`

	// Backend is "basic" or "vector".
	Backend string `yaml:"backend"`

	Store       StoreConfig       `yaml:"store"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Summary     SummaryConfig     `yaml:"summary"`
	Session     SessionConfig     `yaml:"session"`
	Performance PerformanceConfig `yaml:"performance"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		Enabled: true,
		Backend: BackendBasic,
		Store: StoreConfig{
			PersistDir: "",
			Collection: "conversation_memory",
		},
		Strategy: StrategyConfig{
			RetrievalMode:        RetrieveRecent,
			MaxHistory:           10,
			MaxRecentTurns:       10,
			MaxSimilarityResults: 5,
			SimilarityThreshold:  0.5,
			EnableLLMSummary:     false,
		},
		Summary: SummaryConfig{
			Trigger:             TriggerThreshold,
			TurnsThreshold:      5,
			TextLengthThreshold: 500,
			MaxSummaryLength:    200,
		},
		Session: SessionConfig{
			DefaultSessionPrefix: "session",
			Timeout:              0,
			AutoCleanup:          false,
		},
		Performance: PerformanceConfig{
			EnableCache: true,
			CacheSize:   100,
			BatchSize:   10,
		},
	}
}

// fileDocument is the top-level shape of a configuration file. Options live
// under a "memory" key so the file can be shared with other subsystems.
type fileDocument struct {
	Memory *Config `yaml:"memory"`
}

// Load resolves the configuration from defaults, an optional YAML file, and
// environment overrides, then validates it. A missing file is not an error;
// a malformed file or invalid option values is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Printf("[CONFIG] no config file at %s, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			doc := fileDocument{Memory: cfg}
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			log.Printf("[CONFIG] loaded memory config from %s", path)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("[CONFIG] memory config resolved: backend=%s, mode=%s, max_history=%d",
		cfg.Backend, cfg.Strategy.RetrievalMode, cfg.Strategy.MaxHistory)
	return cfg, nil
}

// Environment variable keys. Each override takes precedence over the file.
const (
	EnvEnabled       = "MEMORY_ENABLED"
	EnvBackend       = "MEMORY_BACKEND"
	EnvRetrievalMode = "MEMORY_RETRIEVAL_MODE"
	EnvMaxTurns      = "MEMORY_MAX_TURNS" // strategy.max_recent_turns
	EnvPersistDir    = "MEMORY_PERSIST_DIR"
)

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEnabled); v != "" {
		cfg.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvBackend); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv(EnvRetrievalMode); v != "" {
		cfg.Strategy.RetrievalMode = v
	}
	if v := os.Getenv(EnvMaxTurns); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Strategy.MaxRecentTurns = n
		} else {
			log.Printf("[CONFIG] ignoring %s=%q: not an integer", EnvMaxTurns, v)
		}
	}
	if v := os.Getenv(EnvPersistDir); v != "" {
		cfg.Store.PersistDir = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ValidationError reports a malformed or conflicting option value. It is
// fatal at construction time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// Validate checks option values. It returns a *ValidationError describing
// the first problem found.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBasic, BackendVector:
	default:
		return &ValidationError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	switch c.Strategy.RetrievalMode {
	case RetrieveRecent, RetrieveSimilarity:
	default:
		return &ValidationError{Field: "strategy.retrieval_mode", Reason: fmt.Sprintf("unknown mode %q", c.Strategy.RetrievalMode)}
	}
	if c.Strategy.RetrievalMode == RetrieveSimilarity && c.Backend == BackendBasic {
		return &ValidationError{Field: "strategy.retrieval_mode", Reason: `similarity retrieval requires backend "vector"`}
	}
	if c.Strategy.MaxHistory <= 0 {
		return &ValidationError{Field: "strategy.max_history", Reason: "must be positive"}
	}
	if c.Strategy.MaxRecentTurns <= 0 {
		return &ValidationError{Field: "strategy.max_recent_turns", Reason: "must be positive"}
	}
	if c.Strategy.MaxSimilarityResults <= 0 {
		return &ValidationError{Field: "strategy.max_similarity_results", Reason: "must be positive"}
	}
	if c.Strategy.SimilarityThreshold < 0 || c.Strategy.SimilarityThreshold > 1 {
		return &ValidationError{Field: "strategy.similarity_threshold", Reason: "must be in [0,1]"}
	}
	switch c.Summary.Trigger {
	case TriggerAlways, TriggerThreshold, TriggerManual:
	default:
		return &ValidationError{Field: "summary.trigger", Reason: fmt.Sprintf("unknown trigger %q", c.Summary.Trigger)}
	}
	if c.Summary.TurnsThreshold <= 0 {
		return &ValidationError{Field: "summary.turns_threshold", Reason: "must be positive"}
	}
	if c.Summary.TextLengthThreshold <= 0 {
		return &ValidationError{Field: "summary.text_length_threshold", Reason: "must be positive"}
	}
	if c.Summary.MaxSummaryLength <= 0 {
		return &ValidationError{Field: "summary.max_summary_length", Reason: "must be positive"}
	}
	if c.Session.Timeout < 0 {
		return &ValidationError{Field: "session.timeout", Reason: "must be zero or positive"}
	}
	if c.Performance.EnableCache && c.Performance.CacheSize <= 0 {
		return &ValidationError{Field: "performance.cache_size", Reason: "must be positive when cache is enabled"}
	}
	return nil
}
