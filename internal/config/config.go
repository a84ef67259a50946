// Package config loads and validates the daemon's single Config struct.
// It is read once at startup from a YAML file under the data root; no
// reload signal is handled. Environment variables with the KAIT_ prefix
// override individual fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration. It is loaded from
// ~/.kait/config.yaml by default and can be overridden by environment
// variables (see Load).
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	Memory    MemoryConfig    `mapstructure:"memory" yaml:"memory"`
	MetaRalph MetaRalphConfig `mapstructure:"meta_ralph" yaml:"meta_ralph"`
	Cognitive CognitiveConfig `mapstructure:"cognitive" yaml:"cognitive"`
	Eidos     EidosConfig     `mapstructure:"eidos" yaml:"eidos"`
	Advisory  AdvisoryConfig  `mapstructure:"advisory" yaml:"advisory"`
	Feedback  FeedbackConfig  `mapstructure:"feedback" yaml:"feedback"`
	Promotion PromotionConfig `mapstructure:"promotion" yaml:"promotion"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`

	// DataRoot is the directory that all persisted state lives under.
	// Overridden by the DATA_ROOT environment variable.
	DataRoot string `mapstructure:"data_root" yaml:"data_root"`
}

// ServerConfig controls the ingest daemon's HTTP surface.
type ServerConfig struct {
	// Port is the loopback-bound listen port (default 8787).
	Port int `mapstructure:"port" yaml:"port"`
	// Bind is the address the listener binds; must stay loopback in normal operation.
	Bind string `mapstructure:"bind" yaml:"bind"`
	// MaxBodyBytes rejects POST /events bodies larger than this with 413 (default 8 MiB).
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// WorkerPoolSize is loaded (default 32) but not read by the ingest
	// server; net/http serves each request on its own goroutine, with no
	// bound on concurrent handlers.
	WorkerPoolSize int `mapstructure:"worker_pool_size" yaml:"worker_pool_size"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// TokenEnvVar is the environment variable holding the bearer token, if set.
	TokenEnvVar string `mapstructure:"token_env_var" yaml:"token_env_var"`
	// TokenFile is the path to a 0600 file holding the bearer token, used
	// when TokenEnvVar is unset or empty. Defaults to <data_root>/kaitd.token.
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`
	// Lite is set by KAIT_LITE=1 but read by no component: kaitd runs no
	// pulse/watchdog sidecars, and the feedback and promotion workers start
	// whether or not it is set.
	Lite bool `mapstructure:"lite" yaml:"lite"`
	// DebugStream enables the GET /debug/stream websocket feed of bus events.
	DebugStream bool `mapstructure:"debug_stream" yaml:"debug_stream"`
}

// QueueConfig controls the append-only event queue.
type QueueConfig struct {
	// RotateBytes rotates the primary queue file at this size (default 64 MiB).
	RotateBytes int64 `mapstructure:"rotate_bytes" yaml:"rotate_bytes"`
	// FSyncEvery is loaded but not read; the queue never calls fsync on
	// appended records.
	FSyncEvery int `mapstructure:"fsync_every" yaml:"fsync_every"`
}

// PipelineConfig controls the batch scheduler.
type PipelineConfig struct {
	// BatchMax is the maximum events read per cycle (default 1000).
	BatchMax int `mapstructure:"batch_max" yaml:"batch_max"`
	// LowKeepRate is the fraction of importance<0.3 events retained (default 0.25).
	// Overridden by KAIT_PIPELINE_LOW_KEEP_RATE.
	LowKeepRate float64 `mapstructure:"low_keep_rate" yaml:"low_keep_rate"`
	// SoftPressure doubles the batch size above this queue depth (default 5000).
	SoftPressure int `mapstructure:"soft_pressure" yaml:"soft_pressure"`
	// HardPressure causes ingest to return 429 above this queue depth.
	HardPressure int `mapstructure:"hard_pressure" yaml:"hard_pressure"`
	// CycleInterval is the idle sleep between scheduler cycles when the queue is empty.
	CycleInterval time.Duration `mapstructure:"cycle_interval" yaml:"cycle_interval"`
}

// MemoryConfig controls memory-capture scoring.
type MemoryConfig struct {
	// Threshold is the minimum capture score to queue a Pending Memory (default 0.5).
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	// PatchMaxChars bounds a captured memory's text. Overridden by KAIT_MEMORY_PATCH_MAX_CHARS.
	PatchMaxChars int `mapstructure:"patch_max_chars" yaml:"patch_max_chars"`
	// PatchMinChars is the minimum text length considered for capture. Overridden
	// by KAIT_MEMORY_PATCH_MIN_CHARS.
	PatchMinChars int `mapstructure:"patch_min_chars" yaml:"patch_min_chars"`
}

// MetaRalphConfig controls the quality gate's thresholds.
type MetaRalphConfig struct {
	// DedupThreshold is the token-set cosine similarity above which a candidate
	// is considered a duplicate (default 0.85).
	DedupThreshold float64 `mapstructure:"dedup_threshold" yaml:"dedup_threshold"`
	// RoastHistoryMax bounds the number of verdicts retained in the
	// observability history file.
	RoastHistoryMax int `mapstructure:"roast_history_max" yaml:"roast_history_max"`
}

// CognitiveConfig controls the insight store.
type CognitiveConfig struct {
	// PromotionReliability is the minimum reliability for promotion (default 0.80).
	PromotionReliability float64 `mapstructure:"promotion_reliability" yaml:"promotion_reliability"`
	// PromotionValidations is the minimum validation count for promotion (default 5).
	PromotionValidations int `mapstructure:"promotion_validations" yaml:"promotion_validations"`
	// ReliabilityHalflife is the recency decay half-life for advisory readiness (default 14 days).
	ReliabilityHalflife time.Duration `mapstructure:"reliability_halflife" yaml:"reliability_halflife"`
	// EvidenceRingSize bounds the evidence/counter-example rings (default 10).
	EvidenceRingSize int `mapstructure:"evidence_ring_size" yaml:"evidence_ring_size"`
}

// EidosConfig controls episode/step lifecycle and distillation.
type EidosConfig struct {
	// DBPath's directory is created by EnsureDirectories, but the runtime
	// does not open the database from it; the episodes/steps/distillations
	// database is always opened at <data_root>/eidos.db.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// StepTimeout force-seals an open step past this duration (default 10m).
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	// SessionTimeout closes an episode after this much session idle time (default 30m).
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	// MinStepsForAggregation is N_min_steps before the aggregator considers a
	// closed episode (default 5).
	MinStepsForAggregation int `mapstructure:"min_steps_for_aggregation" yaml:"min_steps_for_aggregation"`
	// ValidateMin is the minimum cluster size before a heuristic distillation
	// is emitted (default 5).
	ValidateMin int `mapstructure:"validate_min" yaml:"validate_min"`
}

// AdvisoryConfig controls retrieval, fusion, and suppression.
type AdvisoryConfig struct {
	// Budget bounds the total time advise() may spend (default 1.5s).
	Budget time.Duration `mapstructure:"budget" yaml:"budget"`
	// QuickMinMs triggers quick-fallback mode when the configured Budget is
	// below this many milliseconds (default 900). The check is made once at
	// the start of advise(); a shorter deadline on the caller's context is
	// not taken into account.
	QuickMinMs int `mapstructure:"quick_min_ms" yaml:"quick_min_ms"`
	// PerSourceK bounds items returned per retrieval source.
	PerSourceK int `mapstructure:"per_source_k" yaml:"per_source_k"`
	// MaxEmit bounds items returned to the caller (default 2).
	MaxEmit int `mapstructure:"max_emit" yaml:"max_emit"`
	// ToolCooldown suppresses repeat advice per tool (default 30s).
	ToolCooldown time.Duration `mapstructure:"tool_cooldown" yaml:"tool_cooldown"`
	// AdviceTTL suppresses identical advice shown within this window (default 600s).
	AdviceTTL time.Duration `mapstructure:"advice_ttl" yaml:"advice_ttl"`
	// BudgetPerMinute bounds advice volume per session per minute (default 2).
	BudgetPerMinute int `mapstructure:"budget_per_minute" yaml:"budget_per_minute"`
	// AgreementGate requires items from MinSources distinct sources when true.
	// Overridden by KAIT_ADVISORY_AGREEMENT_GATE.
	AgreementGate bool `mapstructure:"agreement_gate" yaml:"agreement_gate"`
	// MinSources is the quorum for AgreementGate. Overridden by KAIT_ADVISORY_MIN_SOURCES.
	MinSources int `mapstructure:"min_sources" yaml:"min_sources"`
	// SourceWeights are the per-source Reciprocal Rank Fusion coefficients.
	SourceWeights map[string]float64 `mapstructure:"source_weights" yaml:"source_weights"`
	// Embeddings enables the embedding-backed semantic source. Overridden by
	// KAIT_EMBEDDINGS (0 disables, falling back to keyword matching).
	Embeddings bool `mapstructure:"embeddings" yaml:"embeddings"`
	// OllamaURL is the embedding backend endpoint, used only when Embeddings is true.
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url"`
	// EmbeddingModel names the embedding model (e.g. "nomic-embed-text").
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
}

// FeedbackConfig controls the implicit feedback loop.
type FeedbackConfig struct {
	// ExposureTimeout bounds how long an exposure waits for a matching outcome
	// before being marked ignored (default 30s).
	ExposureTimeout time.Duration `mapstructure:"exposure_timeout" yaml:"exposure_timeout"`
	// ExposureExpiry discards unmatched exposures after this long (default 5m).
	ExposureExpiry time.Duration `mapstructure:"exposure_expiry" yaml:"exposure_expiry"`
}

// PromotionConfig controls promotion/demotion of insights into guidance files.
type PromotionConfig struct {
	// IntervalSec bounds how often the promotion loop runs (default 3600s).
	IntervalSec int `mapstructure:"interval_s" yaml:"interval_s"`
	// DemotionThreshold demotes a promoted insight whose reliability drops
	// below this value (default 0.65).
	DemotionThreshold float64 `mapstructure:"demotion_threshold" yaml:"demotion_threshold"`
	// TargetFiles maps an insight category to the guidance file it is promoted into.
	TargetFiles map[string]string `mapstructure:"target_files" yaml:"target_files"`
}

// LoggingConfig contains configuration for daemon logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file.
	File string `mapstructure:"file" yaml:"file"`
	// StructuredAccessLog is loaded but not read; the ingest middleware
	// always logs each request (method, path, elapsed) at debug level.
	StructuredAccessLog bool `mapstructure:"structured_access_log" yaml:"structured_access_log"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataRoot := filepath.Join(homeDir, ".kait")

	return &Config{
		DataRoot: dataRoot,
		Server: ServerConfig{
			Port:            8787,
			Bind:            "127.0.0.1",
			MaxBodyBytes:    8 * 1024 * 1024,
			WorkerPoolSize:  32,
			ShutdownTimeout: 10 * time.Second,
			TokenEnvVar:     "KAITD_TOKEN",
			TokenFile:       filepath.Join(dataRoot, "kaitd.token"),
			Lite:            false,
			DebugStream:     false,
		},
		Queue: QueueConfig{
			RotateBytes: 64 * 1024 * 1024,
			FSyncEvery:  1,
		},
		Pipeline: PipelineConfig{
			BatchMax:      1000,
			LowKeepRate:   0.25,
			SoftPressure:  5000,
			HardPressure:  20000,
			CycleInterval: 1 * time.Second,
		},
		Memory: MemoryConfig{
			Threshold:     0.5,
			PatchMaxChars: 2000,
			PatchMinChars: 8,
		},
		MetaRalph: MetaRalphConfig{
			DedupThreshold:  0.85,
			RoastHistoryMax: 5000,
		},
		Cognitive: CognitiveConfig{
			PromotionReliability: 0.80,
			PromotionValidations: 5,
			ReliabilityHalflife:  14 * 24 * time.Hour,
			EvidenceRingSize:     10,
		},
		Eidos: EidosConfig{
			DBPath:                 filepath.Join(dataRoot, "eidos.db"),
			StepTimeout:            10 * time.Minute,
			SessionTimeout:         30 * time.Minute,
			MinStepsForAggregation: 5,
			ValidateMin:            5,
		},
		Advisory: AdvisoryConfig{
			Budget:          1500 * time.Millisecond,
			QuickMinMs:      900,
			PerSourceK:      10,
			MaxEmit:         2,
			ToolCooldown:    30 * time.Second,
			AdviceTTL:       600 * time.Second,
			BudgetPerMinute: 2,
			AgreementGate:   false,
			MinSources:      2,
			SourceWeights: map[string]float64{
				"cognitive": 1.0,
				"eidos":     0.8,
				"semantic":  0.6,
				"packet":    0.7,
			},
			Embeddings:     true,
			OllamaURL:      "http://127.0.0.1:11434",
			EmbeddingModel: "nomic-embed-text",
		},
		Feedback: FeedbackConfig{
			ExposureTimeout: 30 * time.Second,
			ExposureExpiry:  5 * time.Minute,
		},
		Promotion: PromotionConfig{
			IntervalSec:       3600,
			DemotionThreshold: 0.65,
			TargetFiles: map[string]string{
				"wisdom":            "CLAUDE.md",
				"self_awareness":    "SOUL.md",
				"user_understanding": "AGENTS.md",
				"reasoning":         "CLAUDE.md",
				"meta_learning":     "TOOLS.md",
				"other":             "CLAUDE.md",
			},
		},
		Logging: LoggingConfig{
			Level:               "info",
			File:                filepath.Join(dataRoot, "logs", "kaitd.log"),
			StructuredAccessLog: true,
		},
	}
}

// Load reads configuration from the default location (~/.kait/config.yaml)
// and merges with environment variables. If no config file exists, it
// creates one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".kait", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := writeConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("KAIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvOverrides(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if root := os.Getenv("DATA_ROOT"); root != "" {
		cfg.DataRoot = root
	}
	cfg.DataRoot = expandPath(cfg.DataRoot)
	cfg.Eidos.DBPath = expandPath(cfg.Eidos.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.Server.TokenFile = expandPath(cfg.Server.TokenFile)

	applyRootedDefaults(&cfg)

	return &cfg, nil
}

// bindEnvOverrides binds the closed set of KAIT_* environment toggles
// named in the external interface contract. KAITD_TOKEN is not bound
// here: it is the default TokenEnvVar, which auth.Resolve reads directly. These are bound
// individually (rather than relying solely on viper's automatic prefix
// replacement) because several of them do not follow the dotted
// section_field naming of the YAML keys.
func bindEnvOverrides(v *viper.Viper) {
	_ = v.BindEnv("server.lite", "KAIT_LITE")
	_ = v.BindEnv("advisory.embeddings", "KAIT_EMBEDDINGS")
	_ = v.BindEnv("advisory.agreement_gate", "KAIT_ADVISORY_AGREEMENT_GATE")
	_ = v.BindEnv("advisory.min_sources", "KAIT_ADVISORY_MIN_SOURCES")
	_ = v.BindEnv("pipeline.low_keep_rate", "KAIT_PIPELINE_LOW_KEEP_RATE")
	_ = v.BindEnv("memory.patch_max_chars", "KAIT_MEMORY_PATCH_MAX_CHARS")
	_ = v.BindEnv("memory.patch_min_chars", "KAIT_MEMORY_PATCH_MIN_CHARS")
}

// applyRootedDefaults fills in any path defaults that depend on DataRoot
// and were not set explicitly in the loaded file.
func applyRootedDefaults(c *Config) {
	def := Default()
	if c.Eidos.DBPath == "" {
		c.Eidos.DBPath = filepath.Join(c.DataRoot, "eidos.db")
	}
	if c.Server.TokenFile == "" {
		c.Server.TokenFile = filepath.Join(c.DataRoot, "kaitd.token")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataRoot, "logs", "kaitd.log")
	}
	if len(c.Advisory.SourceWeights) == 0 {
		c.Advisory.SourceWeights = def.Advisory.SourceWeights
	}
	if len(c.Promotion.TargetFiles) == 0 {
		c.Promotion.TargetFiles = def.Promotion.TargetFiles
	}
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".kait", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the configured data root.
func (c *Config) GetDataDir() string {
	return c.DataRoot
}

// GetConfigPath returns the full path to the config file under the data root.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.DataRoot, "config.yaml")
}

// EnsureDirectories creates all directories needed for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataRoot,
		filepath.Join(c.DataRoot, "queue"),
		filepath.Join(c.DataRoot, "advisor"),
		filepath.Dir(c.Logging.File),
		filepath.Dir(c.Eidos.DBPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if c.Pipeline.LowKeepRate < 0 || c.Pipeline.LowKeepRate > 1 {
		return fmt.Errorf("pipeline.low_keep_rate must be between 0 and 1")
	}

	if c.Cognitive.PromotionReliability < 0 || c.Cognitive.PromotionReliability > 1 {
		return fmt.Errorf("cognitive.promotion_reliability must be between 0 and 1")
	}

	if c.Advisory.MaxEmit <= 0 {
		return fmt.Errorf("advisory.max_emit must be positive")
	}

	if c.Promotion.DemotionThreshold < 0 || c.Promotion.DemotionThreshold > 1 {
		return fmt.Errorf("promotion.demotion_threshold must be between 0 and 1")
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
