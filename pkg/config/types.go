package config

import "time"

// YAMLConfig is the top-level shape of config.yaml (the
// configuration surface), before defaults are applied and it is resolved
// into Config.
type YAMLConfig struct {
	Pipeline     *PipelineConfig          `yaml:"pipeline"`
	Orchestrator *OrchestratorConfig      `yaml:"orchestrator"`
	Lifecycle    *LifecycleConfig         `yaml:"lifecycle"`
	Segmentation *SegmentationConfig      `yaml:"segmentation"`
	Community    *CommunityConfig         `yaml:"community"`
	Embedding    *EmbeddingConfig         `yaml:"embedding"`
	Maintenance  *MaintenanceConfig       `yaml:"maintenance"`
	Database     *DatabaseConfig          `yaml:"database"`
	Sources      map[string]*SourceConfig `yaml:"sources"`
}

// PipelineConfig controls the batch ingestion pipeline.
type PipelineConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	MaxBatchLatency time.Duration `yaml:"max_batch_latency"`
	LRUCacheSize    int           `yaml:"lru_cache_size"`
}

// OrchestratorConfig controls multi-source scheduling and retries.
type OrchestratorConfig struct {
	BaseBackoff     time.Duration `yaml:"base_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	BackoffFactor   float64       `yaml:"backoff_factor"`
	MaxRetries      int           `yaml:"max_retries"`
	DefaultSchedule string        `yaml:"default_schedule"` // interval string or cron subset
}

// LifecycleConfig controls activation decay and tiering.
type LifecycleConfig struct {
	DecayRate          float64 `yaml:"decay_rate"`
	HighImportanceBoost float64 `yaml:"high_importance_boost"`
	ActiveCapacity      int     `yaml:"active_capacity"` // Baddeley-bounded working set size
	ConsolidationDays   int     `yaml:"consolidation_days"`
	ArchiveDays         int     `yaml:"archive_days"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

// SegmentationConfig controls episode boundary detection.
type SegmentationConfig struct {
	WindowSize              int     `yaml:"window_size"`
	WeightSemantic          float64 `yaml:"weight_semantic"`
	WeightEntity            float64 `yaml:"weight_entity"`
	WeightTemporal          float64 `yaml:"weight_temporal"`
	ThresholdGamma          float64 `yaml:"threshold_gamma"`
	MinEpisodeSize          int     `yaml:"min_episode_size"`
	MaxEpisodeSize          int     `yaml:"max_episode_size"`
	MaxRefinementIterations int     `yaml:"max_refinement_iterations"`
	MinModularityGain       float64 `yaml:"min_modularity_gain"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
}

// CommunityConfig controls Leiden-style community detection.
type CommunityConfig struct {
	MinCommunitySize  int     `yaml:"min_community_size"`
	MaxLevels         int     `yaml:"max_levels"`
	Resolution        float64 `yaml:"resolution"`
	MaxIterations     int     `yaml:"max_iterations"`
	MinModularityGain float64 `yaml:"min_modularity_gain"`
	RandomSeed        int64   `yaml:"random_seed"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

// EmbeddingConfig controls the embedding collaborator Stage 4 of the
// pipeline and the semantic term of episode segmentation call out to.
// Provider "none" always falls back to the deterministic zero vector;
// provider "http" calls an OpenAI-embeddings-compatible endpoint.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // "none" or "http"
	Endpoint   string        `yaml:"endpoint,omitempty"`
	Model      string        `yaml:"model,omitempty"`
	APIKeyEnv  string        `yaml:"api_key_env,omitempty"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// MaintenanceConfig controls the background maintenance jobs: embedding
// backfill (the pipeline's enrichment stage soft-skips when the embedding
// collaborator is down; backfill repairs the gap later) and pruning of
// zero-degree entity rows left behind by graph rebuilds.
type MaintenanceConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	BackfillBatchSize int           `yaml:"backfill_batch_size"`
}

// DatabaseConfig mirrors pkg/database.Config in YAML-friendly form; the
// password is never set here; it is always read from PasswordEnv.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	PasswordEnv     string        `yaml:"password_env"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// SourceConfig configures one source adapter. Credentials are always
// referenced by environment variable name, never stored inline.
type SourceConfig struct {
	Type            string            `yaml:"type"` // "git", "github", "slack", "api_log"
	CredentialsEnv  map[string]string `yaml:"credentials_env,omitempty"`
	Schedule        string            `yaml:"schedule,omitempty"` // interval or cron subset; falls back to orchestrator default
	Options         map[string]string `yaml:"options,omitempty"`  // adapter-specific settings (repo path, channel list, log path, ...)
}

// Config is the fully resolved, defaulted, and validated configuration
// returned by Initialize.
type Config struct {
	configDir string

	Pipeline     PipelineConfig
	Orchestrator OrchestratorConfig
	Lifecycle    LifecycleConfig
	Segmentation SegmentationConfig
	Community    CommunityConfig
	Embedding    EmbeddingConfig
	Maintenance  MaintenanceConfig
	Database     DatabaseConfig
	Sources      map[string]SourceConfig
}

// ConfigDir returns the directory Config was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }
