package config

import "fmt"

// Validate checks invariants across every section of a loaded Config.
func Validate(cfg *Config) error {
	if err := validatePipeline(cfg.Pipeline); err != nil {
		return err
	}
	if err := validateOrchestrator(cfg.Orchestrator); err != nil {
		return err
	}
	if err := validateLifecycle(cfg.Lifecycle); err != nil {
		return err
	}
	if err := validateSegmentation(cfg.Segmentation); err != nil {
		return err
	}
	if err := validateCommunity(cfg.Community); err != nil {
		return err
	}
	if err := validateEmbedding(cfg.Embedding); err != nil {
		return err
	}
	if err := validateMaintenance(cfg.Maintenance); err != nil {
		return err
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	for id, sc := range cfg.Sources {
		if err := validateSource(id, sc); err != nil {
			return err
		}
	}
	return nil
}

func validatePipeline(p PipelineConfig) error {
	if p.BatchSize <= 0 {
		return NewValidationError("pipeline", "", "batch_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if p.MaxBatchLatency <= 0 {
		return NewValidationError("pipeline", "", "max_batch_latency", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if p.LRUCacheSize <= 0 {
		return NewValidationError("pipeline", "", "lru_cache_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateOrchestrator(o OrchestratorConfig) error {
	if o.BaseBackoff <= 0 || o.MaxBackoff <= 0 {
		return NewValidationError("orchestrator", "", "base_backoff/max_backoff", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if o.MaxBackoff < o.BaseBackoff {
		return NewValidationError("orchestrator", "", "max_backoff", fmt.Errorf("%w: must be >= base_backoff", ErrInvalidValue))
	}
	if o.BackoffFactor <= 1.0 {
		return NewValidationError("orchestrator", "", "backoff_factor", fmt.Errorf("%w: must be > 1.0", ErrInvalidValue))
	}
	if o.MaxRetries < 0 {
		return NewValidationError("orchestrator", "", "max_retries", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	return nil
}

func validateLifecycle(l LifecycleConfig) error {
	if l.DecayRate <= 0 {
		return NewValidationError("lifecycle", "", "decay_rate", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if l.ActiveCapacity <= 0 {
		return NewValidationError("lifecycle", "", "active_capacity", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if l.ConsolidationDays <= 0 || l.ArchiveDays <= 0 {
		return NewValidationError("lifecycle", "", "consolidation_days/archive_days", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if l.ArchiveDays < l.ConsolidationDays {
		return NewValidationError("lifecycle", "", "archive_days", fmt.Errorf("%w: must be >= consolidation_days", ErrInvalidValue))
	}
	return nil
}

func validateSegmentation(s SegmentationConfig) error {
	if s.WindowSize <= 0 {
		return NewValidationError("segmentation", "", "window_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	sum := s.WeightSemantic + s.WeightEntity + s.WeightTemporal
	if sum < 0.99 || sum > 1.01 {
		return NewValidationError("segmentation", "", "weight_semantic+weight_entity+weight_temporal",
			fmt.Errorf("%w: must sum to 1.0, got %.4f", ErrInvalidValue, sum))
	}
	if s.MinEpisodeSize <= 0 || s.MaxEpisodeSize <= 0 {
		return NewValidationError("segmentation", "", "min_episode_size/max_episode_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if s.MaxEpisodeSize < s.MinEpisodeSize {
		return NewValidationError("segmentation", "", "max_episode_size", fmt.Errorf("%w: must be >= min_episode_size", ErrInvalidValue))
	}
	if s.SweepInterval <= 0 {
		return NewValidationError("segmentation", "", "sweep_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateCommunity(c CommunityConfig) error {
	if c.MinCommunitySize <= 0 {
		return NewValidationError("community", "", "min_community_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.MaxLevels <= 0 {
		return NewValidationError("community", "", "max_levels", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Resolution <= 0 {
		return NewValidationError("community", "", "resolution", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.SweepInterval <= 0 {
		return NewValidationError("community", "", "sweep_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

var validEmbeddingProviders = map[string]bool{"none": true, "http": true}

func validateEmbedding(e EmbeddingConfig) error {
	if !validEmbeddingProviders[e.Provider] {
		return NewValidationError("embedding", "", "provider", fmt.Errorf("%w: %q", ErrInvalidValue, e.Provider))
	}
	if e.Dimensions <= 0 {
		return NewValidationError("embedding", "", "dimensions", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.Provider == "http" {
		if e.Endpoint == "" {
			return NewValidationError("embedding", "", "endpoint", ErrMissingRequiredField)
		}
		if e.Timeout <= 0 {
			return NewValidationError("embedding", "", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
	return nil
}

func validateMaintenance(m MaintenanceConfig) error {
	if m.SweepInterval <= 0 {
		return NewValidationError("maintenance", "", "sweep_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if m.BackfillBatchSize <= 0 {
		return NewValidationError("maintenance", "", "backfill_batch_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if d.Host == "" {
		return NewValidationError("database", "", "host", ErrMissingRequiredField)
	}
	if d.Port <= 0 {
		return NewValidationError("database", "", "port", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if d.PasswordEnv == "" {
		return NewValidationError("database", "", "password_env", ErrMissingRequiredField)
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return NewValidationError("database", "", "max_idle_conns", fmt.Errorf("%w: cannot exceed max_open_conns", ErrInvalidValue))
	}
	return nil
}

var validSourceTypes = map[string]bool{
	"git": true, "github": true, "slack": true, "api_log": true,
}

func validateSource(id string, sc SourceConfig) error {
	if !validSourceTypes[sc.Type] {
		return NewValidationError("source", id, "type", fmt.Errorf("%w: %q", ErrInvalidValue, sc.Type))
	}
	return nil
}
