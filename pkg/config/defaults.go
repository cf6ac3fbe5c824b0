package config

import "time"

// DefaultPipelineConfig returns the batch pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		BatchSize:       64,
		MaxBatchLatency: 200 * time.Millisecond,
		LRUCacheSize:    5000,
	}
}

// DefaultOrchestratorConfig returns the orchestrator defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		BaseBackoff:     1 * time.Second,
		MaxBackoff:      10 * time.Second,
		BackoffFactor:   2.0,
		MaxRetries:      3,
		DefaultSchedule: "5m",
	}
}

// DefaultLifecycleConfig returns the activation/tiering defaults.
func DefaultLifecycleConfig() *LifecycleConfig {
	return &LifecycleConfig{
		DecayRate:           0.5,
		HighImportanceBoost: 1.5,
		ActiveCapacity:      7,
		ConsolidationDays:   7,
		ArchiveDays:         30,
		SweepInterval:       10 * time.Minute,
	}
}

// DefaultSegmentationConfig returns the episode-segmentation defaults.
func DefaultSegmentationConfig() *SegmentationConfig {
	return &SegmentationConfig{
		WindowSize:              5,
		WeightSemantic:          0.6,
		WeightEntity:            0.25,
		WeightTemporal:          0.15,
		ThresholdGamma:          1.0,
		MinEpisodeSize:          8,
		MaxEpisodeSize:          128,
		MaxRefinementIterations: 10,
		MinModularityGain:       0.001,
		SweepInterval:           5 * time.Minute,
	}
}

// DefaultCommunityConfig returns the community-detection defaults.
func DefaultCommunityConfig() *CommunityConfig {
	return &CommunityConfig{
		MinCommunitySize:  3,
		MaxLevels:         3,
		Resolution:        1.0,
		MaxIterations:     10,
		MinModularityGain: 0.01,
		RandomSeed:        42,
		SweepInterval:     15 * time.Minute,
	}
}

// DefaultEmbeddingConfig returns the embedding collaborator defaults: no
// provider configured, so the pipeline and segmentation both fall back to
// the deterministic zero vector until a real provider is wired in.
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		Provider:   "none",
		Dimensions: 384,
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	}
}

// DefaultMaintenanceConfig returns the backfill/pruning job defaults. The
// backfill batch size matches the pipeline's batch size so one backfill
// round costs the same as one ingest round against the embedding provider.
func DefaultMaintenanceConfig() *MaintenanceConfig {
	return &MaintenanceConfig{
		SweepInterval:     30 * time.Minute,
		BackfillBatchSize: 64,
	}
}

// DefaultDatabaseConfig returns connection and pool defaults, including a
// local host, port, user and database name; YAML or environment values
// override them.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "episodic",
		PasswordEnv:     "DB_PASSWORD",
		Database:        "episodic",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}
}
