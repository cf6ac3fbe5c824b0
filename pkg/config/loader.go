package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, defaults, and validates configuration, and is
// the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load config.yaml from configDir
//  2. Expand environment variables (${VAR} / $VAR)
//  3. Parse YAML into YAMLConfig
//  4. Merge each section onto its built-in default (user overrides default)
//  5. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"sources", len(cfg.Sources),
		"batch_size", cfg.Pipeline.BatchSize,
		"active_capacity", cfg.Lifecycle.ActiveCapacity)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	raw, err := loadYAML(configDir, "config.yaml")
	if err != nil {
		return nil, NewLoadError("config.yaml", err)
	}

	pipeline, err := mergeSection(DefaultPipelineConfig(), raw.Pipeline)
	if err != nil {
		return nil, err
	}
	orchestrator, err := mergeSection(DefaultOrchestratorConfig(), raw.Orchestrator)
	if err != nil {
		return nil, err
	}
	lifecycle, err := mergeSection(DefaultLifecycleConfig(), raw.Lifecycle)
	if err != nil {
		return nil, err
	}
	segmentation, err := mergeSection(DefaultSegmentationConfig(), raw.Segmentation)
	if err != nil {
		return nil, err
	}
	community, err := mergeSection(DefaultCommunityConfig(), raw.Community)
	if err != nil {
		return nil, err
	}
	embedding, err := mergeSection(DefaultEmbeddingConfig(), raw.Embedding)
	if err != nil {
		return nil, err
	}
	maintenance, err := mergeSection(DefaultMaintenanceConfig(), raw.Maintenance)
	if err != nil {
		return nil, err
	}
	database, err := mergeSection(DefaultDatabaseConfig(), raw.Database)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]SourceConfig, len(raw.Sources))
	for id, sc := range raw.Sources {
		if sc == nil {
			continue
		}
		if sc.Schedule == "" {
			sc.Schedule = orchestrator.DefaultSchedule
		}
		sources[id] = *sc
	}

	return &Config{
		configDir:    configDir,
		Pipeline:     *pipeline,
		Orchestrator: *orchestrator,
		Lifecycle:    *lifecycle,
		Segmentation: *segmentation,
		Community:    *community,
		Embedding:    *embedding,
		Maintenance:  *maintenance,
		Database:     *database,
		Sources:      sources,
	}, nil
}

func loadYAML(configDir, filename string) (*YAMLConfig, error) {
	path := filepath.Join(configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	data = ExpandEnv(data)

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// DatabasePassword reads the database password from the environment
// variable named by Database.PasswordEnv.
func (c *Config) DatabasePassword() string {
	if c.Database.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Database.PasswordEnv)
}

// SourceCredential reads one named credential for a source from the
// environment variable configured for it, e.g. SourceCredential("gh-1",
// "token") looks up os.Getenv(Sources["gh-1"].CredentialsEnv["token"]).
func (c *Config) SourceCredential(sourceID, key string) (string, bool) {
	sc, ok := c.Sources[sourceID]
	if !ok {
		return "", false
	}
	envVar, ok := sc.CredentialsEnv[key]
	if !ok || envVar == "" {
		return "", false
	}
	return os.Getenv(envVar), true
}
