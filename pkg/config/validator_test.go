package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Pipeline:     *DefaultPipelineConfig(),
		Orchestrator: *DefaultOrchestratorConfig(),
		Lifecycle:    *DefaultLifecycleConfig(),
		Segmentation: *DefaultSegmentationConfig(),
		Community:    *DefaultCommunityConfig(),
		Embedding:    *DefaultEmbeddingConfig(),
		Maintenance:  *DefaultMaintenanceConfig(),
		Database:     *DefaultDatabaseConfig(),
		Sources: map[string]SourceConfig{
			"git-main": {Type: "git"},
		},
	}
}

func TestValidate_DefaultsPass(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_SegmentationWeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Segmentation.WeightSemantic = 0.9
	assert.Error(t, Validate(cfg))
}

func TestValidate_ArchiveDaysBeforeConsolidationDays(t *testing.T) {
	cfg := validConfig()
	cfg.Lifecycle.ConsolidationDays = 30
	cfg.Lifecycle.ArchiveDays = 7
	assert.Error(t, Validate(cfg))
}

func TestValidate_UnknownSourceType(t *testing.T) {
	cfg := validConfig()
	cfg.Sources["bad"] = SourceConfig{Type: "ftp"}
	assert.Error(t, Validate(cfg))
}

func TestValidate_DatabaseMissingPasswordEnv(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PasswordEnv = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_OrchestratorMaxBackoffBelowBase(t *testing.T) {
	cfg := validConfig()
	cfg.Orchestrator.BaseBackoff = 10
	cfg.Orchestrator.MaxBackoff = 5
	assert.Error(t, Validate(cfg))
}

func TestValidate_EmbeddingUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "grpc"
	assert.Error(t, Validate(cfg))
}

func TestValidate_EmbeddingHTTPRequiresEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.Endpoint = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_EmbeddingHTTPWithEndpointPasses(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.Endpoint = "https://embeddings.internal/v1/embed"
	assert.NoError(t, Validate(cfg))
}
