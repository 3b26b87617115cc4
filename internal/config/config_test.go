package config

import (
	"os"
	"testing"
)

func TestValidate_InvalidMethod(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{Method: "quantum"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid method")
	}

	expected := `embedding.method must be one of auto, neural, remote, statistical, got "quantum"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidMethods(t *testing.T) {
	validMethods := []string{"auto", "statistical"}

	for _, method := range validMethods {
		t.Run("method="+method, func(t *testing.T) {
			cfg := Config{
				HTTP:      HTTPConfig{Port: 8080},
				Embedding: EmbeddingConfig{Method: method},
			}

			err := cfg.Validate()
			if err != nil {
				t.Fatalf("unexpected error for valid method %q: %v", method, err)
			}
		})
	}
}

func TestValidate_RequiredMethodNeedsEnabledBackend(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{Method: "neural"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error: neural method with disabled neural backend")
	}

	cfg.Embedding.Neural.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RemoteRequiresAPIKey(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{
			Method: "auto",
			Remote: RemoteConfig{Enabled: true},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled remote without api key")
	}

	cfg.Embedding.Remote.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DocumentFrequencyBounds(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{
			Method: "auto",
			Statistical: StatisticalConfig{
				MinDocumentFrequency: 10,
				MaxDocumentFrequency: 5,
			},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for min_document_frequency > max_document_frequency")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 0},
		Embedding: EmbeddingConfig{Method: "auto"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 10 {
		t.Errorf("expected WriteTimeoutSec=10, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Method != "auto" {
		t.Errorf("expected Method=auto, got %q", cfg.Embedding.Method)
	}
	if cfg.Embedding.FallbackTimeoutMS != 30000 {
		t.Errorf("expected FallbackTimeoutMS=30000, got %d", cfg.Embedding.FallbackTimeoutMS)
	}
	if cfg.Embedding.Statistical.Dimensions != 1000 {
		t.Errorf("expected Dimensions=1000, got %d", cfg.Embedding.Statistical.Dimensions)
	}
	if cfg.Embedding.Statistical.MaxVocabularySize != 50000 {
		t.Errorf("expected MaxVocabularySize=50000, got %d", cfg.Embedding.Statistical.MaxVocabularySize)
	}
	if cfg.Embedding.Statistical.MinWordLength != 2 {
		t.Errorf("expected MinWordLength=2, got %d", cfg.Embedding.Statistical.MinWordLength)
	}
	if cfg.Embedding.Statistical.CacheSize != 1000 {
		t.Errorf("expected CacheSize=1000, got %d", cfg.Embedding.Statistical.CacheSize)
	}
	if cfg.Embedding.Neural.Dimensions != 512 {
		t.Errorf("expected Neural.Dimensions=512, got %d", cfg.Embedding.Neural.Dimensions)
	}
	if cfg.Embedding.Remote.Dimensions != 1536 {
		t.Errorf("expected Remote.Dimensions=1536, got %d", cfg.Embedding.Remote.Dimensions)
	}
	if cfg.Embedding.Remote.MaxBatchSize != 100 {
		t.Errorf("expected Remote.MaxBatchSize=100, got %d", cfg.Embedding.Remote.MaxBatchSize)
	}
	if cfg.Embedding.Remote.BatchDelayMS != 100 {
		t.Errorf("expected Remote.BatchDelayMS=100, got %d", cfg.Embedding.Remote.BatchDelayMS)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Embedding: EmbeddingConfig{
			Method:            "statistical",
			FallbackTimeoutMS: 5000,
			Statistical:       StatisticalConfig{Dimensions: 256, CacheSize: 50},
		},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Embedding.Method != "statistical" {
		t.Errorf("expected Method=statistical, got %q", cfg.Embedding.Method)
	}
	if cfg.Embedding.FallbackTimeoutMS != 5000 {
		t.Errorf("expected FallbackTimeoutMS=5000, got %d", cfg.Embedding.FallbackTimeoutMS)
	}
	if cfg.Embedding.Statistical.Dimensions != 256 {
		t.Errorf("expected Dimensions=256, got %d", cfg.Embedding.Statistical.Dimensions)
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("EMBEDX_TEST_KEY", "secret-value")
	defer os.Unsetenv("EMBEDX_TEST_KEY")

	in := []byte("api_key: ${EMBEDX_TEST_KEY}\nport: ${EMBEDX_TEST_PORT:-8080}")
	out := string(expandEnvVars(in))

	expected := "api_key: secret-value\nport: 8080"
	if out != expected {
		t.Errorf("unexpected expansion:\ngot:  %q\nwant: %q", out, expected)
	}
}
