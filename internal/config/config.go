package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the embedx API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the optional cache store connection settings.
// Leaving addrs empty disables the persistent embedding cache entirely.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	CacheTTLSec      int      `yaml:"cache_ttl_sec"` // 0 = no expiration
}

// EmbeddingConfig holds embedding orchestration settings.
type EmbeddingConfig struct {
	Method            string            `yaml:"method"` // auto, neural, remote, statistical
	FallbackTimeoutMS int               `yaml:"fallback_timeout_ms"`
	Statistical       StatisticalConfig `yaml:"statistical"`
	Neural            NeuralConfig      `yaml:"neural"`
	Remote            RemoteConfig      `yaml:"remote"`
}

// StatisticalConfig holds the local fallback engine settings.
type StatisticalConfig struct {
	Dimensions           int  `yaml:"dimensions"`
	MaxVocabularySize    int  `yaml:"max_vocabulary_size"`
	MinDocumentFrequency int  `yaml:"min_document_frequency"`
	MaxDocumentFrequency int  `yaml:"max_document_frequency"`
	DisableStopwords     bool `yaml:"disable_stopwords"`
	UseStemming          bool `yaml:"use_stemming"`
	MinWordLength        int  `yaml:"min_word_length"`
	CacheSize            int  `yaml:"cache_size"`
}

// NeuralConfig holds the hosted inference backend settings.
type NeuralConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ModelID    string `yaml:"model_id"`
	Token      string `yaml:"token"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// RemoteConfig holds the remote embeddings API backend settings.
type RemoteConfig struct {
	Enabled      bool   `yaml:"enabled"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Dimensions   int    `yaml:"dimensions"`
	MaxBatchSize int    `yaml:"max_batch_size"`
	BatchDelayMS int    `yaml:"batch_delay_ms"`
	CacheSize    int    `yaml:"cache_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Method == "" {
		c.Embedding.Method = "auto"
	}
	if c.Embedding.FallbackTimeoutMS <= 0 {
		c.Embedding.FallbackTimeoutMS = 30000
	}
	if c.Embedding.Statistical.Dimensions <= 0 {
		c.Embedding.Statistical.Dimensions = 1000
	}
	if c.Embedding.Statistical.MaxVocabularySize <= 0 {
		c.Embedding.Statistical.MaxVocabularySize = 50000
	}
	if c.Embedding.Statistical.MinWordLength <= 0 {
		c.Embedding.Statistical.MinWordLength = 2
	}
	if c.Embedding.Statistical.CacheSize <= 0 {
		c.Embedding.Statistical.CacheSize = 1000
	}
	if c.Embedding.Neural.ModelID == "" {
		c.Embedding.Neural.ModelID = "sentence-transformers/distiluse-base-multilingual-cased-v2"
	}
	if c.Embedding.Neural.Dimensions <= 0 {
		c.Embedding.Neural.Dimensions = 512
	}
	if c.Embedding.Remote.Model == "" {
		c.Embedding.Remote.Model = "text-embedding-3-small"
	}
	if c.Embedding.Remote.Dimensions <= 0 {
		c.Embedding.Remote.Dimensions = 1536
	}
	if c.Embedding.Remote.MaxBatchSize <= 0 {
		c.Embedding.Remote.MaxBatchSize = 100
	}
	if c.Embedding.Remote.BatchDelayMS <= 0 {
		c.Embedding.Remote.BatchDelayMS = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Embedding.Method {
	case "auto", "neural", "remote", "statistical":
		// ok
	default:
		return fmt.Errorf(
			"embedding.method must be one of auto, neural, remote, statistical, got %q",
			c.Embedding.Method,
		)
	}
	if c.Embedding.Method == "neural" && !c.Embedding.Neural.Enabled {
		return fmt.Errorf("embedding.method is neural but embedding.neural.enabled is false")
	}
	if c.Embedding.Method == "remote" && !c.Embedding.Remote.Enabled {
		return fmt.Errorf("embedding.method is remote but embedding.remote.enabled is false")
	}
	if c.Embedding.Remote.Enabled && c.Embedding.Remote.APIKey == "" {
		return fmt.Errorf("embedding.remote.api_key is required when remote is enabled")
	}
	if min, max := c.Embedding.Statistical.MinDocumentFrequency, c.Embedding.Statistical.MaxDocumentFrequency; max > 0 && min > max {
		return fmt.Errorf(
			"embedding.statistical.min_document_frequency %d exceeds max_document_frequency %d",
			min, max,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
