// Package config provides configuration loading and structs for the Shiori server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvDatabasePath     = "SHIORI_DATABASE_PATH"
	EnvEmbeddingAPIKey  = "SHIORI_EMBEDDING_API_KEY"
	EnvEmbeddingBaseURL = "SHIORI_EMBEDDING_BASE_URL"
	EnvEmbeddingModel   = "SHIORI_EMBEDDING_MODEL"
	EnvServerPort       = "SHIORI_PORT"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogFormat string          `yaml:"log_format"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Groups    GroupsConfig    `yaml:"groups"`
	Learner   LearnerConfig   `yaml:"learner"`
	Labeller  LabellerConfig  `yaml:"labeller"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and the paper lookup index.
// An empty BleveIndexPath keeps the lookup index in memory.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "onnx", "http" or "mock".
	Provider          string  `yaml:"provider"`
	ModelPath         string  `yaml:"model_path"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Model             string  `yaml:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	MaxInputChars     int     `yaml:"max_input_chars"`
}

// SearchConfig holds the similarity and graph recall parameters.
type SearchConfig struct {
	DefaultLimit          int     `yaml:"default_limit"`
	MaxLimit              int     `yaml:"max_limit"`
	MaxSeed               int     `yaml:"max_seed"`
	Alpha                 float64 `yaml:"alpha"`
	PropagationBaseline   float64 `yaml:"propagation_baseline"`
	PropagationFetchLimit int     `yaml:"propagation_fetch_limit"`
	TagSignalWeight       float64 `yaml:"tag_signal_weight"`
	CitationSignalWeight  float64 `yaml:"citation_signal_weight"`
	CitationExpandLimit   int     `yaml:"citation_expand_limit"`
	GraphExpansionLimit   int     `yaml:"graph_expansion_limit"`
	EnhancementEnabled    *bool   `yaml:"enhancement_enabled"`
}

// EnhancementOrDefault returns whether graph recall enhancement runs; defaults to true when unset.
func (s *SearchConfig) EnhancementOrDefault() bool {
	if s.EnhancementEnabled != nil {
		return *s.EnhancementEnabled
	}
	return true
}

// GroupsConfig locates the semantic group file.
type GroupsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// LearnerConfig holds interaction learning settings. An empty Schedule disables
// the periodic run inside the server.
type LearnerConfig struct {
	Schedule        string  `yaml:"schedule"`
	WindowMinutes   int     `yaml:"window_minutes"`
	ClickIncrement  float64 `yaml:"click_increment"`
	AcceptIncrement float64 `yaml:"accept_increment"`
	MaxWeight       float64 `yaml:"max_weight"`
	DefaultWeight   float64 `yaml:"default_weight"`
	MarkProcessed   bool    `yaml:"mark_processed"`
}

// LabellerConfig holds citation analysis settings.
type LabellerConfig struct {
	Schedule       string `yaml:"schedule"`
	MinClusterSize int    `yaml:"min_cluster_size"`
	MaxClusters    int    `yaml:"max_clusters"`
	MaxIterations  int    `yaml:"max_iterations"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. A .env file next to the config is loaded first when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Groups.Path = expandPath(cfg.Groups.Path, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and endpoints from SHIORI_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvEmbeddingAPIKey); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvEmbeddingBaseURL); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "onnx", "http", "mock":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "http" && c.Embedding.BaseURL == "" {
		return errors.New("embedding.base_url is required for the http provider")
	}
	if c.Search.Alpha < 0 {
		return fmt.Errorf("search.alpha must not be negative, got %v", c.Search.Alpha)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
