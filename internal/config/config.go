// Package config provides configuration loading and structs for the docsage server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database, vector store, and indices.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	VectorStoreDir string `yaml:"vector_store_dir"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	UploadDir      string `yaml:"upload_dir"`
}

// EmbeddingConfig holds settings for the embedding service client.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	BatchSize   int    `yaml:"batch_size"`
	CacheSize   int    `yaml:"cache_size"`
}

// GenerationConfig holds settings for the completion service client.
type GenerationConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries"`
}

// IngestConfig holds chunking settings for the ingestion pipeline.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds retrieval settings for answering questions.
type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	ExcerptLength int `yaml:"excerpt_length"`
}

// WatchConfig holds drop-directory ingestion settings.
type WatchConfig struct {
	Directory string `yaml:"directory"`
	Enabled   bool   `yaml:"enabled"`
}

// Load reads and parses the config file at path, loads .env if present,
// expands paths, and applies defaults. Returns an error if the file cannot
// be read or parsed.
func Load(path string) (*Config, error) {
	// .env is optional; environment variables win when already set.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorStoreDir = expandPath(cfg.Storage.VectorStoreDir, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// Validate checks startup-time requirements: service credentials must be set
// and the chunking parameters must be coherent. Missing credentials are a
// configuration error here, not a per-request error later.
func (c *Config) Validate() error {
	if os.Getenv(c.Embedding.APIKeyEnv) == "" {
		return fmt.Errorf("missing API key: environment variable %s is not set", c.Embedding.APIKeyEnv)
	}
	if os.Getenv(c.Generation.APIKeyEnv) == "" {
		return fmt.Errorf("missing API key: environment variable %s is not set", c.Generation.APIKeyEnv)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got overlap %d for size %d",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
