package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port=%d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Host=%q, want default localhost", cfg.Server.Host)
	}
	if cfg.Ingest.ChunkSize != 1000 {
		t.Errorf("ChunkSize=%d, want default 1000", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("ChunkOverlap=%d, want default 200", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("TopK=%d, want default 4", cfg.Retrieval.TopK)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("embedding model=%q", cfg.Embedding.Model)
	}
}

func TestLoadKeepsExplicitZeroOverlap(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_KEY", "test")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ingest:
  chunk_size: 500
  chunk_overlap: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.ChunkSize != 500 {
		t.Errorf("ChunkSize=%d, want 500", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 0 {
		t.Errorf("ChunkOverlap=%d, want explicit 0", cfg.Ingest.ChunkOverlap)
	}

	cfg.Embedding.APIKeyEnv = "DOCSAGE_TEST_KEY"
	cfg.Generation.APIKeyEnv = "DOCSAGE_TEST_KEY"
	if err := cfg.Validate(); err != nil {
		t.Errorf("zero overlap should validate: %v", err)
	}
}

func TestLoadExpandsRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: ./data/db.sqlite
  vector_store_dir: ./data/vectors
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database path not expanded: %s", cfg.Storage.DatabasePath)
	}
	if cfg.Storage.DatabasePath != filepath.Join(dir, "data/db.sqlite") {
		t.Errorf("database path=%s", cfg.Storage.DatabasePath)
	}
}

func TestValidateMissingKey(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Embedding.APIKeyEnv = "DOCSAGE_TEST_KEY_UNSET"
	cfg.Generation.APIKeyEnv = "DOCSAGE_TEST_KEY_UNSET"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestValidateChunkOverlap(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_KEY", "test")
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Embedding.APIKeyEnv = "DOCSAGE_TEST_KEY"
	cfg.Generation.APIKeyEnv = "DOCSAGE_TEST_KEY"

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when overlap >= chunk size")
	}

	cfg.Ingest.ChunkSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero chunk size")
	}
}
