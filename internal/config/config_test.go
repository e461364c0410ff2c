package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultEmbeddingDim(t *testing.T) {
	// Clear any existing EMBEDDING_DIM
	os.Unsetenv("EMBEDDING_DIM")

	cfg := Load()

	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_CustomEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "512")

	cfg := Load()

	if cfg.Embedding.Dim != 512 {
		t.Errorf("expected embedding dim 512, got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_InvalidEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "invalid")

	cfg := Load()

	// Should fall back to default
	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected default embedding dim 128 for invalid input, got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_NegativeEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "-100")

	cfg := Load()

	if cfg.Embedding.Dim != 128 {
		t.Errorf("expected default embedding dim 128 for negative input, got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_ZeroEmbeddingDim(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "0")

	cfg := Load()

	// Zero means the dimension is inferred from data
	if cfg.Embedding.Dim != 0 {
		t.Errorf("expected embedding dim 0 (infer), got %d", cfg.Embedding.Dim)
	}
}

func TestLoad_EmptyEnvVars(t *testing.T) {
	for _, key := range []string{
		"FACE_STORE_PATH", "FACE_STORE_COMPRESS", "MATCH_TOLERANCE", "MATCH_INDEX",
		"WEB_HOST", "WEB_PORT", "WEB_ALLOWED_ORIGINS", "IMPORT_CONCURRENCY",
		"IMPORT_RATE_LIMIT", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ENABLED", "EMBEDDING_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Store.Path != "face_store.json" {
		t.Errorf("expected default store path, got '%s'", cfg.Store.Path)
	}
	if cfg.Store.Compress {
		t.Error("expected compression to be off by default")
	}
	if cfg.Match.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Match.Tolerance)
	}
	if cfg.Match.Index != "linear" {
		t.Errorf("expected linear index, got '%s'", cfg.Match.Index)
	}
	if cfg.Web.Host != "0.0.0.0" || cfg.Web.Port != 8000 {
		t.Errorf("unexpected web defaults %s:%d", cfg.Web.Host, cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 0 {
		t.Errorf("expected no allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Import.Concurrency != 5 || cfg.Import.RateLimit != 0 {
		t.Errorf("unexpected import defaults %+v", cfg.Import)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to be enabled by default")
	}
	if cfg.Embedding.Timeout != 60*time.Second {
		t.Errorf("expected 60s embedding timeout, got %v", cfg.Embedding.Timeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("FACE_STORE_PATH", "/data/faces.json")
	t.Setenv("FACE_STORE_COMPRESS", "true")
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("MATCH_INDEX", "hnsw")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("IMPORT_DRIVER", "postgres")
	t.Setenv("IMPORT_RATE_LIMIT", "2.5")
	t.Setenv("METRICS_ENABLED", "false")

	cfg := Load()

	if cfg.Store.Path != "/data/faces.json" || !cfg.Store.Compress {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Match.Tolerance != 0.45 || cfg.Match.Index != "hnsw" {
		t.Errorf("unexpected match config %+v", cfg.Match)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Web.Port)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected origins %v", cfg.Web.AllowedOrigins)
	}
	if cfg.Import.Driver != "postgres" || cfg.Import.RateLimit != 2.5 {
		t.Errorf("unexpected import config %+v", cfg.Import)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics to be disabled")
	}
}

func TestLoad_InvalidTolerance(t *testing.T) {
	for _, v := range []string{"-1", "abc"} {
		t.Setenv("MATCH_TOLERANCE", v)

		cfg := Load()

		if cfg.Match.Tolerance != 0.6 {
			t.Errorf("MATCH_TOLERANCE=%s: expected fallback 0.6, got %v", v, cfg.Match.Tolerance)
		}
	}
}

func TestLoad_DefaultsLoaded(t *testing.T) {
	cfg := Load()

	if cfg.Defaults.Upload.MaxBytes != 16<<20 {
		t.Errorf("expected 16MB upload limit, got %d", cfg.Defaults.Upload.MaxBytes)
	}
	if cfg.Defaults.HNSW.MaxNeighbors != 16 || cfg.Defaults.HNSW.MinRecords != 1000 {
		t.Errorf("unexpected hnsw defaults %+v", cfg.Defaults.HNSW)
	}
	if cfg.Defaults.Image.MaxSize <= 0 {
		t.Errorf("expected positive image max size, got %d", cfg.Defaults.Image.MaxSize)
	}
}

func TestAllowedExtension(t *testing.T) {
	cfg := Load()

	tests := []struct {
		filename string
		want     bool
	}{
		{"face.jpg", true},
		{"face.JPEG", true},
		{"archive.tar.png", true},
		{"face.gif", false},
		{"noextension", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cfg.AllowedExtension(tt.filename); got != tt.want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
