package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-id/internal/constants"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Store     StoreConfig
	Embedding EmbeddingConfig
	Match     MatchConfig
	Web       WebConfig
	Import    ImportConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Defaults  Defaults
}

type StoreConfig struct {
	Path     string // defaults to face_store.json
	Compress bool   // zstd-compress the store file
}

type EmbeddingConfig struct {
	URL     string // face embedding service
	Dim     int    // defaults to 128, 0 infers it from the store or first enrollment
	Timeout time.Duration
}

type MatchConfig struct {
	Tolerance float64 // defaults to 0.6
	Index     string  // linear or hnsw
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type ImportConfig struct {
	Driver      string // mysql, postgres or sqlite
	DSN         string
	Query       string
	Concurrency int
	RateLimit   float64 // image downloads per second, 0 is unlimited
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

type MetricsConfig struct {
	Enabled bool
}

// Defaults holds the values embedded from defaults.yaml.
type Defaults struct {
	Upload UploadDefaults `yaml:"upload"`
	Image  ImageDefaults  `yaml:"image"`
	HNSW   HNSWDefaults   `yaml:"hnsw"`
}

type UploadDefaults struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxBytes          int64    `yaml:"max_bytes"`
}

type ImageDefaults struct {
	MaxSize int `yaml:"max_size"`
}

type HNSWDefaults struct {
	MaxNeighbors int `yaml:"max_neighbors"`
	EfSearch     int `yaml:"ef_search"`
	Candidates   int `yaml:"candidates"`
	MinRecords   int `yaml:"min_records"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDim is envInt that also accepts 0.
func envDim(key string, defaultVal int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n == 0 {
		return 0
	}
	return envInt(key, defaultVal)
}

// envFloat parses a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var defaults Defaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Store: StoreConfig{
			Path:     envString("FACE_STORE_PATH", "face_store.json"),
			Compress: envBool("FACE_STORE_COMPRESS", false),
		},
		Embedding: EmbeddingConfig{
			URL:     os.Getenv("EMBEDDING_URL"),
			Dim:     envDim("EMBEDDING_DIM", constants.DefaultEmbeddingDim),
			Timeout: time.Duration(envInt("EMBEDDING_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Match: MatchConfig{
			Tolerance: envFloat("MATCH_TOLERANCE", constants.DefaultTolerance),
			Index:     envString("MATCH_INDEX", "linear"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8000),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Import: ImportConfig{
			Driver:      os.Getenv("IMPORT_DRIVER"),
			DSN:         os.Getenv("IMPORT_DSN"),
			Query:       os.Getenv("IMPORT_QUERY"),
			Concurrency: envInt("IMPORT_CONCURRENCY", constants.DefaultImportConcurrency),
			RateLimit:   envFloat("IMPORT_RATE_LIMIT", 0),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Enabled: envBool("METRICS_ENABLED", true),
		},
		Defaults: defaults,
	}
}

// AllowedExtension reports whether filename has an accepted image extension.
func (c *Config) AllowedExtension(filename string) bool {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return false
	}
	ext := strings.ToLower(filename[dot+1:])
	for _, allowed := range c.Defaults.Upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
