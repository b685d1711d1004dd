// Package config loads ctxindex settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when the loaded configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for both binaries.
type Config struct {
	Content   ContentConfig   `yaml:"content"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	Keyword   KeywordConfig   `yaml:"keyword"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"github"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ContentConfig locates the files to ingest and the tracking store.
type ContentConfig struct {
	Root         string `yaml:"root"`
	TrackingFile string `yaml:"tracking_file"`
}

// QdrantConfig holds vector store connection settings.
type QdrantConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	APIKey      string `yaml:"api_key"`
	UseTLS      bool   `yaml:"use_tls"`
	Collection  string `yaml:"collection"`
	UploadBatch int    `yaml:"upload_batch"`
}

// KeywordConfig locates the Bleve index. An empty path keeps it in memory.
type KeywordConfig struct {
	IndexPath string `yaml:"index_path"`
}

// EmbeddingConfig holds provider and batching settings.
type EmbeddingConfig struct {
	Model             string        `yaml:"model"`
	Dimension         int           `yaml:"dimension"`
	BaseURL           string        `yaml:"base_url"`
	BatchSize         int           `yaml:"batch_size"`
	BatchDelay        time.Duration `yaml:"batch_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// ChunkingConfig holds chunker limits.
type ChunkingConfig struct {
	MaxSize      int `yaml:"max_size"`
	OverlapWords int `yaml:"overlap_words"`
	MinSize      int `yaml:"min_size"`
}

// SearchConfig holds query defaults and hybrid weights.
type SearchConfig struct {
	DefaultMode    string  `yaml:"default_mode"`
	DefaultTopK    int     `yaml:"default_top_k"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
}

// MetadataConfig enables LLM category inference.
type MetadataConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Model      string   `yaml:"model"`
	Categories []string `yaml:"categories"`
}

// ServerConfig holds MCP server settings.
type ServerConfig struct {
	Port string `yaml:"port"`
	// HTTP serves MCP over streamable HTTP instead of stdio.
	HTTP bool `yaml:"http"`
	// Watch makes the server ingest the content root itself and keep it
	// current. The server holds the keyword index lock, so CLI ingestion
	// cannot run beside it.
	Watch bool `yaml:"watch"`
}

// GitHubConfig names a repository directory to mirror into the content root.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Path  string `yaml:"path"`
	Ref   string `yaml:"ref"`
	Token string `yaml:"-"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads the YAML file at path when path is non-empty, applies
// defaults, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalid, err)
		}
	}

	ApplyDefaults(&cfg)
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if path != "" {
		configDir := filepath.Dir(path)
		cfg.Content.Root = expandPath(cfg.Content.Root, configDir)
		cfg.Content.TrackingFile = expandPath(cfg.Content.TrackingFile, configDir)
		cfg.Keyword.IndexPath = expandPath(cfg.Keyword.IndexPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config) error {
	setString(&cfg.Content.Root, "CTXINDEX_CONTENT_ROOT")
	setString(&cfg.Content.TrackingFile, "CTXINDEX_TRACKING_FILE")
	setString(&cfg.Keyword.IndexPath, "CTXINDEX_KEYWORD_INDEX")
	setString(&cfg.Qdrant.Host, "QDRANT_HOST")
	setString(&cfg.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&cfg.Qdrant.Collection, "QDRANT_COLLECTION")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	setString(&cfg.Embedding.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")

	if err := setInt(&cfg.Qdrant.Port, "QDRANT_PORT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Embedding.Dimension, "EMBEDDING_DIMENSION"); err != nil {
		return err
	}
	if v := os.Getenv("SERVER_MODE"); v != "" {
		cfg.Server.HTTP = v == "true" || v == "http"
	}
	if v := os.Getenv("CTXINDEX_SERVER_WATCH"); v != "" {
		cfg.Server.Watch = v == "true" || v == "1"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer, got %q", ErrInvalid, key, v)
	}
	*dst = i
	return nil
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("qdrant.port out of range: %d", c.Qdrant.Port))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive: %d", c.Embedding.Dimension))
	}
	if c.Chunking.MinSize >= c.Chunking.MaxSize {
		errs = append(errs, fmt.Errorf("chunking.min_size (%d) must be below max_size (%d)", c.Chunking.MinSize, c.Chunking.MaxSize))
	}
	if c.Search.KeywordWeight < 0 || c.Search.SemanticWeight < 0 || c.Search.KeywordWeight+c.Search.SemanticWeight == 0 {
		errs = append(errs, errors.New("search weights must be non-negative and not both zero"))
	}
	switch strings.ToLower(c.Search.DefaultMode) {
	case "keyword", "vector", "hybrid":
	default:
		errs = append(errs, fmt.Errorf("search.default_mode must be keyword, vector, or hybrid: %q", c.Search.DefaultMode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// expandPath resolves paths relative to the config file directory.
func expandPath(path, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
