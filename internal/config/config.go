// Package config defines the noterag configuration record.
//
// Configuration is resolved once at startup: hardcoded defaults, then the
// YAML config file, then environment variable overrides. The resulting
// Config is treated as immutable and passed into every component
// constructor; components never read environment variables themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete noterag configuration.
type Config struct {
	Notes     NotesConfig     `yaml:"notes" json:"notes"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Indexing  IndexingConfig  `yaml:"indexing" json:"indexing"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`

	// APIKey authenticates against the embedding and chat endpoints.
	// Sourced from ARK_API_KEY only; never read from the config file.
	APIKey string `yaml:"-" json:"-"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NotesConfig configures the note corpus location.
type NotesConfig struct {
	// Directory is the root of the Markdown note corpus.
	Directory string `yaml:"directory" json:"directory"`
	// ExcludePatterns skips matching paths during the scan.
	// Patterns of the form "*.ext" match by file extension; anything
	// else is treated as a glob against the relative path.
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
}

// EmbeddingConfig configures the remote embedding endpoint.
type EmbeddingConfig struct {
	APIBase       string `yaml:"api_base" json:"api_base"`
	Model         string `yaml:"model" json:"model"`
	BatchSize     int    `yaml:"batch_size" json:"batch_size"`
	Dimension     int    `yaml:"dimension" json:"dimension"`
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent"`
}

// LLMConfig configures the remote chat completion endpoint.
type LLMConfig struct {
	APIBase     string  `yaml:"api_base" json:"api_base"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// TimeDecayConfig configures recency-based score adjustment.
type TimeDecayConfig struct {
	RecentMonths int     `yaml:"recent_months" json:"recent_months"`
	RecentBoost  float64 `yaml:"recent_boost" json:"recent_boost"`
	OldYears     int     `yaml:"old_years" json:"old_years"`
	OldPenalty   float64 `yaml:"old_penalty" json:"old_penalty"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	// LocalRatio is the default share of the result budget that goes
	// to local notes (0-1); the remainder goes to web search.
	LocalRatio          float64         `yaml:"local_ratio" json:"local_ratio"`
	TimeDecay           TimeDecayConfig `yaml:"time_decay" json:"time_decay"`
	TopKLocal           int             `yaml:"top_k_local" json:"top_k_local"`
	TopKWeb             int             `yaml:"top_k_web" json:"top_k_web"`
	SimilarityThreshold float64         `yaml:"similarity_threshold" json:"similarity_threshold"`
	// ContextBefore/ContextAfter extend each hit chunk with its
	// neighbours from the same document.
	ContextBefore int `yaml:"context_before" json:"context_before"`
	ContextAfter  int `yaml:"context_after" json:"context_after"`
}

// IndexingConfig configures the chunking pipeline.
type IndexingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
	// UpdateInterval is the suggested seconds between scheduled
	// rebuilds; 0 disables scheduling.
	UpdateInterval int `yaml:"update_interval" json:"update_interval"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" json:"port"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// StorageConfig configures on-disk state locations.
// Relative paths are resolved against DataDir.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir" json:"data_dir"`
	MetadataDB  string `yaml:"metadata_db" json:"metadata_db"`
	VectorIndex string `yaml:"vector_index" json:"vector_index"`
	CacheDB     string `yaml:"cache_db" json:"cache_db"`
}

// defaultExcludePatterns are always excluded unless overridden.
var defaultExcludePatterns = []string{
	".git",
	".obsidian",
	".trash",
	"logseq/bak",
	"*.excalidraw.md",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Notes: NotesConfig{
			Directory:       "notes",
			ExcludePatterns: defaultExcludePatterns,
		},
		Embedding: EmbeddingConfig{
			APIBase:       "https://ark.cn-beijing.volces.com/api/v3",
			Model:         "doubao-embedding-text-240715",
			BatchSize:     16,
			Dimension:     1536,
			MaxConcurrent: 6,
		},
		LLM: LLMConfig{
			APIBase:     "https://ark.cn-beijing.volces.com/api/v3",
			Model:       "doubao-seed-1-6-250615",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Search: SearchConfig{
			LocalRatio: 0.8,
			TimeDecay: TimeDecayConfig{
				RecentMonths: 3,
				RecentBoost:  1.5,
				OldYears:     1,
				OldPenalty:   0.8,
			},
			TopKLocal:           20,
			TopKWeb:             5,
			SimilarityThreshold: 0.3,
			ContextBefore:       3,
			ContextAfter:        2,
		},
		Indexing: IndexingConfig{
			ChunkSize:      300,
			ChunkOverlap:   80,
			MinChunkSize:   100,
			UpdateInterval: 0,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:     "data",
			MetadataDB:  "metadata.db",
			VectorIndex: "vector.index",
			CacheDB:     "embedding_cache.db",
		},
		LogLevel: "info",
	}
}

// Load builds the effective configuration: defaults, then the YAML file
// at path (skipped if path is empty or the file does not exist), then
// environment overrides. The result is validated before return.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadYAML merges the YAML file at path into the config.
// Fields absent from the file keep their current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variables on top of file config.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("NOTES_DIRECTORY"); dir != "" {
		c.Notes.Directory = dir
	}
	if key := os.Getenv("ARK_API_KEY"); key != "" {
		c.APIKey = key
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("ARK_API_KEY is not set")
	}
	if c.Notes.Directory == "" {
		return fmt.Errorf("notes.directory must not be empty")
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.MaxConcurrent <= 0 {
		return fmt.Errorf("embedding.max_concurrent must be positive, got %d", c.Embedding.MaxConcurrent)
	}
	if c.Search.LocalRatio < 0 || c.Search.LocalRatio > 1 {
		return fmt.Errorf("search.local_ratio must be in [0,1], got %f", c.Search.LocalRatio)
	}
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.MinChunkSize > c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.min_chunk_size (%d) must not exceed chunk_size (%d)",
			c.Indexing.MinChunkSize, c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Indexing.ChunkOverlap, c.Indexing.ChunkSize)
	}
	return nil
}

// MetadataDBPath returns the resolved path of the metadata database.
func (c *Config) MetadataDBPath() string {
	return c.resolve(c.Storage.MetadataDB)
}

// VectorIndexPath returns the resolved path of the vector index file.
func (c *Config) VectorIndexPath() string {
	return c.resolve(c.Storage.VectorIndex)
}

// CacheDBPath returns the resolved path of the embedding cache database.
func (c *Config) CacheDBPath() string {
	return c.resolve(c.Storage.CacheDB)
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.Storage.DataDir, 0o755)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}
