package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultIndexDirName is the per-project directory holding the vector
// store, catalog database, and lock file.
const DefaultIndexDirName = ".cidx"

// Config represents the complete cidx configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig configures the line-window chunker.
type ChunkingConfig struct {
	// MaxLines is the chunk window size in lines.
	MaxLines int `yaml:"max_lines" json:"max_lines"`

	// OverlapLines is the number of trailing lines repeated at the start
	// of the next chunk. Must be smaller than MaxLines.
	OverlapLines int `yaml:"overlap_lines" json:"overlap_lines"`
}

// EmbeddingsConfig configures the embedding provider.
// Threads is the configured tier of the vectorization thread count:
// a CLI override beats it, and a zero value falls through to the
// provider default.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	Threads    int    `yaml:"threads" json:"threads"`

	// Ollama settings (used when provider is "ollama")
	OllamaHost     string `yaml:"ollama_host" json:"ollama_host"`
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles      int `yaml:"max_files" json:"max_files"`
	FileWorkers   int `yaml:"file_workers" json:"file_workers"`
	CacheSize     int `yaml:"cache_size" json:"cache_size"`
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Metric is the distance metric: "cos", "l2", or "dot".
	Metric string `yaml:"metric" json:"metric"`
	// M is the HNSW maximum neighbor count per node.
	M int `yaml:"m" json:"m"`
	// EfSearch is the HNSW search candidate list size.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
	// Dir is the index directory, relative to the project root unless
	// absolute. Empty means DefaultIndexDirName.
	Dir string `yaml:"dir" json:"dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/.cidx/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunking: ChunkingConfig{
			MaxLines:     120,
			OverlapLines: 20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "", // Empty selects the offline static provider
			Model:          "",
			Dimensions:     0, // Auto-detect from embedder
			BatchSize:      32,
			Threads:        0,  // Unset - fall through to provider default
			OllamaHost:     "", // Empty uses default http://localhost:11434
			RequestTimeout: "60s",
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			FileWorkers:   runtime.NumCPU(),
			CacheSize:     1000,
			MaxFileSizeKB: 1024,
		},
		Store: StoreConfig{
			Metric:   "cos",
			M:        16,
			EfSearch: 20,
			Dir:      DefaultIndexDirName,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "", // Empty uses the default log path
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/cidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/cidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback - should rarely happen
		return filepath.Join(os.TempDir(), ".config", "cidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "cidx", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/cidx/config.yaml)
//  3. Project config (.cidx.yaml in project root)
//  4. Environment variables (CIDX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .cidx.yaml or .cidx.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".cidx.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".cidx.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Chunking
	if other.Chunking.MaxLines != 0 {
		c.Chunking.MaxLines = other.Chunking.MaxLines
	}
	if other.Chunking.OverlapLines != 0 {
		c.Chunking.OverlapLines = other.Chunking.OverlapLines
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Threads != 0 {
		c.Embeddings.Threads = other.Embeddings.Threads
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.RequestTimeout != "" {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}

	// Performance
	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.FileWorkers != 0 {
		c.Performance.FileWorkers = other.Performance.FileWorkers
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.MaxFileSizeKB != 0 {
		c.Performance.MaxFileSizeKB = other.Performance.MaxFileSizeKB
	}

	// Store
	if other.Store.Metric != "" {
		c.Store.Metric = other.Store.Metric
	}
	if other.Store.M != 0 {
		c.Store.M = other.Store.M
	}
	if other.Store.EfSearch != 0 {
		c.Store.EfSearch = other.Store.EfSearch
	}
	if other.Store.Dir != "" {
		c.Store.Dir = other.Store.Dir
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies CIDX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CIDX_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CIDX_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CIDX_EMBED_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Threads = n
		}
	}
	if v := os.Getenv("CIDX_EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("CIDX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CIDX_FILE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.FileWorkers = n
		}
	}
	if v := os.Getenv("CIDX_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.MaxFiles = n
		}
	}
	if v := os.Getenv("CIDX_STORE_METRIC"); v != "" {
		c.Store.Metric = v
	}
	if v := os.Getenv("CIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ConfiguredThreads returns the configured vectorization thread count,
// or nil when the configuration leaves it unset.
func (c *Config) ConfiguredThreads() *int {
	if c.Embeddings.Threads <= 0 {
		return nil
	}
	n := c.Embeddings.Threads
	return &n
}

// ParsedRequestTimeout parses the embedding request timeout, falling back
// to the default when unset or malformed.
func (e *EmbeddingsConfig) ParsedRequestTimeout() time.Duration {
	const fallback = 60 * time.Second
	if e.RequestTimeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(e.RequestTimeout)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IndexDir resolves the index directory for the project rooted at root.
func (c *Config) IndexDir(root string) string {
	dir := c.Store.Dir
	if dir == "" {
		dir = DefaultIndexDirName
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(root, dir)
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .cidx.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".cidx.yaml")) ||
			fileExists(filepath.Join(currentDir, ".cidx.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.MaxLines <= 0 {
		return fmt.Errorf("chunking.max_lines must be positive, got %d", c.Chunking.MaxLines)
	}
	if c.Chunking.OverlapLines < 0 {
		return fmt.Errorf("chunking.overlap_lines must be non-negative, got %d", c.Chunking.OverlapLines)
	}
	if c.Chunking.OverlapLines >= c.Chunking.MaxLines {
		return fmt.Errorf("chunking.overlap_lines must be smaller than max_lines, got %d >= %d",
			c.Chunking.OverlapLines, c.Chunking.MaxLines)
	}

	if c.Embeddings.Provider != "" { // Empty string selects the static provider
		validProviders := map[string]bool{"static": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', or empty, got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.Threads < 0 {
		return fmt.Errorf("embeddings.threads must be non-negative, got %d", c.Embeddings.Threads)
	}
	if c.Embeddings.BatchSize < 0 {
		return fmt.Errorf("embeddings.batch_size must be non-negative, got %d", c.Embeddings.BatchSize)
	}

	if c.Performance.FileWorkers < 0 {
		return fmt.Errorf("performance.file_workers must be non-negative, got %d", c.Performance.FileWorkers)
	}
	if c.Performance.MaxFiles < 0 {
		return fmt.Errorf("performance.max_files must be non-negative, got %d", c.Performance.MaxFiles)
	}

	validMetrics := map[string]bool{"cos": true, "l2": true, "dot": true}
	if !validMetrics[strings.ToLower(c.Store.Metric)] {
		return fmt.Errorf("store.metric must be 'cos', 'l2', or 'dot', got %s", c.Store.Metric)
	}
	if c.Store.M <= 0 {
		return fmt.Errorf("store.m must be positive, got %d", c.Store.M)
	}
	if c.Store.EfSearch <= 0 {
		return fmt.Errorf("store.ef_search must be positive, got %d", c.Store.EfSearch)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
