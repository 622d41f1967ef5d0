package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sha1n/gitsearch-mcp-server/internal/gitrepos"
)

// EnvPrefix is the prefix of every environment variable read by the server.
const EnvPrefix = "GITSEARCH_MCP"

// IndexSettings configuration of the index and its rebuild cycles
type IndexSettings struct {
	DataDir        string        `mapstructure:"data_dir"`
	Catalog        string        `mapstructure:"catalog"`
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	UpdateOnStart  bool          `mapstructure:"update_on_start"`
	Parallelism    int           `mapstructure:"parallelism"`
	BatchThreshold int           `mapstructure:"batch_threshold"`
	LinesCacheSize int           `mapstructure:"lines_cache_size"`
	FilesCacheSize int           `mapstructure:"files_cache_size"`
	MaxFileSize    int64         `mapstructure:"max_file_size"`
	CloneDepth     int           `mapstructure:"clone_depth"`
	Exclude        []string      `mapstructure:"exclude"`
}

// SearchSettings configuration of the query side
type SearchSettings struct {
	MaxResults      int `mapstructure:"max_results"`
	SnippetRadius   int `mapstructure:"snippet_radius"`
	FilterCacheSize int `mapstructure:"filter_cache_size"`
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Index     IndexSettings  `mapstructure:"index"`
	Search    SearchSettings `mapstructure:"search"`
}

// flagBindings maps settings keys to CLI flag names.
var flagBindings = map[string]string{
	"transport":              "transport",
	"host":                   "host",
	"port":                   "port",
	"index.data_dir":         "data-dir",
	"index.catalog":          "catalog",
	"index.update_interval":  "update-interval",
	"index.update_on_start":  "update-on-start",
	"index.parallelism":      "parallelism",
	"index.batch_threshold":  "batch-threshold",
	"index.lines_cache_size": "lines-cache-size",
	"index.files_cache_size": "files-cache-size",
	"index.max_file_size":    "max-file-size",
	"index.clone_depth":      "clone-depth",
	"index.exclude":          "exclude",
	"search.max_results":     "max-results",
	"search.snippet_radius":  "snippet-radius",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	v.SetDefault("index.data_dir", defaultDataDir())
	v.SetDefault("index.catalog", "")
	v.SetDefault("index.update_interval", 30*time.Minute)
	v.SetDefault("index.update_on_start", true)
	v.SetDefault("index.parallelism", runtime.NumCPU())
	v.SetDefault("index.batch_threshold", 20)
	v.SetDefault("index.lines_cache_size", 2_000_000)
	v.SetDefault("index.files_cache_size", 200_000)
	v.SetDefault("index.max_file_size", int64(1024*1024)) // 1MB
	v.SetDefault("index.clone_depth", 0)
	v.SetDefault("index.exclude", gitrepos.DefaultExcludePatterns)

	v.SetDefault("search.max_results", 100)
	v.SetDefault("search.snippet_radius", 3)
	v.SetDefault("search.filter_cache_size", 256)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind nested keys explicitly, AutomaticEnv alone does not see them on Unmarshal
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, envName(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Environment lists arrive as a single comma separated string
	if raw := os.Getenv(envName("index.exclude")); raw != "" {
		if len(settings.Index.Exclude) <= 1 {
			settings.Index.Exclude = strings.Split(raw, ",")
		}
	}
	for i := range settings.Index.Exclude {
		settings.Index.Exclude[i] = strings.TrimSpace(settings.Index.Exclude[i])
	}
	settings.Index.Exclude = filterEmptyStrings(settings.Index.Exclude)

	settings.Index.DataDir = expandHomeDir(settings.Index.DataDir)
	if settings.Index.Catalog == "" {
		settings.Index.Catalog = filepath.Join(settings.Index.DataDir, "repositories.yaml")
	}
	settings.Index.Catalog = expandHomeDir(settings.Index.Catalog)

	return &settings, nil
}

// envName returns the environment variable read for a settings key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// defaultDataDir returns the default data directory
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gitsearch-mcp"
	}
	return filepath.Join(home, ".gitsearch-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for invalid configurations.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	if s.Transport == "sse" && (s.Port <= 0 || s.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", s.Port)
	}

	if err := validateIndexSettings(&s.Index); err != nil {
		return err
	}
	return validateSearchSettings(&s.Search)
}

// validateIndexSettings validates the index configuration
func validateIndexSettings(ix *IndexSettings) error {
	if ix.DataDir == "" {
		return errors.New("data-dir cannot be empty")
	}
	if ix.UpdateInterval < 0 {
		return errors.New("update-interval cannot be negative")
	}
	if ix.Parallelism <= 0 {
		return errors.New("parallelism must be positive")
	}
	if ix.BatchThreshold <= 0 {
		return errors.New("batch-threshold must be positive")
	}
	if ix.LinesCacheSize <= 0 {
		return errors.New("lines-cache-size must be positive")
	}
	if ix.FilesCacheSize <= 0 {
		return errors.New("files-cache-size must be positive")
	}
	if ix.MaxFileSize <= 0 {
		return errors.New("max-file-size must be positive")
	}
	if ix.CloneDepth < 0 {
		return errors.New("clone-depth cannot be negative")
	}
	return nil
}

// validateSearchSettings validates the search configuration
func validateSearchSettings(s *SearchSettings) error {
	if s.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if s.SnippetRadius <= 0 {
		return errors.New("snippet-radius must be positive")
	}
	if s.FilterCacheSize <= 0 {
		return errors.New("filter-cache-size must be positive")
	}
	return nil
}
