// Package config loads settings from a TOML file and the environment.
// Precedence: environment (RESEARCH_MASTER_ prefix) over file over
// defaults. Provider credentials are additionally read from their
// conventional unprefixed variables (SEMANTIC_SCHOLAR_API_KEY and
// friends) so existing setups keep working.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Cache      CacheConfig       `mapstructure:"cache"`
	Downloads  DownloadsConfig   `mapstructure:"downloads"`
	RateLimits RateLimitsConfig  `mapstructure:"rate_limits"`
	Sources    SourcesConfig     `mapstructure:"sources"`
	APIKeys    map[string]string `mapstructure:"api_keys"`
}

type CacheConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Directory          string `mapstructure:"directory"`
	SearchTTLSeconds   int    `mapstructure:"search_ttl_seconds"`
	CitationTTLSeconds int    `mapstructure:"citation_ttl_seconds"`
	MaxSizeMB          int    `mapstructure:"max_size_mb"`
}

func (c CacheConfig) SearchTTL() time.Duration {
	return time.Duration(c.SearchTTLSeconds) * time.Second
}

func (c CacheConfig) CitationTTL() time.Duration {
	return time.Duration(c.CitationTTLSeconds) * time.Second
}

func (c CacheConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) << 20
}

type DownloadsConfig struct {
	DefaultPath      string `mapstructure:"default_path"`
	OrganizeBySource bool   `mapstructure:"organize_by_source"`
	MaxFileSizeMB    int    `mapstructure:"max_file_size_mb"`
	MaxReadChars     int    `mapstructure:"max_read_chars"`
}

func (d DownloadsConfig) MaxFileBytes() int64 {
	return int64(d.MaxFileSizeMB) << 20
}

type RateLimitsConfig struct {
	DefaultPerSecond float64            `mapstructure:"default_requests_per_second"`
	MaxConcurrent    int                `mapstructure:"max_concurrent_requests"`
	PerProvider      map[string]float64 `mapstructure:"per_provider"`
}

type SourcesConfig struct {
	Enabled              []string `mapstructure:"enabled_sources"`
	Disabled             []string `mapstructure:"disabled_sources"`
	GoogleScholarEnabled bool     `mapstructure:"google_scholar_enabled"`
}

const envPrefix = "RESEARCH_MASTER"

// Load reads the configuration. An explicit path must exist; otherwise
// the file is discovered (RESEARCH_MASTER_CONFIG, ./research-master.toml,
// <user config dir>/research-master/config.toml) and silently skipped
// when absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(envPrefix + "_CONFIG")
		explicit = path != ""
	}

	switch {
	case explicit:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	default:
		if _, err := os.Stat("research-master.toml"); err == nil {
			v.SetConfigFile("research-master.toml")
		} else {
			v.SetConfigName("config")
			if dir, err := os.UserConfigDir(); err == nil {
				v.AddConfigPath(filepath.Join(dir, "research-master"))
			}
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errorsAs(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnvOverrides()
	return &cfg, nil
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.search_ttl_seconds", 1800)
	v.SetDefault("cache.citation_ttl_seconds", 900)
	v.SetDefault("cache.max_size_mb", 500)
	v.SetDefault("downloads.organize_by_source", false)
	v.SetDefault("downloads.max_file_size_mb", 100)
	v.SetDefault("downloads.max_read_chars", 500000)
	v.SetDefault("rate_limits.default_requests_per_second", 5.0)
	v.SetDefault("rate_limits.max_concurrent_requests", 10)
	v.SetDefault("rate_limits.per_provider", map[string]float64{
		"semanticscholar": 1.0,
	})
	v.SetDefault("sources.google_scholar_enabled", false)
}

// providerKeyEnv maps provider ids to their conventional credential
// variables. For OpenAlex, Crossref and Unpaywall the credential is the
// polite-pool contact email rather than a key.
var providerKeyEnv = map[string]string{
	"semanticscholar": "SEMANTIC_SCHOLAR_API_KEY",
	"core":            "CORE_API_KEY",
	"springer":        "SPRINGER_API_KEY",
	"ieee":            "IEEE_API_KEY",
	"dimensions":      "DIMENSIONS_API_KEY",
	"scispace":        "SCISPACE_API_KEY",
	"pubmed":          "NCBI_API_KEY",
	"pmc":             "NCBI_API_KEY",
	"openalex":        "OPENALEX_EMAIL",
	"crossref":        "CROSSREF_EMAIL",
	"unpaywall":       "UNPAYWALL_EMAIL",
}

// APIKey resolves the credential for a provider: [api_keys] entry first,
// then the conventional environment variable.
func (c *Config) APIKey(provider string) string {
	provider = strings.ToLower(provider)
	if key, ok := c.APIKeys[provider]; ok && key != "" {
		return key
	}
	if env, ok := providerKeyEnv[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

// providerRateEnv maps provider ids to environment variables that
// override their request rate, kept for setups predating the
// [rate_limits] table.
var providerRateEnv = map[string]string{
	"semanticscholar": "SEMANTIC_SCHOLAR_RATE_LIMIT",
}

// RatePerSecond returns the outbound request rate for a provider.
func (c *Config) RatePerSecond(provider string) float64 {
	provider = strings.ToLower(provider)
	if env, ok := providerRateEnv[provider]; ok {
		if r, err := strconv.ParseFloat(os.Getenv(env), 64); err == nil && r > 0 {
			return r
		}
	}
	if r, ok := c.RateLimits.PerProvider[provider]; ok && r > 0 {
		return r
	}
	if c.RateLimits.DefaultPerSecond > 0 {
		return c.RateLimits.DefaultPerSecond
	}
	return 5.0
}

// MaxConcurrent bounds the provider fan-out.
func (c *Config) MaxConcurrent() int {
	if c.RateLimits.MaxConcurrent > 0 {
		return c.RateLimits.MaxConcurrent
	}
	return 10
}

// DownloadDir is where PDFs land unless a request overrides it.
func (c *Config) DownloadDir() string {
	if c.Downloads.DefaultPath != "" {
		return c.Downloads.DefaultPath
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads", "research-master")
	}
	return filepath.Join(os.TempDir(), "research-master", "downloads")
}

func (c *Config) applyEnvOverrides() {
	if envBool("GOOGLE_SCHOLAR_ENABLED") {
		c.Sources.GoogleScholarEnabled = true
	}
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// RecognizedEnvVars lists every environment variable the program reads,
// for the --env flag.
func RecognizedEnvVars() []string {
	vars := []string{
		envPrefix + "_CONFIG",
		envPrefix + "_CACHE_ENABLED",
		envPrefix + "_CACHE_DIRECTORY",
		envPrefix + "_CACHE_SEARCH_TTL_SECONDS",
		envPrefix + "_CACHE_CITATION_TTL_SECONDS",
		envPrefix + "_CACHE_MAX_SIZE_MB",
		envPrefix + "_DOWNLOADS_DEFAULT_PATH",
		envPrefix + "_DOWNLOADS_ORGANIZE_BY_SOURCE",
		envPrefix + "_DOWNLOADS_MAX_FILE_SIZE_MB",
		envPrefix + "_DOWNLOADS_MAX_READ_CHARS",
		envPrefix + "_RATE_LIMITS_DEFAULT_REQUESTS_PER_SECOND",
		envPrefix + "_RATE_LIMITS_MAX_CONCURRENT_REQUESTS",
		envPrefix + "_SOURCES_ENABLED_SOURCES",
		envPrefix + "_SOURCES_DISABLED_SOURCES",
		envPrefix + "_SOURCES_GOOGLE_SCHOLAR_ENABLED",
		"GOOGLE_SCHOLAR_ENABLED",
	}
	seen := make(map[string]bool)
	for _, env := range providerKeyEnv {
		if !seen[env] {
			vars = append(vars, env)
			seen[env] = true
		}
	}
	for _, env := range providerRateEnv {
		if !seen[env] {
			vars = append(vars, env)
			seen[env] = true
		}
	}
	return vars
}

func errorsAs(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
