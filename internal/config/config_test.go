package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "research-master.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.SearchTTL())
	assert.Equal(t, 15*time.Minute, cfg.Cache.CitationTTL())
	assert.Equal(t, int64(500<<20), cfg.Cache.MaxSizeBytes())
	assert.Equal(t, int64(100<<20), cfg.Downloads.MaxFileBytes())
	assert.Equal(t, 500000, cfg.Downloads.MaxReadChars)
	assert.False(t, cfg.Downloads.OrganizeBySource)
	assert.False(t, cfg.Sources.GoogleScholarEnabled)
	assert.Equal(t, 1.0, cfg.RateLimits.PerProvider["semanticscholar"])
	assert.Equal(t, 5.0, cfg.RateLimits.DefaultPerSecond)
	assert.Equal(t, 10, cfg.MaxConcurrent())
}

func TestLoadReadsFile(t *testing.T) {
	path := writeConfig(t, `
[cache]
enabled = true
directory = "/tmp/rm-cache"
search_ttl_seconds = 60

[downloads]
default_path = "/tmp/rm-downloads"
organize_by_source = true

[rate_limits]
default_requests_per_second = 2.0
max_concurrent_requests = 4

[rate_limits.per_provider]
crossref = 0.5

[sources]
disabled_sources = ["googlescholar"]

[api_keys]
core = "file-key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "/tmp/rm-cache", cfg.Cache.Directory)
	assert.Equal(t, time.Minute, cfg.Cache.SearchTTL())
	// Untouched keys keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.Cache.CitationTTL())

	assert.Equal(t, "/tmp/rm-downloads", cfg.DownloadDir())
	assert.True(t, cfg.Downloads.OrganizeBySource)
	assert.Equal(t, 0.5, cfg.RatePerSecond("crossref"))
	assert.Equal(t, 2.0, cfg.RatePerSecond("somethingelse"))
	assert.Equal(t, 4, cfg.MaxConcurrent())
	assert.Equal(t, "file-key", cfg.APIKey("core"))
	assert.Contains(t, cfg.Sources.Disabled, "googlescholar")
}

func TestLoadExplicitMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadHonorsConfigEnvVar(t *testing.T) {
	path := writeConfig(t, "[cache]\nenabled = true\n")
	t.Setenv("RESEARCH_MASTER_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "[cache]\nenabled = false\n")
	t.Setenv("RESEARCH_MASTER_CACHE_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Cache.Enabled)
}

func TestGoogleScholarEnvToggle(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("GOOGLE_SCHOLAR_ENABLED", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Sources.GoogleScholarEnabled)
}

func TestAPIKeyPrecedence(t *testing.T) {
	t.Setenv("CORE_API_KEY", "env-key")

	cfg := Default()
	cfg.APIKeys = map[string]string{"core": "file-key"}
	assert.Equal(t, "file-key", cfg.APIKey("core"))
	assert.Equal(t, "file-key", cfg.APIKey("CORE"))

	// An empty file entry falls through to the conventional variable.
	cfg.APIKeys["core"] = ""
	assert.Equal(t, "env-key", cfg.APIKey("core"))

	assert.Equal(t, "", cfg.APIKey("no-such-provider"))
}

func TestAPIKeySharedNCBIVariable(t *testing.T) {
	t.Setenv("NCBI_API_KEY", "ncbi-key")
	cfg := Default()
	assert.Equal(t, "ncbi-key", cfg.APIKey("pubmed"))
	assert.Equal(t, "ncbi-key", cfg.APIKey("pmc"))
}

func TestRatePerSecond(t *testing.T) {
	cfg := Default()
	cfg.RateLimits.PerProvider["crossref"] = 0.5

	t.Setenv("SEMANTIC_SCHOLAR_RATE_LIMIT", "")
	assert.Equal(t, 0.5, cfg.RatePerSecond("crossref"))
	assert.Equal(t, 1.0, cfg.RatePerSecond("semanticscholar"))
	assert.Equal(t, 5.0, cfg.RatePerSecond("arxiv"))

	t.Setenv("SEMANTIC_SCHOLAR_RATE_LIMIT", "0.25")
	assert.Equal(t, 0.25, cfg.RatePerSecond("semanticscholar"))

	// Garbage in the variable is ignored, not fatal.
	t.Setenv("SEMANTIC_SCHOLAR_RATE_LIMIT", "fast")
	assert.Equal(t, 1.0, cfg.RatePerSecond("semanticscholar"))

	// A zero-valued config still yields a usable rate.
	empty := &Config{}
	assert.Equal(t, 5.0, empty.RatePerSecond("arxiv"))
}

func TestRecognizedEnvVars(t *testing.T) {
	vars := RecognizedEnvVars()

	assert.Contains(t, vars, "RESEARCH_MASTER_CONFIG")
	assert.Contains(t, vars, "SEMANTIC_SCHOLAR_API_KEY")
	assert.Contains(t, vars, "SEMANTIC_SCHOLAR_RATE_LIMIT")
	assert.Contains(t, vars, "GOOGLE_SCHOLAR_ENABLED")

	// pubmed and pmc share NCBI_API_KEY; it must be listed once.
	n := 0
	for _, v := range vars {
		if v == "NCBI_API_KEY" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}
