package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: isolate from any config.yaml on the machine
func isolate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wd, wdErr := os.Getwd()
	if wdErr != nil {
		t.Fatal(wdErr)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoad_Defaults verifies a missing config file falls back to defaults
func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Storage.OutputDir)
	assert.Equal(t, filepath.Join("data", "state.db"), cfg.Storage.StateDSN)
	assert.Equal(t, ModeHTTP, cfg.Fetcher.Mode)
	assert.True(t, cfg.Fetcher.Headless)
	assert.Equal(t, 30, cfg.Crawl.BatchSize)
	assert.Equal(t, time.Second, cfg.Crawl.PageDelay)
	assert.Equal(t, 3*time.Second, cfg.Crawl.Cooldown)
	assert.Equal(t, 5, cfg.Crawl.CooldownEvery)
	assert.Equal(t, 300, cfg.Crawl.Filter.MinContentLength)
	assert.Equal(t, []string{"EP."}, cfg.Crawl.Filter.TitlePrefixes)
	assert.Equal(t, 180*24*time.Hour, cfg.Crawl.Filter.MaxGap)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.API.Addr)
}

// TestLoad_File verifies values from an explicit file override defaults
func TestLoad_File(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
storage:
  output_dir: /srv/archive
fetcher:
  mode: browser
  random_user_agent: true
crawl:
  batch_size: 10
  page_delay: 250ms
  filter:
    min_content_length: 100
    max_gap: 720h
logging:
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/archive", cfg.Storage.OutputDir)
	assert.Equal(t, filepath.Join("/srv/archive", "state.db"), cfg.Storage.StateDSN)
	assert.Equal(t, ModeBrowser, cfg.Fetcher.Mode)
	assert.True(t, cfg.Fetcher.RandomUserAgent)
	assert.Equal(t, 10, cfg.Crawl.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.PageDelay)
	assert.Equal(t, 100, cfg.Crawl.Filter.MinContentLength)
	assert.Equal(t, 720*time.Hour, cfg.Crawl.Filter.MaxGap)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 3*time.Second, cfg.Crawl.Cooldown, "unset keys keep defaults")
}

// TestLoad_SearchPath verifies config.yaml is found in the working directory
func TestLoad_SearchPath(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("config.yaml", []byte("api:\n  addr: \":9999\"\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.API.Addr)
}

// TestLoad_Env verifies environment variables override the file
func TestLoad_Env(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "storage:\n  output_dir: from-file\n")
	t.Setenv("NEWSARCHIVE_STORAGE_OUTPUT_DIR", "from-env")
	t.Setenv("NEWSARCHIVE_CRAWL_BATCH_SIZE", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Storage.OutputDir)
	assert.Equal(t, 7, cfg.Crawl.BatchSize)
}

// TestLoad_MissingExplicitFile verifies an explicit path must exist
func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

// TestLoad_InvalidYAML verifies parse errors surface
func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "storage: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

// TestNew_FlagOverride verifies values set after New win at Decode
func TestNew_FlagOverride(t *testing.T) {
	isolate(t)

	v, err := New("")
	require.NoError(t, err)
	v.Set("logging.level", "debug")

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

// TestValidate verifies range and enum checks
func TestValidate(t *testing.T) {
	isolate(t)

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad mode", func(c *Config) { c.Fetcher.Mode = "curl" }, "fetcher.mode"},
		{"zero batch", func(c *Config) { c.Crawl.BatchSize = 0 }, "crawl.batch_size"},
		{"negative delay", func(c *Config) { c.Crawl.PageDelay = -time.Second }, "crawl.page_delay"},
		{"no drain attempts", func(c *Config) { c.Crawl.DrainAttempts = 0 }, "crawl.drain_attempts"},
		{"zero min length", func(c *Config) { c.Crawl.Filter.MinContentLength = 0 }, "crawl.filter.min_content_length"},
		{"zero gap", func(c *Config) { c.Crawl.Filter.MaxGap = 0 }, "crawl.filter.max_gap"},
		{"no output dir", func(c *Config) { c.Storage.OutputDir = "" }, "storage.output_dir"},
		{"no state dsn", func(c *Config) { c.Storage.StateDSN = "" }, "storage.state_dsn"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
