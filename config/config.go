package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pevans/newsarchive/crawl"
	"github.com/pevans/newsarchive/logging"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. NEWSARCHIVE_STORAGE_OUTPUT_DIR.
const EnvPrefix = "NEWSARCHIVE"

// Fetcher modes.
const (
	ModeHTTP    = "http"
	ModeBrowser = "browser"
)

// StorageConfig locates the archive and the state database. An empty
// StateDSN places state.db inside OutputDir.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	StateDSN  string `mapstructure:"state_dsn"`
}

// SourcesConfig points at an optional sources file. Empty means the built-in
// registry.
type SourcesConfig struct {
	File string `mapstructure:"file"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Mode            string `mapstructure:"mode"`
	UserAgent       string `mapstructure:"user_agent"`
	RandomUserAgent bool   `mapstructure:"random_user_agent"`
	Headless        bool   `mapstructure:"headless"`
	RemoteURL       string `mapstructure:"remote_url"`
	BinPath         string `mapstructure:"bin_path"`
	Retries         uint64 `mapstructure:"retries"`
}

// APIConfig configures the status server.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config is the full runtime configuration.
type Config struct {
	Storage StorageConfig  `mapstructure:"storage"`
	Sources SourcesConfig  `mapstructure:"sources"`
	Fetcher FetcherConfig  `mapstructure:"fetcher"`
	Crawl   crawl.Settings `mapstructure:"crawl"`
	Logging logging.Config `mapstructure:"logging"`
	API     APIConfig      `mapstructure:"api"`
}

func setDefaults(v *viper.Viper) {
	settings := crawl.DefaultSettings()

	v.SetDefault("storage.output_dir", "data")
	v.SetDefault("storage.state_dsn", "")
	v.SetDefault("sources.file", "")

	v.SetDefault("fetcher.mode", ModeHTTP)
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.random_user_agent", false)
	v.SetDefault("fetcher.headless", true)
	v.SetDefault("fetcher.remote_url", "")
	v.SetDefault("fetcher.bin_path", "")
	v.SetDefault("fetcher.retries", 2)

	v.SetDefault("crawl.batch_size", settings.BatchSize)
	v.SetDefault("crawl.page_delay", settings.PageDelay)
	v.SetDefault("crawl.cooldown", settings.Cooldown)
	v.SetDefault("crawl.cooldown_every", settings.CooldownEvery)
	v.SetDefault("crawl.drain_attempts", settings.DrainAttempts)
	v.SetDefault("crawl.drain_backoff", settings.DrainBackoff)
	v.SetDefault("crawl.filter.title_prefixes", settings.Filter.TitlePrefixes)
	v.SetDefault("crawl.filter.link_patterns", settings.Filter.LinkPatterns)
	v.SetDefault("crawl.filter.min_content_length", settings.Filter.MinContentLength)
	v.SetDefault("crawl.filter.boilerplate_phrases", settings.Filter.BoilerplatePhrases)
	v.SetDefault("crawl.filter.max_gap", settings.Filter.MaxGap)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("api.addr", ":8080")
}

// New returns a viper instance carrying defaults, environment overrides and
// the config file. An explicit cfgFile must exist; otherwise config.yaml is
// looked up in the working directory and ~/.newsarchive, and a missing file
// is not an error. Callers may bind flags before calling Decode.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".newsarchive"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// Decode unmarshals v into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Storage.StateDSN == "" && cfg.Storage.OutputDir != "" {
		cfg.Storage.StateDSN = filepath.Join(cfg.Storage.OutputDir, "state.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New followed by Decode.
func Load(cfgFile string) (*Config, error) {
	v, err := New(cfgFile)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.output_dir is required"))
	}
	if c.Storage.StateDSN == "" {
		errs = append(errs, errors.New("storage.state_dsn is required"))
	}

	switch c.Fetcher.Mode {
	case ModeHTTP, ModeBrowser:
	default:
		errs = append(errs, fmt.Errorf("fetcher.mode must be %q or %q, got %q", ModeHTTP, ModeBrowser, c.Fetcher.Mode))
	}

	if c.Crawl.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("crawl.batch_size must be positive, got %d", c.Crawl.BatchSize))
	}
	if c.Crawl.PageDelay < 0 {
		errs = append(errs, errors.New("crawl.page_delay must not be negative"))
	}
	if c.Crawl.Cooldown < 0 {
		errs = append(errs, errors.New("crawl.cooldown must not be negative"))
	}
	if c.Crawl.CooldownEvery < 0 {
		errs = append(errs, errors.New("crawl.cooldown_every must not be negative"))
	}
	if c.Crawl.DrainAttempts < 1 {
		errs = append(errs, errors.New("crawl.drain_attempts must be at least 1"))
	}
	if c.Crawl.Filter.MinContentLength < 1 {
		errs = append(errs, errors.New("crawl.filter.min_content_length must be positive"))
	}
	if c.Crawl.Filter.MaxGap <= 0 {
		errs = append(errs, errors.New("crawl.filter.max_gap must be positive"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
