package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/newsarchive/config"
	"github.com/pevans/newsarchive/logging"
	"github.com/pevans/newsarchive/newsfeed"
	"github.com/pevans/newsarchive/sources"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the global flags.
type rootOptions struct {
	cfgFile     string
	sourcesFile string
	outputDir   string
	logLevel    string
}

// flagKeys maps global flags onto config keys.
var flagKeys = map[string]string{
	"sources":   "sources.file",
	"output":    "storage.output_dir",
	"log-level": "logging.level",
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "newsarchive",
		Short:         "Archive the paginated history of news sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default ./config.yaml or ~/.newsarchive/config.yaml)")
	flags.StringVar(&opts.sourcesFile, "sources", "", "sources YAML file (default built-in sources)")
	flags.StringVar(&opts.outputDir, "output", "", "archive output directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCrawlCommand(opts),
		newSourcesCommand(opts),
		newStatusCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// app is what every command needs once configuration is resolved.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	registry *sources.Registry
}

// load resolves configuration (flags > env > file > defaults), builds the
// logger and loads the source registry.
func (o *rootOptions) load(cmd *cobra.Command) (*app, error) {
	v, err := config.New(o.cfgFile)
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry, err := loadRegistry(cfg.Sources.File)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, registry: registry}, nil
}

func loadRegistry(path string) (*sources.Registry, error) {
	if path == "" {
		return sources.DefaultRegistry()
	}
	return sources.LoadRegistry(path)
}

// openState opens the checkpoint database, creating its directory.
func (a *app) openState() (*sources.StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.StateDSN), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return sources.NewStateStore(a.cfg.Storage.StateDSN)
}

func (a *app) openPartitions() (*newsfeed.PartitionStore, error) {
	return newsfeed.NewPartitionStore(a.cfg.Storage.OutputDir)
}
