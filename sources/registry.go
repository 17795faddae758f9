package sources

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/pevans/newsarchive/scraper"
	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var defaultSourcesYAML []byte

// ErrUnknownSource is matched by every UnknownSourceError.
var ErrUnknownSource = errors.New("unknown source")

// UnknownSourceError reports a lookup for an id the registry does not hold.
type UnknownSourceError struct {
	ID string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source: %q", e.ID)
}

// Is lets errors.Is match ErrUnknownSource.
func (e *UnknownSourceError) Is(target error) bool {
	return target == ErrUnknownSource
}

// registryFile is the on-disk layout of a sources file.
type registryFile struct {
	Sources []scraper.SourceConfig `yaml:"sources"`
}

// Registry is a read-only, ordered set of source configurations.
type Registry struct {
	order   []string
	sources map[string]scraper.SourceConfig
}

// NewRegistry builds a registry from configs, applying defaults and
// validating each entry. Duplicate ids are rejected.
func NewRegistry(configs []scraper.SourceConfig) (*Registry, error) {
	r := &Registry{sources: make(map[string]scraper.SourceConfig, len(configs))}
	for _, cfg := range configs {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid source: %w", err)
		}
		if _, exists := r.sources[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate source id: %s", cfg.ID)
		}
		r.sources[cfg.ID] = cfg.Clone()
		r.order = append(r.order, cfg.ID)
	}
	return r, nil
}

// ParseRegistry parses a YAML sources document.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	return NewRegistry(file.Sources)
}

// LoadRegistry reads a YAML sources file from disk.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in source list.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultSourcesYAML)
}

// Get returns a copy of the source with the given id. Callers may modify the
// copy (or derive from it) without affecting the registry.
func (r *Registry) Get(id string) (scraper.SourceConfig, error) {
	cfg, ok := r.sources[id]
	if !ok {
		return scraper.SourceConfig{}, &UnknownSourceError{ID: id}
	}
	return cfg.Clone(), nil
}

// IDs returns source ids in the order they were declared.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.order)
}
