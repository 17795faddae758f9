package newsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PartitionUnit is one persisted file: a slice of a batch sharing a source
// and year.
type PartitionUnit struct {
	Source        string          `json:"source"`
	SourceID      string          `json:"source_id"`
	Year          PartitionYear   `json:"year"`
	BatchArticles int             `json:"batch_articles"`
	Articles      []ArticleRecord `json:"articles"`
	SavedAt       time.Time       `json:"saved_at"`
}

// PartitionWriter persists partition units.
type PartitionWriter interface {
	WritePartition(ctx context.Context, unit PartitionUnit) (string, error)
}

// PartitionStore keeps partition units under
// <root>/<source_id>/<year>/<source_id>_batch_<timestamp>_<id>.json. Units
// are written once and never modified.
type PartitionStore struct {
	root  string
	now   func() time.Time
	newID func() string
}

// ReadError describes a failure to read a single partition file.
type ReadError struct {
	Filename string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Filename, e.Err)
}

// PartitionResult aggregates every unit of one partition. Unreadable files
// are collected in Errors rather than failing the read.
type PartitionResult struct {
	SourceID string
	Year     string
	Units    []PartitionUnit
	Articles []ArticleRecord
	Errors   []ReadError
}

// NewPartitionStore creates a store rooted at root.
func NewPartitionStore(root string) (*PartitionStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &PartitionStore{
		root:  root,
		now:   time.Now,
		newID: func() string { return uuid.NewString()[:8] },
	}, nil
}

// Root returns the storage directory.
func (s *PartitionStore) Root() string {
	return s.root
}

// WritePartition writes unit atomically and returns its path.
func (s *PartitionStore) WritePartition(ctx context.Context, unit PartitionUnit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if unit.SourceID == "" {
		return "", fmt.Errorf("partition has no source id")
	}

	if unit.SavedAt.IsZero() {
		unit.SavedAt = s.now()
	}
	unit.BatchArticles = len(unit.Articles)

	dir := filepath.Join(s.root, unit.SourceID, unit.Year.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition directory: %w", err)
	}

	data, err := json.MarshalIndent(unit, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal partition: %w", err)
	}

	name := fmt.Sprintf("%s_batch_%s_%s.json", unit.SourceID, unit.SavedAt.Format("20060102_150405"), s.newID())
	target := filepath.Join(dir, name)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write partition: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename partition: %w", err)
	}
	return target, nil
}

// ReadPartition loads every unit stored for sourceID and year.
func (s *PartitionStore) ReadPartition(sourceID, year string) (*PartitionResult, error) {
	dir := filepath.Join(s.root, sourceID, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition directory: %w", err)
	}

	result := &PartitionResult{SourceID: sourceID, Year: year}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			result.Errors = append(result.Errors, ReadError{Filename: entry.Name(), Err: err})
			continue
		}

		var unit PartitionUnit
		if err := json.Unmarshal(data, &unit); err != nil {
			result.Errors = append(result.Errors, ReadError{Filename: entry.Name(), Err: err})
			continue
		}

		result.Units = append(result.Units, unit)
		result.Articles = append(result.Articles, unit.Articles...)
	}

	return result, nil
}

// Years lists a source's partitions, ascending with "unknown" last.
func (s *PartitionStore) Years(sourceID string) ([]string, error) {
	years, err := s.subdirs(filepath.Join(s.root, sourceID))
	if err != nil {
		return nil, err
	}
	sort.Slice(years, func(i, j int) bool {
		return yearLess(years[i], years[j])
	})
	return years, nil
}

// Sources lists source ids that have stored partitions.
func (s *PartitionStore) Sources() ([]string, error) {
	ids, err := s.subdirs(s.root)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *PartitionStore) subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// yearLess orders numeric years ascending, then anything else.
func yearLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}
