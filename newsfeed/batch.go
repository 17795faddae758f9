package newsfeed

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pevans/newsarchive/logging"
)

// DefaultBatchSize is how many records accumulate before an automatic flush.
const DefaultBatchSize = 30

// WriteError reports a partition that could not be persisted. Its records
// remain in the batch.
type WriteError struct {
	SourceID string
	Year     string
	Count    int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to persist %d articles for %s/%s: %v", e.Count, e.SourceID, e.Year, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Batch buffers accepted records for one source and flushes them as
// year-partitioned units. A Batch belongs to a single crawl worker and is not
// safe for concurrent use.
type Batch struct {
	writer   PartitionWriter
	source   string
	sourceID string
	size     int
	log      logging.Logger

	records []ArticleRecord
	saved   int
	paths   []string
}

// NewBatch creates an empty batch. A size below 1 uses DefaultBatchSize.
func NewBatch(w PartitionWriter, source, sourceID string, size int, log logging.Logger) *Batch {
	if size < 1 {
		size = DefaultBatchSize
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Batch{writer: w, source: source, sourceID: sourceID, size: size, log: log}
}

// Add appends rec and flushes once the batch reaches its size. flushed
// reports whether a flush ran.
func (b *Batch) Add(ctx context.Context, rec ArticleRecord) (flushed bool, err error) {
	b.records = append(b.records, rec)
	if len(b.records) < b.size {
		return false, nil
	}
	_, err = b.Flush(ctx, false)
	return true, err
}

// Flush writes the buffered records, one unit per year, years ascending and
// unknown last. Without force it does nothing until the batch is full. It
// returns the number of records written. Partitions that fail stay buffered
// and are reported as *WriteError values.
func (b *Batch) Flush(ctx context.Context, force bool) (int, error) {
	if len(b.records) == 0 || (!force && len(b.records) < b.size) {
		return 0, nil
	}

	groups := make(map[string][]ArticleRecord)
	years := make(map[string]*int)
	for _, rec := range b.records {
		key := rec.PartitionKey()
		groups[key] = append(groups[key], rec)
		years[key] = rec.Year
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return yearLess(keys[i], keys[j]) })

	failed := make(map[string]bool)
	var errs []error
	written := 0
	for _, key := range keys {
		recs := groups[key]
		path, err := b.writer.WritePartition(ctx, PartitionUnit{
			Source:   b.source,
			SourceID: b.sourceID,
			Year:     PartitionYear{Year: years[key]},
			Articles: recs,
		})
		if err != nil {
			failed[key] = true
			errs = append(errs, &WriteError{SourceID: b.sourceID, Year: key, Count: len(recs), Err: err})
			b.log.Error("failed to persist partition",
				logging.String("source", b.sourceID),
				logging.String("year", key),
				logging.Int("articles", len(recs)),
				logging.Err(err))
			continue
		}

		written += len(recs)
		b.saved += len(recs)
		b.paths = append(b.paths, path)
		b.log.Info("saved partition",
			logging.String("source", b.sourceID),
			logging.String("year", key),
			logging.Int("articles", len(recs)),
			logging.String("path", path))
	}

	remaining := b.records[:0]
	for _, rec := range b.records {
		if failed[rec.PartitionKey()] {
			remaining = append(remaining, rec)
		}
	}
	b.records = remaining

	return written, errors.Join(errs...)
}

// Len returns the number of buffered records.
func (b *Batch) Len() int {
	return len(b.records)
}

// Saved returns the number of records persisted so far.
func (b *Batch) Saved() int {
	return b.saved
}

// Paths returns the files written so far.
func (b *Batch) Paths() []string {
	return append([]string(nil), b.paths...)
}

// Pending returns a copy of the buffered records.
func (b *Batch) Pending() []ArticleRecord {
	return append([]ArticleRecord(nil), b.records...)
}
