package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsarchive/listing"
	"github.com/pevans/newsarchive/newsfeed"
	"github.com/pevans/newsarchive/resolve"
	"github.com/pevans/newsarchive/scraper"
)

// fakeLister serves fixed stubs per page.
type fakeLister struct {
	mu     sync.Mutex
	pages  map[int][]scraper.Stub
	errs   map[int]error
	calls  []int
	onList func(page int)
}

func newFakeLister() *fakeLister {
	return &fakeLister{pages: map[int][]scraper.Stub{}, errs: map[int]error{}}
}

// withArticles registers n stubs on page with links derived from page.
func (l *fakeLister) withArticles(page, n int) *fakeLister {
	for i := 0; i < n; i++ {
		l.pages[page] = append(l.pages[page], scraper.Stub{
			Title: fmt.Sprintf("Page %d article %d", page, i),
			Link:  fmt.Sprintf("https://example.com/2024/01/%02d/p%d-a%d/", page%28+1, page, i),
			Page:  page,
		})
	}
	return l
}

func (l *fakeLister) List(ctx context.Context, cfg scraper.SourceConfig, page int) ([]scraper.Stub, error) {
	l.mu.Lock()
	l.calls = append(l.calls, page)
	stubs, err := l.pages[page], l.errs[page]
	l.mu.Unlock()

	if l.onList != nil {
		l.onList(page)
	}
	if err != nil {
		return nil, err
	}
	if len(stubs) == 0 {
		return nil, listing.ErrEmptyListing
	}
	return stubs, nil
}

func (l *fakeLister) pagesListed() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.calls...)
}

// fakeResolver returns long content dated from the link unless overridden.
type fakeResolver struct {
	overrides map[string]resolve.Resolution
	resolved  []string
	onResolve func(ctx context.Context, link string)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{overrides: map[string]resolve.Resolution{}}
}

func (r *fakeResolver) Resolve(ctx context.Context, stub scraper.Stub, cfg scraper.SourceConfig) resolve.Resolution {
	if r.onResolve != nil {
		r.onResolve(ctx, stub.Link)
	}
	r.resolved = append(r.resolved, stub.Link)
	if res, ok := r.overrides[stub.Link]; ok {
		return res
	}
	date, year, _ := resolve.DateFromLink(stub.Link)
	return resolve.Resolution{
		Content:     strings.Repeat("比特幣市場新聞內容", 50),
		Date:        date,
		Year:        year,
		ContentFrom: resolve.FromSelector,
		DateFrom:    resolve.DateFromURL,
		Status:      resolve.Resolved,
	}
}

// memWriter keeps partition units in memory.
type memWriter struct {
	mu    sync.Mutex
	units []newsfeed.PartitionUnit
	fail  error
}

func (w *memWriter) WritePartition(ctx context.Context, unit newsfeed.PartitionUnit) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return "", w.fail
	}
	unit.BatchArticles = len(unit.Articles)
	w.units = append(w.units, unit)
	return fmt.Sprintf("mem://%s/%s/%d", unit.SourceID, unit.Year, len(w.units)), nil
}

func (w *memWriter) articles() []newsfeed.ArticleRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []newsfeed.ArticleRecord
	for _, u := range w.units {
		out = append(out, u.Articles...)
	}
	return out
}

func (w *memWriter) savedTotal() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, u := range w.units {
		n += u.BatchArticles
	}
	return n
}

type resultRecord struct {
	completed bool
	articles  int
	saved     int
	err       error
}

// memState records checkpoints and runs.
type memState struct {
	checkpoints map[string][]int
	results     map[string]resultRecord
	resume      map[string]int
	runs        []string
	runErr      error
}

func newMemState() *memState {
	return &memState{
		checkpoints: map[string][]int{},
		results:     map[string]resultRecord{},
		resume:      map[string]int{},
	}
}

func (s *memState) SaveCheckpoint(sourceID string, nextPage int) error {
	s.checkpoints[sourceID] = append(s.checkpoints[sourceID], nextPage)
	return nil
}

func (s *memState) RecordResult(sourceID string, completed bool, articles, saved int, crawlErr error) error {
	s.results[sourceID] = resultRecord{completed, articles, saved, crawlErr}
	return nil
}

func (s *memState) ResumePage(sourceID string) (int, bool, error) {
	p, ok := s.resume[sourceID]
	return p, ok, nil
}

func (s *memState) RecordRun(runID uuid.UUID, startedAt, finishedAt time.Time, summaryJSON string) error {
	if s.runErr != nil {
		return s.runErr
	}
	s.runs = append(s.runs, summaryJSON)
	return nil
}

func (s *memState) lastCheckpoint(id string) (int, bool) {
	cps := s.checkpoints[id]
	if len(cps) == 0 {
		return 0, false
	}
	return cps[len(cps)-1], true
}

var errDiskFull = errors.New("disk full")

// Test helper: a backward source over pages start..end
func createTestSource(start, end int) scraper.SourceConfig {
	cfg := scraper.SourceConfig{
		ID:         "example",
		Name:       "Example",
		ListingURL: "https://example.com/news/page/",
		Selectors: scraper.Selectors{
			Article: "article",
			Link:    []string{"h2 a"},
		},
		Direction: scraper.Backward,
		StartPage: start,
		EndPage:   end,
	}
	cfg.ApplyDefaults()
	return cfg
}

// Test helper: settings with no pacing delays
func testSettings(batchSize int) Settings {
	s := DefaultSettings()
	s.BatchSize = batchSize
	s.PageDelay = 0
	s.Cooldown = 0
	s.DrainBackoff = time.Millisecond
	return s
}
