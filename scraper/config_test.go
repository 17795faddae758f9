package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: a minimal valid source
func createTestSource() SourceConfig {
	cfg := SourceConfig{
		ID:         "example",
		Name:       "Example",
		ListingURL: "https://example.com/category/news/page/",
		Selectors: Selectors{
			Article: "article",
			Link:    []string{"h2 a"},
			Content: []string{".entry-content"},
		},
		Direction: Backward,
		StartPage: 3,
		EndPage:   1,
		SkipURLs:  []string{"https://example.com/pinned/"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// TestApplyDefaults verifies optional fields are filled
func TestApplyDefaults(t *testing.T) {
	cfg := SourceConfig{ListingURL: "https://www.example.com/page/{page}?s=btc"}
	cfg.ApplyDefaults()

	assert.Equal(t, FormatHTML, cfg.Format)
	assert.Equal(t, Backward, cfg.Direction)
	assert.Equal(t, "https://www.example.com", cfg.BaseURL)
	assert.Equal(t, DefaultSummarySelectors, cfg.Selectors.Summary)
	assert.Equal(t, DefaultTitleSelectors, cfg.Selectors.Title)
}

// TestValidate_Valid verifies a complete config passes
func TestValidate_Valid(t *testing.T) {
	require.NoError(t, createTestSource().Validate())
}

// TestValidate_Invalid verifies each required field is enforced
func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SourceConfig)
		errMsg string
	}{
		{"missing id", func(c *SourceConfig) { c.ID = "" }, "id is required"},
		{"missing name", func(c *SourceConfig) { c.Name = "" }, "name is required"},
		{"missing listing url", func(c *SourceConfig) { c.ListingURL = "" }, "listing_url"},
		{"bad direction", func(c *SourceConfig) { c.Direction = "sideways" }, "direction"},
		{"zero start", func(c *SourceConfig) { c.StartPage = 0 }, "positive"},
		{"missing article selector", func(c *SourceConfig) { c.Selectors.Article = "" }, "selectors.article"},
		{"missing link selector", func(c *SourceConfig) { c.Selectors.Link = nil }, "selectors.link"},
		{"negative max pages", func(c *SourceConfig) { c.MaxPages = -1 }, "max_pages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestSource()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// TestValidate_FeedNeedsNoSelectors verifies feed sources skip selector checks
func TestValidate_FeedNeedsNoSelectors(t *testing.T) {
	cfg := createTestSource()
	cfg.Format = FormatFeed
	cfg.Selectors = Selectors{}

	assert.NoError(t, cfg.Validate())
}

// TestWithStartPage_DoesNotMutate verifies overrides derive a new value
func TestWithStartPage_DoesNotMutate(t *testing.T) {
	cfg := createTestSource()

	derived := cfg.WithStartPage(2)
	derived.SkipURLs[0] = "changed"
	derived.Selectors.Link[0] = "changed"

	assert.Equal(t, 2, derived.StartPage)
	assert.Equal(t, 3, cfg.StartPage, "original start page should be untouched")
	assert.Equal(t, "https://example.com/pinned/", cfg.SkipURLs[0])
	assert.Equal(t, "h2 a", cfg.Selectors.Link[0])
}

// TestMatchKeyword verifies case-insensitive keyword matching
func TestMatchKeyword(t *testing.T) {
	cfg := createTestSource()
	kw, ok := cfg.MatchKeyword("anything at all")
	assert.True(t, ok, "sources without keywords match everything")
	assert.Empty(t, kw)

	cfg.Keywords = []string{"Elon Musk", "馬斯克"}
	kw, ok = cfg.MatchKeyword("ELON MUSK sells more tesla stock")
	assert.True(t, ok)
	assert.Equal(t, "Elon Musk", kw)

	kw, ok = cfg.MatchKeyword("比特幣 馬斯克")
	assert.True(t, ok)
	assert.Equal(t, "馬斯克", kw)

	_, ok = cfg.MatchKeyword("Bitcoin ETF inflows")
	assert.False(t, ok)

	derived := cfg.WithStartPage(1)
	derived.Keywords[0] = "changed"
	assert.Equal(t, "Elon Musk", cfg.Keywords[0])
}

// TestStub_TagKeyword verifies title and summary are both searched
func TestStub_TagKeyword(t *testing.T) {
	cfg := createTestSource()
	cfg.Keywords = []string{"trump"}

	s := Stub{Title: "市場快訊", Summary: "Trump 發言推升比特幣"}
	s.TagKeyword(cfg)
	assert.Equal(t, "trump", s.Keyword)
	assert.False(t, s.OffTopic)

	s = Stub{Title: "市場快訊", Summary: "以太坊升級"}
	s.TagKeyword(cfg)
	assert.Empty(t, s.Keyword)
	assert.True(t, s.OffTopic)
}

// TestWithMaxPages verifies page cap override
func TestWithMaxPages(t *testing.T) {
	cfg := createTestSource()
	derived := cfg.WithMaxPages(5)

	assert.Equal(t, 5, derived.MaxPages)
	assert.Zero(t, cfg.MaxPages)
}

// TestPageURL verifies both template styles
func TestPageURL(t *testing.T) {
	cfg := createTestSource()
	assert.Equal(t, "https://example.com/category/news/page/7/", cfg.PageURL(7))

	cfg.ListingURL = "https://example.com/page/{page}?s=trump"
	assert.Equal(t, "https://example.com/page/12?s=trump", cfg.PageURL(12))
}

// TestResolveLink verifies relative links are rewritten against the host
func TestResolveLink(t *testing.T) {
	cfg := createTestSource()

	assert.Equal(t, "https://example.com/2024/01/02/post/", cfg.ResolveLink("/2024/01/02/post/", ""))
	assert.Equal(t, "https://other.com/x", cfg.ResolveLink("https://other.com/x", ""))
	assert.Equal(t, "", cfg.ResolveLink("   ", ""))
	assert.Equal(t, "", cfg.ResolveLink("javascript:void(0)", ""))
	assert.Equal(t, "", cfg.ResolveLink("mailto:tips@example.com", ""))
	assert.Equal(t, "", cfg.ResolveLink("ftp://example.com/file", ""))
	assert.Equal(t, "http://example.com/plain", cfg.ResolveLink("HTTP://example.com/plain", ""))

	cfg.BaseURL = ""
	assert.Equal(t, "https://listing.example.org/a/b",
		cfg.ResolveLink("b", "https://listing.example.org/a/"))
}

// TestIsSkipped verifies skip-list lookups
func TestIsSkipped(t *testing.T) {
	cfg := createTestSource()

	assert.True(t, cfg.IsSkipped("https://example.com/pinned/"))
	assert.False(t, cfg.IsSkipped("https://example.com/other/"))
}

// TestPageRange verifies page ordering per direction
func TestPageRange(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, PageRange(Forward, 1, 3, 0))
	assert.Equal(t, []int{3, 2, 1}, PageRange(Backward, 3, 1, 0))
	assert.Equal(t, []int{2, 1}, PageRange(Backward, 2, 1, 0))
	assert.Equal(t, []int{10, 9}, PageRange(Backward, 10, 1, 2))
	assert.Equal(t, []int{5}, PageRange(Forward, 5, 5, 0))
	assert.Empty(t, PageRange(Forward, 3, 1, 0), "inverted forward range should be empty")
	assert.Empty(t, PageRange(Backward, 1, 3, 0), "inverted backward range should be empty")
}

// TestTruncate verifies character-based truncation
func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "比特", Truncate("比特幣新聞", 2))
	assert.Len(t, []rune(Truncate(strings.Repeat("幣", 300), SummaryLimit)), SummaryLimit)
}

// TestNormalizeSpace verifies whitespace collapsing
func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeSpace("  a \n\t b   c "))
}
