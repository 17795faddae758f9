package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Direction is the order in which listing pages are visited.
type Direction string

const (
	// Forward visits pages in ascending order (oldest configured page first).
	Forward Direction = "forward"
	// Backward visits pages in descending order.
	Backward Direction = "backward"
)

// ListingFormat selects how a listing page is parsed.
type ListingFormat string

const (
	FormatHTML ListingFormat = "html"
	FormatFeed ListingFormat = "feed"
)

// pagePlaceholder marks where the page number goes in a listing URL
// template. Templates without it get "<page>/" appended.
const pagePlaceholder = "{page}"

// SourceConfig describes how to crawl one source's paginated history. Values
// are treated as immutable once loaded; use WithStartPage and WithMaxPages to
// derive per-run variants.
type SourceConfig struct {
	ID         string        `yaml:"id" json:"id"`
	Name       string        `yaml:"name" json:"name"`
	ListingURL string        `yaml:"listing_url" json:"listing_url"`
	BaseURL    string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Format     ListingFormat `yaml:"format,omitempty" json:"format,omitempty"`
	Selectors  Selectors     `yaml:"selectors" json:"selectors"`
	Direction  Direction     `yaml:"direction" json:"direction"`
	StartPage  int           `yaml:"start_page" json:"start_page"`
	EndPage    int           `yaml:"end_page" json:"end_page"`
	MaxPages   int           `yaml:"max_pages,omitempty" json:"max_pages,omitempty"` // 0 = no limit
	SkipURLs   []string      `yaml:"skip_urls,omitempty" json:"skip_urls,omitempty"`
	Keywords   []string      `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Selectors holds the CSS selector fallback chains for a source. Each chain
// is tried in order.
type Selectors struct {
	Article string   `yaml:"article" json:"article"`
	Title   []string `yaml:"title,omitempty" json:"title,omitempty"`
	Link    []string `yaml:"link" json:"link"`
	Summary []string `yaml:"summary,omitempty" json:"summary,omitempty"`
	Content []string `yaml:"content,omitempty" json:"content,omitempty"`
}

// DefaultSummarySelectors is used when a source does not configure its own
// summary chain.
var DefaultSummarySelectors = []string{".excerpt", ".summary", "p"}

// DefaultTitleSelectors backs up a link that carries no text of its own.
var DefaultTitleSelectors = []string{"h1", "h2", "h3", "h4", ".title"}

// ApplyDefaults fills optional fields that were left empty.
func (c *SourceConfig) ApplyDefaults() {
	if c.Format == "" {
		c.Format = FormatHTML
	}
	if c.Direction == "" {
		c.Direction = Backward
	}
	if len(c.Selectors.Summary) == 0 {
		c.Selectors.Summary = slices.Clone(DefaultSummarySelectors)
	}
	if len(c.Selectors.Title) == 0 {
		c.Selectors.Title = slices.Clone(DefaultTitleSelectors)
	}
	if c.BaseURL == "" {
		if u, err := url.Parse(strings.ReplaceAll(c.ListingURL, pagePlaceholder, "1")); err == nil && u.Host != "" {
			c.BaseURL = u.Scheme + "://" + u.Host
		}
	}
}

// Validate reports the first problem with the configuration.
func (c SourceConfig) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("source %s: name is required", c.ID)
	}
	if c.ListingURL == "" {
		return fmt.Errorf("source %s: listing_url is required", c.ID)
	}
	if c.Format != FormatHTML && c.Format != FormatFeed {
		return fmt.Errorf("source %s: format must be html or feed", c.ID)
	}
	if c.Format == FormatHTML {
		if c.Selectors.Article == "" {
			return fmt.Errorf("source %s: selectors.article is required", c.ID)
		}
		if len(c.Selectors.Link) == 0 {
			return fmt.Errorf("source %s: selectors.link is required", c.ID)
		}
	}
	if c.Direction != Forward && c.Direction != Backward {
		return fmt.Errorf("source %s: direction must be forward or backward", c.ID)
	}
	if c.StartPage < 1 || c.EndPage < 1 {
		return fmt.Errorf("source %s: start_page and end_page must be positive", c.ID)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("source %s: max_pages must not be negative", c.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (c SourceConfig) Clone() SourceConfig {
	c.Selectors.Title = slices.Clone(c.Selectors.Title)
	c.Selectors.Link = slices.Clone(c.Selectors.Link)
	c.Selectors.Summary = slices.Clone(c.Selectors.Summary)
	c.Selectors.Content = slices.Clone(c.Selectors.Content)
	c.SkipURLs = slices.Clone(c.SkipURLs)
	c.Keywords = slices.Clone(c.Keywords)
	return c
}

// WithStartPage returns a copy that begins at page. The receiver is left
// untouched.
func (c SourceConfig) WithStartPage(page int) SourceConfig {
	d := c.Clone()
	d.StartPage = page
	return d
}

// WithMaxPages returns a copy limited to n pages.
func (c SourceConfig) WithMaxPages(n int) SourceConfig {
	d := c.Clone()
	d.MaxPages = n
	return d
}

// PageURL renders the listing URL for a page number.
func (c SourceConfig) PageURL(page int) string {
	p := strconv.Itoa(page)
	if strings.Contains(c.ListingURL, pagePlaceholder) {
		return strings.ReplaceAll(c.ListingURL, pagePlaceholder, p)
	}
	return c.ListingURL + p + "/"
}

// IsSkipped reports whether link is one of the source's pinned entries.
func (c SourceConfig) IsSkipped(link string) bool {
	return slices.Contains(c.SkipURLs, link)
}

// MatchKeyword reports the first configured keyword that appears in text,
// ignoring case. A source without keywords matches everything with an empty
// keyword.
func (c SourceConfig) MatchKeyword(text string) (string, bool) {
	if len(c.Keywords) == 0 {
		return "", true
	}
	lower := strings.ToLower(text)
	for _, kw := range c.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

// ResolveLink turns href into an absolute URL against the source's canonical
// host, falling back to the page it was found on. Anything that does not
// resolve to an http or https URL yields "".
func (c SourceConfig) ResolveLink(href, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return webURL(ref)
	}

	base := c.BaseURL
	if base == "" {
		base = pageURL
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return ""
	}
	return webURL(baseURL.ResolveReference(ref))
}

func webURL(u *url.URL) string {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	}
	return ""
}

// PageRange lists the pages to visit. Forward yields start..end ascending,
// backward yields start..end descending, both inclusive. A positive maxPages
// caps the number of pages. An inverted range yields nothing.
func PageRange(dir Direction, start, end, maxPages int) []int {
	var pages []int
	switch dir {
	case Forward:
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
	default:
		for p := start; p >= end; p-- {
			pages = append(pages, p)
		}
	}
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
	}
	return pages
}
