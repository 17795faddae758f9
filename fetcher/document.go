package fetcher

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// queryDocument adapts a goquery document to Document. Both fetchers
// produce one: the HTTP fetcher from the response body, the browser fetcher
// from the rendered DOM.
type queryDocument struct {
	url string
	doc *goquery.Document
}

// NewDocument parses HTML read from r.
func NewDocument(r io.Reader, url string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &queryDocument{url: url, doc: doc}, nil
}

// NewDocumentFromString parses an HTML string.
func NewDocumentFromString(html, url string) (Document, error) {
	return NewDocument(strings.NewReader(html), url)
}

func (d *queryDocument) URL() string {
	return d.url
}

func (d *queryDocument) Query(selector string) (Element, bool) {
	return first(d.doc.Find(selector))
}

func (d *queryDocument) QueryAll(selector string) []Element {
	return all(d.doc.Find(selector))
}

func (d *queryDocument) HTML() (string, error) {
	return d.doc.Html()
}

type queryElement struct {
	sel *goquery.Selection
}

func (e *queryElement) Text() string {
	return e.sel.Text()
}

func (e *queryElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

func (e *queryElement) Query(selector string) (Element, bool) {
	return first(e.sel.Find(selector))
}

func (e *queryElement) QueryAll(selector string) []Element {
	return all(e.sel.Find(selector))
}

func first(sel *goquery.Selection) (Element, bool) {
	if sel.Length() == 0 {
		return nil, false
	}
	return &queryElement{sel: sel.First()}, true
}

func all(sel *goquery.Selection) []Element {
	elems := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elems = append(elems, &queryElement{sel: s})
	})
	return elems
}
