// Package markup loads HTML into a queryable document. Site adapters talk to
// the Query interface only, so the concrete parser can change without
// touching them.
package markup

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Query is a narrow CSS-selector view over a document or a sub-tree of it.
// An empty selector addresses the current selection itself.
type Query interface {
	// Text returns the whitespace-collapsed text of the first match.
	Text(selector string) string
	// Attr returns an attribute of the first match.
	Attr(selector, name string) (string, bool)
	// Map applies fn to every match in document order and keeps the
	// non-empty results.
	Map(selector string, fn func(i int, q Query) string) []string
	// Each calls fn for every match in document order.
	Each(selector string, fn func(i int, q Query))
	// Find narrows the view to all matches of selector.
	Find(selector string) Query
	// Children narrows the view to direct children matching selector.
	Children(selector string) Query
	// First narrows the view to its first node.
	First() Query
	// Last narrows the view to its last node.
	Last() Query
	// Len reports the number of nodes in the view.
	Len() int
	// Content renders the view's text with paragraph and line breaks kept.
	Content() string
	// Without returns a detached copy of the view with matches of selector removed.
	Without(selector string) Query
}

// Document is a parsed HTML page.
type Document struct {
	selection
}

// Parse loads markup into a Document. Malformed HTML is repaired by the
// parser rather than rejected.
func Parse(s string) (*Document, error) {
	return ParseReader(strings.NewReader(s))
}

// ParseBytes is Parse for a byte slice.
func ParseBytes(b []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(b))
}

// ParseReader loads markup from r.
func ParseReader(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{selection{doc.Selection}}, nil
}

type selection struct {
	s *goquery.Selection
}

func (q selection) find(selector string) *goquery.Selection {
	if selector == "" {
		return q.s
	}
	return q.s.Find(selector)
}

func (q selection) Text(selector string) string {
	return Collapse(q.find(selector).First().Text())
}

func (q selection) Attr(selector, name string) (string, bool) {
	v, ok := q.find(selector).First().Attr(name)
	return strings.TrimSpace(v), ok
}

func (q selection) Map(selector string, fn func(i int, q Query) string) []string {
	out := []string{}
	q.find(selector).Each(func(i int, s *goquery.Selection) {
		if v := fn(i, selection{s}); v != "" {
			out = append(out, v)
		}
	})
	return out
}

func (q selection) Each(selector string, fn func(i int, q Query)) {
	q.find(selector).Each(func(i int, s *goquery.Selection) {
		fn(i, selection{s})
	})
}

func (q selection) Find(selector string) Query {
	return selection{q.find(selector)}
}

func (q selection) Children(selector string) Query {
	if selector == "" {
		return selection{q.s.Children()}
	}
	return selection{q.s.ChildrenFiltered(selector)}
}

func (q selection) First() Query {
	return selection{q.s.First()}
}

func (q selection) Last() Query {
	return selection{q.s.Last()}
}

func (q selection) Len() int {
	return q.s.Length()
}

func (q selection) Content() string {
	return renderText(q.s.Nodes)
}

func (q selection) Without(selector string) Query {
	clone := q.s.Clone()
	if selector != "" {
		// Clone detaches the nodes, so Find only sees the copy.
		clone.Find(selector).Remove()
	}
	return selection{clone}
}

// ItemText is a Map callback returning each element's collapsed text.
func ItemText(_ int, q Query) string {
	return q.Text("")
}
