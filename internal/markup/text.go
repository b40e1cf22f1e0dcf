package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Collapse folds every whitespace run into a single space, trims the ends,
// and normalizes to NFC so equal text compares equal byte for byte.
func Collapse(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// WordCount counts the non-empty whitespace-separated tokens of s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// StripTags renders an HTML fragment to plain text, decoding entities and
// keeping paragraph breaks.
func StripTags(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(norm.NFC.String(fragment))
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type: html.ElementNode,
		Data: "body",
	})
	if err != nil {
		return Collapse(fragment)
	}
	return renderText(nodes)
}

func renderText(nodes []*html.Node) string {
	var b strings.Builder
	for _, n := range nodes {
		collectText(&b, n)
	}
	return norm.NFC.String(normalizeWhitespace(b.String()))
}

func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "template":
			return
		case "br", "hr":
			b.WriteString("\n")
		}
		if isBlock(n.Data) {
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}

	if n.Type == html.ElementNode && isBlock(n.Data) {
		b.WriteString("\n")
	}
}

func isBlock(tag string) bool {
	switch strings.ToLower(tag) {
	case "p", "div", "blockquote", "li", "ul", "ol", "dl", "dt", "dd", "tr", "table",
		"section", "article", "header", "footer", "pre",
		"h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// normalizeWhitespace trims every line, collapses runs of spaces inside a
// line, and keeps at most one blank line between blocks.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapsed)
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
