package trimmer

import (
	"strings"

	"golang.org/x/net/html"

	"venue-intel-pipeline/pkg/utils"
)

// Elements dropped wholesale: boilerplate chrome plus anything that never
// renders. Their subtrees carry navigation labels, analytics and cookie
// banners that would otherwise dominate the delta hash.
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"header":   true,
	"footer":   true,
	"nav":      true,
	"noscript": true,
}

// Block-level elements whose boundaries become line breaks, so paragraphs
// and list items survive as separate lines in the extracted text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "div": true, "dl": true, "dd": true, "dt": true,
	"fieldset": true, "figure": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "td": true, "th": true,
	"tr": true, "ul": true,
}

// ExtractText parses HTML tolerantly and returns the page title and the
// visible text. Dropped elements and inline-hidden elements contribute
// nothing; block boundaries become newlines; within a line, whitespace runs
// collapse to single spaces.
func ExtractText(src string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		// html.Parse recovers from almost anything; a hard error means the
		// input is not text at all.
		return "", ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if droppedElements[n.Data] {
				return
			}
			if n.Data == "title" {
				if title == "" {
					title = utils.CollapseWhitespace(nodeText(n))
				}
				return
			}
			if hiddenByStyle(attrVal(n, "style")) {
				return
			}
			if blockElements[n.Data] {
				b.WriteByte('\n')
			}
		case html.TextNode:
			if t := utils.CollapseWhitespace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return title, normalizeLines(b.String())
}

// normalizeLines trims each line, drops empties, and joins the rest with
// single newlines. Paragraph structure survives; blank-run noise does not.
func normalizeLines(s string) string {
	raw := strings.Split(s, "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if ln = utils.CollapseWhitespace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	return strings.Join(lines, "\n")
}

// hiddenByStyle detects the two inline-style idioms venue sites use to park
// invisible content ("display:none", "visibility:hidden"), tolerant of
// spacing.
func hiddenByStyle(style string) bool {
	if style == "" {
		return false
	}
	compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden")
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeText flattens a subtree's text nodes. Used for <title>, which must not
// carry block structure.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
