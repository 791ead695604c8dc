// Package textmatch searches rendered HTML for visible text the way a
// text locator does: case-insensitive, whitespace-normalised substring
// matching against the innermost element that contains the fragment.
package textmatch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// hiddenTags never contribute visible text.
var hiddenTags = map[string]struct{}{
	"head":     {},
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// Count returns the number of innermost elements whose visible text
// contains fragment. An element counts only when none of its child
// elements contains the fragment on its own, so "<li><b>Level 1A</b></li>"
// counts once and "<b>Level</b> 1A" counts its parent.
func Count(rawHTML, fragment string) (int, error) {
	needle := normalize(fragment)
	if needle == "" {
		return 0, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return 0, err
	}

	count := 0
	doc.Find("body, body *").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if isHidden(node) {
			return
		}
		if !strings.Contains(normalize(visibleText(node)), needle) {
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || isHidden(c) {
				continue
			}
			if strings.Contains(normalize(visibleText(c)), needle) {
				return
			}
		}
		count++
	})
	return count, nil
}

// Contains reports whether fragment is visible anywhere in the document body.
func Contains(rawHTML, fragment string) (bool, error) {
	n, err := Count(rawHTML, fragment)
	return n > 0, err
}

// VisibleText returns the whitespace-normalised visible text of the body.
func VisibleText(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", nil
	}
	return strings.Join(strings.Fields(visibleText(body.Get(0))), " "), nil
}

// blockTags end a run of text, so "<p>a</p><p>b</p>" reads "a b" while
// "<b>Level</b>1A" stays "Level1A".
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"button": {}, "dd": {}, "div": {}, "dl": {}, "dt": {}, "fieldset": {},
	"figcaption": {}, "figure": {}, "footer": {}, "form": {}, "h1": {},
	"h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {},
	"li": {}, "main": {}, "nav": {}, "ol": {}, "option": {}, "p": {},
	"pre": {}, "section": {}, "table": {}, "td": {}, "th": {}, "tr": {},
	"ul": {},
}

// visibleText concatenates text nodes under n, skipping hidden subtrees.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if _, hidden := hiddenTags[n.Data]; hidden {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if c.Type == html.ElementNode {
				if _, block := blockTags[c.Data]; block {
					sb.WriteByte(' ')
				}
			}
		}
	}
	walk(n)
	return sb.String()
}

// isHidden reports whether n or one of its ancestors is a hidden tag.
func isHidden(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if _, hidden := hiddenTags[p.Data]; hidden {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
