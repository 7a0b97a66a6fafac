package scraper

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group ("ul > li.job, div#main a").
// The zero value is empty and never matches.
type Selector struct {
	m   cascadia.SelectorGroup
	raw string
}

// ParseSelector compiles s. An empty or blank s gives an empty selector;
// anything cascadia cannot parse is an error, so a bad sources.yaml entry
// fails at startup instead of matching nothing.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Selector{}, nil
	}
	group, err := cascadia.ParseGroup(s)
	if err != nil {
		return Selector{}, fmt.Errorf("selector %q: %w", s, err)
	}
	return Selector{m: group, raw: s}, nil
}

// MustParseSelector is ParseSelector for constant selectors.
func MustParseSelector(s string) Selector {
	sel, err := ParseSelector(s)
	if err != nil {
		panic(err)
	}
	return sel
}

func (s Selector) String() string { return s.raw }

// Empty reports whether the selector was compiled from an empty string.
func (s Selector) Empty() bool { return len(s.m) == 0 }

// Matches reports whether n matches the selector.
func (s Selector) Matches(n *html.Node) bool {
	return !s.Empty() && s.m.Match(n)
}

// FindAll returns every node under root (root included) matching s, in
// document order.
func (s Selector) FindAll(root *html.Node) []*html.Node {
	if s.Empty() {
		return nil
	}
	var out []*html.Node
	if s.m.Match(root) {
		out = append(out, root)
	}
	return append(out, cascadia.QueryAll(root, s.m)...)
}

// FindFirst returns the first match under root (root included) or nil.
func (s Selector) FindFirst(root *html.Node) *html.Node {
	if s.Empty() {
		return nil
	}
	if s.m.Match(root) {
		return root
	}
	return cascadia.Query(root, s.m)
}

// Text returns the whitespace-collapsed text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
