package scraper_test

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"connecta/ingest-service/internal/scraper"
)

const selectorDoc = `<html><body>
<div id="main">
<section class="jobs">
  <ul>
    <li class="feature"><a href="/jobs/1" data-kind="remote-job" title="Senior Go"><span class="title">  Go   Engineer </span></a></li>
    <li><a href="/jobs/2"><span class="title new">Designer</span></a></li>
    <li class="ad"><a href="https://ads.example/x"><span class="title">Sponsored</span></a></li>
  </ul>
</section>
</div>
<aside><ol><li><span class="title">Outside</span></li></ol></aside>
</body></html>`

func parseDoc(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(selectorDoc))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSelector_FindAll(t *testing.T) {
	doc := parseDoc(t)

	cases := []struct {
		selector string
		want     int
	}{
		{"li", 4},
		{"section.jobs li", 3},
		{"ul > li", 3},
		{"div#main li", 3},
		{"#main .title", 3},
		{"li.feature", 1},
		{"li:not(.ad)", 3},
		{".title", 4},
		{"span.title.new", 1},
		{"a[href]", 3},
		{`a[href="/jobs/2"]`, 1},
		{`a[href^="/jobs"]`, 2},
		{`a[href$="/x"]`, 1},
		{"a[data-kind*=remote]", 1},
		{`a[title="Senior Go"]`, 1},
		{"h2, li", 4},
		{"section li .title", 3},
		{"table", 0},
	}
	for _, tc := range cases {
		t.Run(tc.selector, func(t *testing.T) {
			got := scraper.MustParseSelector(tc.selector).FindAll(doc)
			if len(got) != tc.want {
				t.Errorf("FindAll(%q) = %d nodes, want %d", tc.selector, len(got), tc.want)
			}
		})
	}
}

func TestSelector_FindIncludesRoot(t *testing.T) {
	doc := parseDoc(t)
	item := scraper.MustParseSelector("li.feature").FindFirst(doc)
	if item == nil {
		t.Fatal("li.feature not found")
	}

	sel := scraper.MustParseSelector("li")
	if got := sel.FindFirst(item); got != item {
		t.Error("FindFirst must consider the root node itself")
	}
	if got := sel.FindAll(item); len(got) != 1 || got[0] != item {
		t.Errorf("FindAll(item) = %d nodes, want only the root", len(got))
	}
	if !sel.Matches(item) {
		t.Error("Matches(item) = false, want true")
	}
}

func TestSelector_Text(t *testing.T) {
	doc := parseDoc(t)
	n := scraper.MustParseSelector("li.feature .title").FindFirst(doc)
	if got := scraper.Text(n); got != "Go Engineer" {
		t.Errorf("Text() = %q, want %q", got, "Go Engineer")
	}
	if got := scraper.Text(nil); got != "" {
		t.Errorf("Text(nil) = %q, want empty", got)
	}
}

// Anything that is not valid CSS must fail when the source is loaded,
// never silently match nothing.
func TestParseSelector_Invalid(t *testing.T) {
	for _, s := range []string{"a[href", "li..x", "[]", "ul >", "li:bogus-pseudo", "a[href=/jobs]", "div##main"} {
		if _, err := scraper.ParseSelector(s); err == nil {
			t.Errorf("ParseSelector(%q) expected error", s)
		}
	}
}

func TestSelector_EmptyNeverMatches(t *testing.T) {
	doc := parseDoc(t)
	for _, raw := range []string{"", "   "} {
		sel, err := scraper.ParseSelector(raw)
		if err != nil {
			t.Fatal(err)
		}
		if !sel.Empty() || sel.FindFirst(doc) != nil || len(sel.FindAll(doc)) != 0 || sel.Matches(doc) {
			t.Errorf("empty selector %q must not match", raw)
		}
	}
}
