package discover

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	censusDivSample  = 20
	censusClassLimit = 15
)

// CensusKeywords are counted across text nodes when the report block is missing.
var CensusKeywords = []string{"daily", "report", "cse", "download", "pdf"}

// ClassCount is one distinct class attribute and how often it was seen.
type ClassCount struct {
	Class string
	Count int
}

// KeywordCount is the number of text nodes mentioning Keyword.
type KeywordCount struct {
	Keyword string
	Count   int
}

// Census is a structural summary of a page, captured when none of the
// container matchers hit so selectors can be updated offline.
type Census struct {
	Title         string
	ClassedDivs   int
	ClassCounts   []ClassCount
	KeywordCounts []KeywordCount
}

// TakeCensus summarizes the class combinations and keyword-bearing text of doc.
func TakeCensus(doc *goquery.Document) Census {
	var c Census
	if doc == nil {
		return c
	}
	c.Title = strings.TrimSpace(doc.Find("title").First().Text())

	divs := doc.Find("div[class]")
	c.ClassedDivs = divs.Length()
	counts := make(map[string]int)
	divs.Slice(0, min(censusDivSample, divs.Length())).Each(func(_ int, s *goquery.Selection) {
		class := strings.Join(strings.Fields(s.AttrOr("class", "")), " ")
		if class != "" {
			counts[class]++
		}
	})
	for class, n := range counts {
		c.ClassCounts = append(c.ClassCounts, ClassCount{Class: class, Count: n})
	}
	sort.Slice(c.ClassCounts, func(i, j int) bool { return c.ClassCounts[i].Class < c.ClassCounts[j].Class })
	if len(c.ClassCounts) > censusClassLimit {
		c.ClassCounts = c.ClassCounts[:censusClassLimit]
	}

	texts := textNodes(doc)
	for _, kw := range CensusKeywords {
		n := 0
		for _, t := range texts {
			if strings.Contains(t, kw) {
				n++
			}
		}
		if n > 0 {
			c.KeywordCounts = append(c.KeywordCounts, KeywordCount{Keyword: kw, Count: n})
		}
	}
	return c
}

// textNodes returns the lowercased data of every non-blank text node.
func textNodes(doc *goquery.Document) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			out = append(out, strings.ToLower(n.Data))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return out
}

// Anchor describes a link found inside the report container.
type Anchor struct {
	Href  string
	Text  string
	Class string
}

// Anchors lists up to limit anchors beneath sel and returns the total count.
func Anchors(sel *goquery.Selection, limit int) (int, []Anchor) {
	if sel == nil {
		return 0, nil
	}
	links := sel.Find("a")
	total := links.Length()
	if limit > 0 && total > limit {
		links = links.Slice(0, limit)
	}
	out := make([]Anchor, 0, links.Length())
	links.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Anchor{
			Href:  s.AttrOr("href", "No href"),
			Text:  strings.TrimSpace(s.Text()),
			Class: strings.Join(strings.Fields(s.AttrOr("class", "")), " "),
		})
	})
	return total, out
}
