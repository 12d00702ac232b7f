package discover

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDateMatchers returns the publication date lookups in priority order.
func DefaultDateMatchers() []Matcher {
	return []Matcher{
		ClassMatcher{Class: "date"},
		ClassMatcher{Class: "report-date"},
		ClassMatcher{Class: "daily-date"},
		ClassMatcher{Class: "date-text"},
		ClassMatcher{Class: "pub-date"},
	}
}

// DefaultLinkMatchers returns the download link lookups in priority order.
func DefaultLinkMatchers() []Matcher {
	return []Matcher{
		ClassMatcher{Tag: "a", Class: "dropdown-button"},
		HrefSuffixMatcher{Suffix: ".pdf"},
		ClassContainsMatcher{Tag: "a", Substr: "download"},
		ClassContainsMatcher{Tag: "a", Substr: "pdf"},
		AttrContainsMatcher{Tag: "a", Attr: "title", Substr: "download"},
	}
}

// Match is an extracted value and the matcher that produced it.
type Match struct {
	Value    string
	Strategy string
}

// Extractor pulls the date text and download href out of a container.
type Extractor struct {
	dates []Matcher
	links []Matcher
}

// NewExtractor builds an Extractor. Nil lists fall back to the defaults.
func NewExtractor(dates, links []Matcher) *Extractor {
	if len(dates) == 0 {
		dates = DefaultDateMatchers()
	}
	if len(links) == 0 {
		links = DefaultLinkMatchers()
	}
	return &Extractor{dates: dates, links: links}
}

// Date returns the first date candidate accepted by parseable. When no
// candidate parses, the first non-empty one is returned so the caller can
// report what the page actually showed. A nil parseable accepts anything.
func (e *Extractor) Date(c Container, parseable func(string) bool) (Match, bool) {
	if c.Selection == nil {
		return Match{}, false
	}
	var fallback *Match
	for _, m := range e.dates {
		var found *Match
		m.Find(c.Selection).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return true
			}
			candidate := Match{Value: text, Strategy: m.Name()}
			if fallback == nil {
				fallback = &candidate
			}
			if parseable == nil || parseable(text) {
				found = &candidate
				return false
			}
			return true
		})
		if found != nil {
			return *found, true
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Match{}, false
}

// DownloadRef returns the href of the first anchor matched by the
// highest-priority link matcher. Anchors without an href are skipped.
func (e *Extractor) DownloadRef(c Container) (Match, bool) {
	if c.Selection == nil {
		return Match{}, false
	}
	for _, m := range e.links {
		var found *Match
		m.Find(c.Selection).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href := strings.TrimSpace(s.AttrOr("href", ""))
			if href == "" {
				return true
			}
			found = &Match{Value: href, Strategy: m.Name()}
			return false
		})
		if found != nil {
			return *found, true
		}
	}
	return Match{}, false
}
