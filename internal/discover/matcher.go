// Package discover locates the current report block inside a fetched page and
// extracts its publication date and download link.
//
// Every lookup is an ordered list of Matchers tried top to bottom. Early
// entries are exact selectors known from previous page layouts; later ones are
// broad heuristics that only run once the precise ones stop matching.
package discover

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Matcher finds candidate elements beneath a root selection.
type Matcher interface {
	Name() string
	Find(root *goquery.Selection) *goquery.Selection
}

// ClassMatcher matches elements of Tag carrying the exact class token Class.
// An empty Tag matches any element.
type ClassMatcher struct {
	Tag   string
	Class string
}

// Name implements Matcher.
func (m ClassMatcher) Name() string {
	return m.Tag + "." + m.Class
}

// Find implements Matcher.
func (m ClassMatcher) Find(root *goquery.Selection) *goquery.Selection {
	return root.Find(m.Name())
}

// ClassContainsMatcher matches elements of Tag whose class attribute contains
// Substr, case-insensitively.
type ClassContainsMatcher struct {
	Tag    string
	Substr string
}

// Name implements Matcher.
func (m ClassContainsMatcher) Name() string {
	return fmt.Sprintf("%s[class*=%s]", tagOrAny(m.Tag), m.Substr)
}

// Find implements Matcher.
func (m ClassContainsMatcher) Find(root *goquery.Selection) *goquery.Selection {
	return AttrContainsMatcher{Tag: m.Tag, Attr: "class", Substr: m.Substr}.Find(root)
}

// AttrContainsMatcher matches elements of Tag whose Attr value contains
// Substr, case-insensitively.
type AttrContainsMatcher struct {
	Tag    string
	Attr   string
	Substr string
}

// Name implements Matcher.
func (m AttrContainsMatcher) Name() string {
	return fmt.Sprintf("%s[%s*=%s]", tagOrAny(m.Tag), m.Attr, m.Substr)
}

// Find implements Matcher.
func (m AttrContainsMatcher) Find(root *goquery.Selection) *goquery.Selection {
	needle := strings.ToLower(m.Substr)
	return root.Find(tagOrAny(m.Tag)).FilterFunction(func(_ int, s *goquery.Selection) bool {
		val, ok := s.Attr(m.Attr)
		return ok && strings.Contains(strings.ToLower(val), needle)
	})
}

// HrefSuffixMatcher matches anchors whose href path ends with Suffix,
// ignoring case, query string and fragment.
type HrefSuffixMatcher struct {
	Suffix string
}

// Name implements Matcher.
func (m HrefSuffixMatcher) Name() string {
	return fmt.Sprintf("a[href$=%s]", m.Suffix)
}

// Find implements Matcher.
func (m HrefSuffixMatcher) Find(root *goquery.Selection) *goquery.Selection {
	suffix := strings.ToLower(m.Suffix)
	return root.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return strings.HasSuffix(strings.ToLower(hrefPath(href)), suffix)
	})
}

// Parse builds a queryable document from raw HTML.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func tagOrAny(tag string) string {
	if tag == "" {
		return "*"
	}
	return tag
}

func hrefPath(href string) string {
	href = strings.TrimSpace(href)
	if u, err := url.Parse(href); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		return href[:i]
	}
	return href
}
