package discover

import "github.com/PuerkitoBio/goquery"

// DefaultContainerMatchers returns the report container lookups in priority
// order: exact class names seen on past layouts first, substring heuristics last.
func DefaultContainerMatchers() []Matcher {
	return []Matcher{
		ClassMatcher{Tag: "div", Class: "rules-block"},
		ClassMatcher{Tag: "div", Class: "daily-report"},
		ClassMatcher{Tag: "div", Class: "report-block"},
		ClassMatcher{Tag: "div", Class: "cse-daily"},
		ClassMatcher{Tag: "section", Class: "daily"},
		ClassContainsMatcher{Tag: "div", Substr: "report"},
		ClassContainsMatcher{Tag: "div", Substr: "daily"},
	}
}

// Container is the located report block and the matcher that found it.
type Container struct {
	Selection *goquery.Selection
	Strategy  string
}

// Locator finds the report container using an ordered matcher list.
type Locator struct {
	matchers []Matcher
}

// NewLocator builds a Locator. With no matchers it uses DefaultContainerMatchers.
func NewLocator(matchers ...Matcher) *Locator {
	if len(matchers) == 0 {
		matchers = DefaultContainerMatchers()
	}
	return &Locator{matchers: matchers}
}

// Strategies lists the matcher names in the order they are tried.
func (l *Locator) Strategies() []string {
	return names(l.matchers)
}

// Locate returns the first element matched by the highest-priority matcher.
func (l *Locator) Locate(doc *goquery.Document) (Container, bool) {
	if doc == nil {
		return Container{}, false
	}
	for _, m := range l.matchers {
		if sel := m.Find(doc.Selection); sel.Length() > 0 {
			return Container{Selection: sel.First(), Strategy: m.Name()}, true
		}
	}
	return Container{}, false
}

func names(matchers []Matcher) []string {
	out := make([]string, 0, len(matchers))
	for _, m := range matchers {
		out = append(out, m.Name())
	}
	return out
}
