// Package download turns an extracted report href into an absolute URL and
// retrieves the binary it points at.
package download

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolver normalizes download references against the report site.
type Resolver struct {
	siteBase  string
	reportDir string
}

// NewResolver builds a Resolver. siteBase supplies scheme and host for
// root-relative references; reportDir prefixes bare filenames.
func NewResolver(siteBase, reportDir string) (*Resolver, error) {
	site, err := url.Parse(strings.TrimSpace(siteBase))
	if err != nil {
		return nil, fmt.Errorf("parse site base: %w", err)
	}
	if site.Scheme == "" || site.Host == "" {
		return nil, fmt.Errorf("site base %q must be absolute", siteBase)
	}
	dir, err := url.Parse(strings.TrimSpace(reportDir))
	if err != nil {
		return nil, fmt.Errorf("parse report dir: %w", err)
	}
	if dir.Scheme == "" || dir.Host == "" {
		return nil, fmt.Errorf("report dir %q must be absolute", reportDir)
	}
	dirStr := dir.String()
	if !strings.HasSuffix(dirStr, "/") {
		dirStr += "/"
	}
	return &Resolver{
		siteBase:  site.Scheme + "://" + site.Host,
		reportDir: dirStr,
	}, nil
}

// Resolve applies, in order: a leading "/" is prefixed with the site's
// scheme and host; a reference without a scheme is prefixed with the report
// directory; anything else is returned unchanged.
func (r *Resolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty download reference")
	}
	if strings.HasPrefix(ref, "/") {
		return r.siteBase + ref, nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse download reference %q: %w", ref, err)
	}
	if parsed.Scheme == "" {
		return r.reportDir + ref, nil
	}
	return ref, nil
}
