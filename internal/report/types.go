// Package report defines the daily report discovery pipeline and the types
// shared across its fetch, discovery, naming, download and storage stages.
package report

import (
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch one candidate page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Attempt records the outcome of fetching one endpoint.
type Attempt struct {
	URL        string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// ReportRecord is what the extractor could pull out of the report container.
// Either field may be missing; it is never mutated after construction.
type ReportRecord struct {
	PageURL           string
	ContainerStrategy string
	// DateText is the trimmed text of the date element, empty when none matched.
	DateText        string
	PublicationDate *time.Time
	// DownloadRef is the raw href, possibly relative.
	DownloadRef string
}

// ResolvedArtifact is a downloaded payload together with the name it will be
// stored under.
type ResolvedArtifact struct {
	AbsoluteURL string
	Filename    string
	Payload     []byte
}

// StoredFile is the durable result of a run. Its existence implies a
// completed download.
type StoredFile struct {
	Path      string
	Filename  string
	SizeBytes int64
}

// Artifact is handed to post-save collaborators (mirrors, ledgers, publishers).
type Artifact struct {
	RunID           string
	File            StoredFile
	SourceURL       string
	PageURL         string
	PublicationDate *time.Time
	// DateFromPage is false when the filename date came from the wall clock.
	DateFromPage bool
	SHA256       string
	Payload      []byte
	StoredAt     time.Time
}

// Result summarizes a successful run.
type Result struct {
	RunID    string
	Record   ReportRecord
	Artifact Artifact
	Duration time.Duration
}

// Inspection is the offline view of what the locator and extractor find in a
// saved page.
type Inspection struct {
	ContainerStrategy string
	DateText          string
	DateStrategy      string
	Filename          string
	DateFromPage      bool
	DownloadRef       string
	LinkStrategy      string
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}
