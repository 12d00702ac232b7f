package report

import (
	"time"

	"github.com/JakeFAU/cse-daily-fetcher/internal/discover"
)

// Stage denotes the pipeline milestone an Event describes.
type Stage string

// Pipeline stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageEndpointAttempt Stage = "ENDPOINT_ATTEMPT"
	StageRenderPromoted  Stage = "RENDER_PROMOTED"
	StageReportLocated   Stage = "REPORT_LOCATED"
	StageReportMissing   Stage = "REPORT_MISSING"
	StageDateExtracted   Stage = "DATE_EXTRACTED"
	StageDateFallback    Stage = "DATE_FALLBACK"
	StageLinkFound       Stage = "LINK_FOUND"
	StageLinkMissing     Stage = "LINK_MISSING"
	StageDownloadDone    Stage = "DOWNLOAD_DONE"
	StageSmallPayload    Stage = "SMALL_PAYLOAD"
	StageSaved           Stage = "SAVED"
	StagePublished       Stage = "PUBLISHED"
	StagePublishFailed   Stage = "PUBLISH_FAILED"
	StageRunDone         Stage = "RUN_DONE"
	StageRunFailed       Stage = "RUN_FAILED"
)

// Event is one diagnostic emitted by the pipeline. Only the fields relevant
// to Stage are populated.
type Event struct {
	RunID      string
	TS         time.Time
	Stage      Stage
	URL        string
	StatusCode int
	Strategy   string
	// Value carries the stage's subject: date text, href or filename.
	Value     string
	Path      string
	Bytes     int64
	Dur       time.Duration
	Err       error
	Publisher string

	Census      *discover.Census
	AnchorTotal int
	Anchors     []discover.Anchor
}

// Observer receives pipeline diagnostics. Implementations must not block.
type Observer interface {
	Observe(evt Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(evt Event) { f(evt) }

// NopObserver discards every event.
type NopObserver struct{}

// Observe implements Observer.
func (NopObserver) Observe(Event) {}

// stamped fills run-scoped fields before forwarding.
type stamped struct {
	runID string
	clock Clock
	next  Observer
}

func (s stamped) Observe(evt Event) {
	evt.RunID = s.runID
	if evt.TS.IsZero() {
		evt.TS = s.clock.Now()
	}
	s.next.Observe(evt)
}
