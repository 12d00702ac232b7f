package progress

import (
	"errors"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for endpoint attempts.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Validate performs coarse validation on Event payloads.
func Validate(e report.Event) error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	switch e.Stage {
	case report.StageEndpointAttempt, report.StageDownloadDone, report.StageLinkFound:
		if e.URL == "" {
			return errors.New("url is required for " + string(e.Stage))
		}
	case report.StagePublished, report.StagePublishFailed:
		if e.Publisher == "" {
			return errors.New("publisher is required for " + string(e.Stage))
		}
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for endpoint attempts. A zero code
// means no response was received.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
