package report

import (
	"errors"
	"fmt"
	"strings"
)

// Fatal run errors. Every one of them ends the run; none is retried beyond the
// endpoint walk.
var (
	ErrAllEndpointsExhausted = errors.New("all endpoints exhausted")
	ErrReportNotRendered     = errors.New("report not rendered")
	ErrReportBlockNotFound   = errors.New("report block not found")
	ErrDownloadLinkNotFound  = errors.New("download link not found")
	ErrDownloadFailed        = errors.New("download failed")
	ErrFilesystemWriteFailed = errors.New("filesystem write failed")
)

// EndpointsExhaustedError lists every endpoint attempted before giving up.
type EndpointsExhaustedError struct {
	Attempts []Attempt
}

func (e *EndpointsExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		switch {
		case a.Err != nil:
			parts = append(parts, fmt.Sprintf("%s: %v", a.URL, a.Err))
		default:
			parts = append(parts, fmt.Sprintf("%s: status %d", a.URL, a.StatusCode))
		}
	}
	return fmt.Sprintf("%v (%s)", ErrAllEndpointsExhausted, strings.Join(parts, "; "))
}

// Is reports whether target is ErrAllEndpointsExhausted.
func (e *EndpointsExhaustedError) Is(target error) bool {
	return target == ErrAllEndpointsExhausted
}

// Kind maps err onto the run error taxonomy. Unknown errors map to "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAllEndpointsExhausted):
		return "all_endpoints_exhausted"
	case errors.Is(err, ErrReportNotRendered):
		return "report_not_rendered"
	case errors.Is(err, ErrReportBlockNotFound):
		return "report_block_not_found"
	case errors.Is(err, ErrDownloadLinkNotFound):
		return "download_link_not_found"
	case errors.Is(err, ErrDownloadFailed):
		return "download_failed"
	case errors.Is(err, ErrFilesystemWriteFailed):
		return "filesystem_write_failed"
	default:
		return "internal"
	}
}
