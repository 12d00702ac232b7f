// Package system provides a real clock implementation.
package system

import (
	"fmt"
	"time"
)

// Clock implements report.Clock using time.Now in a fixed location. The
// location decides which calendar day the current-date fallback names.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting times in loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone creates a Clock for an IANA zone name such as "Asia/Colombo". An
// empty name means UTC and "Local" means the host zone.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		return New(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the zone the clock reports in.
func (c *Clock) Location() *time.Location {
	return c.loc
}
