// Package naming turns a report publication date into the artifact filename
// and picks a free sibling name when that file already exists.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DateLayout is the "day month-abbreviation year" form shown on the page.
	DateLayout = "2 Jan 2006"
	// Prefix and Ext bracket every artifact filename.
	Prefix = "CSE_Daily_"
	Ext    = ".pdf"

	fileDateLayout = "2006_01_02"
	timeSuffix     = "150405"
)

// Mode selects how colliding filenames are disambiguated.
type Mode string

// Supported disambiguation modes.
const (
	// ModeTime appends the time of day (HHMMSS), then a counter if that is taken too.
	ModeTime Mode = "time"
	// ModeCounter appends an incrementing integer.
	ModeCounter Mode = "counter"
)

// ErrNoFreeName is returned when every candidate up to the attempt limit exists.
var ErrNoFreeName = errors.New("no free filename")

// MaxAttempts bounds the collision search.
const MaxAttempts = 1000

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Name describes a derived filename.
type Name struct {
	Filename string
	Date     time.Time
	// FromPage is false when the wall clock was substituted for the page date.
	FromPage bool
	// ParseErr is set when a date string was present but did not parse.
	ParseErr error
}

// Namer derives filenames. It never fails: a missing or malformed date
// degrades to the current date.
type Namer struct {
	clock Clock
	mode  Mode
}

// New builds a Namer. An unknown mode falls back to ModeTime.
func New(clock Clock, mode Mode) *Namer {
	if mode != ModeCounter {
		mode = ModeTime
	}
	return &Namer{clock: clock, mode: mode}
}

// ParseDate parses text against DateLayout. Any run of whitespace between
// the fields counts as one space, so dates wrapped by page markup still parse.
func ParseDate(text string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.Join(strings.Fields(text), " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date %q: %w", text, err)
	}
	return t, nil
}

// Parseable reports whether text is a valid report date.
func Parseable(text string) bool {
	_, err := ParseDate(text)
	return err == nil
}

// FilenameFor formats the canonical filename for a calendar date.
func FilenameFor(date time.Time) string {
	return Prefix + date.Format(fileDateLayout) + Ext
}

// DateFromFilename reverses FilenameFor, ignoring any disambiguator suffix.
func DateFromFilename(name string) (time.Time, error) {
	base := strings.TrimSuffix(filepath.Base(name), Ext)
	if !strings.HasPrefix(base, Prefix) {
		return time.Time{}, fmt.Errorf("filename %q lacks prefix %q", name, Prefix)
	}
	stamp := strings.TrimPrefix(base, Prefix)
	if len(stamp) < len(fileDateLayout) {
		return time.Time{}, fmt.Errorf("filename %q has no date", name)
	}
	t, err := time.Parse(fileDateLayout, stamp[:len(fileDateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("parse filename date: %w", err)
	}
	return t, nil
}

// Name derives the filename for dateText, substituting today's date when the
// text is empty or unparseable.
func (n *Namer) Name(dateText string) Name {
	if strings.TrimSpace(dateText) != "" {
		date, err := ParseDate(dateText)
		if err == nil {
			return Name{Filename: FilenameFor(date), Date: date, FromPage: true}
		}
		now := n.clock.Now()
		return Name{Filename: FilenameFor(now), Date: now, ParseErr: err}
	}
	now := n.clock.Now()
	return Name{Filename: FilenameFor(now), Date: now}
}

// Disambiguate returns the candidate name for a given attempt. Attempt 0 is the
// filename itself.
func (n *Namer) Disambiguate(filename string, attempt int) string {
	if attempt <= 0 {
		return filename
	}
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	if n.mode == ModeCounter {
		return fmt.Sprintf("%s_%d%s", stem, attempt, ext)
	}
	stamp := n.clock.Now().Format(timeSuffix)
	if attempt == 1 {
		return fmt.Sprintf("%s_%s%s", stem, stamp, ext)
	}
	return fmt.Sprintf("%s_%s_%d%s", stem, stamp, attempt, ext)
}
