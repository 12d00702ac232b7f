// Package audit checks previously downloaded reports on disk.
package audit

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
)

var pdfMagic = []byte("%PDF-")

// Problems a file can have. A file may have several.
const (
	ProblemBadName  = "bad_name"
	ProblemTooSmall = "too_small"
	ProblemNotPDF   = "not_pdf"
)

// ReaderHasher digests a stream.
type ReaderHasher interface {
	HashReader(r io.Reader) (string, error)
}

// Finding is the audit result for one file.
type Finding struct {
	Path      string
	SizeBytes int64
	SHA256    string
	// Date is zero when the filename does not carry one.
	Date     time.Time
	Problems []string
}

// OK reports whether the file passed every check.
func (f Finding) OK() bool {
	return len(f.Problems) == 0
}

// Auditor inspects report files.
type Auditor struct {
	fs       afero.Fs
	hasher   ReaderHasher
	minBytes int64
}

// New builds an Auditor. Files smaller than minBytes are flagged.
func New(fs afero.Fs, hasher ReaderHasher, minBytes int) *Auditor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Auditor{fs: fs, hasher: hasher, minBytes: int64(minBytes)}
}

// File audits a single report.
func (a *Auditor) File(path string) (Finding, error) {
	out := Finding{Path: path}
	info, err := a.fs.Stat(path)
	if err != nil {
		return out, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return out, fmt.Errorf("%s is a directory", path)
	}
	out.SizeBytes = info.Size()

	if date, err := naming.DateFromFilename(path); err == nil {
		out.Date = date
	} else {
		out.Problems = append(out.Problems, ProblemBadName)
	}
	if out.SizeBytes < a.minBytes {
		out.Problems = append(out.Problems, ProblemTooSmall)
	}

	f, err := a.fs.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return out, fmt.Errorf("read %s: %w", path, err)
	}
	if !bytes.Equal(head[:n], pdfMagic) {
		out.Problems = append(out.Problems, ProblemNotPDF)
	}
	if a.hasher != nil {
		sum, err := a.hasher.HashReader(io.MultiReader(bytes.NewReader(head[:n]), f))
		if err != nil {
			return out, fmt.Errorf("hash %s: %w", path, err)
		}
		out.SHA256 = sum
	}
	return out, nil
}

// Dir audits every report-named file directly inside dir, oldest date first.
func (a *Auditor) Dir(dir string) ([]Finding, error) {
	matches, err := afero.Glob(a.fs, filepath.Join(dir, naming.Prefix+"*"+naming.Ext))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	findings := make([]Finding, 0, len(matches))
	for _, path := range matches {
		f, err := a.File(path)
		if err != nil {
			return findings, err
		}
		findings = append(findings, f)
	}
	return findings, nil
}
