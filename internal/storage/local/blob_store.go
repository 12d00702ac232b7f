// Package local implements the on-disk artifact store for downloaded reports.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// DefaultDebugFile is written when the report block cannot be located.
const DefaultDebugFile = "debug_page.html"

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the output directory; it is created if absent.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// DebugFile is the name of the raw page dump inside BaseDir.
	DebugFile string `mapstructure:"debug_file" yaml:"debug_file"`
}

// Disambiguator yields sibling names for a filename that is already taken.
type Disambiguator interface {
	Disambiguate(filename string, attempt int) string
}

// BlobStore writes report artifacts without ever overwriting an existing file.
type BlobStore struct {
	fs        afero.Fs
	baseDir   string
	debugFile string
	names     Disambiguator
}

// New creates the store, creating BaseDir and checking that it is writable.
func New(fs afero.Fs, cfg Config, names Disambiguator) (*BlobStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if names == nil {
		return nil, fmt.Errorf("disambiguator is required")
	}

	info, err := fs.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := fs.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := afero.WriteFile(fs, testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := fs.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	debugFile := cfg.DebugFile
	if debugFile == "" {
		debugFile = DefaultDebugFile
	}
	return &BlobStore{
		fs:        fs,
		baseDir:   cfg.BaseDir,
		debugFile: debugFile,
		names:     names,
	}, nil
}

// Exists reports whether filename is already present in the output directory.
func (s *BlobStore) Exists(filename string) (bool, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Save writes data under filename, or under the first free disambiguated
// sibling when filename is taken. The create is exclusive so a file that
// appears between the existence check and the write is never clobbered.
func (s *BlobStore) Save(ctx context.Context, filename string, data []byte) (report.StoredFile, error) {
	for attempt := 0; attempt < naming.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return report.StoredFile{}, fmt.Errorf("context canceled: %w", err)
		}
		candidate := s.names.Disambiguate(filename, attempt)
		taken, err := s.Exists(candidate)
		if err != nil {
			return report.StoredFile{}, fmt.Errorf("%w: %w", report.ErrFilesystemWriteFailed, err)
		}
		if taken {
			continue
		}
		stored, err := s.create(candidate, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return report.StoredFile{}, fmt.Errorf("%w: %w", report.ErrFilesystemWriteFailed, err)
		}
		return stored, nil
	}
	return report.StoredFile{}, fmt.Errorf("%w: %w for %s", report.ErrFilesystemWriteFailed, naming.ErrNoFreeName, filename)
}

// SaveDebug writes the raw page to the debug file, replacing any previous dump.
func (s *BlobStore) SaveDebug(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	path, err := s.resolve(s.debugFile)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, path, body, 0o600); err != nil {
		return "", fmt.Errorf("write debug page %s: %w", path, err)
	}
	return path, nil
}

func (s *BlobStore) create(filename string, data []byte) (report.StoredFile, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return report.StoredFile{}, err
	}
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return report.StoredFile{}, fmt.Errorf("create %s: %w", path, err)
	}
	n, writeErr := f.Write(data)
	closeErr := f.Close()
	if writeErr != nil {
		return report.StoredFile{}, fmt.Errorf("write %s: %w", path, writeErr)
	}
	if closeErr != nil {
		return report.StoredFile{}, fmt.Errorf("close %s: %w", path, closeErr)
	}
	return report.StoredFile{
		Path:      path,
		Filename:  filename,
		SizeBytes: int64(n),
	}, nil
}

// resolve joins filename onto the base directory and rejects traversal.
func (s *BlobStore) resolve(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleanBase := filepath.Clean(s.baseDir)
	full := filepath.Clean(filepath.Join(cleanBase, filename))
	if filepath.Dir(full) != cleanBase {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
