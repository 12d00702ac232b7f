// Package local_test tests the local artifact store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
	"github.com/JakeFAU/cse-daily-fetcher/internal/storage/local"
)

type counterNames struct{}

func (counterNames) Disambiguate(filename string, attempt int) string {
	return naming.New(nil, naming.ModeCounter).Disambiguate(filename, attempt)
}

func newStore(t *testing.T, fs afero.Fs) *local.BlobStore {
	t.Helper()
	store, err := local.New(fs, local.Config{BaseDir: "/out"}, counterNames{})
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Run("CreatesMissingDir", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		_ = newStore(t, fs)
		ok, err := afero.DirExists(fs, "/out")
		require.NoError(t, err)
		assert.True(t, ok)
		gone, err := afero.Exists(fs, "/out/.writable_test")
		require.NoError(t, err)
		assert.False(t, gone)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{}, counterNames{})
		assert.Error(t, err)
	})

	t.Run("MissingDisambiguator", func(t *testing.T) {
		_, err := local.New(afero.NewMemMapFs(), local.Config{BaseDir: "/out"}, nil)
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0o600))
		_, err := local.New(fs, local.Config{BaseDir: "/file"}, counterNames{})
		assert.Error(t, err)
	})

	t.Run("ReadOnlyFs", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/out", 0o750))
		_, err := local.New(afero.NewReadOnlyFs(base), local.Config{BaseDir: "/out"}, counterNames{})
		assert.Error(t, err)
	})
}

func TestSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)
	ctx := context.Background()

	first, err := store.Save(ctx, "CSE_Daily_2025_01_15.pdf", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, report.StoredFile{
		Path:      filepath.Join("/out", "CSE_Daily_2025_01_15.pdf"),
		Filename:  "CSE_Daily_2025_01_15.pdf",
		SizeBytes: 5,
	}, first)

	second, err := store.Save(ctx, "CSE_Daily_2025_01_15.pdf", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, "CSE_Daily_2025_01_15_1.pdf", second.Filename)
	assert.NotEqual(t, first.Path, second.Path)

	original, err := afero.ReadFile(fs, first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(original), "existing artifact must never be overwritten")

	exists, err := store.Exists("CSE_Daily_2025_01_15_1.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveRejectsTraversal(t *testing.T) {
	store := newStore(t, afero.NewMemMapFs())
	_, err := store.Save(context.Background(), "../escape.pdf", []byte("x"))
	assert.ErrorIs(t, err, report.ErrFilesystemWriteFailed)

	_, err = store.Save(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, report.ErrFilesystemWriteFailed)
}

func TestSaveCanceled(t *testing.T) {
	store := newStore(t, afero.NewMemMapFs())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Save(ctx, "a.pdf", []byte("x"))
	assert.Error(t, err)
}

func TestSaveDebugOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := newStore(t, fs)

	path, err := store.SaveDebug(context.Background(), []byte("<html>one</html>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", local.DefaultDebugFile), path)

	_, err = store.SaveDebug(context.Background(), []byte("<html>two</html>"))
	require.NoError(t, err)
	got, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "<html>two</html>", string(got))
}

func TestSaveOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(afero.NewOsFs(), local.Config{BaseDir: filepath.Join(dir, "downloads")}, counterNames{})
	require.NoError(t, err)

	stored, err := store.Save(context.Background(), "CSE_Daily_2025_01_15.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}
