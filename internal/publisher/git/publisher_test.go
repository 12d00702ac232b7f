package git

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	called := m.Called(ctx, dir, strings.Join(args, " "))
	out, _ := called.Get(0).([]byte)
	return out, called.Error(1)
}

func artifact() report.Artifact {
	return report.Artifact{
		File:     report.StoredFile{Path: "/repo/downloads/CSE_Daily_2024_03_15.pdf", Filename: "CSE_Daily_2024_03_15.pdf"},
		StoredAt: time.Date(2024, 3, 15, 18, 4, 5, 0, time.UTC),
	}
}

const commitArgs = "commit -m Add CSE daily report CSE_Daily_2024_03_15.pdf (2024-03-15 18:04:05) -- downloads/CSE_Daily_2024_03_15.pdf"

func TestPublishCommitsAndPushes(t *testing.T) {
	t.Parallel()

	r := &mockRunner{}
	ctx := context.Background()
	r.On("Run", ctx, "/repo", "add -- downloads/CSE_Daily_2024_03_15.pdf").Return([]byte(nil), nil).Once()
	r.On("Run", ctx, "/repo", commitArgs).Return([]byte("1 file changed"), nil).Once()
	r.On("Run", ctx, "/repo", "push origin main").Return([]byte(nil), nil).Once()

	p, err := New(Config{RepoDir: "/repo", Remote: "origin", Branch: "main", Push: true}, r, nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, artifact()))
	r.AssertExpectations(t)
}

func TestPublishNothingToCommitIsInformational(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	r := &mockRunner{}
	ctx := context.Background()
	r.On("Run", ctx, "/repo", mock.Anything).Return([]byte(nil), nil).Once()
	r.On("Run", ctx, "/repo", commitArgs).
		Return([]byte("On branch main\nnothing to commit, working tree clean"), errors.New("exit status 1")).Once()

	p, err := New(Config{RepoDir: "/repo", Push: true}, r, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, artifact()))
	r.AssertNumberOfCalls(t, "Run", 2)
	require.Equal(t, 1, logs.FilterMessage("git: nothing to commit").Len())
}

func TestPublishPushFailureWarnsOnly(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	r := &mockRunner{}
	ctx := context.Background()
	r.On("Run", ctx, "/repo", mock.Anything).Return([]byte(nil), nil).Twice()
	r.On("Run", ctx, "/repo", "push").Return([]byte("rejected"), errors.New("exit status 1")).Once()

	p, err := New(Config{RepoDir: "/repo", Push: true}, r, zap.New(core))
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, artifact()))

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "rejected", warns[0].ContextMap()["output"])
}

func TestPublishCommitFailureIsReturned(t *testing.T) {
	t.Parallel()

	r := &mockRunner{}
	ctx := context.Background()
	r.On("Run", ctx, "/repo", mock.Anything).Return([]byte(nil), nil).Once()
	r.On("Run", ctx, "/repo", commitArgs).Return([]byte("fatal: not a git repository"), errors.New("exit status 128")).Once()

	p, err := New(Config{RepoDir: "/repo", Push: true}, r, nil)
	require.NoError(t, err)
	err = p.Publish(ctx, artifact())
	require.ErrorContains(t, err, "not a git repository")
}

func TestPublishSkipsPushWhenDisabled(t *testing.T) {
	t.Parallel()

	r := &mockRunner{}
	ctx := context.Background()
	r.On("Run", ctx, "/repo", mock.Anything).Return([]byte(nil), nil).Twice()

	p, err := New(Config{RepoDir: "/repo"}, r, nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, artifact()))
	r.AssertNumberOfCalls(t, "Run", 2)
}

func TestRelPath(t *testing.T) {
	t.Parallel()

	p, err := New(Config{RepoDir: "/srv/reports"}, &mockRunner{}, nil)
	require.NoError(t, err)

	rel, err := p.relPath("/srv/reports/downloads/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "downloads/a.pdf", rel)

	rel, err = p.relPath("/srv/reports/..a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "..a.pdf", rel)

	_, err = p.relPath("/tmp/a.pdf")
	require.Error(t, err)
	_, err = p.relPath("")
	require.Error(t, err)

	_, err = New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestRelPathResolvesRelativeArtifacts(t *testing.T) {
	t.Parallel()

	// The working directory is internal/publisher/git.
	parent, err := New(Config{RepoDir: ".."}, &mockRunner{}, nil)
	require.NoError(t, err)
	rel, err := parent.relPath("downloads/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "git/downloads/a.pdf", rel)

	elsewhere, err := New(Config{RepoDir: t.TempDir()}, &mockRunner{}, nil)
	require.NoError(t, err)
	_, err = elsewhere.relPath("downloads/a.pdf")
	require.Error(t, err, "a cwd-relative artifact outside the repo must not be staged")
}
