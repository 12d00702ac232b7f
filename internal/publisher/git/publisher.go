// Package git commits stored reports to the working repository and pushes
// them upstream.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Config controls the git collaborator.
type Config struct {
	// RepoDir is the working tree the artifact lives in.
	RepoDir string
	Remote  string
	Branch  string
	// Push disables the push step when false; the local commit still happens.
	Push bool
	// Binary overrides the git executable.
	Binary string
}

// Runner executes one git command in dir.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs the git binary via os/exec.
type ExecRunner struct {
	Binary string
}

// Run implements Runner. Combined output is returned for diagnostics.
func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("git %s: %w", args[0], err)
	}
	return out.Bytes(), nil
}

// Publisher stages, commits and pushes each stored artifact.
type Publisher struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// New builds a Publisher. A nil runner uses ExecRunner.
func New(cfg Config, runner Runner, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.RepoDir) == "" {
		return nil, errors.New("git repo dir is required")
	}
	if runner == nil {
		runner = ExecRunner{Binary: cfg.Binary}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{cfg: cfg, runner: runner, logger: logger}, nil
}

// Name implements report.Publisher.
func (p *Publisher) Name() string {
	return "git"
}

// Publish commits the artifact. A clean tree is not an error and a failed push
// is logged but not returned: the local commit is kept.
func (p *Publisher) Publish(ctx context.Context, artifact report.Artifact) error {
	rel, err := p.relPath(artifact.File.Path)
	if err != nil {
		return err
	}
	if out, err := p.runner.Run(ctx, p.cfg.RepoDir, "add", "--", rel); err != nil {
		return fmt.Errorf("stage %s: %w: %s", rel, err, trim(out))
	}

	out, err := p.runner.Run(ctx, p.cfg.RepoDir, "commit", "-m", CommitMessage(artifact), "--", rel)
	if err != nil {
		if nothingToCommit(out) {
			p.logger.Info("git: nothing to commit", zap.String("path", rel))
			return nil
		}
		return fmt.Errorf("commit %s: %w: %s", rel, err, trim(out))
	}
	p.logger.Info("git: committed report", zap.String("path", rel))

	if !p.cfg.Push {
		return nil
	}
	args := []string{"push"}
	if p.cfg.Remote != "" {
		args = append(args, p.cfg.Remote)
		if p.cfg.Branch != "" {
			args = append(args, p.cfg.Branch)
		}
	}
	if out, err := p.runner.Run(ctx, p.cfg.RepoDir, args...); err != nil {
		p.logger.Warn("git: push failed, local commit kept",
			zap.String("path", rel),
			zap.Error(err),
			zap.String("output", trim(out)),
		)
		return nil
	}
	p.logger.Info("git: pushed report", zap.String("remote", p.cfg.Remote))
	return nil
}

// CommitMessage embeds the filename and the time the report was stored.
func CommitMessage(a report.Artifact) string {
	ts := a.StoredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("Add CSE daily report %s (%s)", a.File.Filename, ts.Format("2006-01-02 15:04:05"))
}

func (p *Publisher) relPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("artifact path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	repo, err := filepath.Abs(p.cfg.RepoDir)
	if err != nil {
		return "", fmt.Errorf("resolve repo dir: %w", err)
	}
	rel, err := filepath.Rel(repo, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s is outside repository %s", abs, repo)
	}
	return filepath.ToSlash(rel), nil
}

func nothingToCommit(out []byte) bool {
	s := strings.ToLower(string(out))
	return strings.Contains(s, "nothing to commit") || strings.Contains(s, "no changes added to commit")
}

func trim(out []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(out))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
