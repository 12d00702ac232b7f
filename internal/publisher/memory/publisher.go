// Package memory contains an in-memory publisher used by tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Publisher records every artifact handed to it.
type Publisher struct {
	mu        sync.RWMutex
	artifacts []report.Artifact
	err       error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// NewFailing returns a Publisher that records artifacts and then fails with err.
func NewFailing(err error) *Publisher {
	return &Publisher{err: err}
}

// Name implements report.Publisher.
func (p *Publisher) Name() string {
	return "memory"
}

// Publish records the artifact. The payload is not retained.
func (p *Publisher) Publish(_ context.Context, artifact report.Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	artifact.Payload = nil
	p.artifacts = append(p.artifacts, artifact)
	return p.err
}

// Artifacts returns the recorded publishes.
func (p *Publisher) Artifacts() []report.Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]report.Artifact, len(p.artifacts))
	copy(out, p.artifacts)
	return out
}
