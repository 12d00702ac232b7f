package report

import (
	"context"
	"time"

	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
)

// Fetcher fetches one URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageSource yields the page the locator works on, either by walking the
// endpoint list or by rendering the canonical URL.
type PageSource interface {
	Page(ctx context.Context, obs Observer) (FetchResponse, error)
}

// Namer derives the artifact filename from the extracted date text.
type Namer interface {
	Name(dateText string) naming.Name
}

// Resolver turns a raw href into an absolute URL.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// Downloader retrieves the binary artifact.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ArtifactStore persists payloads without overwriting and keeps the debug dump.
type ArtifactStore interface {
	Save(ctx context.Context, filename string, data []byte) (StoredFile, error)
	SaveDebug(ctx context.Context, body []byte) (string, error)
}

// Publisher is a post-save collaborator (VCS push, mirror, ledger, notifier).
// Its failures are reported but never fail the run.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, artifact Artifact) error
}

// Hasher computes payload digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
