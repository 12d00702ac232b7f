package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Name implements report.Publisher.
func (l *Ledger) Name() string {
	return "ledger"
}

// Publish records one stored artifact. A filename already in the ledger is
// left untouched.
func (l *Ledger) Publish(ctx context.Context, artifact report.Artifact) error {
	if artifact.File.Filename == "" {
		return fmt.Errorf("artifact filename is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	filename,
	run_id,
	path,
	size_bytes,
	sha256,
	source_url,
	page_url,
	publication_date,
	date_from_page,
	stored_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (filename) DO NOTHING`, l.artifacts)

	args := []any{
		artifact.File.Filename,
		artifact.RunID,
		artifact.File.Path,
		artifact.File.SizeBytes,
		nullable(artifact.SHA256),
		artifact.SourceURL,
		nullable(artifact.PageURL),
		artifact.PublicationDate,
		artifact.DateFromPage,
		artifact.StoredAt,
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ report.Publisher = (*Ledger)(nil)
