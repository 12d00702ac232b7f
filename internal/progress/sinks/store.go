package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
)

// StoreSink persists run lifecycle rows via a store.RunRepository.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run start and completion events to the repository. Events
// without a run ID are skipped.
func (s *StoreSink) Consume(ctx context.Context, batch []report.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.RunID == "" {
			continue
		}
		switch evt.Stage {
		case report.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case report.StageRunDone:
			c := store.Completion{FinishedAt: evt.TS, Status: store.RunSuccess}
			if evt.Value != "" {
				name := evt.Value
				c.Filename = &name
			}
			if err := s.repo.CompleteRun(ctx, evt.RunID, c); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case report.StageRunFailed:
			kind := report.Kind(evt.Err)
			c := store.Completion{FinishedAt: evt.TS, Status: store.RunError, ErrorKind: &kind}
			if evt.Err != nil {
				msg := evt.Err.Error()
				c.ErrorMessage = &msg
			}
			if err := s.repo.CompleteRun(ctx, evt.RunID, c); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
