package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/app"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// newDownloadCmd creates the 'download' subcommand: one pipeline run.
func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the page and save today's report",
		Long: `Walks the configured endpoints (or renders the canonical page with
--mode=rendered), locates the report block, downloads the linked PDF and saves
it under the output directory. Configured mirrors, git and Pub/Sub publishers
run afterwards; their failures are logged but do not fail the run.`,
		Args: cobra.NoArgs,
		RunE: runDownloadCommand,
	}
	cmd.Flags().String("mode", "static", "page source: static, rendered or auto")
	cmd.Flags().Bool("git-push", false, "push the git commit upstream")
	return cmd
}

func runDownloadCommand(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	result, err := a.Download(ctx)
	if err != nil {
		return fmt.Errorf("download failed (%s): %w", report.Kind(err), err)
	}
	logSummary(e.logger, result)
	return nil
}

func logSummary(logger *zap.Logger, result report.Result) {
	art := result.Artifact
	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("filename", art.File.Filename),
		zap.String("path", art.File.Path),
		zap.Int64("size_bytes", art.File.SizeBytes),
		zap.String("sha256", art.SHA256),
		zap.String("source_url", art.SourceURL),
		zap.Time("stored_at", art.StoredAt),
		zap.Bool("date_from_page", art.DateFromPage),
		zap.Duration("duration", result.Duration),
	}
	if art.PublicationDate != nil {
		fields = append(fields, zap.String("publication_date", art.PublicationDate.Format("2006-01-02")))
	}
	logger.Info("report saved", fields...)
}
