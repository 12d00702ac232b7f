package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// LogSink renders pipeline events as structured logs. Warnings and failures
// are logged above info so operators can filter on level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []report.Event) error {
	for _, evt := range batch {
		level, msg := describe(evt)
		if ce := s.logger.Check(level, msg); ce != nil {
			ce.Write(fields(evt)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	_ = s.logger.Sync()
	return nil
}

func describe(evt report.Event) (zapcore.Level, string) {
	switch evt.Stage {
	case report.StageRunStart:
		return zapcore.InfoLevel, "run started"
	case report.StageEndpointAttempt:
		if evt.Err != nil {
			return zapcore.WarnLevel, "endpoint failed"
		}
		return zapcore.InfoLevel, "endpoint fetched"
	case report.StageRenderPromoted:
		return zapcore.InfoLevel, "static page needs rendering, switching to headless"
	case report.StageReportLocated:
		return zapcore.InfoLevel, "report container located"
	case report.StageReportMissing:
		return zapcore.ErrorLevel, "report container not found"
	case report.StageDateExtracted:
		return zapcore.InfoLevel, "publication date extracted"
	case report.StageDateFallback:
		return zapcore.WarnLevel, "publication date unavailable, using current date"
	case report.StageLinkFound:
		return zapcore.InfoLevel, "download link found"
	case report.StageLinkMissing:
		return zapcore.ErrorLevel, "download link not found"
	case report.StageDownloadDone:
		return zapcore.InfoLevel, "report downloaded"
	case report.StageSmallPayload:
		return zapcore.WarnLevel, "downloaded payload is suspiciously small"
	case report.StageSaved:
		return zapcore.InfoLevel, "report saved"
	case report.StagePublished:
		return zapcore.InfoLevel, "report published"
	case report.StagePublishFailed:
		return zapcore.WarnLevel, "publish failed"
	case report.StageRunDone:
		return zapcore.InfoLevel, "run completed"
	case report.StageRunFailed:
		return zapcore.ErrorLevel, "run failed"
	default:
		return zapcore.DebugLevel, "pipeline event"
	}
}

func fields(evt report.Event) []zap.Field {
	out := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
	}
	if evt.URL != "" {
		out = append(out, zap.String("url", evt.URL))
	}
	if evt.StatusCode != 0 {
		out = append(out, zap.Int("status", evt.StatusCode))
	}
	if evt.Strategy != "" {
		out = append(out, zap.String("strategy", evt.Strategy))
	}
	if evt.Value != "" {
		out = append(out, zap.String("value", evt.Value))
	}
	if evt.Path != "" {
		out = append(out, zap.String("path", evt.Path))
	}
	if evt.Bytes != 0 {
		out = append(out, zap.Int64("bytes", evt.Bytes))
	}
	if evt.Dur > 0 {
		out = append(out, zap.Duration("dur", evt.Dur))
	}
	if evt.Publisher != "" {
		out = append(out, zap.String("publisher", evt.Publisher))
	}
	if evt.Err != nil {
		out = append(out, zap.Error(evt.Err))
	}
	if evt.Stage == report.StageRunFailed {
		out = append(out, zap.String("error_kind", report.Kind(evt.Err)))
	}
	if evt.Census != nil {
		out = append(out,
			zap.String("page_title", evt.Census.Title),
			zap.Int("classed_divs", evt.Census.ClassedDivs),
			zap.Any("div_classes", evt.Census.ClassCounts),
			zap.Any("keywords", evt.Census.KeywordCounts),
		)
	}
	if evt.Stage == report.StageLinkMissing {
		out = append(out, zap.Int("anchor_total", evt.AnchorTotal), zap.Any("anchors", evt.Anchors))
	}
	return out
}
