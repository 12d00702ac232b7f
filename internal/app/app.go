// Package app builds the downloader's collaborators from configuration and
// owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/clock/system"
	"github.com/JakeFAU/cse-daily-fetcher/internal/config"
	"github.com/JakeFAU/cse-daily-fetcher/internal/discover"
	"github.com/JakeFAU/cse-daily-fetcher/internal/download"
	collyfetcher "github.com/JakeFAU/cse-daily-fetcher/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/cse-daily-fetcher/internal/fetcher/headless"
	"github.com/JakeFAU/cse-daily-fetcher/internal/hash/sha256"
	"github.com/JakeFAU/cse-daily-fetcher/internal/headless/detector"
	"github.com/JakeFAU/cse-daily-fetcher/internal/id/uuid"
	"github.com/JakeFAU/cse-daily-fetcher/internal/metrics"
	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
	"github.com/JakeFAU/cse-daily-fetcher/internal/progress"
	progresssinks "github.com/JakeFAU/cse-daily-fetcher/internal/progress/sinks"
	gitpublisher "github.com/JakeFAU/cse-daily-fetcher/internal/publisher/git"
	gcppublisher "github.com/JakeFAU/cse-daily-fetcher/internal/publisher/pubsub"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
	gcsstorage "github.com/JakeFAU/cse-daily-fetcher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cse-daily-fetcher/internal/storage/local"
	memorystorage "github.com/JakeFAU/cse-daily-fetcher/internal/storage/memory"
	pgstore "github.com/JakeFAU/cse-daily-fetcher/internal/storage/postgres"
	s3storage "github.com/JakeFAU/cse-daily-fetcher/internal/storage/s3"
	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
	"github.com/JakeFAU/cse-daily-fetcher/internal/telemetry"
)

// ErrAlreadyRan is returned when Download is called a second time.
var ErrAlreadyRan = errors.New("download already ran")

// Option overrides a collaborator, primarily for testing.
type Option func(*overrides)

type overrides struct {
	fs         afero.Fs
	fetcher    report.Fetcher
	renderer   report.Fetcher
	clock      report.Clock
	publishers []report.Publisher
	runs       store.RunRepository
	gitRunner  gitpublisher.Runner
	traceOpts  []sdktrace.TracerProviderOption
}

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *overrides) { o.fs = fs }
}

// WithFetcher replaces the static page fetcher, or the renderer in rendered mode.
func WithFetcher(f report.Fetcher) Option {
	return func(o *overrides) { o.fetcher = f }
}

// WithRenderer replaces the headless fetcher used in auto mode.
func WithRenderer(f report.Fetcher) Option {
	return func(o *overrides) { o.renderer = f }
}

// WithClock replaces the system clock.
func WithClock(c report.Clock) Option {
	return func(o *overrides) { o.clock = c }
}

// WithPublishers appends publishers after the configured ones.
func WithPublishers(p ...report.Publisher) Option {
	return func(o *overrides) { o.publishers = append(o.publishers, p...) }
}

// WithRunRepository replaces the run history store.
func WithRunRepository(r store.RunRepository) Option {
	return func(o *overrides) { o.runs = r }
}

// WithGitRunner replaces the git command runner.
func WithGitRunner(r gitpublisher.Runner) Option {
	return func(o *overrides) { o.gitRunner = r }
}

// WithTraceOptions adds tracer provider options, such as an in-memory exporter.
func WithTraceOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(o *overrides) { o.traceOpts = append(o.traceOpts, opts...) }
}

// App contains the downloader's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	opts            overrides
	clock           report.Clock
	namer           *naming.Namer
	pipeline        *report.Pipeline
	registry        *prometheus.Registry
	progressHub     *progress.Hub
	pusher          *metrics.Pusher
	runs            store.RunRepository
	publishers      []report.Publisher
	headless        *headlessfetcher.Fetcher
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	ledger          *pgstore.Ledger
	tracing         *telemetry.Tracing
	ran             atomic.Bool
}

// Build creates the application's dependencies. Optional collaborators are
// only constructed when configured; a misconfigured one fails fast.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(&app.opts)
	}
	if app.opts.fs == nil {
		app.opts.fs = afero.NewOsFs()
	}

	app.logger.Info("building application dependencies", zap.String("mode", cfg.Source.Mode))
	if err := app.setupClock(); err != nil {
		return nil, err
	}
	if err := app.setupTelemetry(ctx); err != nil {
		return nil, err
	}
	if err := app.setupLedger(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupPublishers(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupProgress(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupPipeline(); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runs returns the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Download executes one pipeline run, flushes progress sinks and pushes
// metrics when a Pushgateway is configured. It may be called once.
func (a *App) Download(ctx context.Context) (report.Result, error) {
	if !a.ran.CompareAndSwap(false, true) {
		return report.Result{}, ErrAlreadyRan
	}
	ctx, span := a.tracing.Tracer().Start(ctx, "cse.download")
	result, runErr := a.pipeline.Run(ctx)
	span.SetAttributes(
		attribute.String("cse.run_id", result.RunID),
		attribute.String("cse.outcome", report.Kind(runErr)),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, report.Kind(runErr))
	} else {
		span.SetAttributes(
			attribute.String("cse.filename", result.Artifact.File.Filename),
			attribute.Int64("cse.size_bytes", result.Artifact.File.SizeBytes),
		)
	}
	span.End()

	// The hub is asynchronous; close it so every sink has seen the run
	// before metrics are gathered.
	if err := a.progressHub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	if a.pusher != nil {
		if err := a.pusher.Push(ctx, a.registry); err != nil {
			a.logger.Warn("metrics push failed", zap.Error(err))
		} else {
			a.logger.Debug("metrics pushed", zap.String("url", a.cfg.Metrics.PushURL))
		}
	}
	return result, runErr
}

// Close releases every client the App opened.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", zap.Error(err))
	}
}

func (a *App) setupTelemetry(ctx context.Context) error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	tracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  a.cfg.Telemetry.ServiceName,
		OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
		Headers:      a.cfg.Telemetry.Headers,
	}, a.opts.traceOpts...)
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	a.tracing = tracing
	if a.cfg.Telemetry.OTLPEndpoint != "" {
		a.logger.Info("trace export enabled", zap.String("endpoint", a.cfg.Telemetry.OTLPEndpoint))
	}
	return nil
}

func (a *App) setupClock() error {
	if a.opts.clock != nil {
		a.clock = a.opts.clock
	} else {
		tz := a.cfg.Output.Timezone
		if tz == "" {
			tz = "UTC"
		}
		clock, err := system.NewInZone(tz)
		if err != nil {
			return fmt.Errorf("clock init failed: %w", err)
		}
		a.clock = clock
	}
	a.namer = naming.New(a.clock, naming.Mode(a.cfg.Output.Disambiguator))
	return nil
}

func (a *App) setupLedger(ctx context.Context) error {
	if a.opts.runs != nil {
		a.runs = a.opts.runs
	}
	if a.cfg.Ledger.DSN == "" {
		if a.runs == nil {
			a.logger.Debug("no ledger DSN configured, keeping run history in memory")
			a.runs = memorystorage.NewRunStore()
		}
		return nil
	}
	ledger, err := pgstore.Open(ctx, pgstore.Config{
		DSN:            a.cfg.Ledger.DSN,
		RunsTable:      a.cfg.Ledger.RunsTable,
		ArtifactsTable: a.cfg.Ledger.ArtifactsTable,
	})
	if err != nil {
		return fmt.Errorf("ledger init failed: %w", err)
	}
	a.ledger = ledger
	if a.cfg.Ledger.EnsureSchema {
		if err := ledger.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ledger schema: %w", err)
		}
	}
	if a.runs == nil {
		a.runs = ledger
	}
	a.logger.Info("ledger initialized")
	return nil
}

//nolint:gocognit // one branch per optional collaborator
func (a *App) setupPublishers(ctx context.Context) error {
	if git := a.cfg.Publish.Git; git.Enabled {
		pub, err := gitpublisher.New(gitpublisher.Config{
			RepoDir: git.RepoDir,
			Remote:  git.Remote,
			Branch:  git.Branch,
			Push:    git.Push,
		}, a.opts.gitRunner, a.logger.Named("git"))
		if err != nil {
			return fmt.Errorf("git publisher init failed: %w", err)
		}
		a.publishers = append(a.publishers, pub)
		a.logger.Info("git publisher enabled", zap.Bool("push", git.Push))
	}

	if gcs := a.cfg.Mirror.GCS; gcs.Bucket != "" {
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		mirror, err := gcsstorage.New(a.storage, gcsstorage.Config{Bucket: gcs.Bucket, Prefix: gcs.Prefix})
		if err != nil {
			return fmt.Errorf("gcs mirror init failed: %w", err)
		}
		if err := mirror.CheckBucket(ctx); err != nil {
			return err
		}
		a.publishers = append(a.publishers, mirror)
		a.logger.Info("GCS mirror enabled", zap.String("bucket", gcs.Bucket))
	}

	if s3 := a.cfg.Mirror.S3; s3.Endpoint != "" {
		mirror, err := s3storage.New(s3storage.Config{
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			UseSSL:          s3.UseSSL,
			Region:          s3.Region,
			CreateBucket:    s3.CreateBucket,
		})
		if err != nil {
			return fmt.Errorf("s3 mirror init failed: %w", err)
		}
		if err := mirror.InitBucket(ctx); err != nil {
			return fmt.Errorf("s3 mirror init failed: %w", err)
		}
		a.publishers = append(a.publishers, mirror)
		a.logger.Info("S3 mirror enabled", zap.String("endpoint", s3.Endpoint), zap.String("bucket", s3.Bucket))
	}

	if ps := a.cfg.Publish.PubSub; ps.ProjectID != "" && ps.TopicName != "" {
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, ps.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubPublisher = gcppublisher.New(a.pubsubClient.Publisher(ps.TopicName))
		a.publishers = append(a.publishers, a.pubsubPublisher)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", ps.ProjectID),
			zap.String("topic", ps.TopicName),
		)
	}

	if a.ledger != nil {
		a.publishers = append(a.publishers, a.ledger)
	}
	a.publishers = append(a.publishers, a.opts.publishers...)
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	a.registry = prometheus.NewRegistry()
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("pipeline")),
		promSink,
		progresssinks.NewStoreSink(a.runs, a.logger.Named("run_store")),
	}
	a.progressHub = progress.NewHub(progress.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("progress_hub"),
	}, sinkList...)

	if a.cfg.Metrics.PushURL != "" {
		a.pusher, err = metrics.NewPusher(metrics.PushConfig{
			URL:      a.cfg.Metrics.PushURL,
			Job:      a.cfg.Metrics.Job,
			Instance: a.cfg.Metrics.Instance,
			Timeout:  a.cfg.Metrics.Timeout,
		})
		if err != nil {
			return fmt.Errorf("metrics pusher init failed: %w", err)
		}
		a.logger.Info("metrics push enabled", zap.String("url", a.cfg.Metrics.PushURL))
	}
	return nil
}

func (a *App) setupPipeline() error {
	headers := RequestHeaders(a.cfg.HTTP)
	source, err := a.setupSource(headers)
	if err != nil {
		return err
	}
	resolver, err := download.NewResolver(a.cfg.Source.SiteBase, a.cfg.Source.ReportDir)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	blobStore, err := localstorage.New(a.opts.fs, localstorage.Config{
		BaseDir:   a.cfg.Output.Dir,
		DebugFile: a.cfg.Output.DebugFile,
	}, a.namer)
	if err != nil {
		return fmt.Errorf("local store init failed: %w", err)
	}
	a.pipeline, err = report.NewPipeline(report.Config{
		MinPayloadBytes: a.cfg.Output.MinPayloadBytes,
	}, report.Dependencies{
		Source:     source,
		Namer:      a.namer,
		Resolver:   resolver,
		Downloader: download.New(download.Config{Timeout: a.cfg.HTTP.DownloadTimeout, Headers: headers}),
		Store:      blobStore,
		Publishers: a.publishers,
		Hasher:     sha256.New(),
		Clock:      a.clock,
		IDs:        uuid.New(),
		Observer:   a.progressHub,
	})
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	a.logger.Info("pipeline ready",
		zap.String("output_dir", a.cfg.Output.Dir),
		zap.Int("publishers", len(a.publishers)),
	)
	return nil
}

func (a *App) setupSource(headers http.Header) (report.PageSource, error) {
	switch a.cfg.Source.Mode {
	case config.ModeRendered:
		a.logger.Info("using headless fetcher", zap.String("url", a.cfg.Source.CanonicalURL))
		return a.renderedSource(headers)
	case config.ModeAuto:
		static, err := a.staticSource(headers)
		if err != nil {
			return nil, err
		}
		rendered, err := a.renderedSource(headers)
		if err != nil {
			return nil, err
		}
		a.logger.Info("using colly fetcher with headless promotion",
			zap.Strings("endpoints", a.cfg.Source.Endpoints),
			zap.String("render_url", a.cfg.Source.CanonicalURL),
		)
		promoter := detector.NewHeuristic(a.cfg.Headless.PromotionThreshold, discover.NewLocator())
		return report.NewPromotingSource(static, rendered, promoter)
	default:
		a.logger.Info("using colly fetcher", zap.Strings("endpoints", a.cfg.Source.Endpoints))
		return a.staticSource(headers)
	}
}

func (a *App) staticSource(headers http.Header) (*report.EndpointSource, error) {
	fetcher := a.opts.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.HTTP.UserAgent,
			Timeout:   a.cfg.HTTP.PageTimeout,
		})
	}
	return report.NewEndpointSource(a.cfg.Source.Endpoints, headers, fetcher)
}

func (a *App) renderedSource(headers http.Header) (*report.RenderedSource, error) {
	fetcher := a.opts.renderer
	if fetcher == nil && a.cfg.Source.Mode == config.ModeRendered {
		fetcher = a.opts.fetcher
	}
	if fetcher == nil {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         a.cfg.HTTP.UserAgent,
			WaitSelector:      a.cfg.Headless.WaitSelector,
			WaitTimeout:       a.cfg.Headless.WaitTimeout,
			NavigationTimeout: a.cfg.Headless.NavigationTimeout,
			ExecPath:          a.cfg.Headless.ExecPath,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = hf
		fetcher = hf
	}
	return report.NewRenderedSource(a.cfg.Source.CanonicalURL, headers, fetcher)
}

// RequestHeaders is the browser-identifying header profile sent with every
// page and download request.
func RequestHeaders(cfg config.HTTPConfig) http.Header {
	h := http.Header{}
	set := func(key, value string) {
		if value != "" {
			h.Set(key, value)
		}
	}
	set("User-Agent", cfg.UserAgent)
	set("Accept", cfg.Accept)
	set("Accept-Language", cfg.AcceptLanguage)
	set("Connection", cfg.Connection)
	return h
}
