package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/cse-daily-fetcher/internal/discover"
	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
)

const (
	// DefaultMinPayloadBytes is the size below which a download is suspicious.
	DefaultMinPayloadBytes = 1000
	anchorDumpLimit        = 10
)

// Config tunes pipeline behavior.
type Config struct {
	// MinPayloadBytes triggers a warning, not an error, for smaller payloads.
	MinPayloadBytes int
}

// Dependencies are the collaborators a Pipeline drives. Publishers, Hasher,
// IDs and Observer are optional.
type Dependencies struct {
	Source     PageSource
	Locator    *discover.Locator
	Extractor  *discover.Extractor
	Namer      Namer
	Resolver   Resolver
	Downloader Downloader
	Store      ArtifactStore
	Publishers []Publisher
	Hasher     Hasher
	Clock      Clock
	IDs        IDGenerator
	Observer   Observer
}

// Pipeline runs one sequential discovery and download pass:
// fetch, locate, extract, name, resolve, download, save, publish.
type Pipeline struct {
	cfg  Config
	deps Dependencies
}

// NewPipeline validates the required collaborators.
func NewPipeline(cfg Config, deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("page source is required")
	case deps.Namer == nil:
		return nil, errors.New("namer is required")
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Downloader == nil:
		return nil, errors.New("downloader is required")
	case deps.Store == nil:
		return nil, errors.New("artifact store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if deps.Locator == nil {
		deps.Locator = discover.NewLocator()
	}
	if deps.Extractor == nil {
		deps.Extractor = discover.NewExtractor(nil, nil)
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if cfg.MinPayloadBytes <= 0 {
		cfg.MinPayloadBytes = DefaultMinPayloadBytes
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run executes the pipeline once. Every returned error is fatal for the run
// and matches one of the package's sentinel errors.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.deps.Clock.Now()
	runID := p.newRunID()
	obs := stamped{runID: runID, clock: p.deps.Clock, next: p.deps.Observer}
	obs.Observe(Event{Stage: StageRunStart})

	result, err := p.run(ctx, obs)
	result.RunID = runID
	result.Duration = p.deps.Clock.Now().Sub(start)
	if err != nil {
		obs.Observe(Event{Stage: StageRunFailed, Err: err, Dur: result.Duration})
		return result, err
	}
	obs.Observe(Event{
		Stage: StageRunDone,
		Value: result.Artifact.File.Filename,
		Path:  result.Artifact.File.Path,
		Bytes: result.Artifact.File.SizeBytes,
		URL:   result.Artifact.SourceURL,
		Dur:   result.Duration,
	})
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, obs Observer) (Result, error) {
	page, err := p.deps.Source.Page(ctx, obs)
	if err != nil {
		return Result{}, err
	}

	container, err := p.locate(ctx, page, obs)
	if err != nil {
		return Result{}, err
	}
	record := ReportRecord{PageURL: page.URL, ContainerStrategy: container.Strategy}

	name := p.name(container, &record, obs)

	ref, ok := p.deps.Extractor.DownloadRef(container)
	if !ok {
		total, anchors := discover.Anchors(container.Selection, anchorDumpLimit)
		obs.Observe(Event{Stage: StageLinkMissing, URL: page.URL, AnchorTotal: total, Anchors: anchors})
		return Result{Record: record}, fmt.Errorf("%w in container %s", ErrDownloadLinkNotFound, container.Strategy)
	}
	record.DownloadRef = ref.Value

	absURL, err := p.deps.Resolver.Resolve(ref.Value)
	if err != nil {
		return Result{Record: record}, fmt.Errorf("%w: %w", ErrDownloadLinkNotFound, err)
	}
	obs.Observe(Event{Stage: StageLinkFound, Strategy: ref.Strategy, Value: ref.Value, URL: absURL})

	artifact, err := p.download(ctx, absURL, name.Filename, obs)
	if err != nil {
		return Result{Record: record}, err
	}

	stored, err := p.deps.Store.Save(ctx, artifact.Filename, artifact.Payload)
	if err != nil {
		if !errors.Is(err, ErrFilesystemWriteFailed) {
			err = fmt.Errorf("%w: %w", ErrFilesystemWriteFailed, err)
		}
		return Result{Record: record}, err
	}
	obs.Observe(Event{Stage: StageSaved, Value: stored.Filename, Path: stored.Path, Bytes: stored.SizeBytes})

	out := Artifact{
		File:            stored,
		SourceURL:       absURL,
		PageURL:         page.URL,
		PublicationDate: record.PublicationDate,
		DateFromPage:    name.FromPage,
		Payload:         artifact.Payload,
		StoredAt:        p.deps.Clock.Now(),
	}
	if s, ok := obs.(stamped); ok {
		out.RunID = s.runID
	}
	if p.deps.Hasher != nil {
		if digest, err := p.deps.Hasher.Hash(artifact.Payload); err == nil {
			out.SHA256 = digest
		}
	}
	p.publish(ctx, out, obs)
	return Result{Record: record, Artifact: out}, nil
}

func (p *Pipeline) locate(ctx context.Context, page FetchResponse, obs Observer) (discover.Container, error) {
	doc, err := discover.Parse(page.Body)
	if err != nil {
		return discover.Container{}, fmt.Errorf("%w: %w", ErrReportBlockNotFound, err)
	}
	container, ok := p.deps.Locator.Locate(doc)
	if ok {
		obs.Observe(Event{Stage: StageReportLocated, URL: page.URL, Strategy: container.Strategy})
		return container, nil
	}

	census := discover.TakeCensus(doc)
	evt := Event{Stage: StageReportMissing, URL: page.URL, Census: &census}
	if path, derr := p.deps.Store.SaveDebug(ctx, page.Body); derr != nil {
		evt.Err = derr
	} else {
		evt.Path = path
	}
	obs.Observe(evt)
	return discover.Container{}, fmt.Errorf("%w: none of %d matchers hit %s",
		ErrReportBlockNotFound, len(p.deps.Locator.Strategies()), page.URL)
}

// name extracts the date and derives the filename. It never fails.
func (p *Pipeline) name(container discover.Container, record *ReportRecord, obs Observer) naming.Name {
	match, found := p.deps.Extractor.Date(container, naming.Parseable)
	record.DateText = match.Value
	name := p.deps.Namer.Name(match.Value)
	switch {
	case name.FromPage:
		date := name.Date
		record.PublicationDate = &date
		obs.Observe(Event{Stage: StageDateExtracted, Strategy: match.Strategy, Value: name.Filename, Path: match.Value})
	case found:
		obs.Observe(Event{Stage: StageDateFallback, Strategy: match.Strategy, Value: name.Filename, Err: name.ParseErr})
	default:
		obs.Observe(Event{Stage: StageDateFallback, Value: name.Filename, Err: errors.New("no date element found")})
	}
	return name
}

func (p *Pipeline) download(ctx context.Context, url, filename string, obs Observer) (ResolvedArtifact, error) {
	start := p.deps.Clock.Now()
	payload, err := p.deps.Downloader.Download(ctx, url)
	if err != nil {
		if !errors.Is(err, ErrDownloadFailed) {
			err = fmt.Errorf("%w: %w", ErrDownloadFailed, err)
		}
		return ResolvedArtifact{}, err
	}
	obs.Observe(Event{
		Stage: StageDownloadDone,
		URL:   url,
		Bytes: int64(len(payload)),
		Dur:   p.deps.Clock.Now().Sub(start),
	})
	if len(payload) < p.cfg.MinPayloadBytes {
		obs.Observe(Event{Stage: StageSmallPayload, URL: url, Bytes: int64(len(payload))})
	}
	return ResolvedArtifact{AbsoluteURL: url, Filename: filename, Payload: payload}, nil
}

func (p *Pipeline) publish(ctx context.Context, artifact Artifact, obs Observer) {
	for _, pub := range p.deps.Publishers {
		if err := pub.Publish(ctx, artifact); err != nil {
			obs.Observe(Event{Stage: StagePublishFailed, Publisher: pub.Name(), Path: artifact.File.Path, Err: err})
			continue
		}
		obs.Observe(Event{Stage: StagePublished, Publisher: pub.Name(), Path: artifact.File.Path})
	}
}

func (p *Pipeline) newRunID() string {
	if p.deps.IDs == nil {
		return ""
	}
	id, err := p.deps.IDs.NewID()
	if err != nil {
		return ""
	}
	return id
}

// Inspect runs the locator and extractor over a saved page without touching
// the network or the filesystem.
func Inspect(body []byte, locator *discover.Locator, extractor *discover.Extractor, namer Namer) (Inspection, error) {
	doc, err := discover.Parse(body)
	if err != nil {
		return Inspection{}, fmt.Errorf("%w: %w", ErrReportBlockNotFound, err)
	}
	container, ok := locator.Locate(doc)
	if !ok {
		return Inspection{}, ErrReportBlockNotFound
	}
	out := Inspection{ContainerStrategy: container.Strategy}
	date, _ := extractor.Date(container, naming.Parseable)
	out.DateText, out.DateStrategy = date.Value, date.Strategy
	name := namer.Name(date.Value)
	out.Filename, out.DateFromPage = name.Filename, name.FromPage
	ref, ok := extractor.DownloadRef(container)
	if !ok {
		return out, ErrDownloadLinkNotFound
	}
	out.DownloadRef, out.LinkStrategy = ref.Value, ref.Strategy
	return out, nil
}
