package app_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/cse-daily-fetcher/internal/app"
	"github.com/JakeFAU/cse-daily-fetcher/internal/config"
	memorypublisher "github.com/JakeFAU/cse-daily-fetcher/internal/publisher/memory"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
	memorystorage "github.com/JakeFAU/cse-daily-fetcher/internal/storage/memory"
	"github.com/JakeFAU/cse-daily-fetcher/internal/store"
)

const reportPage = `<html><head><title>CSE Daily</title></head><body>
<div class="rules-block">
  <span class="date">15 Jan 2025</span>
  <a class="dropdown-button" href="/reports/x.pdf">Download</a>
</div>
</body></html>`

const changedPage = `<html><head><title>Maintenance</title></head><body>
<div class="hero">Nothing to see</div>
</body></html>`

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	called := m.Called(ctx, dir, args)
	out, _ := called.Get(0).([]byte)
	return out, called.Error(1)
}

type pushRecorder struct {
	mu     sync.Mutex
	method string
	path   string
	body   []byte
}

func newSite(t *testing.T, page string, pdf []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/daily", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})
	mux.HandleFunc("/reports/x.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, siteURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Source.Endpoints = []string{siteURL + "/broken", siteURL + "/daily"}
	cfg.Source.SiteBase = siteURL
	cfg.Source.ReportDir = siteURL + "/pages/"
	cfg.HTTP.PageTimeout = 5 * time.Second
	cfg.HTTP.DownloadTimeout = 5 * time.Second
	cfg.Output.Dir = "downloads"
	require.NoError(t, cfg.Validate())
	return cfg
}

func pdfPayload() []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 2048)...)
}

func TestDownloadEndToEnd(t *testing.T) {
	pdf := pdfPayload()
	site := newSite(t, reportPage, pdf)

	var pushed pushRecorder
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		pushed.mu.Lock()
		pushed.method, pushed.path, pushed.body = r.Method, r.URL.Path, body
		pushed.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gateway.Close)

	cfg := testConfig(t, site.URL)
	cfg.Metrics.PushURL = gateway.URL
	cfg.Metrics.Instance = "test"
	cfg.Publish.Git.Enabled = true
	cfg.Publish.Git.Push = true

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, ".", mock.Anything).Return([]byte("ok"), nil)

	fs := afero.NewMemMapFs()
	runs := memorystorage.NewRunStore()
	mem := memorypublisher.New()
	now := time.Date(2025, 1, 15, 18, 30, 0, 0, time.UTC)

	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t),
		app.WithFs(fs),
		app.WithClock(fixedClock{now: now}),
		app.WithPublishers(mem),
		app.WithRunRepository(runs),
		app.WithGitRunner(runner),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.Download(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "CSE_Daily_2025_01_15.pdf", result.Artifact.File.Filename)
	assert.Equal(t, site.URL+"/reports/x.pdf", result.Artifact.SourceURL)
	assert.Equal(t, site.URL+"/daily", result.Artifact.PageURL)
	assert.True(t, result.Artifact.DateFromPage)
	assert.Len(t, result.Artifact.SHA256, 64)

	saved, err := afero.ReadFile(fs, "downloads/CSE_Daily_2025_01_15.pdf")
	require.NoError(t, err)
	assert.Equal(t, pdf, saved)

	published := mem.Artifacts()
	require.Len(t, published, 1)
	assert.Equal(t, result.RunID, published[0].RunID)

	run, err := runs.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	require.NotNil(t, run.Filename)
	assert.Equal(t, "CSE_Daily_2025_01_15.pdf", *run.Filename)

	runner.AssertCalled(t, "Run", mock.Anything, ".", []string{"add", "--", "downloads/CSE_Daily_2025_01_15.pdf"})
	runner.AssertCalled(t, "Run", mock.Anything, ".", []string{"push", "origin"})

	pushed.mu.Lock()
	assert.Equal(t, http.MethodPut, pushed.method)
	assert.Equal(t, "/metrics/job/cse_daily_fetcher/instance/test", pushed.path)
	assert.NotEmpty(t, pushed.body)
	pushed.mu.Unlock()

	_, err = a.Download(context.Background())
	require.ErrorIs(t, err, app.ErrAlreadyRan)
}

func TestDownloadNeverOverwrites(t *testing.T) {
	site := newSite(t, reportPage, pdfPayload())
	cfg := testConfig(t, site.URL)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("downloads", 0o750))
	require.NoError(t, afero.WriteFile(fs, "downloads/CSE_Daily_2025_01_15.pdf", []byte("earlier"), 0o600))

	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t),
		app.WithFs(fs),
		app.WithClock(fixedClock{now: time.Date(2025, 1, 15, 9, 5, 7, 0, time.UTC)}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CSE_Daily_2025_01_15_090507.pdf", result.Artifact.File.Filename)

	earlier, err := afero.ReadFile(fs, "downloads/CSE_Daily_2025_01_15.pdf")
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(earlier))
}

// carrierPublisher captures the propagation headers a message publisher would
// attach for the run.
type carrierPublisher struct {
	carrier propagation.MapCarrier
}

func (p *carrierPublisher) Name() string { return "carrier" }

func (p *carrierPublisher) Publish(ctx context.Context, _ report.Artifact) error {
	p.carrier = propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, p.carrier)
	return nil
}

func TestDownloadRunsInsideTraceSpan(t *testing.T) {
	site := newSite(t, reportPage, pdfPayload())
	cfg := testConfig(t, site.URL)
	exporter := tracetest.NewInMemoryExporter()
	pub := &carrierPublisher{}

	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t),
		app.WithFs(afero.NewMemMapFs()),
		app.WithClock(fixedClock{now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}),
		app.WithPublishers(pub),
		app.WithTraceOptions(sdktrace.WithSyncer(exporter)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.Download(context.Background())
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "cse.download", span.Name)
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, result.RunID, attrs["cse.run_id"])
	assert.Equal(t, "success", attrs["cse.outcome"])
	assert.Equal(t, "CSE_Daily_2025_01_15.pdf", attrs["cse.filename"])

	traceparent := pub.carrier.Get("traceparent")
	require.NotEmpty(t, traceparent, "publishers must see the run span")
	assert.Contains(t, traceparent, span.SpanContext.TraceID().String())
}

func TestDownloadReportBlockMissing(t *testing.T) {
	site := newSite(t, changedPage, nil)
	cfg := testConfig(t, site.URL)
	fs := afero.NewMemMapFs()
	runs := memorystorage.NewRunStore()

	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t),
		app.WithFs(fs),
		app.WithClock(fixedClock{now: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)}),
		app.WithRunRepository(runs),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.Download(context.Background())
	require.ErrorIs(t, err, report.ErrReportBlockNotFound)

	dump, err := afero.ReadFile(fs, "downloads/debug_page.html")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(dump), "Maintenance"))

	run, err := a.Runs().GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.ErrorKind)
	assert.Equal(t, "report_block_not_found", *run.ErrorKind)
}

func TestDownloadAllEndpointsExhausted(t *testing.T) {
	site := newSite(t, reportPage, pdfPayload())
	cfg := testConfig(t, site.URL)
	cfg.Source.Endpoints = []string{site.URL + "/broken", site.URL + "/missing"}

	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t), app.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	_, err = a.Download(context.Background())
	require.ErrorIs(t, err, report.ErrAllEndpointsExhausted)

	var exhausted *report.EndpointsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Attempts, 2)
}

func TestBuildRejectsBadReportDir(t *testing.T) {
	cfg := testConfig(t, "https://www.cse.lk")
	cfg.Source.ReportDir = "pages/"

	_, err := app.Build(context.Background(), cfg, nil, app.WithFs(afero.NewMemMapFs()))
	require.ErrorContains(t, err, "resolver init failed")
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	h := app.RequestHeaders(config.HTTPConfig{
		UserAgent:      "agent/1.0",
		Accept:         "text/html",
		AcceptLanguage: "en-US",
	})
	assert.Equal(t, "agent/1.0", h.Get("User-Agent"))
	assert.Equal(t, "text/html", h.Get("Accept"))
	assert.Equal(t, "en-US", h.Get("Accept-Language"))
	_, ok := h["Connection"]
	assert.False(t, ok)
}

type fakeRenderer struct {
	body  string
	calls []string
}

func (f *fakeRenderer) Fetch(_ context.Context, req report.FetchRequest) (report.FetchResponse, error) {
	f.calls = append(f.calls, req.URL)
	return report.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(f.body)}, nil
}

func TestDownloadAutoModePromotesShell(t *testing.T) {
	shell := `<html><body><app-root ng-version="15.2.0"></app-root><script src="main.js"></script></body></html>`
	site := newSite(t, shell, pdfPayload())
	cfg := testConfig(t, site.URL)
	cfg.Source.Mode = config.ModeAuto
	cfg.Source.CanonicalURL = site.URL + "/daily"

	renderer := &fakeRenderer{body: reportPage}
	a, err := app.Build(context.Background(), cfg, zaptest.NewLogger(t),
		app.WithFs(afero.NewMemMapFs()),
		app.WithRenderer(renderer),
		app.WithClock(fixedClock{now: time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	result, err := a.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{site.URL + "/daily"}, renderer.calls)
	assert.Equal(t, "CSE_Daily_2025_01_15.pdf", result.Artifact.File.Filename)
}
