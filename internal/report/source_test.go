package report_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

func TestEndpointSourceCanceledContext(t *testing.T) {
	f := &fakeFetcher{pages: map[string]report.FetchResponse{}, errs: map[string]error{}}
	src, err := report.NewEndpointSource([]string{"https://a.test"}, nil, f)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Page(ctx, report.NopObserver{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}

func TestEndpointSourceEmitsAttemptPerEndpoint(t *testing.T) {
	f := &fakeFetcher{pages: map[string]report.FetchResponse{}, errs: map[string]error{}}
	f.pages["https://b.test"] = report.FetchResponse{StatusCode: http.StatusOK, Body: []byte("ok")}
	src, err := report.NewEndpointSource([]string{"https://a.test", "https://b.test", "https://c.test"}, nil, f)
	require.NoError(t, err)

	rec := &recorder{}
	resp, err := src.Page(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", resp.URL)
	assert.Equal(t, []report.Stage{report.StageEndpointAttempt, report.StageEndpointAttempt}, rec.stages())
	assert.Error(t, rec.events[0].Err)
	assert.NoError(t, rec.events[1].Err)
}

func TestNewEndpointSourceValidates(t *testing.T) {
	_, err := report.NewEndpointSource(nil, nil, &fakeFetcher{})
	assert.Error(t, err)
	_, err = report.NewEndpointSource([]string{"https://a.test"}, nil, nil)
	assert.Error(t, err)
}

func TestRenderedSourceWrapsFailures(t *testing.T) {
	f := &fakeFetcher{errs: map[string]error{"https://cse.test": errors.New("wait for div.rules-block: deadline exceeded")}}
	src, err := report.NewRenderedSource("https://cse.test", http.Header{}, f)
	require.NoError(t, err)

	_, err = src.Page(context.Background(), report.NopObserver{})
	require.ErrorIs(t, err, report.ErrReportNotRendered)
	assert.Equal(t, "report_not_rendered", report.Kind(err))
}

func TestRenderedSourceMarksRendered(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]report.FetchResponse{"https://cse.test": {StatusCode: http.StatusOK, Body: []byte("<html/>")}},
		errs:  map[string]error{},
	}
	src, err := report.NewRenderedSource("https://cse.test", nil, f)
	require.NoError(t, err)

	resp, err := src.Page(context.Background(), report.NopObserver{})
	require.NoError(t, err)
	assert.True(t, resp.Rendered)
	assert.Equal(t, "https://cse.test", resp.URL)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "success", report.Kind(nil))
	assert.Equal(t, "internal", report.Kind(errors.New("boom")))
	assert.Equal(t, "filesystem_write_failed", report.Kind(report.ErrFilesystemWriteFailed))
	assert.Equal(t, "all_endpoints_exhausted", report.Kind(&report.EndpointsExhaustedError{}))
}

type promoteFunc func(report.FetchResponse) bool

func (f promoteFunc) ShouldPromote(resp report.FetchResponse) bool { return f(resp) }

func TestPromotingSource(t *testing.T) {
	shell := report.FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<app-root></app-root>`)}
	full := report.FetchResponse{StatusCode: http.StatusOK, Body: []byte(`<div class="rules-block"></div>`)}
	f := &fakeFetcher{
		pages: map[string]report.FetchResponse{"https://static.test": shell, "https://render.test": full},
		errs:  map[string]error{},
	}
	static, err := report.NewEndpointSource([]string{"https://static.test"}, nil, f)
	require.NoError(t, err)
	rendered, err := report.NewRenderedSource("https://render.test", nil, f)
	require.NoError(t, err)

	isShell := promoteFunc(func(resp report.FetchResponse) bool { return string(resp.Body) == string(shell.Body) })
	src, err := report.NewPromotingSource(static, rendered, isShell)
	require.NoError(t, err)

	rec := &recorder{}
	resp, err := src.Page(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, resp.Rendered)
	assert.Equal(t, full.Body, resp.Body)
	assert.Equal(t, []report.Stage{
		report.StageEndpointAttempt, report.StageRenderPromoted, report.StageEndpointAttempt,
	}, rec.stages())

	never := promoteFunc(func(report.FetchResponse) bool { return false })
	src, err = report.NewPromotingSource(static, rendered, never)
	require.NoError(t, err)
	resp, err = src.Page(context.Background(), report.NopObserver{})
	require.NoError(t, err)
	assert.False(t, resp.Rendered)
}

func TestPromotingSourceKeepsStaticFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]report.FetchResponse{}, errs: map[string]error{}}
	static, err := report.NewEndpointSource([]string{"https://down.test"}, nil, f)
	require.NoError(t, err)
	rendered, err := report.NewRenderedSource("https://render.test", nil, f)
	require.NoError(t, err)
	src, err := report.NewPromotingSource(static, rendered, promoteFunc(func(report.FetchResponse) bool { return true }))
	require.NoError(t, err)

	_, err = src.Page(context.Background(), report.NopObserver{})
	require.ErrorIs(t, err, report.ErrAllEndpointsExhausted)
	assert.Equal(t, []string{"https://down.test"}, f.calls)

	_, err = report.NewPromotingSource(nil, rendered, nil)
	assert.Error(t, err)
}
