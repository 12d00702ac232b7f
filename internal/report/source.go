package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// EndpointSource tries each candidate page URL in declared order and returns
// the first 2xx response. There is no retry beyond the list itself.
type EndpointSource struct {
	endpoints []string
	headers   http.Header
	fetcher   Fetcher
}

// NewEndpointSource validates the endpoint list and builds the source.
func NewEndpointSource(endpoints []string, headers http.Header, fetcher Fetcher) (*EndpointSource, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	return &EndpointSource{
		endpoints: append([]string(nil), endpoints...),
		headers:   headers.Clone(),
		fetcher:   fetcher,
	}, nil
}

// Page implements PageSource.
func (s *EndpointSource) Page(ctx context.Context, obs Observer) (FetchResponse, error) {
	attempts := make([]Attempt, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		if err := ctx.Err(); err != nil {
			return FetchResponse{}, fmt.Errorf("endpoint walk canceled: %w", err)
		}
		resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: endpoint, Headers: s.headers.Clone()})
		attempt := Attempt{
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Duration:   resp.Duration,
			Err:        err,
		}
		if err == nil && !is2xx(resp.StatusCode) {
			attempt.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		attempts = append(attempts, attempt)
		obs.Observe(Event{
			Stage:      StageEndpointAttempt,
			URL:        endpoint,
			StatusCode: attempt.StatusCode,
			Bytes:      int64(len(resp.Body)),
			Dur:        attempt.Duration,
			Err:        attempt.Err,
		})
		if attempt.Err == nil {
			if resp.URL == "" {
				resp.URL = endpoint
			}
			return resp, nil
		}
	}
	return FetchResponse{}, &EndpointsExhaustedError{Attempts: attempts}
}

// RenderedSource fetches a single canonical URL through a browser-backed
// Fetcher that waits for the report container to become visible.
type RenderedSource struct {
	url     string
	headers http.Header
	fetcher Fetcher
}

// NewRenderedSource builds the dynamic-rendering source.
func NewRenderedSource(url string, headers http.Header, fetcher Fetcher) (*RenderedSource, error) {
	if url == "" {
		return nil, errors.New("canonical url is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	return &RenderedSource{url: url, headers: headers.Clone(), fetcher: fetcher}, nil
}

// Page implements PageSource. Any failure, including the visibility wait
// expiring, is reported as ErrReportNotRendered.
func (s *RenderedSource) Page(ctx context.Context, obs Observer) (FetchResponse, error) {
	resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: s.url, Headers: s.headers.Clone()})
	obs.Observe(Event{
		Stage:      StageEndpointAttempt,
		URL:        s.url,
		StatusCode: resp.StatusCode,
		Bytes:      int64(len(resp.Body)),
		Dur:        resp.Duration,
		Err:        err,
	})
	if err != nil {
		if errors.Is(err, ErrReportNotRendered) {
			return FetchResponse{}, err
		}
		return FetchResponse{}, fmt.Errorf("%w: %w", ErrReportNotRendered, err)
	}
	if resp.URL == "" {
		resp.URL = s.url
	}
	resp.Rendered = true
	return resp, nil
}

// Promoter decides whether a static page must be rendered instead.
type Promoter interface {
	ShouldPromote(resp FetchResponse) bool
}

// PromotingSource tries a static source first and falls back to a rendered
// one when the static page is a script shell. Static failures are returned
// unchanged.
type PromotingSource struct {
	static   PageSource
	rendered PageSource
	promoter Promoter
}

// NewPromotingSource builds the static-then-rendered source.
func NewPromotingSource(static, rendered PageSource, promoter Promoter) (*PromotingSource, error) {
	if static == nil || rendered == nil {
		return nil, errors.New("static and rendered sources are required")
	}
	if promoter == nil {
		return nil, errors.New("promoter is required")
	}
	return &PromotingSource{static: static, rendered: rendered, promoter: promoter}, nil
}

// Page implements PageSource.
func (s *PromotingSource) Page(ctx context.Context, obs Observer) (FetchResponse, error) {
	resp, err := s.static.Page(ctx, obs)
	if err != nil || !s.promoter.ShouldPromote(resp) {
		return resp, err
	}
	obs.Observe(Event{Stage: StageRenderPromoted, URL: resp.URL, Bytes: int64(len(resp.Body))})
	return s.rendered.Page(ctx, obs)
}
