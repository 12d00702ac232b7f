// Package metrics pushes the run's Prometheus collectors to a Pushgateway.
// The fetcher is a short-lived batch job, so nothing is scraped.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job label.
const DefaultJob = "cse_daily_fetcher"

// PushConfig controls where metrics are pushed.
type PushConfig struct {
	URL      string
	Job      string
	Instance string
	Timeout  time.Duration
}

// Pusher sends a registry's metrics to a Pushgateway.
type Pusher struct {
	cfg    PushConfig
	client *http.Client
}

// NewPusher validates cfg and builds a Pusher.
func NewPusher(cfg PushConfig) (*Pusher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("pushgateway url is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid pushgateway url: %w", err)
	}
	if cfg.Job == "" {
		cfg.Job = DefaultJob
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Pusher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Push replaces the job's metric group with everything gathered from g.
func (p *Pusher) Push(ctx context.Context, g prometheus.Gatherer) error {
	pusher := push.New(p.cfg.URL, p.cfg.Job).Gatherer(g).Client(p.client)
	if p.cfg.Instance != "" {
		pusher = pusher.Grouping("instance", p.cfg.Instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
