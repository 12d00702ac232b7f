// Package pubsub announces stored reports on a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Message is the JSON body published for each stored report.
type Message struct {
	RunID           string     `json:"run_id"`
	Filename        string     `json:"filename"`
	Path            string     `json:"path"`
	SizeBytes       int64      `json:"size_bytes"`
	SHA256          string     `json:"sha256,omitempty"`
	SourceURL       string     `json:"source_url"`
	PageURL         string     `json:"page_url"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	DateFromPage    bool       `json:"date_from_page"`
	StoredAt        time.Time  `json:"stored_at"`
}

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publish publishFunc
	stop    func()
	// propagator injects the caller's trace context into message attributes.
	// Nil means the global propagator.
	propagator propagation.TextMapPropagator
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
		stop: publisher.Stop,
	}
}

// Name implements report.Publisher.
func (p *Publisher) Name() string {
	return "pubsub"
}

// Publish marshals the artifact summary to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, artifact report.Artifact) error {
	if p.publish == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(NewMessage(artifact))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	msg.Attributes = map[string]string{
		"run_id":   artifact.RunID,
		"filename": artifact.File.Filename,
	}
	prop := p.propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	prop.Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := p.publish(ctx, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() {
	if p.stop != nil {
		p.stop()
	}
}

// NewMessage summarizes an artifact without its payload.
func NewMessage(a report.Artifact) Message {
	return Message{
		RunID:           a.RunID,
		Filename:        a.File.Filename,
		Path:            a.File.Path,
		SizeBytes:       a.File.SizeBytes,
		SHA256:          a.SHA256,
		SourceURL:       a.SourceURL,
		PageURL:         a.PageURL,
		PublicationDate: a.PublicationDate,
		DateFromPage:    a.DateFromPage,
		StoredAt:        a.StoredAt,
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
