package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cse-daily-fetcher/internal/metrics"
	"github.com/JakeFAU/cse-daily-fetcher/internal/progress"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// PrometheusSink exports pipeline metrics via Prometheus. It owns all
// collectors for runs, endpoint attempts, downloads and publishers.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge

	endpointAttempts *prometheus.CounterVec
	endpointDuration *prometheus.HistogramVec

	downloadBytes prometheus.Counter
	smallPayloads prometheus.Counter
	dateFallbacks prometheus.Counter
	publishes     *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cse_daily_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cse_daily_runs_completed_total",
			Help: "Total runs completed partitioned by result kind.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cse_daily_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cse_daily_last_success_timestamp_seconds",
			Help: "Unix time of the last run that stored a report.",
		}),
		endpointAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cse_daily_endpoint_attempts_total",
			Help: "Page fetch attempts partitioned by host and status class.",
		}, []string{"site", "status_class"}),
		endpointDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cse_daily_endpoint_duration_seconds",
			Help:    "Page fetch duration partitioned by host and status class.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site", "status_class"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cse_daily_download_bytes_total",
			Help: "Bytes of report payload downloaded.",
		}),
		smallPayloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cse_daily_small_payloads_total",
			Help: "Downloads below the minimum expected size.",
		}),
		dateFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cse_daily_date_fallbacks_total",
			Help: "Runs that named the artifact after the current date.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cse_daily_publishes_total",
			Help: "Post-save publisher outcomes partitioned by publisher and result.",
		}, []string{"publisher", "result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runDuration,
		s.lastSuccess,
		s.endpointAttempts,
		s.endpointDuration,
		s.downloadBytes,
		s.smallPayloads,
		s.dateFallbacks,
		s.publishes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register pipeline collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []report.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt report.Event) {
	switch evt.Stage {
	case report.StageRunStart:
		s.runsStarted.Inc()
	case report.StageRunDone:
		s.observeRun(evt, report.Kind(nil))
		s.lastSuccess.Set(float64(evt.TS.Unix()))
	case report.StageRunFailed:
		s.observeRun(evt, report.Kind(evt.Err))
	case report.StageEndpointAttempt:
		s.handleAttempt(evt)
	case report.StageDownloadDone:
		s.downloadBytes.Add(float64(evt.Bytes))
	case report.StageSmallPayload:
		s.smallPayloads.Inc()
	case report.StageDateFallback:
		s.dateFallbacks.Inc()
	case report.StagePublished:
		s.publishes.WithLabelValues(evt.Publisher, "success").Inc()
	case report.StagePublishFailed:
		s.publishes.WithLabelValues(evt.Publisher, "error").Inc()
	}
}

func (s *PrometheusSink) observeRun(evt report.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleAttempt(evt report.Event) {
	site := metrics.SanitizeSite(evt.URL)
	statusClass := string(progress.ClassifyStatus(evt.StatusCode))
	s.endpointAttempts.WithLabelValues(site, statusClass).Inc()
	if evt.Dur > 0 {
		s.endpointDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
