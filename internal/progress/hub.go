package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Config tunes the Hub. Zero values fall back to defaults sized for a single
// download run, which emits a few dozen events at most.
type Config struct {
	// QueueSize bounds the events waiting for the dispatcher (default 256).
	QueueSize int
	// BatchSize flushes once this many events are pending (default 64).
	BatchSize int
	// FlushInterval flushes a partial batch after this long (default 250ms).
	FlushInterval time.Duration
	// SinkTimeout bounds each sink call (default 10s).
	SinkTimeout time.Duration
	// BaseContext parents every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultQueueSize     = 256
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
	defaultSinkTimeout   = 10 * time.Second
)

// Hub hands pipeline events to sinks on a background goroutine. Emission
// order is preserved and a terminal run event (RUN_DONE, RUN_FAILED) flushes
// immediately so the run ledger is current before the caller moves on.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan report.Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the dispatcher goroutine and returns a ready Hub.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan report.Event, cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: cfg.Logger,
	}
	go h.dispatch()
	return h
}

// Emit queues evt without blocking. A full queue drops the event; the count
// is reported by Dropped and logged on Close.
func (h *Hub) Emit(evt report.Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := Validate(evt); err != nil {
		h.logger.Debug("discarding invalid pipeline event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Observe implements report.Observer.
func (h *Hub) Observe(evt report.Event) {
	h.Emit(evt)
}

// Dropped reports how many events were lost to a full queue.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close stops intake, delivers everything queued, closes the sinks and waits
// for the dispatcher to exit or ctx to expire. Repeated calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
	if n := h.dropped.Load(); n > 0 {
		h.logger.Warn("pipeline events dropped", zap.Int64("dropped", n))
	}
	return nil
}

func (h *Hub) dispatch() {
	defer close(h.doneCh)

	var (
		batch    = make([]report.Event, 0, h.cfg.BatchSize)
		timer    *time.Timer
		deadline <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		deadline = nil
	}
	add := func(evt report.Event) {
		batch = append(batch, evt)
		if len(batch) >= h.cfg.BatchSize || isTerminal(evt.Stage) {
			h.flush(batch)
			batch = batch[:0]
			disarm()
			return
		}
		if deadline == nil {
			if timer == nil {
				timer = time.NewTimer(h.cfg.FlushInterval)
			} else {
				timer.Reset(h.cfg.FlushInterval)
			}
			deadline = timer.C
		}
	}

	for {
		select {
		case evt := <-h.events:
			add(evt)
		case <-deadline:
			deadline = nil
			h.flush(batch)
			batch = batch[:0]
		case <-h.stopCh:
			disarm()
		drain:
			for {
				select {
				case evt := <-h.events:
					add(evt)
				default:
					break drain
				}
			}
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []report.Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]report.Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

func isTerminal(stage report.Stage) bool {
	return stage == report.StageRunDone || stage == report.StageRunFailed
}
