package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

type exampleCountingSink struct {
	total int
}

func (s *exampleCountingSink) Consume(_ context.Context, batch []report.Event) error {
	s.total += len(batch)
	return nil
}

func (s *exampleCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	sink := &exampleCountingSink{}
	hub := NewHub(Config{
		QueueSize:     4,
		BatchSize:     1,
		FlushInterval: time.Second,
	}, sink)

	hub.Emit(report.Event{
		RunID: "run-1",
		TS:    time.Unix(0, 0),
		Stage: report.StageRunStart,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink that totals downloaded bytes.
func ExampleSink() {
	var downloaded int64
	capture := sinkFunc(func(_ context.Context, batch []report.Event) error {
		for _, evt := range batch {
			if evt.Stage == report.StageDownloadDone {
				downloaded += evt.Bytes
			}
		}
		return nil
	})
	hub := NewHub(Config{
		QueueSize:     2,
		BatchSize:     1,
		FlushInterval: time.Second,
	}, capture)

	hub.Emit(report.Event{
		TS:    time.Unix(0, 0),
		Stage: report.StageDownloadDone,
		URL:   "https://cdn.cse.lk/cmt/upload_report_file/771_1715068112356.pdf",
		Bytes: 512,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes downloaded: %d\n", downloaded)
	// Output:
	// bytes downloaded: 512
}

type sinkFunc func(context.Context, []report.Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []report.Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
