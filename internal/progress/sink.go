package progress

import (
	"context"

	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// Sink consumes batches of pipeline events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []report.Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface.
type Emitter interface {
	Emit(evt report.Event)
}
