package progress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface.
type Emitter interface {
	Emit(evt Event)
}

// Reporter stamps events with a run id, pass and timestamp before handing
// them to an Emitter. A nil Reporter or one without an emitter is a no-op.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	pass    harvest.Pass
	now     func() time.Time
}

// NewReporter binds emitter to one run of pass. clock may be nil.
func NewReporter(emitter Emitter, runID uuid.UUID, pass harvest.Pass, clock harvest.Clock) *Reporter {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Reporter{emitter: emitter, runID: UUIDToBytes(runID), pass: pass, now: now}
}

// RunID returns the run identifier stamped on every event.
func (r *Reporter) RunID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	return uuid.UUID(r.runID)
}

// Emit fills RunID, Pass and TS (when unset) and forwards evt.
func (r *Reporter) Emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	evt.Pass = r.pass
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.emitter.Emit(evt)
}
