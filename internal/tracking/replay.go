package tracking

import (
	"context"
	"time"

	"github.com/banshee-data/arpets/internal/timeutil"
)

// ReplaySource emits a recorded sequence of events at a fixed frame interval.
// It stands in for a device tracking session when running from a trace.
type ReplaySource struct {
	events   []Event
	interval time.Duration
	clock    timeutil.Clock
}

// ReplayOption configures a ReplaySource.
type ReplayOption func(*ReplaySource)

// WithInterval sets the delay between consecutive events. Zero replays as
// fast as the consumer accepts events.
func WithInterval(d time.Duration) ReplayOption {
	return func(r *ReplaySource) { r.interval = d }
}

// WithClock overrides the clock used for pacing.
func WithClock(c timeutil.Clock) ReplayOption {
	return func(r *ReplaySource) { r.clock = c }
}

// NewReplaySource creates a source over events. The slice is not copied and
// must not be modified while the source runs.
func NewReplaySource(events []Event, opts ...ReplayOption) *ReplaySource {
	r := &ReplaySource{
		events: events,
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len returns the number of events the source will emit.
func (r *ReplaySource) Len() int { return len(r.events) }

// Run emits every event in order from the calling goroutine.
func (r *ReplaySource) Run(ctx context.Context, emit func(Event)) error {
	for i, ev := range r.events {
		if i > 0 && r.interval > 0 {
			select {
			case <-r.clock.After(r.interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		emit(ev)
	}
	return nil
}
