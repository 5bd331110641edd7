// Package capture implements the one-shot photo capture protocol: a
// single-slot request raised by the user, processed once, and cleared by the
// update loop when the capture completes.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/timeutil"
)

// ErrCaptureFailed wraps every snapshot or export failure.
var ErrCaptureFailed = errors.New("capture failed")

var logf = monitoring.Component("capture")

// Request is a single-slot capture request flag. Raise fills the slot,
// Pending delivers it once, and Clear re-arms it. While a request is raised
// or being processed, further Raise calls are rejected.
type Request struct {
	slot  chan struct{}
	armed chan struct{}
}

// NewRequest returns an armed, empty request flag.
func NewRequest() *Request {
	r := &Request{
		slot:  make(chan struct{}, 1),
		armed: make(chan struct{}, 1),
	}
	r.armed <- struct{}{}
	return r
}

// Raise requests a capture. It returns false if a capture is already
// requested or in progress. Safe for concurrent use.
func (r *Request) Raise() bool {
	select {
	case <-r.armed:
		r.slot <- struct{}{}
		return true
	default:
		return false
	}
}

// Pending delivers a raised request exactly once.
func (r *Request) Pending() <-chan struct{} {
	return r.slot
}

// Clear re-arms the flag after the capture for the delivered request has
// completed. Clearing an armed flag is a no-op.
func (r *Request) Clear() {
	select {
	case r.armed <- struct{}{}:
	default:
	}
}

// Snapshotter reads the final composited frame.
type Snapshotter interface {
	Snapshot(ctx context.Context) (image.Image, error)
}

// SnapshotterFunc adapts a function to the Snapshotter interface.
type SnapshotterFunc func(ctx context.Context) (image.Image, error)

// Snapshot calls f(ctx).
func (f SnapshotterFunc) Snapshot(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// Exporter writes a captured image to persistent storage and returns where
// it was stored.
type Exporter interface {
	Export(ctx context.Context, id string, img image.Image) (string, error)
}

// Result is the outcome of one capture.
type Result struct {
	ID        string
	Location  string
	Started   time.Time
	Completed time.Time
	Err       error
}

// OK reports whether the capture was saved.
func (r Result) OK() bool { return r.Err == nil }

// NewID returns a fresh capture id.
func NewID() string {
	return uuid.NewString()
}

// Capture takes one snapshot and exports it, stamping the Result with times
// from clock (the real clock when nil). Failures are reported in the Result
// wrapped with ErrCaptureFailed.
func Capture(ctx context.Context, clock timeutil.Clock, id string, snap Snapshotter, exp Exporter) Result {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	res := Result{ID: id, Started: clock.Now()}

	img, err := snap.Snapshot(ctx)
	if err == nil && img == nil {
		err = errors.New("empty frame")
	}
	if err != nil {
		res.Err = fmt.Errorf("%w: snapshot: %w", ErrCaptureFailed, err)
		res.Completed = clock.Now()
		logf("capture %s: %v", id, res.Err)
		return res
	}

	loc, err := exp.Export(ctx, id, img)
	if err != nil {
		res.Err = fmt.Errorf("%w: export: %w", ErrCaptureFailed, err)
		res.Completed = clock.Now()
		logf("capture %s: %v", id, res.Err)
		return res
	}
	res.Location = loc
	res.Completed = clock.Now()
	logf("capture %s saved to %s", id, loc)
	return res
}
