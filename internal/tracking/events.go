// Package tracking defines the events a pose/plane tracking source delivers
// and the replayed source used when no device is attached.
//
// A Source delivers events on a single goroutine, one at a time, in
// timestamp order. Events are immutable once emitted.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/arpets/internal/geom"
)

// TrackingState mirrors the quality of the camera pose for a frame.
type TrackingState int

const (
	// Normal means the camera pose is fully tracked.
	Normal TrackingState = iota
	// Limited means a pose is available but of reduced quality.
	Limited
	// NotAvailable means the frame carries no usable camera pose.
	NotAvailable
)

func (s TrackingState) String() string {
	switch s {
	case Normal:
		return "normal"
	case Limited:
		return "limited"
	case NotAvailable:
		return "not_available"
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// ParseTrackingState converts the trace spelling of a state. The empty
// string is treated as normal.
func ParseTrackingState(s string) (TrackingState, error) {
	switch s {
	case "", "normal":
		return Normal, nil
	case "limited":
		return Limited, nil
	case "not_available":
		return NotAvailable, nil
	}
	return 0, fmt.Errorf("unknown tracking state %q", s)
}

// Alignment is the orientation class of a detected plane.
type Alignment int

const (
	Horizontal Alignment = iota
	Vertical
)

func (a Alignment) String() string {
	switch a {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	}
	return fmt.Sprintf("Alignment(%d)", int(a))
}

// ParseAlignment converts the trace spelling of an alignment.
func ParseAlignment(s string) (Alignment, error) {
	switch s {
	case "horizontal":
		return Horizontal, nil
	case "vertical":
		return Vertical, nil
	}
	return 0, fmt.Errorf("unknown plane alignment %q", s)
}

// Event is the tagged variant delivered by a Source: either a PoseSample
// or a PlaneEvent.
type Event interface {
	// At is the event timestamp relative to session start.
	At() time.Duration
	isEvent()
}

// PoseSample is the camera pose for one frame.
type PoseSample struct {
	Timestamp time.Duration
	Camera    geom.Transform
	State     TrackingState
}

func (s PoseSample) At() time.Duration { return s.Timestamp }
func (PoseSample) isEvent()            {}

// Usable reports whether the sample carries a camera pose the placement
// policy can act on.
func (s PoseSample) Usable() bool {
	return s.State != NotAvailable && s.Camera.Valid()
}

// PlaneEvent announces a newly detected planar surface.
type PlaneEvent struct {
	ID        string
	Timestamp time.Duration
	Alignment Alignment
	Pose      geom.Transform
}

func (e PlaneEvent) At() time.Duration { return e.Timestamp }
func (PlaneEvent) isEvent()            {}

// Source produces tracking events. Run blocks, calling emit for every event
// from a single goroutine, until the source is exhausted (nil) or ctx is
// cancelled (ctx.Err()).
type Source interface {
	Run(ctx context.Context, emit func(Event)) error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Event)) error

// Run calls f(ctx, emit).
func (f SourceFunc) Run(ctx context.Context, emit func(Event)) error {
	return f(ctx, emit)
}
