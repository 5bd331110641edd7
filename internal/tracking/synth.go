package tracking

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/geom"
)

// SynthOptions describes a synthetic tracking session: a camera walking
// forward while slowly turning, with plane detections injected at fixed frames.
type SynthOptions struct {
	Frames        int
	FrameInterval time.Duration
	// Speed is the forward walking speed in metres per second.
	Speed float64
	// YawRate is the turn rate in radians per second.
	YawRate float64
	// DropoutEvery marks every Nth frame NotAvailable. Zero disables dropouts.
	DropoutEvery int
	// VerticalPlaneAt and HorizontalPlaneAt are frame indices at which a
	// plane detection is emitted after the pose sample. Negative disables.
	VerticalPlaneAt   int
	HorizontalPlaneAt int
	// FloorHeight is the Y of the detected horizontal plane.
	FloorHeight float64
}

// DefaultSynthOptions returns a short 60 fps walk with one wall and one floor
// detection.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Frames:            120,
		FrameInterval:     time.Second / 60,
		Speed:             0.5,
		YawRate:           0.2,
		DropoutEvery:      0,
		VerticalPlaneAt:   20,
		HorizontalPlaneAt: 45,
		FloorHeight:       -1.4,
	}
}

// Synthesize builds the event sequence described by opts.
func Synthesize(opts SynthOptions) []Event {
	events := make([]Event, 0, opts.Frames+2)
	planes := 0
	for i := 0; i < opts.Frames; i++ {
		ts := time.Duration(i) * opts.FrameInterval
		secs := ts.Seconds()
		yaw := opts.YawRate * secs

		// Forward is -Z rotated by the current yaw.
		dist := opts.Speed * secs
		pos := r3.Vec{X: -dist * math.Sin(yaw), Z: -dist * math.Cos(yaw)}
		camera := geom.Transform{
			Rotation:    r3.NewRotation(yaw, r3.Vec{Y: 1}),
			Translation: pos,
		}

		sample := PoseSample{Timestamp: ts, Camera: camera, State: Normal}
		if opts.DropoutEvery > 0 && i > 0 && i%opts.DropoutEvery == 0 {
			sample = PoseSample{Timestamp: ts, State: NotAvailable}
		}
		events = append(events, sample)

		if i == opts.VerticalPlaneAt {
			planes++
			wall := r3.Add(pos, r3.Vec{Z: -2})
			events = append(events, PlaneEvent{
				ID:        fmt.Sprintf("plane-%d", planes),
				Timestamp: ts,
				Alignment: Vertical,
				Pose: geom.Transform{
					Rotation:    r3.NewRotation(math.Pi/2, r3.Vec{X: 1}),
					Translation: wall,
				},
			})
		}
		if i == opts.HorizontalPlaneAt {
			planes++
			floor := r3.Vec{X: pos.X, Y: opts.FloorHeight, Z: pos.Z - 1}
			events = append(events, PlaneEvent{
				ID:        fmt.Sprintf("plane-%d", planes),
				Timestamp: ts,
				Alignment: Horizontal,
				Pose:      geom.Translate(floor),
			})
		}
	}
	return events
}
