// Package scene is the render-side collaborator of the placement policy.
//
// Sink is the contract the policy issues anchor commands against. Graph is
// an in-memory implementation that keeps anchors and evaluates their
// interpolated poses on demand, standing in for a platform renderer.
package scene

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/arpets/internal/geom"
)

var (
	// ErrAssetLoad reports that the virtual-object asset could not be loaded.
	ErrAssetLoad = errors.New("asset load failed")
	// ErrUnknownAnchor reports a command against an anchor the sink does not hold.
	ErrUnknownAnchor = errors.New("unknown anchor")
	// ErrInvalidPose reports a non-rigid or non-finite pose.
	ErrInvalidPose = errors.New("invalid pose")
)

// AnchorHandle identifies an anchor created by a Sink.
type AnchorHandle string

// NewAnchorHandle returns a fresh random handle.
func NewAnchorHandle() AnchorHandle {
	return AnchorHandle(uuid.NewString())
}

// Timing is the easing curve applied over a Move's duration.
type Timing int

const (
	// Linear moves at constant speed.
	Linear Timing = iota
	// EaseInOut accelerates from rest and decelerates into the target.
	EaseInOut
)

func (t Timing) String() string {
	switch t {
	case Linear:
		return "linear"
	case EaseInOut:
		return "ease_in_out"
	}
	return fmt.Sprintf("Timing(%d)", int(t))
}

// ParseTiming converts a configuration spelling of a timing function.
func ParseTiming(s string) (Timing, error) {
	switch s {
	case "linear":
		return Linear, nil
	case "ease_in_out":
		return EaseInOut, nil
	}
	return 0, fmt.Errorf("unknown timing function %q", s)
}

// Progress maps elapsed/duration in [0, 1] onto the eased fraction.
func (t Timing) Progress(f float64) float64 {
	f = math.Max(0, math.Min(1, f))
	if t == EaseInOut {
		return f * f * (3 - 2*f)
	}
	return f
}

// Sink accepts anchor lifecycle commands.
type Sink interface {
	// Create places assetID under a new anchor at pose. The handle is only
	// valid when err is nil.
	Create(ctx context.Context, pose geom.Transform, assetID string) (AnchorHandle, error)

	// Move schedules an interpolated transition of the anchor from its
	// displayed pose to target over duration. It does not block.
	Move(handle AnchorHandle, target geom.Transform, duration time.Duration, timing Timing) error
}
