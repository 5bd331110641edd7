// Package placement decides, for every tracking event, whether to create the
// session's single anchor or to move it toward a new target.
//
// Two strategies are supported:
//
//   - CameraFollow keeps the object a fixed offset from the camera, creating
//     the anchor on the first usable pose and moving it on every later one.
//   - SurfaceSnap ignores poses and places the object once, on the first
//     detected horizontal plane.
//
// A Policy owns at most one anchor. It is a plain state machine: calls must
// be serialized by the caller and none of them block beyond the sink call.
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/geom"
	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/scene"
	"github.com/banshee-data/arpets/internal/tracking"
)

var logf = monitoring.Component("placement")

// Strategy selects how the anchor is placed.
type Strategy int

const (
	// CameraFollow keeps the anchor at camera position + offset.
	CameraFollow Strategy = iota
	// SurfaceSnap places the anchor once on the first horizontal plane.
	SurfaceSnap
)

func (s Strategy) String() string {
	switch s {
	case CameraFollow:
		return "camera_follow"
	case SurfaceSnap:
		return "surface_snap"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a configuration spelling of a strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "camera_follow":
		return CameraFollow, nil
	case "surface_snap":
		return SurfaceSnap, nil
	}
	return 0, fmt.Errorf("unknown placement strategy %q", s)
}

// Defaults for Config.
var (
	DefaultOffset       = r3.Vec{Z: -1}
	DefaultMoveDuration = 100 * time.Millisecond
)

// DefaultAssetID is the bundled pet model.
const DefaultAssetID = "JCUBE_Maneki"

// Config holds the policy parameters.
type Config struct {
	Strategy Strategy
	// Offset is added to the camera position, in world axes.
	Offset       r3.Vec
	MoveDuration time.Duration
	Timing       scene.Timing
	AssetID      string
}

// DefaultConfig returns the camera-follow configuration: one metre in front
// of the starting camera, 100ms linear moves.
func DefaultConfig() Config {
	return Config{
		Strategy:     CameraFollow,
		Offset:       DefaultOffset,
		MoveDuration: DefaultMoveDuration,
		Timing:       scene.Linear,
		AssetID:      DefaultAssetID,
	}
}

// AnchorState is the placement record of the session's one anchor.
type AnchorState struct {
	Exists bool
	Handle scene.AnchorHandle
	// CurrentPose is where the last command started the anchor from;
	// TargetPose is where it was last told to go.
	CurrentPose geom.Transform
	TargetPose  geom.Transform
}

// Policy maps tracking events onto anchor commands.
type Policy struct {
	cfg      Config
	sink     scene.Sink
	recorder Recorder
	state    AnchorState
	stats    Stats
}

// Stats counts the commands a Policy has issued.
type Stats struct {
	PoseSamples    int
	PlaneEvents    int
	Skipped        int
	Creates        int
	CreateFailures int
	Moves          int
	MoveFailures   int
}

// Option configures a Policy.
type Option func(*Policy)

// WithRecorder reports every issued command to r.
func WithRecorder(r Recorder) Option {
	return func(p *Policy) { p.recorder = r }
}

// New creates a policy issuing commands to sink.
func New(cfg Config, sink scene.Sink, opts ...Option) *Policy {
	p := &Policy{cfg: cfg, sink: sink}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the policy configuration.
func (p *Policy) Config() Config { return p.cfg }

// State returns a copy of the anchor state.
func (p *Policy) State() AnchorState { return p.state }

// Stats returns the command counters.
func (p *Policy) Stats() Stats { return p.stats }

// Placed reports whether the anchor exists.
func (p *Policy) Placed() bool { return p.state.Exists }

// Handle dispatches a tracking event to OnPoseSample or OnPlaneEvent.
func (p *Policy) Handle(ctx context.Context, ev tracking.Event) {
	switch e := ev.(type) {
	case tracking.PoseSample:
		p.OnPoseSample(ctx, e)
	case tracking.PlaneEvent:
		p.OnPlaneEvent(ctx, e)
	}
}

// OnPoseSample creates or moves the anchor under CameraFollow. Samples
// without a usable camera transform are skipped.
func (p *Policy) OnPoseSample(ctx context.Context, sample tracking.PoseSample) {
	p.stats.PoseSamples++
	if p.cfg.Strategy != CameraFollow {
		return
	}
	if !sample.Usable() {
		p.stats.Skipped++
		return
	}

	target := r3.Add(sample.Camera.Position(), p.cfg.Offset)
	if !p.state.Exists {
		p.create(ctx, sample.Camera.WithTranslation(target))
		return
	}
	p.move(p.state.TargetPose.WithTranslation(target))
}

// OnPlaneEvent places the anchor on the first horizontal plane under
// SurfaceSnap. Every other event is a no-op.
func (p *Policy) OnPlaneEvent(ctx context.Context, ev tracking.PlaneEvent) {
	p.stats.PlaneEvents++
	if p.cfg.Strategy != SurfaceSnap || p.state.Exists || ev.Alignment != tracking.Horizontal {
		return
	}
	if !ev.Pose.Valid() {
		p.stats.Skipped++
		return
	}
	if p.create(ctx, ev.Pose) {
		logf("object placed on plane %s", ev.ID)
	}
}

// create asks the sink for the anchor and records it only once confirmed.
func (p *Policy) create(ctx context.Context, pose geom.Transform) bool {
	handle, err := p.sink.Create(ctx, pose, p.cfg.AssetID)
	p.record(Command{Kind: Create, Pose: pose, Handle: handle, Err: err})
	if err != nil {
		p.stats.CreateFailures++
		logf("create %s failed, will retry: %v", p.cfg.AssetID, err)
		return false
	}
	p.stats.Creates++
	p.state = AnchorState{
		Exists:      true,
		Handle:      handle,
		CurrentPose: pose,
		TargetPose:  pose,
	}
	return true
}

func (p *Policy) move(target geom.Transform) {
	err := p.sink.Move(p.state.Handle, target, p.cfg.MoveDuration, p.cfg.Timing)
	p.record(Command{
		Kind:     Move,
		Pose:     target,
		Handle:   p.state.Handle,
		Duration: p.cfg.MoveDuration,
		Timing:   p.cfg.Timing,
		Err:      err,
	})
	if err != nil {
		p.stats.MoveFailures++
		if errors.Is(err, scene.ErrUnknownAnchor) {
			// The sink no longer holds the anchor; place it again next time.
			logf("anchor %s lost, resetting: %v", p.state.Handle, err)
			p.state = AnchorState{}
			return
		}
		logf("move %s failed: %v", p.state.Handle, err)
		return
	}
	p.stats.Moves++
	p.state.CurrentPose = p.state.TargetPose
	p.state.TargetPose = target
}

func (p *Policy) record(cmd Command) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(cmd); err != nil {
		logf("record %s: %v", cmd.Kind, err)
	}
}
