package scene

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/geom"
	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/timeutil"
)

// maxCameraTrack bounds the recorded camera path used by Snapshot.
const maxCameraTrack = 4096

var logf = monitoring.Component("scene")

// Graph is an in-memory scene. Anchor poses are evaluated lazily from the
// active animation, so Move returns immediately and PoseAt reflects the
// interpolation at the clock's current time. Graph is safe for concurrent
// use: the update loop issues commands while captures read it.
type Graph struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	assets  AssetLoader
	anchors map[AnchorHandle]*anchor
	created int
	camera  []r3.Vec
}

type anchor struct {
	asset    Asset
	seq      int
	from     geom.Transform
	to       geom.Transform
	start    time.Time
	duration time.Duration
	timing   Timing
}

func (a *anchor) poseAt(now time.Time) geom.Transform {
	if a.duration <= 0 {
		return a.to
	}
	f := float64(now.Sub(a.start)) / float64(a.duration)
	return geom.Interpolate(a.from, a.to, a.timing.Progress(f))
}

// AnchorView is a read-only snapshot of one anchor.
type AnchorView struct {
	Handle AnchorHandle
	Asset  Asset
	Pose   geom.Transform
	Target geom.Transform
	Moving bool
}

// NewGraph creates an empty scene that loads assets from loader.
func NewGraph(loader AssetLoader, clock timeutil.Clock) *Graph {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Graph{
		clock:   clock,
		assets:  loader,
		anchors: make(map[AnchorHandle]*anchor),
	}
}

// Create loads assetID and places it under a new anchor at pose.
func (g *Graph) Create(ctx context.Context, pose geom.Transform, assetID string) (AnchorHandle, error) {
	if !pose.Valid() {
		return "", fmt.Errorf("create anchor: %w", ErrInvalidPose)
	}
	asset, err := g.assets.Load(ctx, assetID)
	if err != nil {
		return "", fmt.Errorf("create anchor: %w", err)
	}

	h := NewAnchorHandle()
	g.mu.Lock()
	g.created++
	g.anchors[h] = &anchor{
		asset: asset,
		seq:   g.created,
		from:  pose,
		to:    pose,
		start: g.clock.Now(),
	}
	g.mu.Unlock()

	logf("anchor %s created for %s at (%.3f, %.3f, %.3f)", h, asset.ID,
		pose.Translation.X, pose.Translation.Y, pose.Translation.Z)
	return h, nil
}

// Move schedules an interpolation from the anchor's displayed pose to target.
// A Move issued mid-animation starts from wherever the anchor currently is.
func (g *Graph) Move(handle AnchorHandle, target geom.Transform, duration time.Duration, timing Timing) error {
	if !target.Valid() {
		return fmt.Errorf("move anchor %s: %w", handle, ErrInvalidPose)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	a, ok := g.anchors[handle]
	if !ok {
		return fmt.Errorf("move anchor %s: %w", handle, ErrUnknownAnchor)
	}
	now := g.clock.Now()
	a.from = a.poseAt(now)
	a.to = target
	a.start = now
	a.duration = duration
	a.timing = timing
	return nil
}

// Remove drops an anchor, as a renderer does when it loses tracking of it.
func (g *Graph) Remove(handle AnchorHandle) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.anchors[handle]; !ok {
		return false
	}
	delete(g.anchors, handle)
	return true
}

// PoseAt returns the displayed pose of handle at the current time.
func (g *Graph) PoseAt(handle AnchorHandle) (geom.Transform, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.anchors[handle]
	if !ok {
		return geom.Transform{}, false
	}
	return a.poseAt(g.clock.Now()), true
}

// Anchors returns every anchor in creation order.
func (g *Graph) Anchors() []AnchorView {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	views := make([]AnchorView, 0, len(g.anchors))
	seqs := make(map[AnchorHandle]int, len(g.anchors))
	for h, a := range g.anchors {
		views = append(views, AnchorView{
			Handle: h,
			Asset:  a.asset,
			Pose:   a.poseAt(now),
			Target: a.to,
			Moving: a.duration > 0 && now.Sub(a.start) < a.duration,
		})
		seqs[h] = a.seq
	}
	sort.Slice(views, func(i, j int) bool { return seqs[views[i].Handle] < seqs[views[j].Handle] })
	return views
}

// ObserveCamera records the camera position for the top-down snapshot.
func (g *Graph) ObserveCamera(camera geom.Transform) {
	if !camera.Valid() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.camera) == maxCameraTrack {
		copy(g.camera, g.camera[1:])
		g.camera = g.camera[:maxCameraTrack-1]
	}
	g.camera = append(g.camera, camera.Translation)
}

// CameraTrack returns a copy of the recorded camera positions.
func (g *Graph) CameraTrack() []r3.Vec {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]r3.Vec, len(g.camera))
	copy(out, g.camera)
	return out
}
