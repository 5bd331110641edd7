package scene

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/geom"
	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/timeutil"
)

func newTestGraph(t *testing.T) (*Graph, *timeutil.MockClock) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(original) })
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewGraph(DefaultAssets(), clock), clock
}

func TestGraph_Create(t *testing.T) {
	g, _ := newTestGraph(t)
	pose := geom.Translate(r3.Vec{Z: -1})

	h, err := g.Create(context.Background(), pose, "JCUBE_Maneki")
	require.NoError(t, err)
	require.NotEmpty(t, h)

	got, ok := g.PoseAt(h)
	require.True(t, ok)
	assert.Equal(t, pose, got)

	views := g.Anchors()
	require.Len(t, views, 1)
	assert.Equal(t, "Maneki-neko", views[0].Asset.Name)
	assert.False(t, views[0].Moving)
}

func TestGraph_CreateFailures(t *testing.T) {
	g, _ := newTestGraph(t)

	_, err := g.Create(context.Background(), geom.Identity(), "missing")
	assert.True(t, errors.Is(err, ErrAssetLoad), "got %v", err)

	_, err = g.Create(context.Background(), geom.Transform{}, "JCUBE_Maneki")
	assert.True(t, errors.Is(err, ErrInvalidPose), "got %v", err)

	assert.Empty(t, g.Anchors(), "failed creates must not leave anchors behind")
}

func TestGraph_MoveInterpolatesLinearly(t *testing.T) {
	g, clock := newTestGraph(t)
	rot := r3.NewRotation(math.Pi/4, r3.Vec{Y: 1})
	start := geom.Transform{Rotation: rot, Translation: r3.Vec{Z: -1}}

	h, err := g.Create(context.Background(), start, "JCUBE_Maneki")
	require.NoError(t, err)

	target := start.WithTranslation(r3.Vec{Z: -0.9})
	require.NoError(t, g.Move(h, target, 100*time.Millisecond, Linear))

	clock.Advance(50 * time.Millisecond)
	mid, _ := g.PoseAt(h)
	assert.InDelta(t, -0.95, mid.Translation.Z, 1e-9)
	assert.True(t, geom.RotationsEqual(mid.Rotation, rot, 1e-12))
	assert.True(t, g.Anchors()[0].Moving)

	clock.Advance(100 * time.Millisecond)
	end, _ := g.PoseAt(h)
	assert.True(t, geom.ApproxEqual(end, target, 1e-12))
	assert.False(t, g.Anchors()[0].Moving)
}

func TestGraph_MoveRetargetsFromDisplayedPose(t *testing.T) {
	g, clock := newTestGraph(t)
	h, err := g.Create(context.Background(), geom.Translate(r3.Vec{}), "JCUBE_Maneki")
	require.NoError(t, err)

	require.NoError(t, g.Move(h, geom.Translate(r3.Vec{X: 1}), 100*time.Millisecond, Linear))
	clock.Advance(50 * time.Millisecond)

	// Retarget halfway: the new animation starts at x=0.5.
	require.NoError(t, g.Move(h, geom.Translate(r3.Vec{X: 2}), 100*time.Millisecond, Linear))
	clock.Advance(50 * time.Millisecond)

	got, _ := g.PoseAt(h)
	assert.InDelta(t, 1.25, got.Translation.X, 1e-9)
}

func TestGraph_MoveUnknownAnchor(t *testing.T) {
	g, _ := newTestGraph(t)
	h, err := g.Create(context.Background(), geom.Identity(), "JCUBE_Maneki")
	require.NoError(t, err)
	require.True(t, g.Remove(h))
	assert.False(t, g.Remove(h))

	err = g.Move(h, geom.Identity(), time.Millisecond, Linear)
	assert.ErrorIs(t, err, ErrUnknownAnchor)
}

func TestTiming_Progress(t *testing.T) {
	tests := []struct {
		timing Timing
		in     float64
		want   float64
	}{
		{Linear, 0.25, 0.25},
		{Linear, -1, 0},
		{Linear, 2, 1},
		{EaseInOut, 0, 0},
		{EaseInOut, 0.5, 0.5},
		{EaseInOut, 1, 1},
		{EaseInOut, 0.25, 0.15625},
	}
	for _, tt := range tests {
		t.Run(tt.timing.String(), func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.timing.Progress(tt.in), 1e-12)
		})
	}

	for _, s := range []string{"linear", "ease_in_out"} {
		tm, err := ParseTiming(s)
		require.NoError(t, err)
		assert.Equal(t, s, tm.String())
	}
	_, err := ParseTiming("bounce")
	assert.Error(t, err)
}

func TestGraph_CameraTrackBounded(t *testing.T) {
	g, _ := newTestGraph(t)
	for i := 0; i < maxCameraTrack+10; i++ {
		g.ObserveCamera(geom.Translate(r3.Vec{X: float64(i)}))
	}
	g.ObserveCamera(geom.Transform{}) // ignored

	track := g.CameraTrack()
	require.Len(t, track, maxCameraTrack)
	assert.Equal(t, 10.0, track[0].X)
	assert.Equal(t, float64(maxCameraTrack+9), track[len(track)-1].X)
}

func TestGraph_Snapshot(t *testing.T) {
	g, _ := newTestGraph(t)

	// An empty scene still renders.
	img, err := g.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	for i := 0; i < 5; i++ {
		g.ObserveCamera(geom.Translate(r3.Vec{Z: -0.1 * float64(i)}))
	}
	_, err = g.Create(context.Background(), geom.Translate(r3.Vec{Z: -1.4}), "JCUBE_Maneki")
	require.NoError(t, err)

	img, err = g.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
