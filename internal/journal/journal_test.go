package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/capture"
	"github.com/banshee-data/arpets/internal/geom"
	"github.com/banshee-data/arpets/internal/placement"
	"github.com/banshee-data/arpets/internal/scene"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

func TestMigrations(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer s.Close()

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateUp())
	require.NoError(t, s.MigrateUp(), "second MigrateUp must be a no-op")

	version, dirty, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.BeginSession(ctx, placement.SurfaceSnap, "JCUBE_Maneki")
	require.NoError(t, err)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
	assert.Equal(t, "surface_snap", sessions[0].Strategy)
	assert.Nil(t, sessions[0].EndedAt)

	require.NoError(t, s.EndSession(ctx, id))
	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	require.NotNil(t, sessions[0].EndedAt)
	assert.False(t, sessions[0].EndedAt.Before(sessions[0].StartedAt))

	err = s.EndSession(ctx, "nope")
	assert.True(t, errors.Is(err, ErrUnknownSession), "got %v", err)
}

func TestRecordCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.BeginSession(ctx, placement.CameraFollow, "JCUBE_Maneki")
	require.NoError(t, err)

	rec := NewAsyncRecorder(s, id, 0)
	require.NoError(t, rec.Record(placement.Command{
		Kind: placement.Create,
		Pose: geom.Translate(r3.Vec{Z: -1}),
		Err:  scene.ErrAssetLoad,
	}))
	require.NoError(t, rec.Record(placement.Command{
		Kind:   placement.Create,
		Pose:   geom.Translate(r3.Vec{Z: -1}),
		Handle: "h1",
	}))
	require.NoError(t, rec.Record(placement.Command{
		Kind:     placement.Move,
		Pose:     geom.Translate(r3.Vec{Z: -0.9}),
		Handle:   "h1",
		Duration: 100 * time.Millisecond,
		Timing:   scene.Linear,
	}))
	require.NoError(t, rec.Close(ctx))
	assert.ErrorIs(t, rec.Record(placement.Command{}), ErrRecorderClosed)
	assert.Zero(t, rec.Dropped())
	assert.Zero(t, rec.Failed())

	cmds, err := s.Commands(ctx, id)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	assert.Equal(t, "create", cmds[0].Kind)
	assert.Equal(t, scene.ErrAssetLoad.Error(), cmds[0].Error)
	assert.Empty(t, cmds[0].Handle)

	assert.Equal(t, "h1", cmds[1].Handle)
	assert.Empty(t, cmds[1].Error)
	assert.Empty(t, cmds[1].Timing)

	assert.Equal(t, "move", cmds[2].Kind)
	assert.Equal(t, -0.9, cmds[2].Z)
	assert.Equal(t, 1.0, cmds[2].RotW)
	assert.Equal(t, 100*time.Millisecond, cmds[2].Duration)
	assert.Equal(t, "linear", cmds[2].Timing)
	assert.Less(t, cmds[0].ID, cmds[2].ID)
}

func TestRecordCommand_UnknownSessionRejected(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordCommand(context.Background(), "missing", placement.Command{Pose: geom.Identity()})
	assert.Error(t, err, "foreign key must reject commands for unknown sessions")
}

func TestRecordCaptures(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.BeginSession(ctx, placement.CameraFollow, "JCUBE_Maneki")
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, s.RecordCapture(ctx, id, capture.Result{
		ID: "c1", Location: "/tmp/c1.png", Started: now, Completed: now.Add(time.Millisecond),
	}))
	require.NoError(t, s.RecordCapture(ctx, id, capture.Result{
		ID: "c2", Err: capture.ErrCaptureFailed, Started: now, Completed: now.Add(2 * time.Millisecond),
	}))

	caps, err := s.Captures(ctx, id)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "/tmp/c1.png", caps[0].Location)
	assert.Empty(t, caps[0].Error)
	assert.Equal(t, "c2", caps[1].ID)
	assert.Equal(t, capture.ErrCaptureFailed.Error(), caps[1].Error)
	assert.Equal(t, now.UnixNano(), caps[0].StartedAt.UnixNano())
}
