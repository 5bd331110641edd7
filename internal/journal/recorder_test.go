package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/arpets/internal/placement"
)

// blockingWriter holds every write until release is closed or the write's
// context ends.
type blockingWriter struct {
	release chan struct{}

	mu      sync.Mutex
	batches [][]placement.Command
}

func (w *blockingWriter) RecordCommands(ctx context.Context, _ string, cmds []placement.Command) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]placement.Command(nil), cmds...))
	return nil
}

func (w *blockingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestAsyncRecorder_NeverBlocksCaller(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	rec := NewAsyncRecorder(w, "s1", 4)

	start := time.Now()
	var rejected int
	for i := 0; i < 20; i++ {
		if err := rec.Record(placement.Command{Kind: placement.Move}); err != nil {
			assert.ErrorIs(t, err, ErrBacklog)
			rejected++
		}
	}
	assert.Less(t, time.Since(start), time.Second, "Record must not wait on the writer")
	assert.Positive(t, rejected)
	assert.Equal(t, rejected, rec.Dropped())

	close(w.release)
	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, 20-rejected, w.total())
	assert.Zero(t, rec.Failed())
}

func TestAsyncRecorder_BatchesQueuedCommands(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	rec := NewAsyncRecorder(w, "s1", 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, rec.Record(placement.Command{Kind: placement.Move}))
	}
	close(w.release)
	require.NoError(t, rec.Close(context.Background()))

	assert.Equal(t, 10, w.total())
	assert.Less(t, len(w.batches), 10, "queued commands should share a write")
}

func TestAsyncRecorder_CloseCancelsStuckWrite(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{})}
	rec := NewAsyncRecorder(w, "s1", 0)
	require.NoError(t, rec.Record(placement.Command{}))
	require.NoError(t, rec.Record(placement.Command{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rec.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, w.total())
	assert.Equal(t, 2, rec.Failed())
}

func TestAsyncRecorder_WritesToStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.BeginSession(ctx, placement.CameraFollow, "JCUBE_Maneki")
	require.NoError(t, err)

	rec := NewAsyncRecorder(s, id, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, rec.Record(placement.Command{Kind: placement.Move, Handle: "h"}))
	}
	require.NoError(t, rec.Close(ctx))

	cmds, err := s.Commands(ctx, id)
	require.NoError(t, err)
	assert.Len(t, cmds, 100)
}
