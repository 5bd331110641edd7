package journal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/placement"
)

// Defaults for AsyncRecorder.
const (
	DefaultQueueSize = 256
	maxBatch         = 64
)

// ErrBacklog is returned by AsyncRecorder.Record when the queue is full and
// the command was dropped.
var ErrBacklog = errors.New("journal backlog full")

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("journal recorder closed")

var logf = monitoring.Component("journal")

// CommandWriter persists a batch of commands for one session.
type CommandWriter interface {
	RecordCommands(ctx context.Context, sessionID string, cmds []placement.Command) error
}

// AsyncRecorder implements placement.Recorder without blocking the caller:
// commands go into a bounded queue drained by one writer goroutine, which
// writes whatever has accumulated as a single batch.
type AsyncRecorder struct {
	w         CommandWriter
	sessionID string
	queue     chan placement.Command

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncRecorder starts a writer goroutine for sessionID. A non-positive
// size uses DefaultQueueSize. Close must be called to flush and stop it.
func NewAsyncRecorder(w CommandWriter, sessionID string, size int) *AsyncRecorder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &AsyncRecorder{
		w:         w,
		sessionID: sessionID,
		queue:     make(chan placement.Command, size),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues cmd. It never blocks; when the queue is full the command
// is dropped and ErrBacklog returned.
func (r *AsyncRecorder) Record(cmd placement.Command) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- cmd:
		return nil
	default:
		r.dropped.Add(1)
		return ErrBacklog
	}
}

// Dropped returns the number of commands rejected because the queue was full.
func (r *AsyncRecorder) Dropped() int { return int(r.dropped.Load()) }

// Failed returns the number of commands lost to write errors.
func (r *AsyncRecorder) Failed() int { return int(r.failed.Load()) }

// Close stops accepting commands and waits for the queue to be written. If
// ctx ends first, the in-flight write is cancelled, the rest of the queue is
// discarded and ctx.Err() is returned.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-r.done
		return ctx.Err()
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	batch := make([]placement.Command, 0, maxBatch)
	for cmd := range r.queue {
		batch = append(batch[:0], cmd)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-r.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}

		if err := r.ctx.Err(); err != nil {
			r.failed.Add(int64(len(batch)))
			continue
		}
		if err := r.w.RecordCommands(r.ctx, r.sessionID, batch); err != nil {
			r.failed.Add(int64(len(batch)))
			logf("write %d commands for session %s: %v", len(batch), r.sessionID, err)
		}
	}
}
