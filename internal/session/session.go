// Package session runs one placement session: it feeds tracking events to
// the placement policy on a single update goroutine and services one-shot
// capture requests without blocking that goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/arpets/internal/capture"
	"github.com/banshee-data/arpets/internal/journal"
	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/placement"
	"github.com/banshee-data/arpets/internal/scene"
	"github.com/banshee-data/arpets/internal/timeutil"
	"github.com/banshee-data/arpets/internal/tracking"
)

// DefaultEventBuffer is the number of tracking events queued between the
// source goroutine and the update goroutine.
const DefaultEventBuffer = 8

// DefaultJournalFlushTimeout bounds how long the end of a session waits for
// queued commands to reach the journal.
const DefaultJournalFlushTimeout = 5 * time.Second

var logf = monitoring.Component("session")

// Notifier receives capture outcomes, e.g. to show a toast to the user.
type Notifier interface {
	Notify(res capture.Result)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(res capture.Result)

// Notify calls f(res).
func (f NotifierFunc) Notify(res capture.Result) { f(res) }

// Journal records sessions, their commands and captures. *journal.Store
// implements it.
type Journal interface {
	BeginSession(ctx context.Context, strategy placement.Strategy, assetID string) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	RecordCommands(ctx context.Context, sessionID string, cmds []placement.Command) error
	RecordCapture(ctx context.Context, sessionID string, res capture.Result) error
}

// Config wires a Session's collaborators. Source and Sink are required.
type Config struct {
	Placement placement.Config
	Source    tracking.Source
	Sink      scene.Sink

	// Snapshotter and Exporter enable captures when both are set.
	Snapshotter capture.Snapshotter
	Exporter    capture.Exporter
	Notifier    Notifier

	// Journal, when set, records the session, its commands and captures.
	// Commands are queued and written by a background goroutine, so a slow
	// journal never holds up event handling.
	Journal             Journal
	JournalQueue        int
	JournalFlushTimeout time.Duration

	// Clock stamps capture results. Defaults to the real clock.
	Clock timeutil.Clock

	// CameraObserver, when set, sees every usable camera pose after the
	// policy has handled it.
	CameraObserver func(tracking.PoseSample)

	EventBuffer int
}

// Stats summarises a session.
type Stats struct {
	Events         int
	Captures       int
	CaptureErrors  int
	CaptureRejects int
	// JournalLost counts commands that never reached the journal, either
	// dropped on a full queue or lost to a write error.
	JournalLost int
	Placement   placement.Stats
}

// Session is a single placement session.
type Session struct {
	cfg       Config
	policy    *placement.Policy
	request   *capture.Request
	sessionID string
	recorder  *journal.AsyncRecorder

	mu    sync.Mutex
	stats Stats
}

// New validates cfg and creates a session. When a journal is configured the
// session is recorded in it immediately.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("session requires a tracking source")
	}
	if cfg.Sink == nil {
		return nil, errors.New("session requires a scene sink")
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.JournalFlushTimeout <= 0 {
		cfg.JournalFlushTimeout = DefaultJournalFlushTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	s := &Session{cfg: cfg, request: capture.NewRequest()}

	var opts []placement.Option
	if cfg.Journal != nil {
		id, err := cfg.Journal.BeginSession(ctx, cfg.Placement.Strategy, cfg.Placement.AssetID)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		s.sessionID = id
		s.recorder = journal.NewAsyncRecorder(cfg.Journal, id, cfg.JournalQueue)
		opts = append(opts, placement.WithRecorder(s.recorder))
	}
	s.policy = placement.New(cfg.Placement, cfg.Sink, opts...)
	return s, nil
}

// ID returns the journal session id, or "" without a journal.
func (s *Session) ID() string { return s.sessionID }

// RequestCapture raises a capture request. It returns false if captures are
// not configured or one is already requested or running. Safe to call from
// any goroutine.
func (s *Session) RequestCapture() bool {
	if !s.capturesEnabled() {
		return false
	}
	if !s.request.Raise() {
		s.mu.Lock()
		s.stats.CaptureRejects++
		s.mu.Unlock()
		return false
	}
	return true
}

// Stats returns a snapshot of the session counters. Safe to call from any
// goroutine.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Anchor returns the policy's anchor state as of the last handled event.
// Only call after Run has returned.
func (s *Session) Anchor() placement.AnchorState {
	return s.policy.State()
}

func (s *Session) capturesEnabled() bool {
	return s.cfg.Snapshotter != nil && s.cfg.Exporter != nil
}

// Run drives the session until the source is exhausted or ctx is cancelled.
// Policy calls and all capture bookkeeping happen on the calling goroutine;
// the source and each capture run on their own goroutines and hand results
// back over channels. When the source ends, Run waits for an in-flight
// capture and services a request raised before the end.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tracking.Event, s.cfg.EventBuffer)
	srcErr := make(chan error, 1)
	go func() {
		err := s.cfg.Source.Run(runCtx, func(ev tracking.Event) {
			select {
			case events <- ev:
			case <-runCtx.Done():
			}
		})
		close(events)
		srcErr <- err
	}()

	var pending <-chan struct{}
	if s.capturesEnabled() {
		pending = s.request.Pending()
	}
	results := make(chan capture.Result, 1)
	inFlight := false
	sourceDone := false

	startCapture := func() {
		inFlight = true
		id := capture.NewID()
		go func() {
			res := capture.Capture(runCtx, s.cfg.Clock, id, s.cfg.Snapshotter, s.cfg.Exporter)
			s.recordCapture(runCtx, res)
			results <- res
		}()
	}

	for {
		if sourceDone && !inFlight {
			select {
			case <-pending:
				startCapture()
			default:
				return s.finish(ctx, <-srcErr)
			}
		}

		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				sourceDone = true
				continue
			}
			s.handle(runCtx, ev)

		case <-pending:
			// The request is not re-armed until the running capture
			// completes, so at most one is ever in flight.
			startCapture()

		case res := <-results:
			inFlight = false
			s.completeCapture(res)

		case <-ctx.Done():
			s.endJournal()
			return ctx.Err()
		}
	}
}

func (s *Session) handle(ctx context.Context, ev tracking.Event) {
	s.policy.Handle(ctx, ev)

	if sample, ok := ev.(tracking.PoseSample); ok && sample.Usable() && s.cfg.CameraObserver != nil {
		s.cfg.CameraObserver(sample)
	}

	s.mu.Lock()
	s.stats.Events++
	s.stats.Placement = s.policy.Stats()
	s.mu.Unlock()
}

// recordCapture runs on the capture goroutine.
func (s *Session) recordCapture(ctx context.Context, res capture.Result) {
	if s.cfg.Journal == nil {
		return
	}
	if err := s.cfg.Journal.RecordCapture(ctx, s.sessionID, res); err != nil {
		logf("journal capture %s: %v", res.ID, err)
	}
}

// completeCapture runs on the update goroutine, so clearing the request
// never races with the policy.
func (s *Session) completeCapture(res capture.Result) {
	s.request.Clear()

	s.mu.Lock()
	s.stats.Captures++
	if !res.OK() {
		s.stats.CaptureErrors++
	}
	s.mu.Unlock()

	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(res)
	}
}

func (s *Session) finish(ctx context.Context, err error) error {
	s.endJournal()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tracking source: %w", err)
	}
	return ctx.Err()
}

// endJournal flushes queued commands and closes the session record. Both
// steps share one JournalFlushTimeout so a stuck journal cannot hold Run.
func (s *Session) endJournal() {
	if s.cfg.Journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JournalFlushTimeout)
	defer cancel()

	if err := s.recorder.Close(ctx); err != nil {
		logf("journal flush: %v", err)
	}
	s.mu.Lock()
	s.stats.JournalLost = s.recorder.Dropped() + s.recorder.Failed()
	s.mu.Unlock()

	if err := s.cfg.Journal.EndSession(ctx, s.sessionID); err != nil {
		logf("journal end session: %v", err)
	}
}
