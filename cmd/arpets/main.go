// Command arpets runs one placement session over a recorded or synthetic
// tracking trace and reports where the pet ended up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/arpets/internal/capture"
	"github.com/banshee-data/arpets/internal/config"
	"github.com/banshee-data/arpets/internal/journal"
	"github.com/banshee-data/arpets/internal/monitoring"
	"github.com/banshee-data/arpets/internal/placement"
	"github.com/banshee-data/arpets/internal/scene"
	"github.com/banshee-data/arpets/internal/session"
	"github.com/banshee-data/arpets/internal/tracking"
	"github.com/banshee-data/arpets/internal/version"
)

var (
	configPath   = flag.String("config", "", "Placement config JSON (built-in defaults when empty)")
	tracePath    = flag.String("trace", "", "Tracking trace in JSON lines (synthesizes a walk when empty)")
	strategy     = flag.String("strategy", "", "Override placement strategy: camera_follow or surface_snap")
	journalPath  = flag.String("journal", "", "sqlite journal path (overrides config)")
	exportDir    = flag.String("export", "", "Directory for captured snapshots (overrides config)")
	captureEvery = flag.Int("capture-every", -1, "Request a capture every N camera poses, 0 disables (overrides config)")
	interval     = flag.Duration("interval", -1, "Replay frame interval, 0 replays as fast as possible (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options are the resolved command-line settings.
type options struct {
	ConfigPath   string
	TracePath    string
	Strategy     string
	JournalPath  string
	ExportDir    string
	CaptureEvery int
	Interval     time.Duration
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("arpets"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, anchor, err := run(ctx, options{
		ConfigPath:   *configPath,
		TracePath:    *tracePath,
		Strategy:     *strategy,
		JournalPath:  *journalPath,
		ExportDir:    *exportDir,
		CaptureEvery: *captureEvery,
		Interval:     *interval,
	})
	if sessionFailed(err) {
		log.Fatalf("session failed: %v", err)
	}

	log.Printf("%d events, %d creates (%d failed), %d moves (%d failed), %d captures (%d failed)",
		stats.Events, stats.Placement.Creates, stats.Placement.CreateFailures,
		stats.Placement.Moves, stats.Placement.MoveFailures, stats.Captures, stats.CaptureErrors)
	if stats.JournalLost > 0 {
		log.Printf("%d commands never reached the journal", stats.JournalLost)
	}
	if anchor.Exists {
		p := anchor.TargetPose.Translation
		log.Printf("pet anchored at (%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
	} else {
		log.Print("pet was never placed")
	}
}

// sessionFailed reports whether err from run should fail the command. An
// interrupt cancels the session but is not a failure.
func sessionFailed(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// loadConfig reads the config file (or defaults), applies environment
// overrides and then command-line overrides.
func loadConfig(o options) (*config.PlacementConfig, error) {
	cfg := config.DefaultPlacementConfig()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.LoadPlacementConfig(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if o.Strategy != "" {
		cfg.Strategy = &o.Strategy
	}
	if o.JournalPath != "" {
		cfg.JournalPath = &o.JournalPath
	}
	if o.ExportDir != "" {
		cfg.ExportDir = &o.ExportDir
	}
	if o.CaptureEvery >= 0 {
		cfg.CaptureEvery = &o.CaptureEvery
	}
	if o.Interval >= 0 {
		s := o.Interval.String()
		cfg.FrameInterval = &s
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEvents(path string) ([]tracking.Event, error) {
	if path == "" {
		opts := tracking.DefaultSynthOptions()
		log.Printf("no trace given, synthesizing %d frames", opts.Frames)
		return tracking.Synthesize(opts), nil
	}
	events, err := tracking.ReadTraceFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d events from %s", len(events), path)
	return events, nil
}

func run(ctx context.Context, o options) (session.Stats, placement.AnchorState, error) {
	cfg, err := loadConfig(o)
	if err != nil {
		return session.Stats{}, placement.AnchorState{}, fmt.Errorf("config: %w", err)
	}
	events, err := loadEvents(o.TracePath)
	if err != nil {
		return session.Stats{}, placement.AnchorState{}, err
	}

	graph := scene.NewGraph(scene.DefaultAssets(), nil)
	sc := session.Config{
		Placement: cfg.Placement(),
		Source:    tracking.NewReplaySource(events, tracking.WithInterval(cfg.GetFrameInterval())),
		Sink:      graph,
		Notifier: session.NotifierFunc(func(res capture.Result) {
			if res.OK() {
				log.Printf("Saved capture to %s", res.Location)
			} else {
				log.Printf("Failed to save capture: %v", res.Err)
			}
		}),
	}

	if dir := cfg.GetExportDir(); dir != "" {
		sc.Snapshotter = graph
		sc.Exporter = capture.DirExporter{Dir: dir}
	}

	if path := cfg.GetJournalPath(); path != "" {
		store, err := journal.Open(path)
		if err != nil {
			return session.Stats{}, placement.AnchorState{}, err
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			return session.Stats{}, placement.AnchorState{}, err
		}
		sc.Journal = store
	}

	var sess *session.Session
	every, poses := cfg.GetCaptureEvery(), 0
	if sc.Exporter == nil {
		every = 0
	}
	sc.CameraObserver = func(sample tracking.PoseSample) {
		graph.ObserveCamera(sample.Camera)
		poses++
		if every > 0 && poses%every == 0 && !sess.RequestCapture() {
			monitoring.Logf("capture at pose %d skipped, one already pending", poses)
		}
	}

	sess, err = session.New(ctx, sc)
	if err != nil {
		return session.Stats{}, placement.AnchorState{}, err
	}
	if id := sess.ID(); id != "" {
		log.Printf("journalling session %s to %s", id, cfg.GetJournalPath())
	}
	log.Printf("running %s placement of %s over %d events", sc.Placement.Strategy, sc.Placement.AssetID, len(events))

	err = sess.Run(ctx)
	return sess.Stats(), sess.Anchor(), err
}
