// Command gen-trace generates synthetic tracking traces for testing replay.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"time"

	"github.com/banshee-data/arpets/internal/tracking"
)

func main() {
	defaults := tracking.DefaultSynthOptions()
	output := flag.String("o", "sample.jsonl", "output path")
	frames := flag.Int("n", defaults.Frames, "number of frames")
	fps := flag.Float64("fps", 60, "frames per second")
	speed := flag.Float64("speed", defaults.Speed, "walking speed in m/s")
	yaw := flag.Float64("yaw", defaults.YawRate, "turn rate in rad/s")
	dropout := flag.Int("dropout", defaults.DropoutEvery, "mark every Nth frame untracked (0 disables)")
	floorAt := flag.Int("floor-at", defaults.HorizontalPlaneAt, "frame of the floor detection (-1 disables)")
	wallAt := flag.Int("wall-at", defaults.VerticalPlaneAt, "frame of the wall detection (-1 disables)")
	flag.Parse()

	if *fps <= 0 {
		log.Fatalf("fps must be positive, got %v", *fps)
	}

	opts := defaults
	opts.Frames = *frames
	opts.FrameInterval = time.Duration(float64(time.Second) / *fps)
	opts.Speed = *speed
	opts.YawRate = *yaw
	opts.DropoutEvery = *dropout
	opts.HorizontalPlaneAt = *floorAt
	opts.VerticalPlaneAt = *wallAt
	events := tracking.Synthesize(opts)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	w := bufio.NewWriter(f)
	if err := tracking.WriteTrace(w, events); err != nil {
		log.Fatalf("failed to write trace: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("failed to flush trace: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to close %s: %v", *output, err)
	}
	log.Printf("Created %s: %d events over %d frames", *output, len(events), opts.Frames)
}
