package tracking

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/arpets/internal/geom"
)

// ErrMalformedTrace is returned when a trace line cannot be decoded.
var ErrMalformedTrace = errors.New("malformed trace")

// maxTraceLine caps a single JSON line; matrices and quaternions are small.
const maxTraceLine = 64 * 1024

// traceRecord is one JSON line of a trace file.
//
// A pose is given either as position + rotation (w, x, y, z) or as a
// column-major 4x4 matrix. A pose line without either, or with a matrix that
// is not a rigid transform, is a frame with no camera transform.
type traceRecord struct {
	Type      string    `json:"type"`
	TimeMs    float64   `json:"t_ms"`
	State     string    `json:"state,omitempty"`
	ID        string    `json:"id,omitempty"`
	Alignment string    `json:"alignment,omitempty"`
	Position  []float64 `json:"position,omitempty"`
	Rotation  []float64 `json:"rotation,omitempty"`
	Matrix    []float64 `json:"matrix,omitempty"`
}

// ReadTraceFile reads a JSON-lines trace from path.
func ReadTraceFile(path string) ([]Event, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()
	return ReadTrace(f)
}

// ReadTrace decodes a JSON-lines trace. Blank lines and lines starting with
// '#' are ignored.
func ReadTrace(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxTraceLine)

	var events []Event
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var rec traceRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTrace, line, err)
		}
		ev, err := rec.event()
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTrace, line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return events, nil
}

// WriteTrace encodes events as JSON lines.
func WriteTrace(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	for i, ev := range events {
		rec, err := recordFor(ev)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write event %d: %w", i, err)
		}
	}
	return nil
}

func (rec traceRecord) event() (Event, error) {
	ts := time.Duration(rec.TimeMs * float64(time.Millisecond))
	switch rec.Type {
	case "pose":
		state, err := ParseTrackingState(rec.State)
		if err != nil {
			return nil, err
		}
		sample := PoseSample{Timestamp: ts, State: state}
		if rec.hasPose() {
			if sample.Camera, err = rec.transform(); err != nil {
				return nil, err
			}
		}
		return sample, nil
	case "plane":
		alignment, err := ParseAlignment(rec.Alignment)
		if err != nil {
			return nil, err
		}
		pose, err := rec.transform()
		if err != nil {
			return nil, err
		}
		return PlaneEvent{ID: rec.ID, Timestamp: ts, Alignment: alignment, Pose: pose}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", rec.Type)
}

func (rec traceRecord) hasPose() bool {
	return len(rec.Matrix) > 0 || len(rec.Position) > 0 || len(rec.Rotation) > 0
}

func (rec traceRecord) transform() (geom.Transform, error) {
	if len(rec.Matrix) > 0 {
		if len(rec.Matrix) != 16 {
			return geom.Transform{}, fmt.Errorf("matrix must have 16 elements, got %d", len(rec.Matrix))
		}
		var m [16]float64
		copy(m[:], rec.Matrix)
		t, err := geom.FromMatrix(m)
		if errors.Is(err, geom.ErrNotRigid) {
			// A garbage transform is a frame without a usable pose, not a
			// broken trace; the zero Transform is never Valid.
			return geom.Transform{}, nil
		}
		return t, err
	}

	t := geom.Identity()
	switch len(rec.Position) {
	case 0:
	case 3:
		t.Translation = r3.Vec{X: rec.Position[0], Y: rec.Position[1], Z: rec.Position[2]}
	default:
		return geom.Transform{}, fmt.Errorf("position must have 3 elements, got %d", len(rec.Position))
	}
	switch len(rec.Rotation) {
	case 0:
	case 4:
		t.Rotation = r3.Rotation{Real: rec.Rotation[0], Imag: rec.Rotation[1], Jmag: rec.Rotation[2], Kmag: rec.Rotation[3]}
	default:
		return geom.Transform{}, fmt.Errorf("rotation must have 4 elements (w, x, y, z), got %d", len(rec.Rotation))
	}
	return t, nil
}

func recordFor(ev Event) (traceRecord, error) {
	switch e := ev.(type) {
	case PoseSample:
		rec := traceRecord{Type: "pose", TimeMs: millis(e.Timestamp), State: e.State.String()}
		if e.Camera.Valid() {
			rec.Position, rec.Rotation = components(e.Camera)
		}
		return rec, nil
	case PlaneEvent:
		rec := traceRecord{Type: "plane", TimeMs: millis(e.Timestamp), ID: e.ID, Alignment: e.Alignment.String()}
		rec.Position, rec.Rotation = components(e.Pose)
		return rec, nil
	}
	return traceRecord{}, fmt.Errorf("unsupported event %T", ev)
}

func components(t geom.Transform) (pos, rot []float64) {
	p, q := t.Translation, t.Rotation
	return []float64{p.X, p.Y, p.Z}, []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
