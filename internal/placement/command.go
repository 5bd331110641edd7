package placement

import (
	"fmt"
	"time"

	"github.com/banshee-data/arpets/internal/geom"
	"github.com/banshee-data/arpets/internal/scene"
)

// CommandKind is the type of an anchor command.
type CommandKind int

const (
	Create CommandKind = iota
	Move
)

func (k CommandKind) String() string {
	switch k {
	case Create:
		return "create"
	case Move:
		return "move"
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is one anchor command as issued to the sink, with its outcome.
// Duration and Timing are only set for moves; Handle is empty for a
// failed create.
type Command struct {
	Kind     CommandKind
	Pose     geom.Transform
	Handle   scene.AnchorHandle
	Duration time.Duration
	Timing   scene.Timing
	Err      error
}

// OK reports whether the sink accepted the command.
func (c Command) OK() bool { return c.Err == nil }

// Recorder observes issued commands, e.g. to journal them.
type Recorder interface {
	Record(cmd Command) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(cmd Command) error

// Record calls f(cmd).
func (f RecorderFunc) Record(cmd Command) error { return f(cmd) }
