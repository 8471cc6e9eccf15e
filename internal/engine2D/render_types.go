package engine2D

import (
	"errors"
	"fmt"

	"feedbackwarp/internal/gpu"
)

// ErrDisposed is returned by Tick and Run after Dispose.
var ErrDisposed = errors.New("engine2D: renderer disposed")

// State is the lifecycle position of a FeedbackRenderer.
type State int

const (
	Uninitialized State = iota
	Seeding
	AwaitingAssets
	Running
	Disposed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Seeding:
		return "seeding"
	case AwaitingAssets:
		return "awaiting-assets"
	case Running:
		return "running"
	case Disposed:
		return "disposed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// FrameHost paces the render loop. NextFrame blocks until the next display
// refresh and returns false when the host wants the loop to stop.
type FrameHost interface {
	NextFrame() bool
}

// FrameHostFunc adapts a function to FrameHost.
type FrameHostFunc func() bool

func (f FrameHostFunc) NextFrame() bool { return f() }

var (
	waitingColor = gpu.Color{R: 0.3, G: 0.31, B: 0.32, A: 1}
	clearColor   = gpu.Color{R: 0, G: 0, B: 0, A: 1}
)
