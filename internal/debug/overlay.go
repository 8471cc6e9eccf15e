// Package debug draws an on-screen status overlay for the feedback window.
package debug

import (
	"fmt"

	"feedbackwarp/internal/engine2D"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Status is the part of the renderer the overlay reports on.
type Status interface {
	State() engine2D.State
	Frames() int
	Buffers() *engine2D.PingPong
}

type Overlay struct {
	Visible bool

	status     Status
	fontHeight int32
	padding    int32
}

func NewOverlay() *Overlay {
	return &Overlay{fontHeight: 16, padding: 8}
}

func (o *Overlay) Attach(s Status) { o.status = s }

func (o *Overlay) Toggle() { o.Visible = !o.Visible }

// Lines returns the text shown in the status panel.
func (o *Overlay) Lines() []string {
	if o.status == nil {
		return nil
	}
	w, h := o.status.Buffers().Size()
	target := "A"
	if o.status.Buffers().Role() == engine2D.TargetB {
		target = "B"
	}
	return []string{
		fmt.Sprintf("state    %s", o.status.State()),
		fmt.Sprintf("frames   %d", o.status.Frames()),
		fmt.Sprintf("buffers  %dx%d", w, h),
		fmt.Sprintf("target   %s", target),
	}
}

// Draw outlines the feedback buffers and prints the status panel. It expects
// the visible surface to be bound.
func (o *Overlay) Draw() {
	if !o.Visible || o.status == nil {
		return
	}

	w, h := o.status.Buffers().Size()
	rl.DrawRectangleLines(0, 0, int32(w), int32(h), rl.NewColor(0, 255, 0, 255))

	lines := o.Lines()
	panelW := int32(0)
	for _, line := range lines {
		panelW = max(panelW, rl.MeasureText(line, o.fontHeight))
	}
	panelW += 2 * o.padding
	panelH := int32(len(lines))*(o.fontHeight+4) + 2*o.padding

	rl.DrawRectangle(o.padding, o.padding, panelW, panelH, rl.NewColor(0, 0, 0, 160))
	rl.DrawRectangleLines(o.padding, o.padding, panelW, panelH, rl.White)
	for i, line := range lines {
		y := 2*o.padding + int32(i)*(o.fontHeight+4)
		rl.DrawText(line, 2*o.padding, y, o.fontHeight, rl.White)
	}

	rl.DrawFPS(int32(w)-90, o.padding)
}
