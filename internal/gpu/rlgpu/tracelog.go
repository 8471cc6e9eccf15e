package rlgpu

import (
	"strings"

	"feedbackwarp/internal/utils"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// traceCapture collects raylib warnings and errors while a shader is being
// built, since raylib reports compile and link failures only through its
// trace log.
type traceCapture struct {
	active bool
	lines  []string
}

func (c *traceCapture) callback(level int, text string) {
	if c.active && level >= int(rl.LogWarning) {
		c.lines = append(c.lines, text)
	}
	utils.RaylibLogCallback(level, text)
}

func (c *traceCapture) begin() {
	c.active = true
	c.lines = c.lines[:0]
}

// end stops capturing and returns the captured log and whether any line
// reports a failure containing marker.
func (c *traceCapture) end(marker string) (string, bool) {
	c.active = false
	failed := false
	for _, line := range c.lines {
		if strings.Contains(line, marker) {
			failed = true
		}
	}
	return strings.Join(c.lines, "\n"), failed
}
