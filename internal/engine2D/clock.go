package engine2D

import "time"

// Clock supplies u_time: seconds since the clock was started.
type Clock struct {
	start time.Time
	now   func() time.Time
}

func NewClock() *Clock {
	return &Clock{start: time.Now(), now: time.Now}
}

// Seconds is the elapsed time as the float32 the shader receives.
func (c *Clock) Seconds() float32 {
	return float32(c.now().Sub(c.start).Seconds())
}
