package engine2D

import "feedbackwarp/internal/gpu"

// BufferRole says which buffer is rendered into next.
type BufferRole bool

const (
	TargetA BufferRole = false
	TargetB BufferRole = true
)

type renderTarget struct {
	fb  gpu.FramebufferID
	tex gpu.TextureID
}

// PingPong owns two equally sized render targets, A and B. One is the source
// sampled this frame and the other the target drawn into; Toggle swaps them.
type PingPong struct {
	dev           gpu.Device
	a, b          renderTarget
	role          BufferRole
	width, height int
}

var bufferSampler = gpu.Sampler{
	WrapS:     gpu.ClampToEdge,
	WrapT:     gpu.ClampToEdge,
	MinFilter: gpu.Linear,
	MagFilter: gpu.Linear,
}

// NewPingPong allocates both buffers. A is the first target.
func NewPingPong(dev gpu.Device, width, height int) *PingPong {
	p := &PingPong{dev: dev}
	p.allocate(width, height)
	return p
}

func (p *PingPong) allocate(width, height int) {
	p.width, p.height = width, height
	p.a = p.newTarget()
	p.b = p.newTarget()
}

func (p *PingPong) newTarget() renderTarget {
	fb, tex := p.dev.CreateRenderTarget(p.width, p.height)
	p.dev.TexParameters(tex, bufferSampler)
	return renderTarget{fb: fb, tex: tex}
}

func (p *PingPong) target() renderTarget {
	if p.role == TargetA {
		return p.a
	}
	return p.b
}

func (p *PingPong) source() renderTarget {
	if p.role == TargetA {
		return p.b
	}
	return p.a
}

func (p *PingPong) Role() BufferRole { return p.role }

// CurrentTarget is the framebuffer drawn into this frame.
func (p *PingPong) CurrentTarget() gpu.FramebufferID { return p.target().fb }

// CurrentSource is the texture written by the previous frame.
func (p *PingPong) CurrentSource() gpu.TextureID { return p.source().tex }

// SourceFramebuffer is the framebuffer of CurrentSource. The seed pass draws
// into it so the first distortion pass samples a defined field.
func (p *PingPong) SourceFramebuffer() gpu.FramebufferID { return p.source().fb }

// Other is the texture attached to CurrentTarget, which the display pass
// reads once the distortion pass has written it.
func (p *PingPong) Other() gpu.TextureID { return p.target().tex }

// A returns buffer A's framebuffer and texture.
func (p *PingPong) A() (gpu.FramebufferID, gpu.TextureID) { return p.a.fb, p.a.tex }

// B returns buffer B's framebuffer and texture.
func (p *PingPong) B() (gpu.FramebufferID, gpu.TextureID) { return p.b.fb, p.b.tex }

// Toggle swaps source and target. Call it once per frame, after the frame's
// last draw.
func (p *PingPong) Toggle() {
	p.role = !p.role
}

func (p *PingPong) Size() (int, int) { return p.width, p.height }

// Resize reallocates both buffers at the new size. Their contents are lost
// and the roles are kept.
func (p *PingPong) Resize(width, height int) {
	if width == p.width && height == p.height {
		return
	}
	p.Release()
	p.allocate(width, height)
}

func (p *PingPong) Release() {
	for _, t := range []renderTarget{p.a, p.b} {
		if t.fb != 0 {
			p.dev.DeleteRenderTarget(t.fb)
		}
	}
	p.a, p.b = renderTarget{}, renderTarget{}
}
