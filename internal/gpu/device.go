// Package gpu describes the small slice of a GL-style graphics API that the
// feedback renderer needs. Backends live in subpackages: rlgpu draws through
// raylib, soft rasterizes on the CPU.
package gpu

import (
	"fmt"
	"image"
)

type (
	ShaderID      uint32
	ProgramID     uint32
	TextureID     uint32
	FramebufferID uint32
)

// DefaultFramebuffer is the visible surface.
const DefaultFramebuffer FramebufferID = 0

type Stage int

const (
	VertexStage Stage = iota
	FragmentStage
)

func (s Stage) String() string {
	switch s {
	case VertexStage:
		return "vertex"
	case FragmentStage:
		return "fragment"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

type Wrap int

const (
	ClampToEdge Wrap = iota
	Repeat
)

type Filter int

const (
	Nearest Filter = iota
	Linear
)

// Sampler is the per-texture sampling state.
type Sampler struct {
	WrapS, WrapT Wrap
	MinFilter    Filter
	MagFilter    Filter
}

// Color is a clear color with components in [0,1].
type Color struct {
	R, G, B, A float32
}

// Device is driven from a single goroutine. Implementations are not safe for
// concurrent use.
type Device interface {
	// Shaders and programs. Compile and Link report the backend status and
	// diagnostic log; the caller owns cleanup on failure.
	CreateShader(stage Stage) ShaderID
	CompileShader(shader ShaderID, source string) (log string, ok bool)
	DeleteShader(shader ShaderID)
	CreateProgram() ProgramID
	LinkProgram(program ProgramID, vertex, fragment ShaderID) (log string, ok bool)
	DeleteProgram(program ProgramID)
	UseProgram(program ProgramID)

	// Uniforms apply to the program bound by UseProgram. A location of -1 is
	// ignored, matching GL.
	UniformLocation(program ProgramID, name string) int32
	Uniform1f(loc int32, v float32)
	Uniform2f(loc int32, x, y float32)
	Uniform1i(loc int32, v int32)

	// Textures.
	CreateTexture() TextureID
	TexImage(texture TextureID, img *image.RGBA)
	TexParameters(texture TextureID, sampler Sampler)
	TextureSize(texture TextureID) (width, height int)
	DeleteTexture(texture TextureID)

	// CreateRenderTarget allocates a framebuffer with a single color
	// attachment of the given size and returns both handles.
	CreateRenderTarget(width, height int) (FramebufferID, TextureID)
	DeleteRenderTarget(fb FramebufferID)

	BeginFrame()
	EndFrame()
	BindFramebuffer(fb FramebufferID)
	BindTexture(unit int, texture TextureID)
	Clear(c Color)
	DrawElements(g *Geometry)

	// ReadPixels returns the current contents of fb.
	ReadPixels(fb FramebufferID) *image.RGBA

	SurfaceSize() (width, height int)
}
