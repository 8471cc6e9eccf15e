// Package kernel holds CPU versions of the fragment shaders. They follow the
// GLSL sources in engine2D/shader/glsl line for line so the software device
// produces the same image as the GPU.
package kernel

type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

type Vec4 [4]float32

// Inputs is what a fragment invocation can observe.
type Inputs interface {
	// FragCoord is the window-space pixel center, origin bottom-left.
	FragCoord() Vec2
	Float(name string) float32
	Vec2(name string) Vec2
	Int(name string) int32
	// Texture samples the texture bound to the unit named by a sampler uniform.
	Texture(sampler string, uv Vec2) Vec4
}

// Kernel is a fragment shader.
type Kernel interface {
	Shade(in Inputs) Vec4
}

// Func adapts a function to Kernel.
type Func func(in Inputs) Vec4

func (f Func) Shade(in Inputs) Vec4 { return f(in) }

func screenUV(in Inputs) Vec2 {
	coord := in.FragCoord()
	res := in.Vec2("u_resolution")
	return Vec2{coord.X / res.X, coord.Y / res.Y}
}

// Seed writes the screen UV as color, giving the feedback loop a defined
// starting state.
var Seed = Func(func(in Inputs) Vec4 {
	uv := screenUV(in)
	return Vec4{uv.X, uv.Y, 0, 1}
})
