package soft

import (
	"feedbackwarp/internal/engine2D/kernel"
	"feedbackwarp/internal/gpu"

	"github.com/chewxy/math32"
)

// fragment is the kernel.Inputs of one pixel invocation.
type fragment struct {
	dev   *Device
	prog  *programObject
	coord kernel.Vec2
}

func (f *fragment) FragCoord() kernel.Vec2 { return f.coord }

func (f *fragment) floats(name string) []float32 {
	loc, ok := f.prog.locs[name]
	if !ok {
		return nil
	}
	return f.prog.floats[loc]
}

func (f *fragment) Float(name string) float32 {
	if v := f.floats(name); len(v) > 0 {
		return v[0]
	}
	return 0
}

func (f *fragment) Vec2(name string) kernel.Vec2 {
	if v := f.floats(name); len(v) > 1 {
		return kernel.Vec2{X: v[0], Y: v[1]}
	}
	return kernel.Vec2{}
}

func (f *fragment) Int(name string) int32 {
	loc, ok := f.prog.locs[name]
	if !ok {
		return 0
	}
	return f.prog.ints[loc]
}

// Texture samples through the unit stored in the sampler uniform. Unbound
// or empty textures read as opaque black.
func (f *fragment) Texture(sampler string, uv kernel.Vec2) kernel.Vec4 {
	unit := int(f.Int(sampler))
	if unit < 0 || unit >= len(f.dev.units) {
		return kernel.Vec4{0, 0, 0, 1}
	}
	tex := f.dev.textures[f.dev.units[unit]]
	if tex == nil || tex.width == 0 || tex.height == 0 {
		return kernel.Vec4{0, 0, 0, 1}
	}
	return tex.sample(uv)
}

func wrapCoord(i, size int, mode gpu.Wrap) int {
	if mode == gpu.Repeat {
		i %= size
		if i < 0 {
			i += size
		}
		return i
	}
	return clampInt(i, 0, size-1)
}

func (t *texture) fetch(x, y int) kernel.Vec4 {
	x = wrapCoord(x, t.width, t.sampler.WrapS)
	y = wrapCoord(y, t.height, t.sampler.WrapT)
	i := (y*t.width + x) * 4
	return kernel.Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// sample has no level of detail, so MinFilter alone selects the filter.
func (t *texture) sample(uv kernel.Vec2) kernel.Vec4 {
	u := uv.X * float32(t.width)
	v := uv.Y * float32(t.height)

	if t.sampler.MinFilter == gpu.Nearest {
		return t.fetch(int(math32.Floor(u)), int(math32.Floor(v)))
	}

	u -= 0.5
	v -= 0.5
	x0 := math32.Floor(u)
	y0 := math32.Floor(v)
	fx := u - x0
	fy := v - y0
	ix, iy := int(x0), int(y0)

	c00 := t.fetch(ix, iy)
	c10 := t.fetch(ix+1, iy)
	c01 := t.fetch(ix, iy+1)
	c11 := t.fetch(ix+1, iy+1)

	var out kernel.Vec4
	for k := 0; k < 4; k++ {
		top := c00[k]*(1-fx) + c10[k]*fx
		bottom := c01[k]*(1-fx) + c11[k]*fx
		out[k] = top*(1-fy) + bottom*fy
	}
	return out
}
