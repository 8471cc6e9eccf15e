package kernel

import "github.com/chewxy/math32"

// NoiseFunc maps a 2D coordinate to roughly [0,1].
type NoiseFunc func(v Vec2) float32

// glslMod is GLSL mod(), which floors rather than truncates.
func glslMod(x, y float32) float32 {
	return x - y*math32.Floor(x/y)
}

func fract(x float32) float32 {
	return x - math32.Floor(x)
}

type vec3 [3]float32

func permute(x vec3) vec3 {
	for i := range x {
		x[i] = glslMod(x[i]*x[i]*34+x[i], 289)
	}
	return x
}

// Simplex is the compact 2D simplex noise used by the warp shader, biased
// into [0,1] around 0.5.
func Simplex(v Vec2) float32 {
	skew := (v.X + v.Y) * 0.36602540378443
	ix := math32.Floor(skew + v.X)
	iy := math32.Floor(skew + v.Y)

	unskew := (ix + iy) * 0.211324865405187
	x0 := Vec2{unskew + v.X - ix, unskew + v.Y - iy}

	var s float32
	if x0.Y >= x0.X {
		s = 1
	}
	jx, jy := 1-s, s

	x1 := Vec2{x0.X - jx + 0.211324865405187, x0.Y - jy + 0.211324865405187}
	x3 := Vec2{x0.X - 0.577350269189626, x0.Y - 0.577350269189626}

	ix = glslMod(ix, 289)
	iy = glslMod(iy, 289)

	p := permute(vec3{iy, iy + jy, iy + 1})
	p = permute(vec3{p[0] + ix, p[1] + ix + jx, p[2] + ix + 1})

	d := vec3{x0.X*x0.X + x0.Y*x0.Y, x1.X*x1.X + x1.Y*x1.Y, x3.X*x3.X + x3.Y*x3.Y}
	xs := vec3{x0.X, x1.X, x3.X}
	ys := vec3{x0.Y, x1.Y, x3.Y}

	var sum float32
	for k := 0; k < 3; k++ {
		m := math32.Max(0.5-d[k], 0)
		x := fract(p[k]*0.024390243902439)*2 - 1
		h := math32.Abs(x) - 0.5
		a0 := x - math32.Floor(x+0.5)
		m4 := m * m * m * m
		norm := -0.85373472095314*(a0*a0+h*h) + 1.79284291400159
		sum += m4 * norm * (a0*xs[k] + h*ys[k])
	}
	return 0.5 + 65*sum
}

// ConstantNoise returns a NoiseFunc that always yields v.
func ConstantNoise(v float32) NoiseFunc {
	return func(Vec2) float32 { return v }
}
