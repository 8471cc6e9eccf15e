package kernel

import "github.com/chewxy/math32"

const (
	DefaultMagnitude = 0.01
	NoiseScaleX      = 100
	NoiseScaleY      = 43.1123

	BlurRadius = 4
	BlurStep   = 0.05
)

// Warp advances the UV field stored in u_texture by one noise step. With
// u_useAlt set it instead shows u_texture_alt averaged around the warped UV.
type Warp struct {
	Noise     NoiseFunc
	Magnitude float32
}

// NewWarp returns the warp kernel with simplex noise.
func NewWarp() *Warp {
	return &Warp{Noise: Simplex, Magnitude: DefaultMagnitude}
}

// Perturb returns the offset added to a stored UV. Both components are made
// non-negative, so the field only drifts toward +x and +y.
func (w *Warp) Perturb(uv Vec2) Vec2 {
	x := (w.Noise(uv.Scale(NoiseScaleX))*2 - 1) * w.Magnitude
	y := (w.Noise(uv.Scale(NoiseScaleY))*2 - 1) * w.Magnitude
	return Vec2{math32.Abs(x), math32.Abs(y)}
}

func (w *Warp) Shade(in Inputs) Vec4 {
	prev := in.Texture("u_texture", screenUV(in))
	last := Vec2{prev[0], prev[1]}.Add(w.Perturb(Vec2{prev[0], prev[1]}))

	if in.Int("u_useAlt") != 0 {
		flipped := Vec2{last.X, 1 - last.Y}
		avg := Average(in, "u_texture_alt", BlurRadius, BlurStep, flipped)
		return Vec4{avg[0], avg[1], avg[2], 1}
	}

	return Vec4{last.X, last.Y, 0 * in.Float("u_time"), 1}
}

// Average sums a (2r+1)² grid of samples spaced step apart and divides by
// one less than the sample count.
func Average(in Inputs, sampler string, radius, step float32, uv Vec2) [3]float32 {
	var total [3]float32
	var count float32
	for x := -radius; x <= radius; x++ {
		for y := -radius; y <= radius; y++ {
			c := in.Texture(sampler, uv.Add(Vec2{x * step, y * step}))
			total[0] += c[0]
			total[1] += c[1]
			total[2] += c[2]
			count++
		}
	}
	for i := range total {
		total[i] /= count - 1
	}
	return total
}
