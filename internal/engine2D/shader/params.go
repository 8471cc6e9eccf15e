package shader

import "feedbackwarp/internal/gpu"

// Texture units used by the feedback passes.
const (
	UnitSource  = 0
	UnitPrimary = 1
	UnitGrain   = 2
)

// Parameters are the uniform locations of the feedback programs. Any of them
// may be -1 when the compiler dropped an unused uniform.
type Parameters struct {
	Resolution int32
	Time       int32
	Texture    int32
	TextureAlt int32
	Noise      int32
	UseAlt     int32
}

// ResolveParameters queries a program for every uniform the passes set.
func ResolveParameters(p *Program) Parameters {
	return Parameters{
		Resolution: p.Location("u_resolution"),
		Time:       p.Location("u_time"),
		Texture:    p.Location("u_texture"),
		TextureAlt: p.Location("u_texture_alt"),
		Noise:      p.Location("u_texture_noise"),
		UseAlt:     p.Location("u_useAlt"),
	}
}

// Apply uploads one pass worth of uniforms. The program must be in use.
func (params Parameters) Apply(dev gpu.Device, width, height int, time float32, useAlt bool) {
	dev.Uniform2f(params.Resolution, float32(width), float32(height))
	dev.Uniform1f(params.Time, time)
	dev.Uniform1i(params.Texture, UnitSource)
	dev.Uniform1i(params.TextureAlt, UnitPrimary)
	dev.Uniform1i(params.Noise, UnitGrain)

	var alt int32
	if useAlt {
		alt = 1
	}
	dev.Uniform1i(params.UseAlt, alt)
}
