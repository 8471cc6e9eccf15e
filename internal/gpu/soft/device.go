// Package soft is a CPU implementation of gpu.Device. Fragment shaders are
// matched by source text to Go kernels registered with WithKernel; texels are
// stored as float32 so a UV field survives many feedback frames unquantized.
package soft

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"feedbackwarp/internal/engine2D/kernel"
	"feedbackwarp/internal/gpu"

	"github.com/chewxy/math32"
)

type shaderObject struct {
	stage    gpu.Stage
	compiled bool
	kernel   kernel.Kernel
}

type programObject struct {
	kernel kernel.Kernel
	linked bool
	locs   map[string]int32
	names  []string
	floats map[int32][]float32
	ints   map[int32]int32
}

type texture struct {
	width, height int
	pix           []float32
	sampler       gpu.Sampler
}

// Option configures a Device.
type Option func(*Device)

// WithKernel binds a fragment source to the kernel that runs it.
func WithKernel(fragmentSource string, k kernel.Kernel) Option {
	return func(d *Device) {
		d.kernels[normalizeSource(fragmentSource)] = k
	}
}

type Device struct {
	width, height int

	kernels      map[string]kernel.Kernel
	shaders      map[gpu.ShaderID]*shaderObject
	programs     map[gpu.ProgramID]*programObject
	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID]gpu.TextureID
	nextID       uint32

	screen  gpu.TextureID
	current gpu.ProgramID
	bound   gpu.FramebufferID
	units   [8]gpu.TextureID

	Frames    int
	DrawCalls int
}

var _ gpu.Device = (*Device)(nil)

func New(width, height int, opts ...Option) *Device {
	d := &Device{
		kernels:      make(map[string]kernel.Kernel),
		shaders:      make(map[gpu.ShaderID]*shaderObject),
		programs:     make(map[gpu.ProgramID]*programObject),
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: make(map[gpu.FramebufferID]gpu.TextureID),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.screen = d.CreateTexture()
	d.SetSurfaceSize(width, height)
	return d
}

func normalizeSource(src string) string {
	return strings.TrimSpace(strings.ReplaceAll(src, "\r\n", "\n"))
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

// SetSurfaceSize resizes the visible surface, discarding its contents.
func (d *Device) SetSurfaceSize(width, height int) {
	d.width, d.height = width, height
	d.textures[d.screen] = newTexture(width, height)
}

func (d *Device) SurfaceSize() (int, int) {
	return d.width, d.height
}

func (d *Device) CreateShader(stage gpu.Stage) gpu.ShaderID {
	id := gpu.ShaderID(d.id())
	d.shaders[id] = &shaderObject{stage: stage}
	return id
}

// CompileShader checks the source structurally: a main function and balanced
// delimiters. Fragment sources must also have a registered kernel.
func (d *Device) CompileShader(id gpu.ShaderID, source string) (string, bool) {
	sh, ok := d.shaders[id]
	if !ok {
		return fmt.Sprintf("ERROR: invalid shader %d", id), false
	}
	sh.compiled = false
	if log := validate(source); log != "" {
		return log, false
	}
	if sh.stage == gpu.FragmentStage {
		k, ok := d.kernels[normalizeSource(source)]
		if !ok {
			return "ERROR: 0:1: no kernel registered for fragment source", false
		}
		sh.kernel = k
	}
	sh.compiled = true
	return "", true
}

func validate(source string) string {
	if !strings.Contains(source, "void main") {
		return "ERROR: 0:0: missing entry point 'main'"
	}
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	var stack []rune
	line := 1
	for _, r := range source {
		switch r {
		case '\n':
			line++
		case '(', '{', '[':
			stack = append(stack, r)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Sprintf("ERROR: 0:%d: syntax error, unexpected '%c'", line, r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("ERROR: 0:%d: syntax error, unexpected end of file, unclosed '%c'", line, stack[len(stack)-1])
	}
	return ""
}

func (d *Device) DeleteShader(id gpu.ShaderID) {
	delete(d.shaders, id)
}

func (d *Device) CreateProgram() gpu.ProgramID {
	id := gpu.ProgramID(d.id())
	d.programs[id] = &programObject{
		locs:   make(map[string]int32),
		floats: make(map[int32][]float32),
		ints:   make(map[int32]int32),
	}
	return id
}

func (d *Device) LinkProgram(id gpu.ProgramID, vertex, fragment gpu.ShaderID) (string, bool) {
	prog, ok := d.programs[id]
	if !ok {
		return fmt.Sprintf("ERROR: invalid program %d", id), false
	}
	vs, vok := d.shaders[vertex]
	fs, fok := d.shaders[fragment]
	switch {
	case !vok || !fok:
		return "ERROR: one or more attached shaders no longer exist", false
	case vs.stage != gpu.VertexStage:
		return "ERROR: vertex slot holds a " + vs.stage.String() + " shader", false
	case fs.stage != gpu.FragmentStage:
		return "ERROR: fragment slot holds a " + fs.stage.String() + " shader", false
	case !vs.compiled || !fs.compiled:
		return "ERROR: one or more attached shaders not successfully compiled", false
	}
	prog.kernel = fs.kernel
	prog.linked = true
	return "", true
}

func (d *Device) DeleteProgram(id gpu.ProgramID) {
	delete(d.programs, id)
	if d.current == id {
		d.current = 0
	}
}

func (d *Device) UseProgram(id gpu.ProgramID) {
	d.current = id
}

func (d *Device) UniformLocation(id gpu.ProgramID, name string) int32 {
	prog, ok := d.programs[id]
	if !ok || !prog.linked {
		return -1
	}
	if loc, ok := prog.locs[name]; ok {
		return loc
	}
	loc := int32(len(prog.names))
	prog.locs[name] = loc
	prog.names = append(prog.names, name)
	return loc
}

func (d *Device) currentProgram() *programObject {
	return d.programs[d.current]
}

func (d *Device) Uniform1f(loc int32, v float32) {
	if prog := d.currentProgram(); prog != nil && loc >= 0 {
		prog.floats[loc] = []float32{v}
	}
}

func (d *Device) Uniform2f(loc int32, x, y float32) {
	if prog := d.currentProgram(); prog != nil && loc >= 0 {
		prog.floats[loc] = []float32{x, y}
	}
}

func (d *Device) Uniform1i(loc int32, v int32) {
	if prog := d.currentProgram(); prog != nil && loc >= 0 {
		prog.ints[loc] = v
	}
}

func newTexture(width, height int) *texture {
	return &texture{
		width:   width,
		height:  height,
		pix:     make([]float32, width*height*4),
		sampler: gpu.Sampler{WrapS: gpu.Repeat, WrapT: gpu.Repeat, MinFilter: gpu.Nearest, MagFilter: gpu.Linear},
	}
}

func (d *Device) CreateTexture() gpu.TextureID {
	id := gpu.TextureID(d.id())
	d.textures[id] = newTexture(0, 0)
	return id
}

// TexImage replaces the texture's storage. Row 0 of img becomes texel row 0
// (t = 0), as with a GL upload without y-flip.
func (d *Device) TexImage(id gpu.TextureID, img *image.RGBA) {
	tex, ok := d.textures[id]
	if !ok {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tex.width, tex.height = w, h
	tex.pix = make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			i := (y*w + x) * 4
			tex.pix[i] = float32(c.R) / 255
			tex.pix[i+1] = float32(c.G) / 255
			tex.pix[i+2] = float32(c.B) / 255
			tex.pix[i+3] = float32(c.A) / 255
		}
	}
}

func (d *Device) TexParameters(id gpu.TextureID, sampler gpu.Sampler) {
	if tex, ok := d.textures[id]; ok {
		tex.sampler = sampler
	}
}

func (d *Device) TextureSize(id gpu.TextureID) (int, int) {
	tex, ok := d.textures[id]
	if !ok {
		return 0, 0
	}
	return tex.width, tex.height
}

// SamplerOf returns the sampling state of a texture.
func (d *Device) SamplerOf(id gpu.TextureID) gpu.Sampler {
	if tex, ok := d.textures[id]; ok {
		return tex.sampler
	}
	return gpu.Sampler{}
}

func (d *Device) DeleteTexture(id gpu.TextureID) {
	if id == d.screen {
		return
	}
	delete(d.textures, id)
}

func (d *Device) CreateRenderTarget(width, height int) (gpu.FramebufferID, gpu.TextureID) {
	tex := gpu.TextureID(d.id())
	d.textures[tex] = newTexture(width, height)
	fb := gpu.FramebufferID(d.id())
	d.framebuffers[fb] = tex
	return fb, tex
}

func (d *Device) DeleteRenderTarget(fb gpu.FramebufferID) {
	if tex, ok := d.framebuffers[fb]; ok {
		delete(d.textures, tex)
		delete(d.framebuffers, fb)
	}
	if d.bound == fb {
		d.bound = gpu.DefaultFramebuffer
	}
}

func (d *Device) BeginFrame() {}

func (d *Device) EndFrame() {
	d.Frames++
}

func (d *Device) BindFramebuffer(fb gpu.FramebufferID) {
	d.bound = fb
}

func (d *Device) BindTexture(unit int, id gpu.TextureID) {
	if unit >= 0 && unit < len(d.units) {
		d.units[unit] = id
	}
}

func (d *Device) target(fb gpu.FramebufferID) *texture {
	if fb == gpu.DefaultFramebuffer {
		return d.textures[d.screen]
	}
	return d.textures[d.framebuffers[fb]]
}

func (d *Device) Clear(c gpu.Color) {
	tex := d.target(d.bound)
	if tex == nil {
		return
	}
	for i := 0; i < len(tex.pix); i += 4 {
		tex.pix[i], tex.pix[i+1], tex.pix[i+2], tex.pix[i+3] = c.R, c.G, c.B, c.A
	}
}

// DrawElements rasterizes g into the bound framebuffer, running the current
// program's kernel once per covered pixel center.
func (d *Device) DrawElements(g *gpu.Geometry) {
	prog := d.currentProgram()
	dst := d.target(d.bound)
	if prog == nil || !prog.linked || prog.kernel == nil || dst == nil {
		return
	}
	d.DrawCalls++

	frag := &fragment{dev: d, prog: prog}
	w, h := float32(dst.width), float32(dst.height)
	out := make([]float32, len(dst.pix))
	copy(out, dst.pix)

	for t := 0; t < g.Triangles(); t++ {
		var xs, ys [3]float32
		for k := 0; k < 3; k++ {
			cx, cy := g.Vertex(g.Indices[t*3+k])
			xs[k] = (cx + 1) / 2 * w
			ys[k] = (cy + 1) / 2 * h
		}
		area := edge(xs[0], ys[0], xs[1], ys[1], xs[2], ys[2])
		if area == 0 {
			continue
		}

		minX := clampInt(int(math32.Floor(min3(xs))), 0, dst.width)
		maxX := clampInt(int(math32.Ceil(max3(xs))), 0, dst.width)
		minY := clampInt(int(math32.Floor(min3(ys))), 0, dst.height)
		maxY := clampInt(int(math32.Ceil(max3(ys))), 0, dst.height)

		for py := minY; py < maxY; py++ {
			for px := minX; px < maxX; px++ {
				cx, cy := float32(px)+0.5, float32(py)+0.5
				w0 := edge(xs[1], ys[1], xs[2], ys[2], cx, cy)
				w1 := edge(xs[2], ys[2], xs[0], ys[0], cx, cy)
				w2 := edge(xs[0], ys[0], xs[1], ys[1], cx, cy)
				if area < 0 {
					w0, w1, w2 = -w0, -w1, -w2
				}
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
				frag.coord = kernel.Vec2{X: cx, Y: cy}
				c := prog.kernel.Shade(frag)
				i := (py*dst.width + px) * 4
				out[i], out[i+1], out[i+2], out[i+3] = c[0], c[1], c[2], c[3]
			}
		}
	}
	dst.pix = out
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func min3(v [3]float32) float32 { return math32.Min(v[0], math32.Min(v[1], v[2])) }
func max3(v [3]float32) float32 { return math32.Max(v[0], math32.Max(v[1], v[2])) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Texel returns the stored value at (x, y), origin bottom-left.
func (d *Device) Texel(id gpu.TextureID, x, y int) kernel.Vec4 {
	tex, ok := d.textures[id]
	if !ok || x < 0 || y < 0 || x >= tex.width || y >= tex.height {
		return kernel.Vec4{}
	}
	i := (y*tex.width + x) * 4
	return kernel.Vec4{tex.pix[i], tex.pix[i+1], tex.pix[i+2], tex.pix[i+3]}
}

// ScreenTexture exposes the visible surface for inspection.
func (d *Device) ScreenTexture() gpu.TextureID {
	return d.screen
}

// ReadPixels returns fb as an 8-bit image with the usual top-down row order.
func (d *Device) ReadPixels(fb gpu.FramebufferID) *image.RGBA {
	tex := d.target(fb)
	if tex == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	img := image.NewRGBA(image.Rect(0, 0, tex.width, tex.height))
	for y := 0; y < tex.height; y++ {
		for x := 0; x < tex.width; x++ {
			i := (y*tex.width + x) * 4
			img.SetRGBA(x, tex.height-1-y, color.RGBA{
				R: toByte(tex.pix[i]),
				G: toByte(tex.pix[i+1]),
				B: toByte(tex.pix[i+2]),
				A: toByte(tex.pix[i+3]),
			})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	v = math32.Max(0, math32.Min(1, v))
	return uint8(v*255 + 0.5)
}

// Live reports how many shader, program and texture objects are allocated,
// not counting the surface.
func (d *Device) Live() (shaders, programs, textures int) {
	return len(d.shaders), len(d.programs), len(d.textures) - 1
}
