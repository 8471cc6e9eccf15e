// Package rlgpu implements gpu.Device on top of raylib. raylib owns the GL
// context and batches draws, so the device maps the GL-style calls onto
// raylib's texture and shader modes:
//
//   - a draw is DrawTexturePro of the unit 0 texture inside BeginShaderMode,
//     which is what binds unit 0;
//   - units 1 and up are attached with SetShaderValueTexture in unit order,
//     matching the slots raylib assigns;
//   - compile and link results are read from the trace log.
package rlgpu

import (
	"fmt"
	"image"
	"math"
	"regexp"

	"feedbackwarp/internal/convert"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/utils"

	rl "github.com/gen2brain/raylib-go/raylib"
)

type shaderSource struct {
	stage  gpu.Stage
	source string
}

type program struct {
	shader   rl.Shader
	samplers map[string]bool
	names    map[int32]string
	units    map[int32]int32
}

type texture struct {
	tex     rl.Texture2D
	sampler gpu.Sampler
	target  gpu.FramebufferID
}

type Device struct {
	trace traceCapture

	shaders  map[gpu.ShaderID]*shaderSource
	programs map[gpu.ProgramID]*program
	textures map[gpu.TextureID]*texture
	targets  map[gpu.FramebufferID]rl.RenderTexture2D
	nextID   uint32

	white   rl.Texture2D
	current gpu.ProgramID
	bound   gpu.FramebufferID
	units   [8]gpu.TextureID
}

var _ gpu.Device = (*Device)(nil)

// New wraps the window raylib has already opened. It installs the trace log
// callback, so raylib output from then on goes through the utils logger.
func New() *Device {
	d := &Device{
		shaders:  make(map[gpu.ShaderID]*shaderSource),
		programs: make(map[gpu.ProgramID]*program),
		textures: make(map[gpu.TextureID]*texture),
		targets:  make(map[gpu.FramebufferID]rl.RenderTexture2D),
	}
	rl.SetTraceLogCallback(d.trace.callback)

	img := rl.GenImageColor(1, 1, rl.White)
	d.white = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	return d
}

// Close releases everything the device still owns.
func (d *Device) Close() {
	for id := range d.programs {
		d.DeleteProgram(id)
	}
	for fb := range d.targets {
		d.DeleteRenderTarget(fb)
	}
	for id := range d.textures {
		d.DeleteTexture(id)
	}
	rl.UnloadTexture(d.white)
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

func (d *Device) SurfaceSize() (int, int) {
	return rl.GetScreenWidth(), rl.GetScreenHeight()
}

func (d *Device) CreateShader(stage gpu.Stage) gpu.ShaderID {
	id := gpu.ShaderID(d.id())
	d.shaders[id] = &shaderSource{stage: stage}
	return id
}

// CompileShader test-builds the stage against raylib's default shader for
// the other stage. Only compile failures count; the trial program itself is
// discarded.
func (d *Device) CompileShader(id gpu.ShaderID, source string) (string, bool) {
	sh, ok := d.shaders[id]
	if !ok {
		return fmt.Sprintf("invalid shader %d", id), false
	}

	d.trace.begin()
	var trial rl.Shader
	if sh.stage == gpu.VertexStage {
		trial = rl.LoadShaderFromMemory(source, "")
	} else {
		trial = rl.LoadShaderFromMemory("", source)
	}
	log, failed := d.trace.end("Failed to compile")
	rl.UnloadShader(trial)

	if failed {
		return log, false
	}
	sh.source = source
	return log, true
}

func (d *Device) DeleteShader(id gpu.ShaderID) {
	delete(d.shaders, id)
}

func (d *Device) CreateProgram() gpu.ProgramID {
	id := gpu.ProgramID(d.id())
	d.programs[id] = &program{
		names: make(map[int32]string),
		units: make(map[int32]int32),
	}
	return id
}

var samplerDecl = regexp.MustCompile(`uniform\s+sampler2D\s+(\w+)\s*;`)

func (d *Device) LinkProgram(id gpu.ProgramID, vertex, fragment gpu.ShaderID) (string, bool) {
	prog, ok := d.programs[id]
	if !ok {
		return fmt.Sprintf("invalid program %d", id), false
	}
	vs, vok := d.shaders[vertex]
	fs, fok := d.shaders[fragment]
	if !vok || !fok || vs.source == "" || fs.source == "" {
		return "attached shaders were not compiled", false
	}
	if vs.stage != gpu.VertexStage || fs.stage != gpu.FragmentStage {
		return "attached shaders have the wrong stages", false
	}

	d.trace.begin()
	shader := rl.LoadShaderFromMemory(vs.source, fs.source)
	log, failed := d.trace.end("Failed to")
	if failed || shader.ID == 0 {
		rl.UnloadShader(shader)
		return log, false
	}

	prog.shader = shader
	prog.samplers = make(map[string]bool)
	for _, m := range samplerDecl.FindAllStringSubmatch(fs.source, -1) {
		prog.samplers[m[1]] = true
	}
	utils.Debug("rlgpu: linked program %d (raylib shader %d)", id, shader.ID)
	return log, true
}

func (d *Device) DeleteProgram(id gpu.ProgramID) {
	prog, ok := d.programs[id]
	if !ok {
		return
	}
	if prog.shader.ID != 0 {
		rl.UnloadShader(prog.shader)
	}
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
	if !ok || prog.shader.ID == 0 {
		return -1
	}
	loc := rl.GetShaderLocation(prog.shader, name)
	if loc >= 0 {
		prog.names[loc] = name
	}
	return loc
}

func (d *Device) currentProgram() *program {
	prog, ok := d.programs[d.current]
	if !ok || prog.shader.ID == 0 {
		return nil
	}
	return prog
}

func (d *Device) Uniform1f(loc int32, v float32) {
	if prog := d.currentProgram(); prog != nil && loc >= 0 {
		rl.SetShaderValue(prog.shader, loc, []float32{v}, rl.ShaderUniformFloat)
	}
}

func (d *Device) Uniform2f(loc int32, x, y float32) {
	if prog := d.currentProgram(); prog != nil && loc >= 0 {
		rl.SetShaderValue(prog.shader, loc, []float32{x, y}, rl.ShaderUniformVec2)
	}
}

// Uniform1i records sampler units for the next draw and uploads every other
// integer immediately. raylib takes uniform data as []float32, so the int is
// passed by bit pattern.
func (d *Device) Uniform1i(loc int32, v int32) {
	prog := d.currentProgram()
	if prog == nil || loc < 0 {
		return
	}
	if prog.samplers[prog.names[loc]] {
		prog.units[loc] = v
		return
	}
	rl.SetShaderValue(prog.shader, loc, []float32{math.Float32frombits(uint32(v))}, rl.ShaderUniformInt)
}

func (d *Device) CreateTexture() gpu.TextureID {
	id := gpu.TextureID(d.id())
	d.textures[id] = &texture{sampler: gpu.Sampler{WrapS: gpu.Repeat, WrapT: gpu.Repeat, MinFilter: gpu.Nearest, MagFilter: gpu.Linear}}
	return id
}

// TexImage replaces the texture's content. raylib cannot resize a texture in
// place, so the GL texture is recreated behind the same handle and the
// sampler state is reapplied.
func (d *Device) TexImage(id gpu.TextureID, img *image.RGBA) {
	t, ok := d.textures[id]
	if !ok || t.target != 0 {
		return
	}
	if t.tex.ID != 0 {
		rl.UnloadTexture(t.tex)
	}
	rlImg := rl.NewImageFromImage(img)
	t.tex = rl.LoadTextureFromImage(rlImg)
	rl.UnloadImage(rlImg)
	applySampler(t.tex, t.sampler)
}

// applySampler maps the sampler onto raylib, which has one filter setting
// per texture. The minification filter decides it.
func applySampler(tex rl.Texture2D, s gpu.Sampler) {
	if tex.ID == 0 {
		return
	}
	wrap := rl.TextureWrapClamp
	if s.WrapS == gpu.Repeat || s.WrapT == gpu.Repeat {
		wrap = rl.TextureWrapRepeat
	}
	rl.SetTextureWrap(tex, wrap)

	filter := rl.FilterBilinear
	if s.MinFilter == gpu.Nearest {
		filter = rl.FilterPoint
	}
	rl.SetTextureFilter(tex, filter)
}

func (d *Device) TexParameters(id gpu.TextureID, sampler gpu.Sampler) {
	if t, ok := d.textures[id]; ok {
		t.sampler = sampler
		applySampler(t.tex, sampler)
	}
}

func (d *Device) TextureSize(id gpu.TextureID) (int, int) {
	t, ok := d.textures[id]
	if !ok {
		return 0, 0
	}
	return int(t.tex.Width), int(t.tex.Height)
}

func (d *Device) DeleteTexture(id gpu.TextureID) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	if t.target != 0 {
		d.DeleteRenderTarget(t.target)
		return
	}
	if t.tex.ID != 0 {
		rl.UnloadTexture(t.tex)
	}
	delete(d.textures, id)
}

func (d *Device) CreateRenderTarget(width, height int) (gpu.FramebufferID, gpu.TextureID) {
	rt := rl.LoadRenderTexture(int32(width), int32(height))
	fb := gpu.FramebufferID(d.id())
	tex := gpu.TextureID(d.id())
	d.targets[fb] = rt
	d.textures[tex] = &texture{tex: rt.Texture, target: fb}
	return fb, tex
}

func (d *Device) DeleteRenderTarget(fb gpu.FramebufferID) {
	rt, ok := d.targets[fb]
	if !ok {
		return
	}
	if d.bound == fb {
		rl.EndTextureMode()
		d.bound = gpu.DefaultFramebuffer
	}
	for id, t := range d.textures {
		if t.target == fb {
			delete(d.textures, id)
		}
	}
	rl.UnloadRenderTexture(rt)
	delete(d.targets, fb)
}

func (d *Device) BeginFrame() {
	rl.BeginDrawing()
}

func (d *Device) EndFrame() {
	d.BindFramebuffer(gpu.DefaultFramebuffer)
	rl.EndDrawing()
}

func (d *Device) BindFramebuffer(fb gpu.FramebufferID) {
	if fb == d.bound {
		return
	}
	if d.bound != gpu.DefaultFramebuffer {
		rl.EndTextureMode()
	}
	d.bound = gpu.DefaultFramebuffer
	if rt, ok := d.targets[fb]; ok {
		rl.BeginTextureMode(rt)
		d.bound = fb
	}
}

func (d *Device) BindTexture(unit int, id gpu.TextureID) {
	if unit >= 0 && unit < len(d.units) {
		d.units[unit] = id
	}
}

func toByte(v float32) uint8 {
	return uint8(math.Round(float64(max(0, min(1, v)) * 255)))
}

func (d *Device) Clear(c gpu.Color) {
	rl.ClearBackground(rl.NewColor(toByte(c.R), toByte(c.G), toByte(c.B), toByte(c.A)))
}

func (d *Device) boundSize() (float32, float32) {
	if rt, ok := d.targets[d.bound]; ok {
		return float32(rt.Texture.Width), float32(rt.Texture.Height)
	}
	w, h := d.SurfaceSize()
	return float32(w), float32(h)
}

// DrawElements draws the bounding rectangle of g, which covers the quads the
// renderer uses exactly.
func (d *Device) DrawElements(g *gpu.Geometry) {
	prog := d.currentProgram()
	if prog == nil {
		return
	}

	base := d.white
	if t, ok := d.textures[d.units[0]]; ok && t.tex.ID != 0 {
		base = t.tex
	}

	rl.BeginShaderMode(prog.shader)
	for unit := int32(1); unit < int32(len(d.units)); unit++ {
		t, ok := d.textures[d.units[unit]]
		if !ok || t.tex.ID == 0 {
			continue
		}
		for loc, u := range prog.units {
			if u == unit {
				rl.SetShaderValueTexture(prog.shader, loc, t.tex)
			}
		}
	}

	w, h := d.boundSize()
	minX, minY, maxX, maxY := g.Bounds()
	// raylib's 2D projection has y pointing down.
	dst := rl.NewRectangle(
		(minX+1)/2*w,
		(1-maxY)/2*h,
		(maxX-minX)/2*w,
		(maxY-minY)/2*h,
	)
	src := rl.NewRectangle(0, 0, float32(base.Width), float32(base.Height))
	rl.DrawTexturePro(base, src, dst, rl.NewVector2(0, 0), 0, rl.White)
	rl.EndShaderMode()
}

// ReadPixels reads fb back in top-down row order. Reading the visible
// surface is only meaningful before EndFrame.
func (d *Device) ReadPixels(fb gpu.FramebufferID) *image.RGBA {
	var img *rl.Image
	if rt, ok := d.targets[fb]; ok {
		img = rl.LoadImageFromTexture(rt.Texture)
		rl.ImageFlipVertical(img)
	} else {
		img = rl.LoadImageFromScreen()
	}
	defer rl.UnloadImage(img)
	return convert.ToRGBA(img.ToImage())
}
