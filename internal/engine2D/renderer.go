package engine2D

import (
	"context"
	"fmt"
	"slices"

	"feedbackwarp/internal/engine2D/shader"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/utils"
)

// Options configures a FeedbackRenderer.
type Options struct {
	// Primary is composited into the visible pass; Grain is bound for the
	// shader as a noise texture.
	Primary string
	Grain   string

	Sources shader.Sources
	// Watcher, when set, triggers shader reloads while running.
	Watcher *shader.Watcher
	Loader  *TextureLoader
	Clock   *Clock
}

// FeedbackRenderer drives the feedback loop. Each running frame warps the
// previous UV field into the target buffer, shows the primary texture looked
// up through that field, then swaps the buffers.
//
// All methods must be called from the goroutine that owns the device.
type FeedbackRenderer struct {
	dev     gpu.Device
	opts    Options
	state   State
	err     error
	ctx     context.Context
	cancel  context.CancelFunc
	quad    *gpu.Geometry
	buffers *PingPong
	clock   *Clock
	frames  int

	seed       *shader.Program
	warp       *shader.Program
	seedParams shader.Parameters
	warpParams shader.Parameters

	primary *PendingTexture
	grain   *PendingTexture
	join    *Join
}

// NewFeedbackRenderer builds both programs and allocates the buffers at the
// device's surface size. Shader errors are returned as *shader.CompileError
// or *shader.LinkError. ctx bounds the texture fetches.
func NewFeedbackRenderer(ctx context.Context, dev gpu.Device, opts Options) (*FeedbackRenderer, error) {
	seed, err := opts.Sources.Program(shader.NewBuilder(dev), shader.QuadVertex, shader.SeedFragment)
	if err != nil {
		return nil, fmt.Errorf("seed program: %w", err)
	}
	warp, err := opts.Sources.Program(shader.NewBuilder(dev), shader.QuadVertex, shader.WarpFragment)
	if err != nil {
		seed.Release()
		return nil, fmt.Errorf("warp program: %w", err)
	}

	if opts.Loader == nil {
		opts.Loader = NewTextureLoader(dev)
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}

	w, h := dev.SurfaceSize()
	r := &FeedbackRenderer{
		dev:        dev,
		opts:       opts,
		quad:       gpu.FullscreenQuad(),
		buffers:    NewPingPong(dev, w, h),
		clock:      opts.Clock,
		seed:       seed,
		warp:       warp,
		seedParams: shader.ResolveParameters(seed),
		warpParams: shader.ResolveParameters(warp),
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	utils.Debug("Renderer: buffers allocated at %dx%d", w, h)
	return r, nil
}

func (r *FeedbackRenderer) State() State { return r.state }

// Frames counts completed running frames.
func (r *FeedbackRenderer) Frames() int { return r.frames }

// Err is the error that moved the renderer to Failed.
func (r *FeedbackRenderer) Err() error { return r.err }

func (r *FeedbackRenderer) Buffers() *PingPong { return r.buffers }

// Textures returns the primary and grain textures once loading has started.
func (r *FeedbackRenderer) Textures() (primary, grain *PendingTexture) {
	return r.primary, r.grain
}

// Tick advances the renderer by one display frame.
func (r *FeedbackRenderer) Tick(ctx context.Context) error {
	switch r.state {
	case Disposed:
		return ErrDisposed
	case Failed:
		return r.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.dev.BeginFrame()
	defer r.dev.EndFrame()

	switch r.state {
	case Uninitialized:
		r.state = Seeding
		r.seedPass()
		r.startLoads()
		r.state = AwaitingAssets
		r.clearSurface()
	case AwaitingAssets:
		r.clearSurface()
		return r.awaitAssets()
	case Running:
		r.reloadShaders()
		r.resizeBuffers()
		r.drawFrame()
	}
	return nil
}

// Run ticks once per host frame until the host stops, ctx is canceled or a
// tick fails. Cancellation is checked before every tick.
func (r *FeedbackRenderer) Run(ctx context.Context, host FrameHost) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Tick(ctx); err != nil {
			return err
		}
		if !host.NextFrame() {
			return nil
		}
	}
}

// Dispose stops pending fetches and releases every device object. The
// renderer is unusable afterwards.
func (r *FeedbackRenderer) Dispose() {
	if r.state == Disposed {
		return
	}
	r.cancel()
	r.seed.Release()
	r.warp.Release()
	r.buffers.Release()
	for _, p := range []*PendingTexture{r.primary, r.grain} {
		if p != nil {
			r.dev.DeleteTexture(p.Texture)
		}
	}
	r.state = Disposed
	utils.Debug("Renderer: disposed after %d frames", r.frames)
}

func (r *FeedbackRenderer) fail(err error) error {
	r.err = err
	r.state = Failed
	utils.Error("Renderer: %v", err)
	return err
}

func (r *FeedbackRenderer) clearSurface() {
	r.dev.BindFramebuffer(gpu.DefaultFramebuffer)
	r.dev.Clear(waitingColor)
}

// seedPass writes the screen UV into the buffer the next distortion pass
// samples.
func (r *FeedbackRenderer) seedPass() {
	w, h := r.buffers.Size()
	r.seed.Use()
	r.dev.BindFramebuffer(r.buffers.SourceFramebuffer())
	r.dev.Uniform2f(r.seedParams.Resolution, float32(w), float32(h))
	r.dev.Clear(clearColor)
	r.dev.DrawElements(r.quad)
}

func (r *FeedbackRenderer) startLoads() {
	r.primary = r.opts.Loader.Load(r.ctx, r.opts.Primary)
	r.grain = r.opts.Loader.Load(r.ctx, r.opts.Grain)
	r.join = AwaitAll(r.ctx, r.primary, r.grain)
	utils.Info("Renderer: loading %s and %s", r.opts.Primary, r.opts.Grain)
}

func (r *FeedbackRenderer) awaitAssets() error {
	r.primary.Apply(r.dev)
	r.grain.Apply(r.dev)

	select {
	case <-r.join.Done():
	default:
		return nil
	}
	if err := r.join.Err(); err != nil {
		return r.fail(fmt.Errorf("loading textures: %w", err))
	}
	if r.primary.Placeholder() || r.grain.Placeholder() {
		return nil
	}
	r.state = Running
	utils.Info("Renderer: textures ready, starting feedback loop")
	return nil
}

func (r *FeedbackRenderer) resizeBuffers() {
	w, h := r.dev.SurfaceSize()
	if bw, bh := r.buffers.Size(); bw == w && bh == h {
		return
	}
	utils.Debug("Renderer: surface is now %dx%d, reallocating buffers", w, h)
	r.buffers.Resize(w, h)
	r.seedPass()
}

func (r *FeedbackRenderer) bindInputs(source gpu.TextureID) {
	r.dev.BindTexture(shader.UnitSource, source)
	r.dev.BindTexture(shader.UnitPrimary, r.primary.Texture)
	r.dev.BindTexture(shader.UnitGrain, r.grain.Texture)
}

func (r *FeedbackRenderer) drawFrame() {
	now := r.clock.Seconds()
	bw, bh := r.buffers.Size()
	sw, sh := r.dev.SurfaceSize()

	r.warp.Use()

	// Distortion pass into the target buffer.
	r.dev.BindFramebuffer(r.buffers.CurrentTarget())
	r.bindInputs(r.buffers.CurrentSource())
	r.warpParams.Apply(r.dev, bw, bh, now, false)
	r.dev.Clear(clearColor)
	r.dev.DrawElements(r.quad)

	// Display pass reads what was just written.
	r.dev.BindFramebuffer(gpu.DefaultFramebuffer)
	r.bindInputs(r.buffers.Other())
	r.warpParams.Apply(r.dev, sw, sh, now, true)
	r.dev.Clear(clearColor)
	r.dev.DrawElements(r.quad)

	r.buffers.Toggle()
	r.frames++
}

func (r *FeedbackRenderer) reloadShaders() {
	if r.opts.Watcher == nil {
		return
	}
	select {
	case <-r.opts.Watcher.Changed():
	default:
		return
	}

	changed := r.opts.Watcher.Pending()
	vertex := slices.Contains(changed, shader.QuadVertex)
	if vertex || slices.Contains(changed, shader.WarpFragment) {
		if p := r.rebuild(shader.WarpFragment); p != nil {
			r.warp.Release()
			r.warp = p
			r.warpParams = shader.ResolveParameters(p)
		}
	}
	if vertex || slices.Contains(changed, shader.SeedFragment) {
		if p := r.rebuild(shader.SeedFragment); p != nil {
			r.seed.Release()
			r.seed = p
			r.seedParams = shader.ResolveParameters(p)
		}
	}
}

// rebuild returns nil when the new sources do not build; the caller keeps
// the program it has.
func (r *FeedbackRenderer) rebuild(fragment string) *shader.Program {
	p, err := r.opts.Sources.Program(shader.NewBuilder(r.dev), shader.QuadVertex, fragment)
	if err != nil {
		utils.Warn("Shader: reload of %s failed, keeping previous program: %v", fragment, err)
		return nil
	}
	utils.Info("Shader: reloaded %s", fragment)
	return p
}
