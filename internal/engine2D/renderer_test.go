package engine2D

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedbackwarp/internal/engine2D/kernel"
	"feedbackwarp/internal/engine2D/shader"
	"feedbackwarp/internal/gpu/soft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	primarySource = "primary.jpg"
	grainSource   = "grain.png"
)

func newSoftDevice(w, h int, noise kernel.NoiseFunc) *soft.Device {
	warp := kernel.NewWarp()
	if noise != nil {
		warp.Noise = noise
	}
	return soft.New(w, h,
		soft.WithKernel(shader.Embedded(shader.SeedFragment), kernel.Seed),
		soft.WithKernel(shader.Embedded(shader.WarpFragment), warp),
	)
}

// readyFetcher serves a solid red primary and a grey grain.
func readyFetcher(t *testing.T) *fakeFetcher {
	f := newFakeFetcher()
	f.data[primarySource] = pngBytes(t, 2, 2, color.RGBA{255, 0, 0, 255})
	f.data[grainSource] = pngBytes(t, 2, 2, color.RGBA{128, 128, 128, 255})
	return f
}

func newTestRenderer(t *testing.T, dev *soft.Device, f *fakeFetcher, opts Options) *FeedbackRenderer {
	t.Helper()
	opts.Primary = primarySource
	opts.Grain = grainSource
	opts.Loader = NewTextureLoader(dev, WithFetcher(f.Fetch), WithRetry(1, time.Millisecond, time.Second))
	r, err := NewFeedbackRenderer(context.Background(), dev, opts)
	require.NoError(t, err)
	t.Cleanup(r.Dispose)
	return r
}

func tickUntil(t *testing.T, r *FeedbackRenderer, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("renderer stuck in %s, want %s", r.State(), want)
		}
		if err := r.Tick(context.Background()); err != nil && want != Failed {
			t.Fatalf("tick: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewRendererReportsShaderErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, shader.WarpFragment), []byte("void main() {"), 0o644))

	dev := newSoftDevice(4, 4, nil)
	_, err := NewFeedbackRenderer(context.Background(), dev, Options{Sources: shader.Sources{Dir: dir}})
	require.Error(t, err)

	var ce *shader.CompileError
	assert.True(t, errors.As(err, &ce))
	shaders, programs, textures := dev.Live()
	assert.Zero(t, shaders)
	assert.Zero(t, programs, "the seed program is released as well")
	assert.Zero(t, textures)
}

func TestSeedPassWritesScreenUV(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	f := readyFetcher(t)
	f.gates[primarySource] = make(chan struct{})

	r := newTestRenderer(t, dev, f, Options{})
	assert.Equal(t, Uninitialized, r.State())

	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, AwaitingAssets, r.State())

	seeded := r.Buffers().CurrentSource()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			got := dev.Texel(seeded, x, y)
			assert.InDelta(t, (float32(x)+0.5)/4, got[0], 1e-6)
			assert.InDelta(t, (float32(y)+0.5)/4, got[1], 1e-6)
			assert.Equal(t, float32(0), got[2])
			assert.Equal(t, float32(1), got[3])
		}
	}
}

func TestRunningWaitsForBothTextures(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	f := readyFetcher(t)
	primaryGate, grainGate := make(chan struct{}), make(chan struct{})
	f.gates[primarySource] = primaryGate
	f.gates[grainSource] = grainGate

	r := newTestRenderer(t, dev, f, Options{})
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Tick(context.Background()))
	}
	assert.Equal(t, AwaitingAssets, r.State())
	assert.Zero(t, r.Frames())

	waiting := dev.Texel(dev.ScreenTexture(), 2, 2)
	assert.InDelta(t, 0.3, waiting[0], 1e-6)
	assert.InDelta(t, 0.31, waiting[1], 1e-6)
	assert.InDelta(t, 0.32, waiting[2], 1e-6)

	primary, grain := r.Textures()
	close(grainGate)
	waitReady(t, grain)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Tick(context.Background()))
	}
	assert.Equal(t, AwaitingAssets, r.State())
	assert.False(t, grain.Placeholder(), "a finished texture is uploaded while waiting")
	assert.True(t, primary.Placeholder())

	close(primaryGate)
	for r.State() == AwaitingAssets {
		require.NoError(t, r.Tick(context.Background()))
		if r.State() == Running {
			assert.False(t, primary.Placeholder())
			assert.False(t, grain.Placeholder())
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, Running, r.State())
}

func TestOneFrameAddsMagnitude(t *testing.T) {
	dev := newSoftDevice(4, 4, kernel.ConstantNoise(1))
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})
	tickUntil(t, r, Running)

	aFB, aTex := r.Buffers().A()
	assert.Equal(t, aFB, r.Buffers().CurrentTarget())

	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, 1, r.Frames())

	// The frame wrote A; after the toggle A is the source.
	assert.Equal(t, aTex, r.Buffers().CurrentSource())
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			got := dev.Texel(aTex, x, y)
			assert.InDelta(t, (float32(x)+0.5)/4+0.01, got[0], 1e-5)
			assert.InDelta(t, (float32(y)+0.5)/4+0.01, got[1], 1e-5)
			assert.Equal(t, float32(1), got[3])
		}
	}

	// The visible pass averages the solid red primary over 81 taps and
	// divides by 80.
	screen := dev.Texel(dev.ScreenTexture(), 1, 1)
	assert.InDelta(t, 81.0/80.0, screen[0], 1e-4)
	assert.InDelta(t, 0, screen[1], 1e-6)
}

func TestTargetParityAcrossFrames(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})
	tickUntil(t, r, Running)
	aFB, _ := r.Buffers().A()

	for n := 0; n < 6; n++ {
		assert.Equal(t, n%2 == 0, r.Buffers().CurrentTarget() == aFB, "after %d frames", n)
		require.NoError(t, r.Tick(context.Background()))
	}
	assert.Equal(t, 6, r.Frames())
}

func TestFailedLoadFailsRenderer(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	f := readyFetcher(t)
	f.fails[grainSource] = -1

	r := newTestRenderer(t, dev, f, Options{})
	tickUntil(t, r, Failed)

	assert.ErrorIs(t, r.Err(), errFetch)
	assert.ErrorIs(t, r.Tick(context.Background()), errFetch)
	assert.Equal(t, 2, f.Calls(grainSource))

	err := r.Run(context.Background(), FrameHostFunc(func() bool { return true }))
	assert.ErrorIs(t, err, errFetch)
	assert.Zero(t, r.Frames())
}

func TestRunStopsWhenHostStops(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})
	tickUntil(t, r, Running)

	remaining := 3
	err := r.Run(context.Background(), FrameHostFunc(func() bool {
		remaining--
		return remaining > 0
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, r.Frames())
}

func TestRunStopsOnCancel(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, FrameHostFunc(func() bool { return true }))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Uninitialized, r.State())
	assert.Zero(t, dev.DrawCalls)

	tickUntil(t, r, Running)
	ctx, cancel = context.WithCancel(context.Background())
	frames := 0
	err = r.Run(ctx, FrameHostFunc(func() bool {
		frames++
		if frames == 2 {
			cancel()
		}
		return true
	}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, r.Frames())
}

func TestBuffersFollowSurfaceSize(t *testing.T) {
	dev := newSoftDevice(640, 480, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})

	sizes := func() [][2]int {
		_, a := r.Buffers().A()
		_, b := r.Buffers().B()
		aw, ah := dev.TextureSize(a)
		bw, bh := dev.TextureSize(b)
		return [][2]int{{aw, ah}, {bw, bh}}
	}
	assert.Equal(t, [][2]int{{640, 480}, {640, 480}}, sizes())

	tickUntil(t, r, Running)
	dev.SetSurfaceSize(8, 6)
	require.NoError(t, r.Tick(context.Background()))

	assert.Equal(t, [][2]int{{8, 6}, {8, 6}}, sizes())
	assert.Equal(t, 1, r.Frames())

	// The resized source was re-seeded before the frame warped it.
	got := dev.Texel(r.Buffers().CurrentSource(), 0, 0)
	assert.Greater(t, got[0], float32(0))
	assert.Greater(t, got[1], float32(0))
}

func TestDisposeReleasesEverything(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{})
	tickUntil(t, r, Running)
	require.NoError(t, r.Tick(context.Background()))

	r.Dispose()
	r.Dispose()
	assert.Equal(t, Disposed, r.State())

	shaders, programs, textures := dev.Live()
	assert.Zero(t, shaders)
	assert.Zero(t, programs)
	assert.Zero(t, textures)

	assert.ErrorIs(t, r.Tick(context.Background()), ErrDisposed)
}

func TestDisposeCancelsPendingLoads(t *testing.T) {
	dev := newSoftDevice(4, 4, nil)
	f := readyFetcher(t)
	f.gates[primarySource] = make(chan struct{})

	r := newTestRenderer(t, dev, f, Options{})
	require.NoError(t, r.Tick(context.Background()))
	primary, _ := r.Textures()

	r.Dispose()
	waitReady(t, primary)
	assert.ErrorIs(t, primary.Err(), context.Canceled)
}

func TestFailedReloadKeepsProgram(t *testing.T) {
	dir := t.TempDir()
	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{Sources: shader.Sources{Dir: dir}})
	before := r.warp.ID

	require.NoError(t, os.WriteFile(filepath.Join(dir, shader.WarpFragment), []byte("void main() { oops("), 0o644))
	assert.Nil(t, r.rebuild(shader.WarpFragment))
	assert.Equal(t, before, r.warp.ID)
}

func TestWatcherTriggersReload(t *testing.T) {
	dir := t.TempDir()
	w, err := shader.NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{Sources: shader.Sources{Dir: dir}, Watcher: w})
	tickUntil(t, r, Running)
	before := r.warp.ID

	src := shader.Embedded(shader.WarpFragment)
	require.NoError(t, os.WriteFile(filepath.Join(dir, shader.WarpFragment), []byte(src), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	for r.warp.ID == before {
		if time.Now().After(deadline) {
			t.Fatal("warp program was not reloaded")
		}
		require.NoError(t, r.Tick(context.Background()))
		time.Sleep(5 * time.Millisecond)
	}

	_, programs, _ := dev.Live()
	assert.Equal(t, 2, programs, "the replaced program is released")
	assert.Equal(t, Running, r.State())
}

func TestVertexChangeRebuildsBothPrograms(t *testing.T) {
	dir := t.TempDir()
	w, err := shader.NewWatcher(dir)
	require.NoError(t, err)
	defer w.Close()

	dev := newSoftDevice(4, 4, nil)
	r := newTestRenderer(t, dev, readyFetcher(t), Options{Sources: shader.Sources{Dir: dir}, Watcher: w})
	tickUntil(t, r, Running)
	seedBefore, warpBefore := r.seed.ID, r.warp.ID

	src := shader.Embedded(shader.QuadVertex)
	require.NoError(t, os.WriteFile(filepath.Join(dir, shader.QuadVertex), []byte(src), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	for r.seed.ID == seedBefore || r.warp.ID == warpBefore {
		if time.Now().After(deadline) {
			t.Fatal("programs were not rebuilt after the vertex shader changed")
		}
		require.NoError(t, r.Tick(context.Background()))
		time.Sleep(5 * time.Millisecond)
	}

	_, programs, _ := dev.Live()
	assert.Equal(t, 2, programs, "both replaced programs are released")
	assert.Equal(t, Running, r.State())
}

func TestClockSeconds(t *testing.T) {
	start := time.Unix(1000, 0)
	c := &Clock{start: start, now: func() time.Time { return start.Add(1500 * time.Millisecond) }}
	assert.InDelta(t, 1.5, c.Seconds(), 1e-6)
}
