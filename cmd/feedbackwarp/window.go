package main

import (
	"context"

	"feedbackwarp/internal/config"
	"feedbackwarp/internal/debug"
	"feedbackwarp/internal/engine2D"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/gpu/rlgpu"
	"feedbackwarp/internal/utils"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// overlayDevice draws the debug overlay on the visible surface right before
// each frame is presented.
type overlayDevice struct {
	*rlgpu.Device
	overlay *debug.Overlay
}

func (d *overlayDevice) EndFrame() {
	d.Device.BindFramebuffer(gpu.DefaultFramebuffer)
	d.overlay.Draw()
	d.Device.EndFrame()
}

type Window struct {
	device   *overlayDevice
	renderer *engine2D.FeedbackRenderer
	overlay  *debug.Overlay
	cleanup  func()
}

func NewWindow(ctx context.Context, cfg config.Config) (*Window, error) {
	rl.SetTraceLogCallback(utils.RaylibLogCallback)
	rl.SetConfigFlags(rl.FlagVsyncHint | rl.FlagWindowResizable)
	rl.InitWindow(int32(cfg.Width), int32(cfg.Height), "feedbackwarp")
	if cfg.TargetFPS > 0 {
		rl.SetTargetFPS(int32(cfg.TargetFPS))
	}

	overlay := debug.NewOverlay()
	dev := &overlayDevice{Device: rlgpu.New(), overlay: overlay}

	opts, cleanup, err := rendererOptions(cfg, dev, true)
	if err != nil {
		dev.Close()
		rl.CloseWindow()
		return nil, err
	}

	r, err := engine2D.NewFeedbackRenderer(ctx, dev, opts)
	if err != nil {
		cleanup()
		dev.Close()
		rl.CloseWindow()
		return nil, err
	}
	overlay.Attach(r)

	return &Window{device: dev, renderer: r, overlay: overlay, cleanup: cleanup}, nil
}

// NextFrame runs after raylib has presented a frame and polled input.
func (window *Window) NextFrame() bool {
	if rl.IsKeyPressed(rl.KeyF8) {
		window.overlay.Toggle()
	}
	return !rl.WindowShouldClose()
}

func (window *Window) Run(ctx context.Context) error {
	return window.renderer.Run(ctx, window)
}

func (window *Window) Close() {
	window.renderer.Dispose()
	window.cleanup()
	window.device.Close()
	rl.CloseWindow()
}

func runWindow(ctx context.Context, cfg config.Config) error {
	window, err := NewWindow(ctx, cfg)
	if err != nil {
		return err
	}
	defer window.Close()

	utils.Info("Starting render loop (F8 toggles the overlay)")
	return window.Run(ctx)
}
