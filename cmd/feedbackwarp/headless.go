package main

import (
	"context"
	"fmt"
	"time"

	"feedbackwarp/internal/config"
	"feedbackwarp/internal/engine2D"
	"feedbackwarp/internal/engine2D/kernel"
	"feedbackwarp/internal/engine2D/shader"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/gpu/soft"
	"feedbackwarp/internal/utils"

	"github.com/anthonynsimon/bild/imgio"
)

// newSoftDevice registers the Go kernels for the built-in fragment shaders.
func newSoftDevice(width, height int) *soft.Device {
	return soft.New(width, height,
		soft.WithKernel(shader.Embedded(shader.SeedFragment), kernel.Seed),
		soft.WithKernel(shader.Embedded(shader.WarpFragment), kernel.NewWarp()),
	)
}

// runHeadless renders the given number of running frames on the CPU and
// saves the visible surface as a PNG.
func runHeadless(ctx context.Context, cfg config.Config, frames int, out string) error {
	if cfg.ShaderDir != "" {
		utils.Warn("Headless: shader overrides in %s are ignored, the CPU device only runs the built-in shaders", cfg.ShaderDir)
		cfg.ShaderDir = ""
	}

	dev := newSoftDevice(cfg.Width, cfg.Height)
	opts, cleanup, err := rendererOptions(cfg, dev, false)
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := engine2D.NewFeedbackRenderer(ctx, dev, opts)
	if err != nil {
		return err
	}
	defer r.Dispose()

	start := time.Now()
	host := engine2D.FrameHostFunc(func() bool {
		if r.State() != engine2D.Running {
			time.Sleep(10 * time.Millisecond)
			return true
		}
		utils.Debug("Headless: frame %d/%d", r.Frames(), frames)
		return r.Frames() < frames
	})
	if err := r.Run(ctx, host); err != nil {
		return err
	}

	img := dev.ReadPixels(gpu.DefaultFramebuffer)
	if err := imgio.Save(out, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	utils.Info("Headless: wrote %s after %d frames in %s", out, r.Frames(), time.Since(start).Round(time.Millisecond))
	return nil
}
