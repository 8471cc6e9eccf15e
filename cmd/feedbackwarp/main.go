package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"feedbackwarp/internal/config"
	"feedbackwarp/internal/engine2D"
	"feedbackwarp/internal/engine2D/shader"
	"feedbackwarp/internal/gpu"
	"feedbackwarp/internal/utils"
)

func init() {
	// raylib and its GL context must stay on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Path to a TOML or YAML config file")
	primary := flag.String("primary", "", "Primary image (URL, file or archive.pkg:entry)")
	grain := flag.String("grain", "", "Grain image (URL, file or archive.pkg:entry)")
	width := flag.Int("width", 0, "Surface width in pixels")
	height := flag.Int("height", 0, "Surface height in pixels")
	shaderDir := flag.String("shaders", "", "Directory of shader overrides, reloaded on change")
	headless := flag.Bool("headless", false, "Render on the CPU without opening a window")
	frames := flag.Int("frames", 30, "Frames to render in headless mode")
	out := flag.String("out", "feedback.png", "Snapshot written in headless mode")
	debugFlag := flag.Bool("debug", false, "Enable verbose debug logging")
	fps := flag.Int("fps", -1, "Target FPS, 0 for vsync only")
	flag.Parse()

	utils.DebugMode = *debugFlag

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			utils.Error("Failed to load config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if *primary != "" {
		cfg.Primary = *primary
	}
	if *grain != "" {
		cfg.Grain = *grain
	}
	if *width > 0 {
		cfg.Width = *width
	}
	if *height > 0 {
		cfg.Height = *height
	}
	if *shaderDir != "" {
		cfg.ShaderDir = utils.ExpandPath(*shaderDir)
	}
	if *fps >= 0 {
		cfg.TargetFPS = *fps
	}
	if err := cfg.Validate(); err != nil {
		utils.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	utils.CurrentLevel = utils.ParseLogLevel(cfg.LogLevel)
	if utils.DebugMode {
		utils.CurrentLevel = utils.LevelDebug
	}
	utils.AssetsDir = cfg.AssetsDir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	utils.Info("--- feedbackwarp start (%dx%d) ---", cfg.Width, cfg.Height)

	var err error
	if *headless {
		err = runHeadless(ctx, cfg, *frames, *out)
	} else {
		err = runWindow(ctx, cfg)
	}
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		utils.Error("%v", err)
		os.Exit(1)
	}
	utils.Info("Bye")
}

// rendererOptions builds the loader and shader sources shared by both modes.
// The returned cleanup closes the shader watcher, if any.
func rendererOptions(cfg config.Config, dev gpu.Device, watch bool) (engine2D.Options, func(), error) {
	opts := engine2D.Options{
		Primary: cfg.Primary,
		Grain:   cfg.Grain,
		Sources: shader.Sources{Dir: cfg.ShaderDir},
		Loader: engine2D.NewTextureLoader(dev,
			engine2D.WithRetry(cfg.FetchRetries, cfg.RetryBackoff.Duration, cfg.FetchTimeout.Duration)),
	}
	cleanup := func() {}

	if watch && cfg.ShaderDir != "" {
		w, err := shader.NewWatcher(cfg.ShaderDir)
		if err != nil {
			return opts, cleanup, err
		}
		opts.Watcher = w
		cleanup = func() { w.Close() }
	}
	return opts, cleanup, nil
}
