package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedbackwarp/internal/utils"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPrimary = "http://i.imgur.com/SlXWR42l.jpg"
	DefaultGrain   = "http://gpuopen.com/wp-content/uploads/2015/12/LottesGrain7.png"
)

// Duration accepts "1.5s"-style strings in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Config holds everything the renderer and the CLI need at startup.
type Config struct {
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`

	Primary string `toml:"primary" yaml:"primary"`
	Grain   string `toml:"grain" yaml:"grain"`

	FetchTimeout Duration `toml:"fetch_timeout" yaml:"fetch_timeout"`
	FetchRetries int      `toml:"fetch_retries" yaml:"fetch_retries"`
	RetryBackoff Duration `toml:"retry_backoff" yaml:"retry_backoff"`

	ShaderDir string `toml:"shader_dir" yaml:"shader_dir"`
	AssetsDir string `toml:"assets_dir" yaml:"assets_dir"`

	TargetFPS int    `toml:"target_fps" yaml:"target_fps"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
}

func Default() Config {
	return Config{
		Width:        640,
		Height:       480,
		Primary:      DefaultPrimary,
		Grain:        DefaultGrain,
		FetchTimeout: Duration{15 * time.Second},
		FetchRetries: 2,
		RetryBackoff: Duration{500 * time.Millisecond},
		LogLevel:     "info",
	}
}

// Load reads a TOML or YAML file on top of Default. The format is chosen by
// file extension.
func Load(path string) (Config, error) {
	cfg := Default()

	path = utils.ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ShaderDir = utils.ExpandPath(cfg.ShaderDir)
	cfg.AssetsDir = utils.ExpandPath(cfg.AssetsDir)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("surface size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.Primary == "" {
		errs = append(errs, errors.New("primary texture source is empty"))
	}
	if c.Grain == "" {
		errs = append(errs, errors.New("grain texture source is empty"))
	}
	if c.FetchRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch_retries must be >= 0, got %d", c.FetchRetries))
	}
	if c.FetchTimeout.Duration < 0 || c.RetryBackoff.Duration < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.TargetFPS < 0 {
		errs = append(errs, fmt.Errorf("target_fps must be >= 0, got %d", c.TargetFPS))
	}
	return errors.Join(errs...)
}
