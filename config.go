package gekko2d

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

type RenderBackend string

const (
	BackendWgpu RenderBackend = "wgpu"
	BackendSoft RenderBackend = "soft"
)

type RenderConfig struct {
	Backend    RenderBackend `toml:"backend"`
	HDRFormat  string        `toml:"hdr_format"`
	ClearColor [4]float64    `toml:"clear_color"`
	Exposure   float32       `toml:"exposure"`
	Debug      bool          `toml:"debug"`
	// OutputPath receives a TIFF of the HDR target on exit, soft backend only.
	OutputPath string `toml:"output_path"`
}

type LightingConfig struct {
	ShaderPath            string  `toml:"shader_path"`
	WatchShader           bool    `toml:"watch_shader"`
	ExtractionWorkers     int     `toml:"extraction_workers"`
	CullCellSize          float32 `toml:"cull_cell_size"`
	CacheInverseTranspose bool    `toml:"cache_inverse_transpose"`
	VolumetricScale       float32 `toml:"volumetric_scale"`
}

type LevelConfig struct {
	Index int    `toml:"level_index"`
	Path  string `toml:"level_path"`
	Id    string `toml:"level_id"`
}

// Config is the engine configuration, read from TOML.
type Config struct {
	Window   WindowConfig   `toml:"window"`
	Render   RenderConfig   `toml:"render"`
	Lighting LightingConfig `toml:"lighting"`
	Level    LevelConfig    `toml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{Width: 1280, Height: 720, Title: "gekko2d"},
		Render: RenderConfig{
			Backend:   BackendWgpu,
			HDRFormat: "rgba16float",
			Exposure:  1,
		},
		Lighting: LightingConfig{
			CullCellSize:          64,
			CacheInverseTranspose: true,
			VolumetricScale:       1,
		},
		Level: LevelConfig{Id: defaultLevelId},
	}
}

var hdrFormats = map[string]wgpu.TextureFormat{
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
}

// HDRTextureFormat resolves the configured HDR format.
func (c Config) HDRTextureFormat() wgpu.TextureFormat {
	return hdrFormats[c.Render.HDRFormat]
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("config: window size %dx%d", c.Window.Width, c.Window.Height)
	}
	switch c.Render.Backend {
	case BackendWgpu, BackendSoft:
	default:
		return fmt.Errorf("config: unknown render backend %q", c.Render.Backend)
	}
	if _, ok := hdrFormats[c.Render.HDRFormat]; !ok {
		return fmt.Errorf("config: unknown hdr_format %q", c.Render.HDRFormat)
	}
	if c.Lighting.ExtractionWorkers < 0 {
		return fmt.Errorf("config: extraction_workers must not be negative")
	}
	if c.Lighting.CullCellSize <= 0 {
		return fmt.Errorf("config: cull_cell_size must be positive")
	}
	if _, err := uuid.Parse(c.Level.Id); err != nil {
		return fmt.Errorf("config: level_id: %w", err)
	}
	return nil
}

// ParseConfig decodes TOML over the defaults. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a TOML file. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ConfigModule installs a Config resource. Install it before modules that
// read configuration.
type ConfigModule struct {
	Path string
	// Config is used as is when Path is empty.
	Config *Config
}

func (m ConfigModule) Install(app *App, cmd *Commands) {
	cfg := DefaultConfig()
	if m.Config != nil {
		cfg = *m.Config
	}
	if m.Path != "" {
		loaded, err := LoadConfig(m.Path)
		if err != nil {
			app.Logger().Errorf("loading %s: %v", m.Path, err)
			panic(err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		app.Logger().Errorf("%v", err)
		panic(err)
	}
	cmd.AddResources(&cfg)
}

func configOf(app *App) Config {
	if cfg := Resource[Config](app); cfg != nil {
		return *cfg
	}
	return DefaultConfig()
}
