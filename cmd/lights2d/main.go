// Command lights2d renders a scene of 2D point lights and occluders, in a
// window or headless into a TIFF.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/gekko3d/gekko2d"
	"github.com/go-gl/mathgl/mgl32"
)

func main() {
	configPath := flag.String("config", "lights2d.toml", "TOML configuration file")
	headless := flag.Bool("headless", false, "render with the software backend, without a window")
	frames := flag.Uint64("frames", 0, "exit after this many frames, 0 runs until closed")
	out := flag.String("out", "", "TIFF of the last frame, headless only")
	level := flag.String("level", "", "level file, overrides level.level_path")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	cfg, err := gekko2d.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("lights2d: %v", err)
	}
	if *headless {
		cfg.Render.Backend = gekko2d.BackendSoft
		cfg.Lighting.WatchShader = false
		if *frames == 0 {
			*frames = 1
		}
	}
	if *out != "" {
		cfg.Render.OutputPath = *out
	}
	if *level != "" {
		cfg.Level.Path = *level
	}
	cfg.Render.Debug = cfg.Render.Debug || *debug
	if err := cfg.Validate(); err != nil {
		log.Fatalf("lights2d: %v", err)
	}

	var fixedDt time.Duration
	if *headless {
		fixedDt = time.Second / 60
	}

	app := gekko2d.NewApp()
	app.UseModules(
		gekko2d.ConfigModule{Config: &cfg},
		gekko2d.LoggingModule{Prefix: "lights2d"},
		gekko2d.TimeModule{FixedDt: fixedDt},
	)
	if !*headless {
		app.UseModules(gekko2d.WindowModule{})
	}
	app.UseModules(
		gekko2d.InputModule{},
		gekko2d.HierarchyModule{},
		gekko2d.LifecycleModule{},
		gekko2d.LevelModule{},
		gekko2d.CameraControlModule{},
		gekko2d.LightPulseModule{},
		gekko2d.VisibilityModule{},
		gekko2d.Render2dModule{},
		gekko2d.PointLight2dModule{},
		gekko2d.ShaderReloadModule{},
	)
	if *frames > 0 {
		app.UseModules(gekko2d.FrameLimitModule{Frames: *frames})
	}
	if cfg.Level.Path == "" {
		app.UseSystem(gekko2d.System(spawnDemo).InStage(gekko2d.Prelude).RunOnce())
	}
	app.Run()
}

func spawnDemo(cmd *gekko2d.Commands) {
	gekko2d.SpawnLevel(cmd, gekko2d.LevelData{
		Camera: &gekko2d.CameraData{Zoom: 1},
		Lights: []gekko2d.LightData{
			{Position: mgl32.Vec2{-200, 80}, Color: mgl32.Vec4{1, 0.55, 0.2, 1.5}, Radius: 220, VolumetricIntensity: 0.2,
				Pulse: &gekko2d.PulseData{From: 1.1, To: 1.6, Period: 1.3}},
			{Position: mgl32.Vec2{220, 60}, Color: mgl32.Vec4{0.3, 0.5, 1, 1.2}, Radius: 260},
			{Position: mgl32.Vec2{0, -180}, Rotation: 20, Color: mgl32.Vec4{0.9, 0.9, 0.7, 1}, Radius: 90, HalfLength: 160, VolumetricIntensity: 0.1},
		},
		Occluders: []gekko2d.OccluderData{
			{Position: mgl32.Vec2{-60, 40}, HalfExtents: mgl32.Vec2{20, 90}},
			{Position: mgl32.Vec2{120, -40}, Rotation: 35, HalfExtents: mgl32.Vec2{60, 15}},
		},
	}, 0)
}
