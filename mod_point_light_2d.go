package gekko2d

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/gekko3d/gekko2d/render2d/shaders"
)

// PointLights2d is the render-side light state of the current frame.
type PointLights2d struct {
	Renderer  *lighting.Renderer
	Lights    []lighting.ExtractedLight
	Occluders []lighting.Occluder
	Stats     lighting.FrameStats

	extractor *lighting.Extractor
	instances []lighting.LightInstance
	logger    Logger
}

// PointLight2dModule draws every entity with a PointLight2dComponent into
// the HDR target, after the occluders have been stamped into the stencil.
// Requires Render2dModule.
type PointLight2dModule struct{}

func (PointLight2dModule) Install(app *App, cmd *Commands) {
	r := Resource[Render2d](app)
	if r == nil {
		app.Logger().Errorf("PointLight2dModule requires Render2dModule")
		panic("PointLight2dModule requires Render2dModule")
	}
	cfg := configOf(app)
	shader, err := loadLightShader(cfg.Lighting.ShaderPath)
	if err != nil {
		app.Logger().Errorf("point light shader: %v", err)
		panic(err)
	}
	renderer, err := lighting.NewRenderer(r.Device, r.Cache, lighting.RendererOptions{
		PostProcessLayout: r.PostProcess.Layout,
		ViewLayout:        r.View.Layout,
		Shader:            shader,
		HDRFormat:         r.HDRFormat,
		Logger:            app.Logger(),
	})
	if err != nil {
		app.Logger().Errorf("point light renderer: %v", err)
		panic(err)
	}
	cmd.AddResources(&PointLights2d{
		Renderer: renderer,
		extractor: lighting.NewExtractor(lighting.ExtractorOptions{
			Workers:     cfg.Lighting.ExtractionWorkers,
			CacheAffine: cfg.Lighting.CacheInverseTranspose,
			Logger:      app.Logger(),
		}),
		logger: app.Logger(),
	})

	app.UseSystem(System(extractPointLights2dSystem).InStage(Extract).RunAlways()).
		UseSystem(System(uploadPointLights2dSystem).InStage(PreRender).RunAlways()).
		UseSystem(System(bindPointLights2dSystem).InStage(PrepareBindGroups).RunAlways()).
		UseSystem(System(renderPointLights2dSystem).InStage(Render).RunAlways())
}

// loadLightShader reads a WGSL override, or returns the built-in shader
// when path is empty.
func loadLightShader(path string) (gpu.ShaderSource, error) {
	if path == "" {
		return lighting.DefaultShader(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return gpu.ShaderSource{}, err
	}
	if len(data) == 0 {
		return gpu.ShaderSource{}, fmt.Errorf("%s is empty", path)
	}
	return gpu.ShaderSource{Label: shaders.PointLightLabel, WGSL: string(data)}, nil
}

func extractPointLights2dSystem(cmd *Commands, pl *PointLights2d, r *Render2d) {
	pl.instances = pl.instances[:0]
	MakeQuery2[PointLight2dComponent, GlobalTransform](cmd).Map(
		func(eid EntityId, light *PointLight2dComponent, g *GlobalTransform) bool {
			pl.instances = append(pl.instances, lighting.LightInstance{
				Entity:    uint64(eid),
				Transform: g.Core(),
				Params:    light.Params(),
			})
			return true
		})
	slices.SortFunc(pl.instances, func(a, b lighting.LightInstance) int {
		return cmp.Compare(a.Entity, b.Entity)
	})

	lights, err := pl.extractor.Extract(context.Background(), pl.instances)
	if err != nil {
		pl.logger.Warnf("point light extraction: %v", err)
		lights = nil
	}
	pl.Lights = lights

	pl.Occluders = pl.Occluders[:0]
	MakeQuery2[OccluderComponent, GlobalTransform](cmd).Map(
		func(eid EntityId, o *OccluderComponent, g *GlobalTransform) bool {
			pl.Occluders = append(pl.Occluders, lighting.Occluder{
				Entity:      uint64(eid),
				Transform:   g.Core(),
				HalfExtents: o.HalfExtents,
			})
			return true
		})

	if vis := Resource[Visibility](cmd.app); vis != nil {
		view := r.ViewUniform.WorldRect()
		vis.CullLights(pl.Lights, view)
		pl.Occluders = vis.CullOccluders(pl.Occluders, view)
	}
}

func uploadPointLights2dSystem(pl *PointLights2d) {
	pl.Renderer.Upload(pl.Lights, pl.Occluders)
}

func bindPointLights2dSystem(pl *PointLights2d) {
	pl.Renderer.PrepareBindGroups()
}

func renderPointLights2dSystem(pl *PointLights2d, r *Render2d) {
	pl.Renderer.Queue(pl.Lights)
	if r.Pass == nil {
		pl.Stats = pl.Renderer.Stats()
		return
	}
	pl.Stats = pl.Renderer.Render(r.Pass, r.PostProcess.Group, r.View.Group)
	if pl.logger.DebugEnabled() {
		pl.logger.Debugf("point lights: extracted=%d uploaded=%d drawn=%d skipped=%d occluders=%d",
			pl.Stats.Extracted, pl.Stats.Uploaded, pl.Stats.Phase.Drawn, pl.Stats.Phase.Skipped, pl.Stats.Occluders)
	}
}
