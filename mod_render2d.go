package gekko2d

import (
	"errors"
	"fmt"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/go-gl/mathgl/mgl32"
)

// MainPass opens the HDR render pass that Render stage systems record into.
var MainPass = Stage{Name: "MainPass"}

var errNoSoftTarget = errors.New("render2d: HDR target is not a software texture")

// Render2d is the render world: the device, the HDR and stencil targets and
// the shared view and post-process bindings.
type Render2d struct {
	Device      gpu.Device
	Cache       *gpu.PipelineCache
	PostProcess *lighting.UniformBinding
	View        *lighting.UniformBinding
	HDR         gpu.Texture
	Stencil     gpu.Texture
	HDRFormat   wgpu.TextureFormat

	ViewUniform lighting.ViewUniform
	PostUniform lighting.PostProcessUniform
	// Pass is open from MainPass until PostRender, nil otherwise.
	Pass gpu.RenderPass

	Width, Height int
	ClearColor    wgpu.Color
	Exposure      float32
	Backend       RenderBackend
	OutputPath    string

	surface *gpu.Surface
	soft    *gpu.SoftDevice
	logger  Logger
	dumped  bool
}

// Render2dModule creates the render world for the configured backend.
// Install it after ConfigModule and LoggingModule, before any module that
// draws.
type Render2dModule struct{}

func (Render2dModule) Install(app *App, cmd *Commands) {
	cfg := configOf(app)
	if ensureSingleRenderer(app, cfg.Render.Backend) {
		return
	}
	r, err := newRender2d(app, cfg)
	if err != nil {
		app.Logger().Errorf("render2d: %v", err)
		panic(err)
	}
	cmd.AddResources(r)

	app.UseStage(MainPass, AfterStage(PrepareBindGroups))
	app.UseSystem(System(render2dViewSystem).InStage(Extract).RunAlways()).
		UseSystem(System(render2dPrepareSystem).InStage(PreRender).RunAlways()).
		UseSystem(System(render2dBeginPassSystem).InStage(MainPass).RunAlways()).
		UseSystem(System(render2dSubmitSystem).InStage(PostRender).RunAlways()).
		UseSystem(System(render2dOutputSystem).InStage(Finale).RunAlways())
	app.Logger().Infof("render2d: %s backend, %dx%d %s target", cfg.Render.Backend, r.Width, r.Height, cfg.Render.HDRFormat)
}

func newRender2d(app *App, cfg Config) (*Render2d, error) {
	logger := app.Logger()
	r := &Render2d{
		HDRFormat: cfg.HDRTextureFormat(),
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		ClearColor: wgpu.Color{
			R: cfg.Render.ClearColor[0],
			G: cfg.Render.ClearColor[1],
			B: cfg.Render.ClearColor[2],
			A: cfg.Render.ClearColor[3],
		},
		Exposure:   cfg.Render.Exposure,
		Backend:    cfg.Render.Backend,
		OutputPath: cfg.Render.OutputPath,
		logger:     logger,
	}

	switch cfg.Render.Backend {
	case BackendSoft:
		r.soft = gpu.NewSoftDevice(gpu.SoftDeviceOptions{})
		lighting.RegisterSoftPrograms(r.soft)
		r.Device = r.soft
	case BackendWgpu:
		ws := ensureWindowResource(app)
		surface, err := gpu.NewWindowSurface(ws.window, ws.Width, ws.Height)
		if err != nil {
			return nil, err
		}
		r.surface = surface
		r.Device = surface.Device()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Render.Backend)
	}

	r.Cache = gpu.NewPipelineCache(r.Device, logger)
	r.ViewUniform = lighting.OrthographicView(mgl32.Vec2{}, r.Width, r.Height, 1)
	r.PostUniform = lighting.PostProcessUniform{
		Viewport:        mgl32.Vec2{float32(r.Width), float32(r.Height)},
		VolumetricScale: cfg.Lighting.VolumetricScale,
	}
	var err error
	if r.PostProcess, err = lighting.NewUniformBinding(r.Device, "post_process", r.PostUniform); err != nil {
		return nil, err
	}
	if r.View, err = lighting.NewUniformBinding(r.Device, "view_2d", r.ViewUniform); err != nil {
		return nil, err
	}
	if err := r.createTargets(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Render2d) createTargets() error {
	hdr, err := r.Device.CreateTexture(&gpu.TextureDescriptor{
		Label:  "hdr target",
		Width:  uint32(r.Width),
		Height: uint32(r.Height),
		Format: r.HDRFormat,
		Usage:  wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return err
	}
	stencil, err := r.Device.CreateTexture(&gpu.TextureDescriptor{
		Label:  "occluder stencil",
		Width:  uint32(r.Width),
		Height: uint32(r.Height),
		Format: lighting.StencilFormat,
		Usage:  wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		hdr.Release()
		return err
	}
	r.HDR, r.Stencil = hdr, stencil
	return nil
}

// Resize recreates the targets for a new framebuffer size. Sizes that do
// not change or are empty are ignored.
func (r *Render2d) Resize(width, height int) error {
	if width <= 0 || height <= 0 || (width == r.Width && height == r.Height) {
		return nil
	}
	oldW, oldH := r.Width, r.Height
	hdr, stencil := r.HDR, r.Stencil
	r.Width, r.Height = width, height
	if err := r.createTargets(); err != nil {
		r.Width, r.Height = oldW, oldH
		return err
	}
	hdr.Release()
	stencil.Release()
	if r.surface != nil {
		r.surface.Resize(width, height)
	}
	r.PostUniform.Viewport = mgl32.Vec2{float32(width), float32(height)}
	r.logger.Debugf("render2d: resized to %dx%d", width, height)
	return nil
}

// SoftTarget returns the HDR target of the software backend.
func (r *Render2d) SoftTarget() (*gpu.SoftTexture, bool) {
	t, ok := r.HDR.(*gpu.SoftTexture)
	return t, ok
}

// SoftDevice returns the software device, nil on the wgpu backend.
func (r *Render2d) SoftDevice() *gpu.SoftDevice { return r.soft }

// WriteTIFF stores the tone mapped HDR target. Software backend only.
func (r *Render2d) WriteTIFF(path string) error {
	target, ok := r.SoftTarget()
	if !ok {
		return errNoSoftTarget
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := target.EncodeTIFF(f, r.Exposure); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Render2d) Release() {
	r.HDR.Release()
	r.Stencil.Release()
	r.View.Release()
	r.PostProcess.Release()
	if r.surface != nil {
		r.surface.Release()
	}
}

func render2dViewSystem(cmd *Commands, r *Render2d) {
	r.ViewUniform = activeView(cmd, r.Width, r.Height)
}

func render2dPrepareSystem(cmd *Commands, r *Render2d) {
	if ws := Resource[WindowState](cmd.app); ws != nil && ws.window != nil {
		w, h := ws.window.GetFramebufferSize()
		if err := r.Resize(w, h); err != nil {
			r.logger.Warnf("render2d: resize to %dx%d: %v", w, h, err)
		}
	}
	if t := Resource[Time](cmd.app); t != nil {
		r.PostUniform.Time = float32(t.Elapsed.Seconds())
	}
	if err := r.PostProcess.Update(r.Device, r.PostUniform); err != nil {
		r.logger.Warnf("render2d: post process uniform: %v", err)
	}
	if err := r.View.Update(r.Device, r.ViewUniform); err != nil {
		r.logger.Warnf("render2d: view uniform: %v", err)
	}
	if err := r.Cache.Process(); err != nil {
		r.logger.Warnf("render2d: %v", err)
	}
}

func render2dBeginPassSystem(r *Render2d) {
	pass, err := r.Device.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label:        "main 2d pass",
		Color:        r.HDR,
		ColorLoadOp:  wgpu.LoadOpClear,
		ClearColor:   r.ClearColor,
		Stencil:      r.Stencil,
		StencilLoad:  wgpu.LoadOpClear,
		StencilClear: 0,
	})
	if err != nil {
		r.logger.Warnf("render2d: begin pass: %v", err)
		r.Pass = nil
		return
	}
	r.Pass = pass
}

func render2dSubmitSystem(r *Render2d) {
	if r.Pass == nil {
		return
	}
	pass := r.Pass
	r.Pass = nil
	if err := pass.End(); err != nil {
		r.logger.Warnf("render2d: end pass: %v", err)
		return
	}
	if r.surface != nil {
		if err := r.surface.Present(r.HDR, r.Exposure); err != nil {
			r.logger.Warnf("render2d: present: %v", err)
		}
		return
	}
	if err := r.Device.Submit(); err != nil {
		r.logger.Warnf("render2d: submit: %v", err)
	}
}

func render2dOutputSystem(r *Render2d, exit *AppExit) {
	if !exit.Requested || r.dumped || r.OutputPath == "" || r.soft == nil {
		return
	}
	r.dumped = true
	if err := r.WriteTIFF(r.OutputPath); err != nil {
		r.logger.Errorf("render2d: writing %s: %v", r.OutputPath, err)
		return
	}
	r.logger.Infof("render2d: wrote %s", r.OutputPath)
}
