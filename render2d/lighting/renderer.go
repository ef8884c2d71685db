package lighting

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/gpu"
)

type RendererOptions struct {
	PostProcessLayout gpu.BindGroupLayout
	ViewLayout        gpu.BindGroupLayout
	Shader            gpu.ShaderSource
	HDRFormat         wgpu.TextureFormat
	Logger            gpu.Logger
}

// FrameStats summarises one frame of light rendering.
type FrameStats struct {
	Extracted int
	Uploaded  int
	Queued    int
	Occluders int
	Phase     gpu.PhaseStats
}

// Renderer owns the GPU state of the light core and runs its per-frame
// stages: upload, bind group preparation, queueing and drawing.
type Renderer struct {
	device gpu.Device
	cache  *gpu.PipelineCache
	logger gpu.Logger

	Pipeline  *Pipeline
	Geometry  *GeometryBuffers
	Uniforms  *LightUniforms
	Binds     BindGroupBuilder
	Occluders *OccluderPass
	Phase     *gpu.Phase[PointLightItem]

	draw  DrawContext
	stats FrameStats
}

// NewRenderer compiles the light and occluder pipelines and uploads the
// shared geometry. Any error here leaves the renderer unusable.
func NewRenderer(device gpu.Device, cache *gpu.PipelineCache, opts RendererOptions) (*Renderer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = gpu.NopLogger()
	}
	shader := opts.Shader
	if shader.WGSL == "" {
		shader = DefaultShader()
	}
	pipeline, err := NewPipeline(device, cache, opts.PostProcessLayout, opts.ViewLayout, shader, opts.HDRFormat)
	if err != nil {
		return nil, err
	}
	geometry, err := UploadLightGeometry(device)
	if err != nil {
		pipeline.Layout.Release()
		return nil, fmt.Errorf("point light geometry: %w", err)
	}
	occluders, err := NewOccluderPass(device, cache, opts.ViewLayout, opts.HDRFormat)
	if err != nil {
		geometry.Release()
		pipeline.Layout.Release()
		return nil, err
	}
	r := &Renderer{
		device:    device,
		cache:     cache,
		logger:    logger,
		Pipeline:  pipeline,
		Geometry:  geometry,
		Uniforms:  NewLightUniforms(device.Limits()),
		Binds:     BindGroupBuilder{Label: "point_light_2d bind group"},
		Occluders: occluders,
	}
	r.draw = DrawContext{Cache: cache, Geometry: geometry, Logger: logger}
	r.Phase = gpu.NewPhase(DrawPointLight2dFunction(&r.draw))
	return r, nil
}

// Prepare runs Upload followed by PrepareBindGroups.
func (r *Renderer) Prepare(lights []ExtractedLight, occluders []Occluder) FrameStats {
	r.Upload(lights, occluders)
	r.PrepareBindGroups()
	return r.stats
}

// Upload writes the frame's light snapshots and occluders into their
// uniform buffers. Failures skip every light of the frame and are logged.
func (r *Renderer) Upload(lights []ExtractedLight, occluders []Occluder) {
	r.stats = FrameStats{Extracted: len(lights)}

	uploaded, err := UploadSnapshots(r.device, r.Uniforms, lights)
	if err != nil {
		r.logger.Warnf("point lights skipped this frame: %v", err)
	}
	r.stats.Uploaded = uploaded

	if err := r.Occluders.Prepare(r.device, occluders); err != nil {
		r.logger.Warnf("occluders skipped this frame: %v", err)
	}
	r.stats.Occluders = r.Occluders.Len()
}

// PrepareBindGroups rebuilds the light bind group when the uniform buffer
// was replaced.
func (r *Renderer) PrepareBindGroups() {
	group, err := r.Binds.Prepare(r.device, r.Pipeline.Layout, r.Uniforms.Binding())
	if err != nil {
		r.logger.Warnf("point lights skipped this frame: %v", err)
	}
	r.draw.Lights = group
}

// Queue fills the light phase from the uploaded lights.
func (r *Renderer) Queue(lights []ExtractedLight) int {
	r.Phase.Clear()
	r.stats.Queued = QueueLights(r.Phase, r.Pipeline.Id, lights)
	return r.stats.Queued
}

// Render records the occluder stencil pass followed by the light phase
// into pass.
func (r *Renderer) Render(pass gpu.RenderPass, postProcess, view gpu.BindGroup) FrameStats {
	r.draw.PostProcess = postProcess
	r.draw.View = view
	tracked := gpu.NewTrackedPass(pass)
	if _, err := r.Occluders.Encode(r.cache, tracked, view); err != nil {
		r.logger.Warnf("occluder pass: %v", err)
	}
	r.stats.Phase = r.Phase.Render(tracked)
	return r.stats
}

// Stats returns the statistics of the last frame.
func (r *Renderer) Stats() FrameStats { return r.stats }

// Reload recompiles the light pipeline with a new shader. On failure the
// previous pipeline keeps drawing.
func (r *Renderer) Reload(shader gpu.ShaderSource) error {
	changed, err := r.Pipeline.Refresh(r.cache, r.Pipeline.postProcess, shader)
	if err != nil {
		return err
	}
	if changed {
		r.logger.Infof("point light shader reloaded")
	}
	return nil
}

func (r *Renderer) Release() {
	r.Binds.Release()
	r.Occluders.Release()
	r.Geometry.Release()
	if b := r.Uniforms.Buffer(); b != nil {
		b.Release()
	}
	r.cache.Forget(r.Pipeline.Id)
	r.Pipeline.Layout.Release()
}
