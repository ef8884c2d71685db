package lighting

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/shaders"
)

// StencilFormat is the format of the occlusion attachment shared by the
// occluder and light passes.
const StencilFormat = wgpu.TextureFormatStencil8

// DefaultShader returns the embedded point light module.
func DefaultShader() gpu.ShaderSource {
	return gpu.ShaderSource{Label: shaders.PointLightLabel, WGSL: shaders.PointLightWGSL}
}

// Pipeline owns the light bind group layout and the cached render pipeline
// drawing point lights.
type Pipeline struct {
	Layout gpu.BindGroupLayout
	Id     gpu.CachedPipelineId

	postProcess gpu.BindGroupLayout
	view        gpu.BindGroupLayout
	shader      gpu.ShaderSource
	hdr         wgpu.TextureFormat
}

// NewPipeline creates the light layout and compiles the pipeline. A
// compilation failure is returned; callers treat it as fatal.
func NewPipeline(device gpu.Device, cache *gpu.PipelineCache, postProcess, view gpu.BindGroupLayout, shader gpu.ShaderSource, hdr wgpu.TextureFormat) (*Pipeline, error) {
	layout, err := device.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{
		Label:   "point_light_2d layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformLayoutEntry(core.LightSnapshotSize, true)},
	})
	if err != nil {
		return nil, fmt.Errorf("point light layout: %w", err)
	}
	p := &Pipeline{
		Layout:      layout,
		postProcess: postProcess,
		view:        view,
		shader:      shader,
		hdr:         hdr,
	}
	id, err := cache.Compile(p.Descriptor())
	if err != nil {
		layout.Release()
		return nil, err
	}
	p.Id = id
	return p, nil
}

// VertexBufferLayout describes core.LightVertex.
func VertexBufferLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: core.LightVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormatUint32, Offset: 20, ShaderLocation: 2},
		},
	}
}

// AdditiveBlend adds light color into the target and composites alpha OVER.
func AdditiveBlend() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

// Descriptor returns the render pipeline descriptor for the current
// layouts and shader.
func (p *Pipeline) Descriptor() *gpu.RenderPipelineDescriptor {
	return &gpu.RenderPipelineDescriptor{
		Label:   "point_light_2d",
		Layouts: []gpu.BindGroupLayout{p.postProcess, p.view, p.Layout},
		Shader:  p.shader,
		Vertex: gpu.VertexState{
			EntryPoint: "vertex",
			Buffers:    []wgpu.VertexBufferLayout{VertexBufferLayout()},
		},
		Fragment: &gpu.FragmentState{
			EntryPoint: "fragment",
			Targets: []wgpu.ColorTargetState{{
				Format:    p.hdr,
				Blend:     AdditiveBlend(),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            StencilFormat,
			DepthWriteEnabled: false,
			DepthCompare:      wgpu.CompareFunctionAlways,
			StencilFront: wgpu.StencilFaceState{
				Compare:     wgpu.CompareFunctionEqual,
				FailOp:      wgpu.StencilOperationKeep,
				DepthFailOp: wgpu.StencilOperationKeep,
				PassOp:      wgpu.StencilOperationKeep,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare:     wgpu.CompareFunctionAlways,
				FailOp:      wgpu.StencilOperationKeep,
				DepthFailOp: wgpu.StencilOperationKeep,
				PassOp:      wgpu.StencilOperationKeep,
			},
			StencilReadMask:  0xFF,
			StencilWriteMask: 0xFF,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
}

// Refresh recompiles the pipeline when the post-process layout or the
// shader changed. On failure the previous pipeline stays in use and the
// error is returned.
func (p *Pipeline) Refresh(cache *gpu.PipelineCache, postProcess gpu.BindGroupLayout, shader gpu.ShaderSource) (bool, error) {
	if postProcess.Id() == p.postProcess.Id() && shader == p.shader {
		return false, nil
	}
	prevLayout, prevShader := p.postProcess, p.shader
	p.postProcess, p.shader = postProcess, shader
	id, err := cache.Compile(p.Descriptor())
	if err != nil {
		p.postProcess, p.shader = prevLayout, prevShader
		cache.Forget(id)
		return false, err
	}
	if id != p.Id {
		cache.Forget(p.Id)
		p.Id = id
	}
	return true, nil
}
