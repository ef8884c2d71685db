package lighting

import (
	"encoding/binary"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

// OccludedStencil is the stencil value occluders leave behind. Lights test
// against 0, so they never shade occluded pixels.
const OccludedStencil = 1

const OccluderUniformSize = 80

// Occluder is a rectangle blocking light.
type Occluder struct {
	Entity      uint64
	Transform   core.Transform
	HalfExtents mgl32.Vec2
}

// OccluderUniform matches Occluder in occluder.wgsl.
type OccluderUniform struct {
	WorldFromLocal mgl32.Mat4
	HalfExtents    mgl32.Vec4
}

func (OccluderUniform) Size() int { return OccluderUniformSize }

func (o OccluderUniform) Marshal() []byte {
	buf := make([]byte, 0, OccluderUniformSize)
	buf = appendFloats(buf, o.WorldFromLocal[:]...)
	return appendFloats(buf, o.HalfExtents[:]...)
}

func quadGeometry() (vertices, indices []byte) {
	for _, v := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		vertices = appendFloats(vertices, v[0], v[1])
	}
	for _, i := range [6]uint32{0, 1, 2, 2, 3, 0} {
		indices = binary.LittleEndian.AppendUint32(indices, i)
	}
	return vertices, indices
}

// OccluderPass writes occluder footprints into the stencil attachment.
type OccluderPass struct {
	Layout gpu.BindGroupLayout
	Id     gpu.CachedPipelineId

	quad     *GeometryBuffers
	uniforms *gpu.DynamicUniformBuffer[OccluderUniform]
	binds    BindGroupBuilder
	offsets  []uint32
}

func NewOccluderPass(device gpu.Device, cache *gpu.PipelineCache, view gpu.BindGroupLayout, hdr wgpu.TextureFormat) (*OccluderPass, error) {
	layout, err := device.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{
		Label:   "occluder_2d layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformLayoutEntry(OccluderUniformSize, true)},
	})
	if err != nil {
		return nil, fmt.Errorf("occluder layout: %w", err)
	}
	vertices, indices := quadGeometry()
	quad, err := uploadGeometry(device, "occluder_2d", vertices, indices, 6)
	if err != nil {
		layout.Release()
		return nil, err
	}
	id, err := cache.Compile(occluderDescriptor(view, layout, hdr))
	if err != nil {
		quad.Release()
		layout.Release()
		return nil, err
	}
	return &OccluderPass{
		Layout:   layout,
		Id:       id,
		quad:     quad,
		uniforms: gpu.NewDynamicUniformBuffer[OccluderUniform]("occluder_2d uniforms", device.Limits()),
		binds:    BindGroupBuilder{Label: "occluder_2d bind group"},
	}, nil
}

func occluderDescriptor(view, layout gpu.BindGroupLayout, hdr wgpu.TextureFormat) *gpu.RenderPipelineDescriptor {
	replace := wgpu.StencilFaceState{
		Compare:     wgpu.CompareFunctionAlways,
		FailOp:      wgpu.StencilOperationKeep,
		DepthFailOp: wgpu.StencilOperationKeep,
		PassOp:      wgpu.StencilOperationReplace,
	}
	return &gpu.RenderPipelineDescriptor{
		Label:   "occluder_2d",
		Layouts: []gpu.BindGroupLayout{view, layout},
		Shader:  gpu.ShaderSource{Label: shaders.OccluderLabel, WGSL: shaders.OccluderWGSL},
		Vertex: gpu.VertexState{
			EntryPoint: "vertex",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: 8,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				},
			}},
		},
		Fragment: &gpu.FragmentState{
			EntryPoint: "fragment",
			Targets: []wgpu.ColorTargetState{{
				Format:    hdr,
				WriteMask: wgpu.ColorWriteMaskNone,
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
			StencilFront:      replace,
			StencilBack:       replace,
			StencilReadMask:   0xFF,
			StencilWriteMask:  0xFF,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
}

// Prepare uploads the occluders of this frame. Non-finite and singular
// transforms are dropped.
func (o *OccluderPass) Prepare(device gpu.Device, occluders []Occluder) error {
	o.uniforms.Clear()
	o.offsets = o.offsets[:0]
	for _, occ := range occluders {
		if _, ok := core.DecomposeAffine(occ.Transform); !ok {
			continue
		}
		o.offsets = append(o.offsets, o.uniforms.Push(OccluderUniform{
			WorldFromLocal: occ.Transform.ObjectToWorld(),
			HalfExtents:    mgl32.Vec4{occ.HalfExtents.X(), occ.HalfExtents.Y(), 0, 0},
		}))
	}
	if err := o.uniforms.Write(device); err != nil {
		o.offsets = o.offsets[:0]
		return err
	}
	if _, err := o.binds.Prepare(device, o.Layout, o.uniforms.Binding()); err != nil {
		o.offsets = o.offsets[:0]
		return err
	}
	return nil
}

// Len returns the number of occluders prepared for this frame.
func (o *OccluderPass) Len() int { return len(o.offsets) }

// Encode draws every prepared occluder and returns the number of draws.
func (o *OccluderPass) Encode(cache *gpu.PipelineCache, pass *gpu.TrackedPass, view gpu.BindGroup) (int, error) {
	group := o.binds.Current()
	if len(o.offsets) == 0 || group == nil || view == nil {
		return 0, nil
	}
	pipeline, err := cache.Get(o.Id)
	if err != nil || pipeline == nil {
		return 0, err
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, view, nil)
	pass.SetStencilReference(OccludedStencil)
	pass.SetVertexBuffer(0, o.quad.Vertices, 0, o.quad.Vertices.Size())
	pass.SetIndexBuffer(o.quad.Indices, wgpu.IndexFormatUint32, 0, o.quad.Indices.Size())
	for _, offset := range o.offsets {
		pass.SetBindGroup(1, group, []uint32{offset})
		pass.DrawIndexed(o.quad.IndexCount, 1, 0, 0, 0)
	}
	return len(o.offsets), nil
}

func (o *OccluderPass) Release() {
	o.binds.Release()
	o.quad.Release()
	o.Layout.Release()
}
