package gpu

import (
	"errors"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

var (
	ErrBufferAllocation = errors.New("gpu: buffer allocation failed")
	ErrBindGroup        = errors.New("gpu: bind group creation failed")
	ErrPipelineCompile  = errors.New("gpu: pipeline compilation failed")
	ErrUnknownPipeline  = errors.New("gpu: unknown cached pipeline")
	ErrTexture          = errors.New("gpu: texture creation failed")
)

// ResourceId identifies a GPU object for its whole lifetime. A reallocated
// buffer gets a new id.
type ResourceId = uuid.UUID

// Resource is implemented by every handle a Device hands out.
type Resource interface {
	Id() ResourceId
	Release()
}

type Buffer interface {
	Resource
	Size() uint64
	Usage() wgpu.BufferUsage
}

type Texture interface {
	Resource
	Width() uint32
	Height() uint32
	Format() wgpu.TextureFormat
}

type BindGroupLayout interface {
	Resource
	Entries() []wgpu.BindGroupLayoutEntry
}

type BindGroup interface {
	Resource
	Layout() BindGroupLayout
}

type RenderPipeline interface {
	Resource
	Label() string
}

// Limits is the subset of device limits the renderer depends on.
type Limits struct {
	MinUniformBufferOffsetAlignment uint32
	MaxUniformBufferBindingSize     uint64
}

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage wgpu.BufferUsage
}

type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format wgpu.TextureFormat
	Usage  wgpu.TextureUsage
}

type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []wgpu.BindGroupLayoutEntry
}

type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// ShaderSource is a WGSL module. Label doubles as the program name for the
// software backend.
type ShaderSource struct {
	Label string
	WGSL  string
}

type VertexState struct {
	EntryPoint string
	Buffers    []wgpu.VertexBufferLayout
}

type FragmentState struct {
	EntryPoint string
	Targets    []wgpu.ColorTargetState
}

// RenderPipelineDescriptor mirrors wgpu.RenderPipelineDescriptor with the
// shader module and pipeline layout kept as plain data, so it can be hashed
// and compiled by any backend.
type RenderPipelineDescriptor struct {
	Label        string
	Layouts      []BindGroupLayout
	Shader       ShaderSource
	Vertex       VertexState
	Fragment     *FragmentState
	Primitive    wgpu.PrimitiveState
	DepthStencil *wgpu.DepthStencilState
	Multisample  wgpu.MultisampleState
}

type RenderPassDescriptor struct {
	Label        string
	Color        Texture
	ColorLoadOp  wgpu.LoadOp
	ClearColor   wgpu.Color
	Stencil      Texture
	StencilLoad  wgpu.LoadOp
	StencilClear uint32
}

// RenderPass is the command recording surface of one pass. Its method set
// follows wgpu.RenderPassEncoder.
type RenderPass interface {
	SetPipeline(pipeline RenderPipeline)
	SetBindGroup(groupIndex uint32, group BindGroup, dynamicOffsets []uint32)
	SetStencilReference(reference uint32)
	SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64)
	SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	End() error
}

// Device creates GPU objects and records passes. Implemented by the wgpu
// backend and by the software reference backend.
type Device interface {
	Limits() Limits
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	CreateTexture(desc *TextureDescriptor) (Texture, error)
	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)
	CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)
	BeginRenderPass(desc *RenderPassDescriptor) (RenderPass, error)
	Submit() error
}

// AlignUp rounds size up to a multiple of align.
func AlignUp(size, align uint64) uint64 {
	if align <= 1 {
		return size
	}
	return (size + align - 1) / align * align
}
