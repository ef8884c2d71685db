package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

type wgpuBuffer struct {
	id    ResourceId
	raw   *wgpu.Buffer
	size  uint64
	usage wgpu.BufferUsage
}

func (b *wgpuBuffer) Id() ResourceId          { return b.id }
func (b *wgpuBuffer) Release()                { b.raw.Release() }
func (b *wgpuBuffer) Size() uint64            { return b.size }
func (b *wgpuBuffer) Usage() wgpu.BufferUsage { return b.usage }

// WgpuTexture is a texture together with its default view.
type WgpuTexture struct {
	id     ResourceId
	raw    *wgpu.Texture
	view   *wgpu.TextureView
	width  uint32
	height uint32
	format wgpu.TextureFormat
}

func (t *WgpuTexture) Id() ResourceId             { return t.id }
func (t *WgpuTexture) Width() uint32              { return t.width }
func (t *WgpuTexture) Height() uint32             { return t.height }
func (t *WgpuTexture) Format() wgpu.TextureFormat { return t.format }
func (t *WgpuTexture) View() *wgpu.TextureView    { return t.view }

func (t *WgpuTexture) Release() {
	t.view.Release()
	if t.raw != nil {
		t.raw.Release()
	}
}

// WrapTextureView adopts a view owned elsewhere, such as a swapchain image.
// Releasing the wrapper releases only the view.
func WrapTextureView(view *wgpu.TextureView, width, height uint32, format wgpu.TextureFormat) *WgpuTexture {
	return &WgpuTexture{id: uuid.New(), view: view, width: width, height: height, format: format}
}

type wgpuLayout struct {
	id      ResourceId
	raw     *wgpu.BindGroupLayout
	entries []wgpu.BindGroupLayoutEntry
}

func (l *wgpuLayout) Id() ResourceId                       { return l.id }
func (l *wgpuLayout) Release()                             { l.raw.Release() }
func (l *wgpuLayout) Entries() []wgpu.BindGroupLayoutEntry { return l.entries }

type wgpuBindGroup struct {
	id     ResourceId
	raw    *wgpu.BindGroup
	layout BindGroupLayout
}

func (g *wgpuBindGroup) Id() ResourceId          { return g.id }
func (g *wgpuBindGroup) Release()                { g.raw.Release() }
func (g *wgpuBindGroup) Layout() BindGroupLayout { return g.layout }

type wgpuPipeline struct {
	id    ResourceId
	raw   *wgpu.RenderPipeline
	label string
}

func (p *wgpuPipeline) Id() ResourceId { return p.id }
func (p *wgpuPipeline) Release()       { p.raw.Release() }
func (p *wgpuPipeline) Label() string  { return p.label }

// WgpuDevice implements Device on top of a WebGPU device. Passes are
// recorded into one command encoder per frame, finished by Submit.
type WgpuDevice struct {
	raw     *wgpu.Device
	queue   *wgpu.Queue
	limits  Limits
	encoder *wgpu.CommandEncoder
}

func NewWgpuDevice(device *wgpu.Device) *WgpuDevice {
	supported := device.GetLimits()
	return &WgpuDevice{
		raw:   device,
		queue: device.GetQueue(),
		limits: Limits{
			MinUniformBufferOffsetAlignment: supported.Limits.MinUniformBufferOffsetAlignment,
			MaxUniformBufferBindingSize:     supported.Limits.MaxUniformBufferBindingSize,
		},
	}
}

func (d *WgpuDevice) Raw() *wgpu.Device  { return d.raw }
func (d *WgpuDevice) Queue() *wgpu.Queue { return d.queue }
func (d *WgpuDevice) Limits() Limits     { return d.limits }

func (d *WgpuDevice) CreateBuffer(desc *BufferDescriptor) (Buffer, error) {
	raw, err := d.raw.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{id: uuid.New(), raw: raw, size: desc.Size, usage: desc.Usage}, nil
}

func (d *WgpuDevice) WriteBuffer(buffer Buffer, offset uint64, data []byte) error {
	b, ok := buffer.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("wgpu: foreign buffer %T", buffer)
	}
	return d.queue.WriteBuffer(b.raw, offset, data)
}

func (d *WgpuDevice) CreateTexture(desc *TextureDescriptor) (Texture, error) {
	raw, err := d.raw.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", desc.Label, ErrTexture, err)
	}
	view, err := raw.CreateView(nil)
	if err != nil {
		raw.Release()
		return nil, fmt.Errorf("%s: %w: %w", desc.Label, ErrTexture, err)
	}
	return &WgpuTexture{
		id:     uuid.New(),
		raw:    raw,
		view:   view,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
	}, nil
}

func (d *WgpuDevice) CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	raw, err := d.raw.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: desc.Entries,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuLayout{id: uuid.New(), raw: raw, entries: desc.Entries}, nil
}

func (d *WgpuDevice) CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error) {
	layout, ok := desc.Layout.(*wgpuLayout)
	if !ok {
		return nil, fmt.Errorf("%s: %w: foreign layout %T", desc.Label, ErrBindGroup, desc.Layout)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		buf, ok := e.Buffer.(*wgpuBuffer)
		if !ok {
			return nil, fmt.Errorf("%s: %w: binding %d has foreign buffer %T", desc.Label, ErrBindGroup, e.Binding, e.Buffer)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: e.Binding,
			Buffer:  buf.raw,
			Offset:  e.Offset,
			Size:    e.Size,
		})
	}
	raw, err := d.raw.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.raw,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", desc.Label, ErrBindGroup, err)
	}
	return &wgpuBindGroup{id: uuid.New(), raw: raw, layout: layout}, nil
}

func (d *WgpuDevice) CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error) {
	shader, err := d.raw.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Shader.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Shader.WGSL},
	})
	if err != nil {
		return nil, err
	}
	defer shader.Release()

	layouts := make([]*wgpu.BindGroupLayout, 0, len(desc.Layouts))
	for i, l := range desc.Layouts {
		wl, ok := l.(*wgpuLayout)
		if !ok {
			return nil, fmt.Errorf("layout %d is foreign (%T)", i, l)
		}
		layouts = append(layouts, wl.raw)
	}
	pipelineLayout, err := d.raw.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, err
	}
	defer pipelineLayout.Release()

	var fragment *wgpu.FragmentState
	if desc.Fragment != nil {
		fragment = &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    desc.Fragment.Targets,
		}
	}
	raw, err := d.raw.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    desc.Vertex.Buffers,
		},
		Fragment:     fragment,
		Primitive:    desc.Primitive,
		DepthStencil: desc.DepthStencil,
		Multisample:  desc.Multisample,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuPipeline{id: uuid.New(), raw: raw, label: desc.Label}, nil
}

// Encoder returns the frame's command encoder, creating it on first use.
func (d *WgpuDevice) Encoder() (*wgpu.CommandEncoder, error) {
	if d.encoder == nil {
		enc, err := d.raw.CreateCommandEncoder(nil)
		if err != nil {
			return nil, err
		}
		d.encoder = enc
	}
	return d.encoder, nil
}

func (d *WgpuDevice) BeginRenderPass(desc *RenderPassDescriptor) (RenderPass, error) {
	color, ok := desc.Color.(*WgpuTexture)
	if !ok {
		return nil, fmt.Errorf("wgpu: pass %q color attachment is %T", desc.Label, desc.Color)
	}
	enc, err := d.Encoder()
	if err != nil {
		return nil, err
	}
	rp := &wgpu.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       color.view,
			LoadOp:     loadOp(desc.ColorLoadOp),
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: desc.ClearColor,
		}},
	}
	if desc.Stencil != nil {
		stencil, ok := desc.Stencil.(*WgpuTexture)
		if !ok {
			return nil, fmt.Errorf("wgpu: pass %q stencil attachment is %T", desc.Label, desc.Stencil)
		}
		rp.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:              stencil.view,
			StencilLoadOp:     loadOp(desc.StencilLoad),
			StencilStoreOp:    wgpu.StoreOpStore,
			StencilClearValue: desc.StencilClear,
		}
	}
	return &wgpuPass{raw: enc.BeginRenderPass(rp)}, nil
}

func loadOp(op wgpu.LoadOp) wgpu.LoadOp {
	if op == wgpu.LoadOpClear {
		return wgpu.LoadOpClear
	}
	return wgpu.LoadOpLoad
}

// Submit finishes the frame's encoder and submits it to the queue.
func (d *WgpuDevice) Submit() error {
	if d.encoder == nil {
		return nil
	}
	enc := d.encoder
	d.encoder = nil
	defer enc.Release()
	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	defer cmd.Release()
	d.queue.Submit(cmd)
	return nil
}

type wgpuPass struct {
	raw *wgpu.RenderPassEncoder
}

func (p *wgpuPass) SetPipeline(pipeline RenderPipeline) {
	p.raw.SetPipeline(pipeline.(*wgpuPipeline).raw)
}

func (p *wgpuPass) SetBindGroup(groupIndex uint32, group BindGroup, dynamicOffsets []uint32) {
	p.raw.SetBindGroup(groupIndex, group.(*wgpuBindGroup).raw, dynamicOffsets)
}

func (p *wgpuPass) SetStencilReference(reference uint32) {
	p.raw.SetStencilReference(reference)
}

func (p *wgpuPass) SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64) {
	p.raw.SetVertexBuffer(slot, buffer.(*wgpuBuffer).raw, offset, size)
}

func (p *wgpuPass) SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64) {
	p.raw.SetIndexBuffer(buffer.(*wgpuBuffer).raw, format, offset, size)
}

func (p *wgpuPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.raw.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *wgpuPass) End() error {
	err := p.raw.End()
	p.raw.Release()
	return err
}
