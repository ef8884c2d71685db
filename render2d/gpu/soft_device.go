package gpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

const maxBindGroups = 4

// SoftProgram is the software counterpart of a WGSL module. Programs are
// registered on a SoftDevice under the shader label they implement.
type SoftProgram interface {
	// Vertex returns the clip-space position and the varyings of one vertex.
	Vertex(vertex []byte, b SoftBindings) (mgl32.Vec4, []float32)
	// Fragment shades one pixel. Returning false discards it.
	Fragment(varyings []float32, b SoftBindings) (mgl32.Vec4, bool)
}

// SoftDraw is the trace of one DrawIndexed call on the software backend.
type SoftDraw struct {
	Pipeline         string
	StencilReference uint32
	IndexCount       uint32
	InstanceCount    uint32
	FirstIndex       uint32
	BaseVertex       int32
	FirstInstance    uint32
	BindGroups       [maxBindGroups]ResourceId
	DynamicOffsets   [maxBindGroups][]uint32
	// Blend is the blend state of the first color target, nil when none.
	Blend *wgpu.BlendState
}

type SoftDeviceOptions struct {
	Limits Limits
	// MaxBufferSize makes CreateBuffer fail above this size. Zero means no limit.
	MaxBufferSize uint64
}

// SoftDevice is a CPU reference implementation of Device. Passes execute
// eagerly as commands are recorded.
type SoftDevice struct {
	limits        Limits
	maxBufferSize uint64
	programs      map[string]SoftProgram

	draws        []SoftDraw
	allocations  int
	bindGroups   int
	pipelines    int
	submits      int
	openPasses   int
	bufferWrites int
}

func NewSoftDevice(opts SoftDeviceOptions) *SoftDevice {
	limits := opts.Limits
	if limits.MinUniformBufferOffsetAlignment == 0 {
		limits.MinUniformBufferOffsetAlignment = 256
	}
	if limits.MaxUniformBufferBindingSize == 0 {
		limits.MaxUniformBufferBindingSize = 64 << 10
	}
	return &SoftDevice{
		limits:        limits,
		maxBufferSize: opts.MaxBufferSize,
		programs:      make(map[string]SoftProgram),
	}
}

// RegisterProgram makes a program available to pipelines whose shader
// carries the given label.
func (d *SoftDevice) RegisterProgram(label string, p SoftProgram) {
	d.programs[label] = p
}

func (d *SoftDevice) Limits() Limits { return d.limits }

func (d *SoftDevice) Draws() []SoftDraw      { return d.draws }
func (d *SoftDevice) BufferAllocations() int { return d.allocations }
func (d *SoftDevice) BindGroupsCreated() int { return d.bindGroups }
func (d *SoftDevice) PipelinesCreated() int  { return d.pipelines }
func (d *SoftDevice) Submits() int           { return d.submits }
func (d *SoftDevice) BufferWrites() int      { return d.bufferWrites }
func (d *SoftDevice) ResetTrace()            { d.draws = d.draws[:0] }

type softResource struct {
	id       ResourceId
	released bool
}

func newSoftResource() softResource { return softResource{id: uuid.New()} }

func (r *softResource) Id() ResourceId { return r.id }
func (r *softResource) Release()       { r.released = true }

type softBuffer struct {
	softResource
	label string
	usage wgpu.BufferUsage
	data  []byte
}

func (b *softBuffer) Size() uint64            { return uint64(len(b.data)) }
func (b *softBuffer) Usage() wgpu.BufferUsage { return b.usage }

func (d *SoftDevice) CreateBuffer(desc *BufferDescriptor) (Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("soft: buffer %q has zero size", desc.Label)
	}
	if d.maxBufferSize > 0 && desc.Size > d.maxBufferSize {
		return nil, fmt.Errorf("soft: buffer %q of %d bytes exceeds %d", desc.Label, desc.Size, d.maxBufferSize)
	}
	d.allocations++
	return &softBuffer{
		softResource: newSoftResource(),
		label:        desc.Label,
		usage:        desc.Usage,
		data:         make([]byte, desc.Size),
	}, nil
}

func (d *SoftDevice) WriteBuffer(buffer Buffer, offset uint64, data []byte) error {
	b, ok := buffer.(*softBuffer)
	if !ok {
		return fmt.Errorf("soft: foreign buffer %T", buffer)
	}
	if b.released {
		return fmt.Errorf("soft: write to released buffer %q", b.label)
	}
	if b.usage&wgpu.BufferUsageCopyDst == 0 {
		return fmt.Errorf("soft: buffer %q lacks CopyDst usage", b.label)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("soft: write of %d bytes at %d overruns buffer %q (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	d.bufferWrites++
	return nil
}

// ReadBuffer returns a copy of a buffer's contents.
func (d *SoftDevice) ReadBuffer(buffer Buffer) []byte {
	b, ok := buffer.(*softBuffer)
	if !ok {
		return nil
	}
	return append([]byte(nil), b.data...)
}

type softLayout struct {
	softResource
	label   string
	entries []wgpu.BindGroupLayoutEntry
}

func (l *softLayout) Entries() []wgpu.BindGroupLayoutEntry { return l.entries }

func (d *SoftDevice) CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error) {
	entries := append([]wgpu.BindGroupLayoutEntry(nil), desc.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	for i := 1; i < len(entries); i++ {
		if entries[i].Binding == entries[i-1].Binding {
			return nil, fmt.Errorf("soft: layout %q repeats binding %d", desc.Label, entries[i].Binding)
		}
	}
	return &softLayout{softResource: newSoftResource(), label: desc.Label, entries: entries}, nil
}

type softBindGroup struct {
	softResource
	label   string
	layout  *softLayout
	entries map[uint32]BindGroupEntry
}

func (g *softBindGroup) Layout() BindGroupLayout { return g.layout }

func (d *SoftDevice) CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error) {
	layout, ok := desc.Layout.(*softLayout)
	if !ok || layout == nil {
		return nil, fmt.Errorf("%s: %w: missing layout", desc.Label, ErrBindGroup)
	}
	if len(desc.Entries) != len(layout.entries) {
		return nil, fmt.Errorf("%s: %w: %d entries for a layout of %d", desc.Label, ErrBindGroup, len(desc.Entries), len(layout.entries))
	}
	entries := make(map[uint32]BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		entries[e.Binding] = e
	}
	for _, le := range layout.entries {
		e, ok := entries[le.Binding]
		if !ok {
			return nil, fmt.Errorf("%s: %w: binding %d not provided", desc.Label, ErrBindGroup, le.Binding)
		}
		buf, ok := e.Buffer.(*softBuffer)
		if !ok || buf == nil || buf.released {
			return nil, fmt.Errorf("%s: %w: binding %d has no live buffer", desc.Label, ErrBindGroup, le.Binding)
		}
		if le.Buffer.Type == wgpu.BufferBindingTypeUniform && buf.usage&wgpu.BufferUsageUniform == 0 {
			return nil, fmt.Errorf("%s: %w: binding %d buffer lacks Uniform usage", desc.Label, ErrBindGroup, le.Binding)
		}
		if e.Size < le.Buffer.MinBindingSize {
			return nil, fmt.Errorf("%s: %w: binding %d size %d below minimum %d", desc.Label, ErrBindGroup, le.Binding, e.Size, le.Buffer.MinBindingSize)
		}
		if e.Offset+e.Size > buf.Size() {
			return nil, fmt.Errorf("%s: %w: binding %d range overruns buffer", desc.Label, ErrBindGroup, le.Binding)
		}
	}
	d.bindGroups++
	return &softBindGroup{softResource: newSoftResource(), label: desc.Label, layout: layout, entries: entries}, nil
}

type softPipeline struct {
	softResource
	desc    RenderPipelineDescriptor
	program SoftProgram
}

func (p *softPipeline) Label() string { return p.desc.Label }

func (d *SoftDevice) CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error) {
	program, ok := d.programs[desc.Shader.Label]
	if !ok {
		return nil, fmt.Errorf("soft: no program registered for shader %q", desc.Shader.Label)
	}
	if !declaresEntryPoint(desc.Shader.WGSL, desc.Vertex.EntryPoint) {
		return nil, fmt.Errorf("soft: shader %q has no vertex entry point %q", desc.Shader.Label, desc.Vertex.EntryPoint)
	}
	if desc.Fragment != nil && !declaresEntryPoint(desc.Shader.WGSL, desc.Fragment.EntryPoint) {
		return nil, fmt.Errorf("soft: shader %q has no fragment entry point %q", desc.Shader.Label, desc.Fragment.EntryPoint)
	}
	if len(desc.Vertex.Buffers) == 0 {
		return nil, fmt.Errorf("soft: pipeline %q has no vertex buffer layout", desc.Label)
	}
	if len(desc.Layouts) > maxBindGroups {
		return nil, fmt.Errorf("soft: pipeline %q uses %d bind groups", desc.Label, len(desc.Layouts))
	}
	d.pipelines++
	return &softPipeline{softResource: newSoftResource(), desc: *desc, program: program}, nil
}

func declaresEntryPoint(wgsl, name string) bool {
	return name != "" && strings.Contains(wgsl, "fn "+name+"(")
}

func (d *SoftDevice) Submit() error {
	if d.openPasses > 0 {
		return fmt.Errorf("soft: submit with %d unfinished passes", d.openPasses)
	}
	d.submits++
	return nil
}

// SoftBindings exposes bound uniform data to a SoftProgram.
type SoftBindings struct {
	groups [maxBindGroups]boundGroup
}

type boundGroup struct {
	group   *softBindGroup
	offsets []uint32
}

// Uniform returns the bytes a shader sees at (group, binding), with the
// dynamic offset applied. It returns nil when nothing is bound there.
func (b SoftBindings) Uniform(group, binding uint32) []byte {
	if group >= maxBindGroups {
		return nil
	}
	bg := b.groups[group]
	if bg.group == nil {
		return nil
	}
	dynamic := 0
	var offset uint64
	found := false
	for _, le := range bg.group.layout.entries {
		if le.Binding == binding {
			if le.Buffer.HasDynamicOffset && dynamic < len(bg.offsets) {
				offset = uint64(bg.offsets[dynamic])
			}
			found = true
			break
		}
		if le.Buffer.HasDynamicOffset {
			dynamic++
		}
	}
	if !found {
		return nil
	}
	e := bg.group.entries[binding]
	buf := e.Buffer.(*softBuffer)
	start := e.Offset + offset
	if start+e.Size > buf.Size() {
		return nil
	}
	return buf.data[start : start+e.Size]
}
