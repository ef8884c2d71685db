package gpu

import (
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

type RenderCommandResult int

const (
	Success RenderCommandResult = iota
	Skip
	Failure
)

func (r RenderCommandResult) String() string {
	switch r {
	case Success:
		return "success"
	case Skip:
		return "skip"
	default:
		return "failure"
	}
}

// RenderCommand is one step of drawing a phase item.
type RenderCommand[I any] func(item *I, pass *TrackedPass) RenderCommandResult

// DrawFunction chains commands. The first result other than Success stops
// the chain for that item.
func DrawFunction[I any](commands ...RenderCommand[I]) RenderCommand[I] {
	return func(item *I, pass *TrackedPass) RenderCommandResult {
		for _, cmd := range commands {
			if res := cmd(item, pass); res != Success {
				return res
			}
		}
		return Success
	}
}

type PhaseStats struct {
	Drawn   int
	Skipped int
	Failed  int
}

// Phase holds the items queued for one pass in queue order.
type Phase[I any] struct {
	items []I
	draw  RenderCommand[I]
}

func NewPhase[I any](draw RenderCommand[I]) *Phase[I] {
	return &Phase[I]{draw: draw}
}

func (p *Phase[I]) Add(item I) { p.items = append(p.items, item) }
func (p *Phase[I]) Clear()     { p.items = p.items[:0] }
func (p *Phase[I]) Len() int   { return len(p.items) }
func (p *Phase[I]) Items() []I { return p.items }

// Render runs the draw function for every item. A skipped or failed item
// never stops the items after it.
func (p *Phase[I]) Render(pass *TrackedPass) PhaseStats {
	var stats PhaseStats
	for i := range p.items {
		switch p.draw(&p.items[i], pass) {
		case Success:
			stats.Drawn++
		case Skip:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}
	return stats
}

type boundState struct {
	id      ResourceId
	offsets []uint32
}

type vertexState struct {
	id           ResourceId
	offset, size uint64
}

// TrackedPass forwards to a RenderPass and drops calls that would not
// change pass state.
type TrackedPass struct {
	pass       RenderPass
	pipeline   ResourceId
	groups     [maxBindGroups]boundState
	vertex     vertexState
	index      vertexState
	stencilRef uint32
	stencilSet bool
}

func NewTrackedPass(pass RenderPass) *TrackedPass {
	return &TrackedPass{pass: pass}
}

func (t *TrackedPass) SetPipeline(p RenderPipeline) {
	if t.pipeline == p.Id() {
		return
	}
	t.pipeline = p.Id()
	t.pass.SetPipeline(p)
}

func (t *TrackedPass) SetBindGroup(index uint32, group BindGroup, dynamicOffsets []uint32) {
	if index < maxBindGroups {
		cur := t.groups[index]
		if cur.id == group.Id() && slices.Equal(cur.offsets, dynamicOffsets) {
			return
		}
		t.groups[index] = boundState{id: group.Id(), offsets: slices.Clone(dynamicOffsets)}
	}
	t.pass.SetBindGroup(index, group, dynamicOffsets)
}

func (t *TrackedPass) SetStencilReference(reference uint32) {
	if t.stencilSet && t.stencilRef == reference {
		return
	}
	t.stencilRef, t.stencilSet = reference, true
	t.pass.SetStencilReference(reference)
}

func (t *TrackedPass) SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64) {
	state := vertexState{id: buffer.Id(), offset: offset, size: size}
	if slot == 0 {
		if t.vertex == state {
			return
		}
		t.vertex = state
	}
	t.pass.SetVertexBuffer(slot, buffer, offset, size)
}

func (t *TrackedPass) SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64) {
	state := vertexState{id: buffer.Id(), offset: offset, size: size}
	if t.index == state {
		return
	}
	t.index = state
	t.pass.SetIndexBuffer(buffer, format, offset, size)
}

func (t *TrackedPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	t.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (t *TrackedPass) End() error { return t.pass.End() }
