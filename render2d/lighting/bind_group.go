package lighting

import (
	"fmt"

	"github.com/gekko3d/gekko2d/render2d/gpu"
)

// BindGroupBuilder keeps a dynamic-offset bind group in step with its
// uniform buffer. The group is rebuilt only when the buffer or layout is
// replaced.
type BindGroupBuilder struct {
	Label string

	group    gpu.BindGroup
	bufferId gpu.ResourceId
	layoutId gpu.ResourceId
	current  gpu.BindGroup

	Builds int
}

// Prepare returns the bind group for this frame, nil when there is nothing
// to bind.
func (b *BindGroupBuilder) Prepare(device gpu.Device, layout gpu.BindGroupLayout, binding *gpu.BufferBinding) (gpu.BindGroup, error) {
	b.current = nil
	if binding == nil {
		return nil, nil
	}
	if b.group != nil && b.bufferId == binding.Buffer.Id() && b.layoutId == layout.Id() {
		b.current = b.group
		return b.current, nil
	}
	if b.group != nil {
		b.group.Release()
		b.group = nil
	}
	group, err := device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:  b.Label,
		Layout: layout,
		Entries: []gpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  binding.Buffer,
			Size:    binding.Size,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Label, err)
	}
	b.group = group
	b.bufferId = binding.Buffer.Id()
	b.layoutId = layout.Id()
	b.current = group
	b.Builds++
	return group, nil
}

// Current returns the group prepared for this frame.
func (b *BindGroupBuilder) Current() gpu.BindGroup { return b.current }

func (b *BindGroupBuilder) Release() {
	if b.group != nil {
		b.group.Release()
	}
	b.group, b.current = nil, nil
}
