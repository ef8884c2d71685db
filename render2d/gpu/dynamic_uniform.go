package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Marshaler is a fixed-size uniform struct.
type Marshaler interface {
	Size() int
	Marshal() []byte
}

// BufferBinding is the part of a buffer one dynamic-offset binding sees.
type BufferBinding struct {
	Buffer Buffer
	Size   uint64
}

// DynamicUniformBuffer packs one value per instance into a uniform buffer,
// each slot aligned to the device's minimum uniform offset alignment, so a
// single bind group can address any instance through a dynamic offset.
type DynamicUniformBuffer[T Marshaler] struct {
	label       string
	itemSize    uint64
	stride      uint64
	staging     []byte
	count       int
	buffer      Buffer
	reallocated bool
}

func NewDynamicUniformBuffer[T Marshaler](label string, limits Limits) *DynamicUniformBuffer[T] {
	var zero T
	itemSize := uint64(zero.Size())
	return &DynamicUniformBuffer[T]{
		label:    label,
		itemSize: itemSize,
		stride:   AlignUp(itemSize, uint64(limits.MinUniformBufferOffsetAlignment)),
	}
}

// Clear drops this frame's values. The GPU buffer is kept for reuse.
func (b *DynamicUniformBuffer[T]) Clear() {
	b.staging = b.staging[:0]
	b.count = 0
}

// Push appends a value and returns its dynamic offset.
func (b *DynamicUniformBuffer[T]) Push(v T) uint32 {
	offset := uint64(b.count) * b.stride
	data := v.Marshal()
	if uint64(len(data)) != b.itemSize {
		panic(fmt.Sprintf("gpu: %s: marshaled %d bytes, expected %d", b.label, len(data), b.itemSize))
	}
	b.staging = append(b.staging, data...)
	if pad := b.stride - b.itemSize; pad > 0 {
		b.staging = append(b.staging, make([]byte, pad)...)
	}
	b.count++
	return uint32(offset)
}

func (b *DynamicUniformBuffer[T]) Len() int { return b.count }

func (b *DynamicUniformBuffer[T]) Stride() uint64 { return b.stride }

func (b *DynamicUniformBuffer[T]) ItemSize() uint64 { return b.itemSize }

// Buffer returns the current GPU buffer, nil before the first non-empty write.
func (b *DynamicUniformBuffer[T]) Buffer() Buffer { return b.buffer }

// Reallocated reports whether the last Write replaced the GPU buffer.
func (b *DynamicUniformBuffer[T]) Reallocated() bool { return b.reallocated }

// Staged returns the staged bytes of the value at the given dynamic offset.
func (b *DynamicUniformBuffer[T]) Staged(offset uint32) []byte {
	start := uint64(offset)
	if start+b.itemSize > uint64(len(b.staging)) {
		return nil
	}
	return b.staging[start : start+b.itemSize]
}

// Write uploads the staged values, growing the GPU buffer when it is too
// small. Growing replaces the buffer, which invalidates bind groups built
// over the old one.
func (b *DynamicUniformBuffer[T]) Write(device Device) error {
	b.reallocated = false
	if b.count == 0 {
		return nil
	}
	needed := uint64(b.count) * b.stride
	if b.buffer == nil || b.buffer.Size() < needed {
		if b.buffer != nil {
			b.buffer.Release()
			b.buffer = nil
		}
		buf, err := device.CreateBuffer(&BufferDescriptor{
			Label: b.label,
			Size:  needed,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("%s (%d bytes): %w: %w", b.label, needed, ErrBufferAllocation, err)
		}
		b.buffer = buf
		b.reallocated = true
	}
	if err := device.WriteBuffer(b.buffer, 0, b.staging[:needed]); err != nil {
		return fmt.Errorf("%s: write: %w", b.label, err)
	}
	return nil
}

// Binding returns the buffer binding for this frame, nil when nothing was
// written.
func (b *DynamicUniformBuffer[T]) Binding() *BufferBinding {
	if b.buffer == nil || b.count == 0 {
		return nil
	}
	return &BufferBinding{Buffer: b.buffer, Size: b.itemSize}
}
