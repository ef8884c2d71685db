package lighting

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ViewUniformSize        = 80
	PostProcessUniformSize = 16
)

// ViewUniform matches View2d in the light and occluder shaders.
type ViewUniform struct {
	ClipFromWorld mgl32.Mat4
	// Viewport is x, y, width, height in pixels.
	Viewport mgl32.Vec4
}

func (ViewUniform) Size() int { return ViewUniformSize }

func (v ViewUniform) Marshal() []byte {
	buf := make([]byte, 0, ViewUniformSize)
	buf = appendFloats(buf, v.ClipFromWorld[:]...)
	return appendFloats(buf, v.Viewport[:]...)
}

// OrthographicView maps a world rectangle centered on center onto the full
// viewport. zoom scales world units per pixel.
func OrthographicView(center mgl32.Vec2, width, height int, zoom float32) ViewUniform {
	if zoom <= 0 {
		zoom = 1
	}
	hw := float32(width) / (2 * zoom)
	hh := float32(height) / (2 * zoom)
	return ViewUniform{
		ClipFromWorld: mgl32.Ortho(center.X()-hw, center.X()+hw, center.Y()-hh, center.Y()+hh, -1000, 1000),
		Viewport:      mgl32.Vec4{0, 0, float32(width), float32(height)},
	}
}

// WorldRect returns the world rectangle visible through the view.
func (v ViewUniform) WorldRect() core.Rect {
	inv := v.ClipFromWorld.Inv()
	a := inv.Mul4x1(mgl32.Vec4{-1, -1, 0, 1})
	b := inv.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	return core.Rect{
		Min: mgl32.Vec2{min(a.X(), b.X()), min(a.Y(), b.Y())},
		Max: mgl32.Vec2{max(a.X(), b.X()), max(a.Y(), b.Y())},
	}
}

// PostProcessUniform matches PostProcessSettings in point_light.wgsl.
type PostProcessUniform struct {
	Viewport        mgl32.Vec2
	Time            float32
	VolumetricScale float32
}

func (PostProcessUniform) Size() int { return PostProcessUniformSize }

func (p PostProcessUniform) Marshal() []byte {
	buf := make([]byte, 0, PostProcessUniformSize)
	return appendFloats(buf, p.Viewport[0], p.Viewport[1], p.Time, p.VolumetricScale)
}

func appendFloats(buf []byte, vs ...float32) []byte {
	for _, v := range vs {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

func uniformLayoutEntry(size uint64, dynamic bool) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
		Buffer: wgpu.BufferBindingLayout{
			Type:             wgpu.BufferBindingTypeUniform,
			HasDynamicOffset: dynamic,
			MinBindingSize:   size,
		},
	}
}

// UniformBinding is a single static uniform buffer with its bind group.
type UniformBinding struct {
	Layout gpu.BindGroupLayout
	Buffer gpu.Buffer
	Group  gpu.BindGroup
	size   uint64
}

// NewUniformBinding creates a layout, buffer and bind group for one
// uniform struct at binding 0.
func NewUniformBinding(device gpu.Device, label string, value gpu.Marshaler) (*UniformBinding, error) {
	size := uint64(value.Size())
	layout, err := device.CreateBindGroupLayout(&gpu.BindGroupLayoutDescriptor{
		Label:   label + " layout",
		Entries: []wgpu.BindGroupLayoutEntry{uniformLayoutEntry(size, false)},
	})
	if err != nil {
		return nil, err
	}
	buf, err := uploadStatic(device, label, value.Marshal(), wgpu.BufferUsageUniform)
	if err != nil {
		layout.Release()
		return nil, err
	}
	group, err := device.CreateBindGroup(&gpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: []gpu.BindGroupEntry{{Binding: 0, Buffer: buf, Size: size}},
	})
	if err != nil {
		buf.Release()
		layout.Release()
		return nil, err
	}
	return &UniformBinding{Layout: layout, Buffer: buf, Group: group, size: size}, nil
}

// Update rewrites the uniform value in place.
func (u *UniformBinding) Update(device gpu.Device, value gpu.Marshaler) error {
	return device.WriteBuffer(u.Buffer, 0, value.Marshal())
}

func (u *UniformBinding) Release() {
	u.Group.Release()
	u.Buffer.Release()
	u.Layout.Release()
}
