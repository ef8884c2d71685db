package lighting

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
)

// GeometryBuffers hold a static mesh on the device.
type GeometryBuffers struct {
	Vertices   gpu.Buffer
	Indices    gpu.Buffer
	IndexCount uint32
}

// Ready reports whether both buffers were uploaded.
func (g *GeometryBuffers) Ready() bool {
	return g != nil && g.Vertices != nil && g.Indices != nil && g.IndexCount > 0
}

func (g *GeometryBuffers) Release() {
	if g.Vertices != nil {
		g.Vertices.Release()
	}
	if g.Indices != nil {
		g.Indices.Release()
	}
	*g = GeometryBuffers{}
}

func uploadStatic(device gpu.Device, label string, data []byte, usage wgpu.BufferUsage) (gpu.Buffer, error) {
	buf, err := device.CreateBuffer(&gpu.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", label, gpu.ErrBufferAllocation, err)
	}
	if err := device.WriteBuffer(buf, 0, data); err != nil {
		buf.Release()
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return buf, nil
}

func uploadGeometry(device gpu.Device, label string, vertices, indices []byte, count uint32) (*GeometryBuffers, error) {
	vb, err := uploadStatic(device, label+" vertices", vertices, wgpu.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	ib, err := uploadStatic(device, label+" indices", indices, wgpu.BufferUsageIndex)
	if err != nil {
		vb.Release()
		return nil, err
	}
	return &GeometryBuffers{Vertices: vb, Indices: ib, IndexCount: count}, nil
}

// UploadLightGeometry puts the shared light mesh on the device.
func UploadLightGeometry(device gpu.Device) (*GeometryBuffers, error) {
	g := core.LightGeometry()
	return uploadGeometry(device, "point_light_2d", g.VertexBytes(), g.IndexBytes(), core.LightNumIndices)
}
