package core

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Vertex variants. The fragment stage uses the interpolated variant to tell
// the flat body of the light from its falloff ends.
const (
	VariantInner uint32 = 0
	VariantOuter uint32 = 1
)

// LightNumIndices is the index count of one light draw: the inner quad plus
// the two strips joining it to the outer ring.
const LightNumIndices = 18

// LightVertex matches the WGSL VertexInput of point_light.wgsl.
type LightVertex struct {
	Position [3]float32
	UV       [2]float32
	Variant  uint32
}

// LightVertexStride is the byte stride of LightVertex in the vertex buffer.
const LightVertexStride = uint64(unsafe.Sizeof(LightVertex{}))

func innerVertex(x, y, u, v float32) LightVertex {
	return LightVertex{Position: [3]float32{x, y, 0}, UV: [2]float32{u, v}, Variant: VariantInner}
}

func outerVertex(x, y, u, v float32) LightVertex {
	return LightVertex{Position: [3]float32{x, y, 0}, UV: [2]float32{u, v}, Variant: VariantOuter}
}

var lightVertices = [8]LightVertex{
	innerVertex(-1, -1, 0.5, 0),
	innerVertex(1, -1, 0.5, 0),
	innerVertex(1, 1, 0.5, 1),
	innerVertex(-1, 1, 0.5, 1),
	outerVertex(-1, -1, 0, 0),
	outerVertex(1, -1, 1, 0),
	outerVertex(1, 1, 1, 1),
	outerVertex(-1, 1, 0, 1),
}

var lightIndices = [LightNumIndices]uint32{0, 1, 2, 2, 3, 0, 1, 5, 6, 6, 2, 1, 4, 0, 3, 3, 7, 4}

// GeometryTable is the mesh shared by every light instance.
type GeometryTable struct {
	Vertices [8]LightVertex
	Indices  [LightNumIndices]uint32
}

// LightGeometry returns a copy of the shared light mesh.
func LightGeometry() GeometryTable {
	return GeometryTable{Vertices: lightVertices, Indices: lightIndices}
}

// VertexBytes encodes the vertices in vertex buffer layout.
func (g GeometryTable) VertexBytes() []byte {
	buf := make([]byte, 0, len(g.Vertices)*int(LightVertexStride))
	for _, v := range g.Vertices {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Position[0]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Position[1]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.Position[2]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.UV[0]))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.UV[1]))
		buf = binary.LittleEndian.AppendUint32(buf, v.Variant)
	}
	return buf
}

// IndexBytes encodes the indices as Uint32.
func (g GeometryTable) IndexBytes() []byte {
	buf := make([]byte, 0, len(g.Indices)*4)
	for _, idx := range g.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	return buf
}

// DecodeLightVertex reads one vertex back from vertex buffer bytes.
func DecodeLightVertex(b []byte) LightVertex {
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	return LightVertex{
		Position: [3]float32{f(0), f(4), f(8)},
		UV:       [2]float32{f(12), f(16)},
		Variant:  binary.LittleEndian.Uint32(b[20:]),
	}
}
