package core

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// LightSnapshotSize is the size of the WGSL PointLight2d uniform struct.
//
// Layout:
//
//	array<vec4<f32>, 3> world_from_local              (48 bytes, offset   0)
//	array<vec4<f32>, 2> local_from_world_transpose_a  (32 bytes, offset  48)
//	f32                 local_from_world_transpose_b  ( 4 bytes, offset  80)
//	vec4<f32>           color                         (16 bytes, offset  96)
//	f32                 half_length                   ( 4 bytes, offset 112)
//	f32                 radius                        ( 4 bytes, offset 116)
//	f32                 volumetric_intensity          ( 4 bytes, offset 120)
//	                                                  (size 128)
const LightSnapshotSize = 128

const singularDeterminant = 1e-12

// LightParams is the source-side state of one light.
type LightParams struct {
	Color               mgl32.Vec4
	HalfLength          float32
	Radius              float32
	VolumetricIntensity float32
}

// LightSnapshot is the render-side copy of a light for one frame.
type LightSnapshot struct {
	WorldFromLocal           [3]mgl32.Vec4
	LocalFromWorldTransposeA [2]mgl32.Vec4
	LocalFromWorldTransposeB float32
	Color                    mgl32.Vec4
	HalfLength               float32
	Radius                   float32
	VolumetricIntensity      float32
}

// LightBounds is what the culling pass needs to know about a light.
type LightBounds struct {
	Transform  Transform
	Radius     float32
	HalfLength float32
}

// AffineParts holds the transform-derived half of a snapshot. It only
// changes when the transform does.
type AffineParts struct {
	WorldFromLocal           [3]mgl32.Vec4
	LocalFromWorldTransposeA [2]mgl32.Vec4
	LocalFromWorldTransposeB float32
}

// DecomposeAffine builds the 3x4 world matrix and the packed inverse-transpose
// of its linear part. ok is false for non-finite or singular transforms.
func DecomposeAffine(t Transform) (AffineParts, bool) {
	if !t.Finite() {
		return AffineParts{}, false
	}
	m := t.ObjectToWorld()
	linear := m.Mat3()
	det := linear.Det()
	if math32.IsNaN(det) || math32.Abs(det) < singularDeterminant {
		return AffineParts{}, false
	}
	it := linear.Inv().Transpose()
	x, y, z := it.Col(0), it.Col(1), it.Col(2)

	parts := AffineParts{
		WorldFromLocal: [3]mgl32.Vec4{m.Row(0), m.Row(1), m.Row(2)},
		LocalFromWorldTransposeA: [2]mgl32.Vec4{
			{x[0], x[1], x[2], y[0]},
			{y[1], y[2], z[0], z[1]},
		},
		LocalFromWorldTransposeB: z[2],
	}
	for _, row := range parts.WorldFromLocal {
		for _, v := range row {
			if math32.IsNaN(v) || math32.IsInf(v, 0) {
				return AffineParts{}, false
			}
		}
	}
	return parts, true
}

// Snapshot combines precomputed affine parts with light parameters.
func (a AffineParts) Snapshot(p LightParams) LightSnapshot {
	return LightSnapshot{
		WorldFromLocal:           a.WorldFromLocal,
		LocalFromWorldTransposeA: a.LocalFromWorldTransposeA,
		LocalFromWorldTransposeB: a.LocalFromWorldTransposeB,
		Color:                    p.Color,
		HalfLength:               p.HalfLength,
		Radius:                   p.Radius,
		VolumetricIntensity:      p.VolumetricIntensity,
	}
}

// ExtractLight turns a world transform and light parameters into a snapshot
// and culling bounds. ok is false when the transform cannot be decomposed;
// callers skip the light for this frame.
func ExtractLight(t Transform, p LightParams) (LightSnapshot, LightBounds, bool) {
	parts, ok := DecomposeAffine(t)
	if !ok {
		return LightSnapshot{}, LightBounds{}, false
	}
	return parts.Snapshot(p), LightBounds{Transform: t, Radius: p.Radius, HalfLength: p.HalfLength}, true
}

// LocalFromWorldTranspose unpacks the 3x3 inverse-transpose.
func (s LightSnapshot) LocalFromWorldTranspose() mgl32.Mat3 {
	a, b := s.LocalFromWorldTransposeA, s.LocalFromWorldTransposeB
	return mgl32.Mat3{
		a[0][0], a[0][1], a[0][2],
		a[0][3], a[1][0], a[1][1],
		a[1][2], a[1][3], b,
	}
}

// TransformPoint applies world_from_local to a local point.
func (s LightSnapshot) TransformPoint(p mgl32.Vec3) mgl32.Vec3 {
	v := p.Vec4(1)
	return mgl32.Vec3{s.WorldFromLocal[0].Dot(v), s.WorldFromLocal[1].Dot(v), s.WorldFromLocal[2].Dot(v)}
}

// Size returns the size of the uniform struct in bytes.
func (s LightSnapshot) Size() int {
	return LightSnapshotSize
}

// Marshal serializes the snapshot into its uniform layout.
func (s LightSnapshot) Marshal() []byte {
	buf := make([]byte, LightSnapshotSize)
	put := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v)) }
	putVec4 := func(off int, v mgl32.Vec4) {
		for i := range v {
			put(off+i*4, v[i])
		}
	}
	putVec4(0, s.WorldFromLocal[0])
	putVec4(16, s.WorldFromLocal[1])
	putVec4(32, s.WorldFromLocal[2])
	putVec4(48, s.LocalFromWorldTransposeA[0])
	putVec4(64, s.LocalFromWorldTransposeA[1])
	put(80, s.LocalFromWorldTransposeB)
	putVec4(96, s.Color)
	put(112, s.HalfLength)
	put(116, s.Radius)
	put(120, s.VolumetricIntensity)
	return buf
}

// UnmarshalLightSnapshot decodes a snapshot from its uniform layout.
func UnmarshalLightSnapshot(buf []byte) LightSnapshot {
	get := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	getVec4 := func(off int) mgl32.Vec4 {
		return mgl32.Vec4{get(off), get(off + 4), get(off + 8), get(off + 12)}
	}
	return LightSnapshot{
		WorldFromLocal:           [3]mgl32.Vec4{getVec4(0), getVec4(16), getVec4(32)},
		LocalFromWorldTransposeA: [2]mgl32.Vec4{getVec4(48), getVec4(64)},
		LocalFromWorldTransposeB: get(80),
		Color:                    getVec4(96),
		HalfLength:               get(112),
		Radius:                   get(116),
		VolumetricIntensity:      get(120),
	}
}

// LocalCorner returns the light-space position of a mesh vertex.
func LocalCorner(v LightVertex, halfLength, radius float32) mgl32.Vec3 {
	extent := halfLength
	if v.Variant == VariantOuter {
		extent += radius
	}
	return mgl32.Vec3{v.Position[0] * extent, v.Position[1] * radius, 0}
}

// WorldRect returns the world-space rectangle covered by the outer ring.
func (b LightBounds) WorldRect() Rect {
	m := b.Transform.ObjectToWorld()
	r := Rect{
		Min: mgl32.Vec2{math32.Inf(1), math32.Inf(1)},
		Max: mgl32.Vec2{math32.Inf(-1), math32.Inf(-1)},
	}
	for _, v := range lightVertices[4:] {
		p := m.Mul4x1(LocalCorner(v, b.HalfLength, b.Radius).Vec4(1))
		r.Min[0] = math32.Min(r.Min[0], p.X())
		r.Min[1] = math32.Min(r.Min[1], p.Y())
		r.Max[0] = math32.Max(r.Max[0], p.X())
		r.Max[1] = math32.Max(r.Max[1], p.Y())
	}
	return r
}
