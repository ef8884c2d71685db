package lighting

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/shaders"
	"github.com/go-gl/mathgl/mgl32"
)

func readFloat(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func readMat4(b []byte, off int) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = readFloat(b, off+i*4)
	}
	return m
}

// PointLightProgram runs point_light.wgsl on the software backend.
type PointLightProgram struct{}

func (PointLightProgram) Vertex(vertex []byte, b gpu.SoftBindings) (mgl32.Vec4, []float32) {
	light := core.UnmarshalLightSnapshot(b.Uniform(2, 0))
	view := readMat4(b.Uniform(1, 0), 0)
	v := core.DecodeLightVertex(vertex)
	local := core.LocalCorner(v, light.HalfLength, light.Radius)
	world := light.TransformPoint(local)
	clip := view.Mul4x1(world.Vec4(1))
	return clip, []float32{local.X(), local.Y(), float32(v.Variant)}
}

func (PointLightProgram) Fragment(varyings []float32, b gpu.SoftBindings) (mgl32.Vec4, bool) {
	light := core.UnmarshalLightSnapshot(b.Uniform(2, 0))
	volumetricScale := readFloat(b.Uniform(0, 0), 12)
	falloff := ringFalloff(varyings[1], varyings[2], light.Radius)
	intensity := falloff*falloff + light.VolumetricIntensity*volumetricScale*falloff
	rgb := light.Color.Vec3().Mul(light.Color.W() * intensity)
	return rgb.Vec4(0), true
}

// ringFalloff is the linear falloff at a fragment, from its local offset
// across the light body and its interpolated ring variant.
func ringFalloff(localY, variant, radius float32) float32 {
	d := math32.Hypot(variant, localY/radius)
	return mgl32.Clamp(1-d, 0, 1)
}

// OccluderProgram runs occluder.wgsl on the software backend.
type OccluderProgram struct{}

func (OccluderProgram) Vertex(vertex []byte, b gpu.SoftBindings) (mgl32.Vec4, []float32) {
	view := readMat4(b.Uniform(0, 0), 0)
	occ := b.Uniform(1, 0)
	world := readMat4(occ, 0)
	local := mgl32.Vec4{
		readFloat(vertex, 0) * readFloat(occ, 64),
		readFloat(vertex, 4) * readFloat(occ, 68),
		0, 1,
	}
	return view.Mul4(world).Mul4x1(local), nil
}

func (OccluderProgram) Fragment([]float32, gpu.SoftBindings) (mgl32.Vec4, bool) {
	return mgl32.Vec4{}, true
}

// RegisterSoftPrograms makes the light and occluder shaders available on a
// software device.
func RegisterSoftPrograms(dev *gpu.SoftDevice) {
	dev.RegisterProgram(shaders.PointLightLabel, PointLightProgram{})
	dev.RegisterProgram(shaders.OccluderLabel, OccluderProgram{})
}
