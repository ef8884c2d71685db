package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() LightParams {
	return LightParams{
		Color:               mgl32.Vec4{1, 1, 0, 1},
		HalfLength:          10,
		Radius:              100,
		VolumetricIntensity: 0.5,
	}
}

func TestExtractLight_Deterministic(t *testing.T) {
	tr := Transform{
		Position: mgl32.Vec3{12.5, -3, 0},
		Rotation: mgl32.QuatRotate(0.7, mgl32.Vec3{0, 0, 1}),
		Scale:    mgl32.Vec3{2, 0.5, 1},
	}

	a, _, okA := ExtractLight(tr, testParams())
	b, _, okB := ExtractLight(tr, testParams())
	require.True(t, okA)
	require.True(t, okB)

	assert.Equal(t, a.Marshal(), b.Marshal())
}

func TestExtractLight_Identity(t *testing.T) {
	snap, bounds, ok := ExtractLight(NewTransform(), testParams())
	require.True(t, ok)

	assert.Equal(t, mgl32.Vec4{1, 0, 0, 0}, snap.WorldFromLocal[0])
	assert.Equal(t, mgl32.Vec4{0, 1, 0, 0}, snap.WorldFromLocal[1])
	assert.Equal(t, mgl32.Vec4{0, 0, 1, 0}, snap.WorldFromLocal[2])
	assert.Equal(t, mgl32.Ident3(), snap.LocalFromWorldTranspose())
	assert.Equal(t, float32(100), bounds.Radius)
	assert.Equal(t, float32(10), bounds.HalfLength)
}

func TestExtractLight_TranslationInW(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{3, 4, 5}

	snap, _, ok := ExtractLight(tr, testParams())
	require.True(t, ok)

	assert.Equal(t, float32(3), snap.WorldFromLocal[0].W())
	assert.Equal(t, float32(4), snap.WorldFromLocal[1].W())
	assert.Equal(t, float32(5), snap.WorldFromLocal[2].W())
	assert.Equal(t, mgl32.Vec3{4, 5, 5}, snap.TransformPoint(mgl32.Vec3{1, 1, 0}))
}

func TestExtractLight_NonUniformScaleInverseTranspose(t *testing.T) {
	tr := NewTransform()
	tr.Scale = mgl32.Vec3{2, 4, 1}

	snap, _, ok := ExtractLight(tr, testParams())
	require.True(t, ok)

	it := snap.LocalFromWorldTranspose()
	assert.InDelta(t, 0.5, it.At(0, 0), 1e-6)
	assert.InDelta(t, 0.25, it.At(1, 1), 1e-6)
	assert.InDelta(t, 1.0, it.At(2, 2), 1e-6)
}

func TestExtractLight_SkipsSingularAndNonFinite(t *testing.T) {
	zeroScale := NewTransform()
	zeroScale.Scale = mgl32.Vec3{0, 1, 1}
	_, _, ok := ExtractLight(zeroScale, testParams())
	assert.False(t, ok, "zero scale is not invertible")

	nan := NewTransform()
	nan.Position = mgl32.Vec3{float32NaN(), 0, 0}
	_, _, ok = ExtractLight(nan, testParams())
	assert.False(t, ok, "NaN position")
}

func TestLightSnapshot_MarshalLayout(t *testing.T) {
	snap, _, ok := ExtractLight(NewTransform(), testParams())
	require.True(t, ok)

	buf := snap.Marshal()
	require.Len(t, buf, LightSnapshotSize)
	assert.Equal(t, LightSnapshotSize, snap.Size())

	back := UnmarshalLightSnapshot(buf)
	assert.Equal(t, snap, back)

	// padding between the packed scalar and color stays zero
	assert.Equal(t, make([]byte, 12), buf[84:96])
	assert.Equal(t, make([]byte, 4), buf[124:128])
}

func TestLightBounds_WorldRect(t *testing.T) {
	tr := NewTransform()
	tr.Position = mgl32.Vec3{100, 50, 0}
	_, bounds, ok := ExtractLight(tr, LightParams{Radius: 20, HalfLength: 5})
	require.True(t, ok)

	r := bounds.WorldRect()
	assert.InDelta(t, 75, r.Min.X(), 1e-4)
	assert.InDelta(t, 125, r.Max.X(), 1e-4)
	assert.InDelta(t, 30, r.Min.Y(), 1e-4)
	assert.InDelta(t, 70, r.Max.Y(), 1e-4)

	assert.True(t, r.Intersects(Rect{Min: mgl32.Vec2{120, 60}, Max: mgl32.Vec2{200, 200}}))
	assert.False(t, r.Intersects(Rect{Min: mgl32.Vec2{126, 0}, Max: mgl32.Vec2{200, 200}}))
}

func float32NaN() float32 {
	var zero float32
	return zero / zero
}
