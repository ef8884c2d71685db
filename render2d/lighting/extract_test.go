package lighting

import (
	"context"
	"testing"

	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lightAt(entity uint64, x, y float32, radius float32) LightInstance {
	t := core.NewTransform()
	t.Position = mgl32.Vec3{x, y, 0}
	return LightInstance{
		Entity:    entity,
		Transform: t,
		Params: core.LightParams{
			Color:  mgl32.Vec4{1, 1, 1, 1},
			Radius: radius,
		},
	}
}

func manyLights(n int) []LightInstance {
	out := make([]LightInstance, n)
	for i := range out {
		l := lightAt(uint64(i+1), float32(i%37)-18, float32(i%11)-5, 2+float32(i%5))
		l.Transform.Rotation = mgl32.QuatRotate(float32(i)*0.1, mgl32.Vec3{0, 0, 1})
		l.Transform.Scale = mgl32.Vec3{1 + float32(i%3), 1, 1}
		l.Params.HalfLength = float32(i % 4)
		out[i] = l
	}
	return out
}

func TestExtractor_ParallelMatchesSequential(t *testing.T) {
	instances := manyLights(500)

	got, err := NewExtractor(ExtractorOptions{Workers: 8}).Extract(context.Background(), instances)
	require.NoError(t, err)
	require.Len(t, got, len(instances))

	for i, in := range instances {
		snap, bounds, ok := core.ExtractLight(in.Transform, in.Params)
		require.True(t, ok)
		assert.Equal(t, in.Entity, got[i].Entity)
		assert.Equal(t, snap, got[i].Snapshot)
		assert.Equal(t, bounds, got[i].Bounds)
	}
}

func TestExtractor_Deterministic(t *testing.T) {
	instances := manyLights(300)
	a, err := NewExtractor(ExtractorOptions{Workers: 3}).Extract(context.Background(), instances)
	require.NoError(t, err)
	b, err := NewExtractor(ExtractorOptions{Workers: 1}).Extract(context.Background(), instances)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Snapshot.Marshal(), b[i].Snapshot.Marshal())
	}
}

func TestExtractor_SingularTransformSkipsOnlyThatLight(t *testing.T) {
	instances := []LightInstance{lightAt(1, 0, 0, 4), lightAt(2, 3, 0, 4), lightAt(3, 6, 0, 4)}
	instances[1].Transform.Scale = mgl32.Vec3{0, 1, 1}

	e := NewExtractor(ExtractorOptions{})
	got, err := e.Extract(context.Background(), instances)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Entity)
	assert.Equal(t, uint64(3), got[1].Entity)
	assert.Equal(t, 1, e.Skipped)
}

func TestExtractor_AffineCache(t *testing.T) {
	instances := manyLights(10)
	e := NewExtractor(ExtractorOptions{CacheAffine: true})

	first, err := e.Extract(context.Background(), instances)
	require.NoError(t, err)
	assert.Zero(t, e.CacheHits)

	instances[4].Transform.Position = mgl32.Vec3{100, 100, 0}
	instances[7].Params.Color = mgl32.Vec4{1, 0, 0, 1}
	second, err := e.Extract(context.Background(), instances)
	require.NoError(t, err)
	assert.Equal(t, 9, e.CacheHits)

	assert.Equal(t, first[0].Snapshot, second[0].Snapshot)
	assert.Equal(t, mgl32.Vec4{1, 0, 0, 1}, second[7].Snapshot.Color)

	fresh, _, ok := core.ExtractLight(instances[4].Transform, instances[4].Params)
	require.True(t, ok)
	assert.Equal(t, fresh, second[4].Snapshot)
}

func TestExtractor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExtractor(ExtractorOptions{Workers: 2}).Extract(ctx, manyLights(10))
	require.ErrorIs(t, err, context.Canceled)
}
