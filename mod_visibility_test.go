package gekko2d

import (
	"testing"

	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func rect(minX, minY, maxX, maxY float32) core.Rect {
	return core.Rect{Min: mgl32.Vec2{minX, minY}, Max: mgl32.Vec2{maxX, maxY}}
}

func TestSpatialHashGrid_InsertionAndQuery(t *testing.T) {
	grid := NewSpatialHashGrid(2.0)
	grid.Insert(1, rect(0, 0, 1, 1))
	grid.Insert(2, rect(3, 3, 4, 4))

	assert.Equal(t, []int{1}, grid.Query(rect(0, 0, 1, 1), nil))
	assert.Equal(t, []int{2}, grid.Query(rect(3, 3, 4, 4), nil))
	// Covers cells (0,0) through (1,1), touching both.
	assert.ElementsMatch(t, []int{1, 2}, grid.Query(rect(1, 1, 3, 3), nil))
	assert.Empty(t, grid.Query(rect(-10, -10, -8, -8), nil))

	grid.Clear()
	assert.Empty(t, grid.Query(rect(0, 0, 4, 4), nil))
}

func TestSpatialHashGrid_QueryReportsEachItemOnce(t *testing.T) {
	grid := NewSpatialHashGrid(1)
	grid.Insert(7, rect(-5, -5, 5, 5))
	assert.Equal(t, []int{7}, grid.Query(rect(-5, -5, 5, 5), nil))
}

func TestSpatialHashGrid_NegativeCoordinates(t *testing.T) {
	grid := NewSpatialHashGrid(10)
	grid.Insert(1, rect(-15, -15, -11, -11))
	assert.Equal(t, []int{1}, grid.Query(rect(-19, -19, -12, -12), nil))
	assert.Empty(t, grid.Query(rect(1, 1, 9, 9), nil))
}

func visibleLight(x, y, radius float32) lighting.ExtractedLight {
	tr := core.NewTransform()
	tr.Position = mgl32.Vec3{x, y, 0}
	return lighting.ExtractedLight{Bounds: core.LightBounds{Transform: tr, Radius: radius}}
}

func TestVisibility_CullLights(t *testing.T) {
	vis := &Visibility{Grid: NewSpatialHashGrid(16)}
	lights := []lighting.ExtractedLight{
		visibleLight(0, 0, 5),
		visibleLight(200, 0, 5),
		visibleLight(40, 0, 12), // reaches into the view
	}
	vis.CullLights(lights, rect(-32, -32, 32, 32))

	assert.False(t, lights[0].Culled)
	assert.True(t, lights[1].Culled)
	assert.False(t, lights[2].Culled)
	assert.Equal(t, 2, vis.Visible)
	assert.Equal(t, 1, vis.Culled)
}

func TestVisibility_EmptyViewCullsNothing(t *testing.T) {
	vis := &Visibility{Grid: NewSpatialHashGrid(16)}
	lights := []lighting.ExtractedLight{visibleLight(1000, 0, 1)}
	vis.CullLights(lights, rect(1, 1, -1, -1))
	assert.False(t, lights[0].Culled)
}

func TestVisibility_CullOccluders(t *testing.T) {
	vis := &Visibility{Grid: NewSpatialHashGrid(16)}
	at := func(x float32, deg float32) lighting.Occluder {
		tr := core.NewTransform()
		tr.Position = mgl32.Vec3{x, 0, 0}
		tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(deg), mgl32.Vec3{0, 0, 1})
		return lighting.Occluder{Entity: uint64(x), Transform: tr, HalfExtents: mgl32.Vec2{10, 1}}
	}
	kept := vis.CullOccluders([]lighting.Occluder{at(0, 0), at(100, 0), at(40, 90), at(40, 0)}, rect(-32, -32, 32, 32))

	var ids []uint64
	for _, o := range kept {
		ids = append(ids, o.Entity)
	}
	// Upright, the box at 40 spans x in [39, 41] and misses; lying flat it
	// reaches back to 30.
	assert.Equal(t, []uint64{0, 40}, ids)
}

func TestSpatialHashGrid_LargeRectsSkipCells(t *testing.T) {
	grid := NewSpatialHashGrid(64)
	grid.Insert(1, rect(-50000, -50000, 50000, 50000))
	grid.Insert(2, rect(0, 0, 10, 10))

	assert.Equal(t, 1, grid.Len())
	assert.ElementsMatch(t, []int{1, 2}, grid.Query(rect(-5, -5, 5, 5), nil))
	assert.Equal(t, []int{1}, grid.Query(rect(500, 500, 600, 600), nil))
	// A view wider than the cell limit visits every item instead of cells.
	assert.ElementsMatch(t, []int{1, 2}, grid.Query(rect(-1e6, -1e6, 1e6, 1e6), nil))
}

func TestSpatialHashGrid_ClearDropsCells(t *testing.T) {
	grid := NewSpatialHashGrid(16)
	for frame := range 100 {
		grid.Clear()
		x := float32(frame * 100)
		grid.Insert(0, rect(x, 0, x+1, 1))
	}
	assert.Equal(t, 1, grid.Len())
	assert.Equal(t, []int{0}, grid.Query(rect(9900, 0, 9901, 1), nil))
	assert.Empty(t, grid.Query(rect(0, 0, 1, 1), nil))
}

func TestVisibility_HugeLightsAndWideViews(t *testing.T) {
	vis := &Visibility{Grid: NewSpatialHashGrid(64)}
	lights := []lighting.ExtractedLight{
		visibleLight(0, 0, 50000),
		visibleLight(200000, 0, 50000),
		visibleLight(300, 0, 5),
	}
	vis.CullLights(lights, rect(-640, -360, 640, 360))
	assert.False(t, lights[0].Culled)
	assert.True(t, lights[1].Culled)
	assert.False(t, lights[2].Culled)
	// Only the small light occupies cells.
	assert.Equal(t, 2, vis.Grid.Len())

	vis.CullLights(lights, rect(-1e6, -1e6, 1e6, 1e6))
	assert.Equal(t, 3, vis.Visible)
	assert.Zero(t, vis.Culled)
}
