package gekko2d

import (
	"math"

	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/go-gl/mathgl/mgl32"
)

// maxCellSpan bounds the cells one rectangle may touch per axis. Larger
// rectangles are kept in a side list that every query visits, and larger
// queries scan every item.
const maxCellSpan = 16

// SpatialHashGrid buckets rectangles into square cells on the XY plane.
type SpatialHashGrid struct {
	cellSize float32
	cells    map[uint64][]int
	large    []int
	items    []int
	seen     map[int]struct{}
}

func NewSpatialHashGrid(cellSize float32) *SpatialHashGrid {
	if cellSize <= 0 {
		cellSize = 64
	}
	return &SpatialHashGrid{
		cellSize: cellSize,
		cells:    make(map[uint64][]int),
		seen:     make(map[int]struct{}),
	}
}

func (grid *SpatialHashGrid) CellSize() float32 { return grid.cellSize }

// Len returns the number of occupied cells.
func (grid *SpatialHashGrid) Len() int { return len(grid.cells) }

func (grid *SpatialHashGrid) Clear() {
	clear(grid.cells)
	grid.large = grid.large[:0]
	grid.items = grid.items[:0]
}

// Insert registers item in every cell rect overlaps.
func (grid *SpatialHashGrid) Insert(item int, rect core.Rect) {
	grid.items = append(grid.items, item)
	minX, maxX, minY, maxY, ok := grid.span(rect)
	if !ok {
		grid.large = append(grid.large, item)
		return
	}
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			key := hashCell(x, y)
			grid.cells[key] = append(grid.cells[key], item)
		}
	}
}

// Query returns the items sharing a cell with rect, each once. Results are
// broadphase candidates; callers test exact overlap themselves.
func (grid *SpatialHashGrid) Query(rect core.Rect, out []int) []int {
	minX, maxX, minY, maxY, ok := grid.span(rect)
	if !ok {
		return append(out, grid.items...)
	}
	clear(grid.seen)
	for _, item := range grid.large {
		grid.seen[item] = struct{}{}
		out = append(out, item)
	}
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for _, item := range grid.cells[hashCell(x, y)] {
				if _, ok := grid.seen[item]; ok {
					continue
				}
				grid.seen[item] = struct{}{}
				out = append(out, item)
			}
		}
	}
	return out
}

// span returns the cell range of rect, or ok=false when it is wider than
// maxCellSpan on either axis or not finite.
func (grid *SpatialHashGrid) span(rect core.Rect) (minX, maxX, minY, maxY int, ok bool) {
	lo := rect.Min.Mul(1 / grid.cellSize)
	hi := rect.Max.Mul(1 / grid.cellSize)
	for _, f := range [4]float32{lo[0], lo[1], hi[0], hi[1]} {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return 0, 0, 0, 0, false
		}
	}
	if hi[0]-lo[0] > maxCellSpan || hi[1]-lo[1] > maxCellSpan {
		return 0, 0, 0, 0, false
	}
	minX, maxX = grid.cellIndex(rect.Min.X()), grid.cellIndex(rect.Max.X())
	minY, maxY = grid.cellIndex(rect.Min.Y()), grid.cellIndex(rect.Max.Y())
	return minX, maxX, minY, maxY, true
}

func (grid *SpatialHashGrid) cellIndex(pos float32) int {
	return int(math.Floor(float64(pos / grid.cellSize)))
}

func hashCell(x, y int) uint64 {
	const p1 = 73856093
	const p2 = 19349663
	return uint64(x*p1 ^ y*p2)
}

// VisibilityModule culls extracted lights against the camera rectangle.
type VisibilityModule struct{}

func (VisibilityModule) Install(app *App, cmd *Commands) {
	cfg := configOf(app)
	cmd.AddResources(&Visibility{Grid: NewSpatialHashGrid(cfg.Lighting.CullCellSize)})
}

// Visibility holds the culling grid and the results of the last frame.
type Visibility struct {
	Grid    *SpatialHashGrid
	Visible int
	Culled  int

	candidates []int
}

// CullLights marks every light whose bounds miss view as Culled. A view
// with an empty rectangle culls nothing.
func (v *Visibility) CullLights(lights []lighting.ExtractedLight, view core.Rect) {
	v.Visible, v.Culled = len(lights), 0
	if view.Empty() || len(lights) == 0 {
		return
	}
	v.Grid.Clear()
	rects := make([]core.Rect, len(lights))
	for i := range lights {
		lights[i].Culled = true
		rects[i] = lights[i].Bounds.WorldRect()
		v.Grid.Insert(i, rects[i])
	}
	v.candidates = v.Grid.Query(view, v.candidates[:0])
	for _, i := range v.candidates {
		if rects[i].Intersects(view) {
			lights[i].Culled = false
		}
	}
	v.Culled = 0
	for i := range lights {
		if lights[i].Culled {
			v.Culled++
		}
	}
	v.Visible = len(lights) - v.Culled
}

// occluderRect is the world rectangle enclosing a rotated, scaled box.
func occluderRect(o lighting.Occluder) core.Rect {
	m := o.Transform.ObjectToWorld()
	hx, hy := o.HalfExtents.X(), o.HalfExtents.Y()
	r := core.Rect{}
	for i, c := range [4][2]float32{{-hx, -hy}, {hx, -hy}, {hx, hy}, {-hx, hy}} {
		p := m.Mul4x1(mgl32.Vec4{c[0], c[1], 0, 1})
		if i == 0 {
			r.Min = p.Vec2()
			r.Max = p.Vec2()
			continue
		}
		r.Min[0], r.Min[1] = min(r.Min[0], p[0]), min(r.Min[1], p[1])
		r.Max[0], r.Max[1] = max(r.Max[0], p[0]), max(r.Max[1], p[1])
	}
	return r
}

// CullOccluders drops occluders outside view, keeping order.
func (v *Visibility) CullOccluders(occluders []lighting.Occluder, view core.Rect) []lighting.Occluder {
	if view.Empty() {
		return occluders
	}
	kept := occluders[:0]
	for _, o := range occluders {
		if occluderRect(o).Intersects(view) {
			kept = append(kept, o)
		}
	}
	return kept
}
