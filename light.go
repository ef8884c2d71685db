package gekko2d

import (
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/go-gl/mathgl/mgl32"
)

// PointLight2dComponent is a capsule-shaped light on the XY plane. A zero
// HalfLength gives a round light.
type PointLight2dComponent struct {
	// Color is linear RGB; alpha scales the intensity.
	Color               mgl32.Vec4 `gekko:"light" usage:"color"`
	HalfLength          float32    `gekko:"light" usage:"half_length"`
	Radius              float32    `gekko:"light" usage:"radius"`
	VolumetricIntensity float32    `gekko:"light" usage:"volumetric_intensity"`
}

func (l PointLight2dComponent) Params() core.LightParams {
	return core.LightParams{
		Color:               l.Color,
		HalfLength:          l.HalfLength,
		Radius:              l.Radius,
		VolumetricIntensity: l.VolumetricIntensity,
	}
}

// OccluderComponent is a rectangle that blocks light, centered on the
// entity.
type OccluderComponent struct {
	HalfExtents mgl32.Vec2
}

// Camera2dComponent selects what part of the world is rendered. The first
// active camera found wins.
type Camera2dComponent struct {
	// Zoom is pixels per world unit.
	Zoom   float32
	Active bool
}
