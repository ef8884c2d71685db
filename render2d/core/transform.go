package core

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewTransform() Transform {
	return Transform{
		Position: mgl32.Vec3{0, 0, 0},
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

// ObjectToWorld returns M = T * R * S.
func (t Transform) ObjectToWorld() mgl32.Mat4 {
	translate := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
	rotate := t.Rotation.Normalize().Mat4()
	scale := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())

	return translate.Mul4(rotate).Mul4(scale)
}

// Finite reports whether every component is a finite number.
func (t Transform) Finite() bool {
	for _, v := range []float32{
		t.Position[0], t.Position[1], t.Position[2],
		t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2],
		t.Scale[0], t.Scale[1], t.Scale[2],
	} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Rect is an axis aligned rectangle on the XY plane.
type Rect struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

func (r Rect) Intersects(o Rect) bool {
	return r.Min.X() <= o.Max.X() && r.Max.X() >= o.Min.X() &&
		r.Min.Y() <= o.Max.Y() && r.Max.Y() >= o.Min.Y()
}

func (r Rect) Empty() bool {
	return r.Max.X() < r.Min.X() || r.Max.Y() < r.Min.Y()
}
