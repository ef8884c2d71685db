package gekko2d

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/go-gl/mathgl/mgl32"
)

// CameraControlComponent lets the keyboard pan and zoom a camera.
type CameraControlComponent struct {
	// Speed is in pixels per second, so panning feels the same at any zoom.
	Speed    float32
	ZoomRate float32
}

type CameraControlModule struct{}

func (CameraControlModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(CameraControlSystem).
			InStage(Update).
			RunAlways(),
	)
}

func CameraControlSystem(cmd *Commands, input *Input, time *Time) {
	dt := time.DtSeconds()
	if dt <= 0 {
		return
	}
	MakeQuery3[Camera2dComponent, CameraControlComponent, TransformComponent](cmd).Map(
		func(eid EntityId, cam *Camera2dComponent, ctl *CameraControlComponent, tr *TransformComponent) bool {
			if !cam.Active {
				return true
			}
			var move mgl32.Vec3
			if input.Pressed[KeyLeft] {
				move[0]--
			}
			if input.Pressed[KeyRight] {
				move[0]++
			}
			if input.Pressed[KeyUp] {
				move[1]++
			}
			if input.Pressed[KeyDown] {
				move[1]--
			}
			zoom := max(cam.Zoom, 1e-3)
			if move.Len() > 0 {
				tr.Position = tr.Position.Add(move.Normalize().Mul(ctl.Speed * dt / zoom))
			}
			if input.Pressed[KeyEqual] {
				cam.Zoom = zoom * math32.Exp(ctl.ZoomRate*dt)
			}
			if input.Pressed[KeyMinus] {
				cam.Zoom = zoom * math32.Exp(-ctl.ZoomRate*dt)
			}
			return true
		})
}

// activeView builds the view of the first active camera, or a view
// centered on the origin when there is none.
func activeView(cmd *Commands, width, height int) lighting.ViewUniform {
	center, zoom := mgl32.Vec2{}, float32(1)
	MakeQuery2[Camera2dComponent, GlobalTransform](cmd).Map(
		func(eid EntityId, cam *Camera2dComponent, g *GlobalTransform) bool {
			if !cam.Active {
				return true
			}
			center = g.Position.Vec2()
			zoom = cam.Zoom
			return false
		})
	return lighting.OrthographicView(center, width, height, zoom)
}
