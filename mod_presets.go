package gekko2d

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type PulseData struct {
	From   float32 `json:"from"`
	To     float32 `json:"to"`
	Period float32 `json:"period"`
}

type LightData struct {
	Position mgl32.Vec2 `json:"position"`
	// Rotation is in degrees around Z.
	Rotation            float32    `json:"rotation,omitempty"`
	Scale               mgl32.Vec2 `json:"scale,omitempty"`
	Color               mgl32.Vec4 `json:"color"`
	Radius              float32    `json:"radius"`
	HalfLength          float32    `json:"half_length,omitempty"`
	VolumetricIntensity float32    `json:"volumetric_intensity,omitempty"`
	Pulse               *PulseData `json:"pulse,omitempty"`
}

type OccluderData struct {
	Position    mgl32.Vec2 `json:"position"`
	Rotation    float32    `json:"rotation,omitempty"`
	Scale       mgl32.Vec2 `json:"scale,omitempty"`
	HalfExtents mgl32.Vec2 `json:"half_extents"`
}

type CameraData struct {
	Position mgl32.Vec2 `json:"position"`
	Zoom     float32    `json:"zoom"`
}

type LevelData struct {
	Id        string         `json:"id,omitempty"`
	Camera    *CameraData    `json:"camera,omitempty"`
	Lights    []LightData    `json:"lights"`
	Occluders []OccluderData `json:"occluders"`
}

// PresetData is a file of levels.
type PresetData struct {
	Levels []LevelData `json:"levels"`
}

func ReadPreset(filename string) (PresetData, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return PresetData{}, err
	}
	var preset PresetData
	if err := json.Unmarshal(bytes, &preset); err != nil {
		return PresetData{}, fmt.Errorf("%s: %w", filename, err)
	}
	return preset, nil
}

func transformFromData(pos mgl32.Vec2, rotation float32, scale mgl32.Vec2) TransformComponent {
	tr := NewTransformComponent(pos.X(), pos.Y())
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(rotation), mgl32.Vec3{0, 0, 1})
	if scale != (mgl32.Vec2{}) {
		tr.Scale = mgl32.Vec3{scale.X(), scale.Y(), 1}
	}
	return tr
}

// SpawnLevel adds the entities of a level under root, which may be zero
// for no parent.
func SpawnLevel(cmd *Commands, level LevelData, root EntityId) []EntityId {
	var spawned []EntityId
	parent := func(components ...any) []any {
		if root != 0 {
			components = append(components, Parent{Entity: root})
		}
		return components
	}
	if level.Camera != nil {
		zoom := level.Camera.Zoom
		if zoom <= 0 {
			zoom = 1
		}
		spawned = append(spawned, cmd.AddEntity(
			NewTransformComponent(level.Camera.Position.X(), level.Camera.Position.Y()),
			Camera2dComponent{Zoom: zoom, Active: true},
			CameraControlComponent{Speed: 400, ZoomRate: 1.5},
		))
	}
	for _, l := range level.Lights {
		components := parent(
			transformFromData(l.Position, l.Rotation, l.Scale),
			PointLight2dComponent{
				Color:               l.Color,
				HalfLength:          l.HalfLength,
				Radius:              l.Radius,
				VolumetricIntensity: l.VolumetricIntensity,
			},
		)
		if l.Pulse != nil {
			components = append(components, NewLightPulse(l.Pulse.From, l.Pulse.To, l.Pulse.Period))
		}
		spawned = append(spawned, cmd.AddEntity(components...))
	}
	for _, o := range level.Occluders {
		spawned = append(spawned, cmd.AddEntity(parent(
			transformFromData(o.Position, o.Rotation, o.Scale),
			OccluderComponent{HalfExtents: o.HalfExtents},
		)...))
	}
	return spawned
}

// SavePreset writes the lights and occluders of the world as one level.
// Positions are world positions; parents are not kept.
func SavePreset(cmd *Commands, filename string) error {
	var level LevelData
	MakeQuery2[PointLight2dComponent, GlobalTransform](cmd).Map(
		func(eid EntityId, l *PointLight2dComponent, g *GlobalTransform) bool {
			data := LightData{
				Position:            g.Position.Vec2(),
				Rotation:            rotationDegrees(g.Rotation),
				Scale:               g.Scale.Vec2(),
				Color:               l.Color,
				Radius:              l.Radius,
				HalfLength:          l.HalfLength,
				VolumetricIntensity: l.VolumetricIntensity,
			}
			if p := GetComponent[LightPulseComponent](cmd, eid); p != nil {
				data.Pulse = &PulseData{From: p.From, To: p.To, Period: p.Period}
			}
			level.Lights = append(level.Lights, data)
			return true
		})
	MakeQuery2[OccluderComponent, GlobalTransform](cmd).Map(
		func(eid EntityId, o *OccluderComponent, g *GlobalTransform) bool {
			level.Occluders = append(level.Occluders, OccluderData{
				Position:    g.Position.Vec2(),
				Rotation:    rotationDegrees(g.Rotation),
				Scale:       g.Scale.Vec2(),
				HalfExtents: o.HalfExtents,
			})
			return true
		})
	if cur := Resource[CurrentLevel](cmd.app); cur != nil {
		level.Id = cur.Id.String()
	}

	bytes, err := json.MarshalIndent(PresetData{Levels: []LevelData{level}}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, bytes, 0644)
}

// rotationDegrees returns the rotation around Z of a quaternion.
func rotationDegrees(q mgl32.Quat) float32 {
	v := q.Rotate(mgl32.Vec3{1, 0, 0})
	return mgl32.RadToDeg(math32.Atan2(v.Y(), v.X()))
}
