package gekko2d

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_LiveForTwoFrames(t *testing.T) {
	var events Events[int]
	events.Send(1)
	events.Send(2)
	assert.Equal(t, []int{1, 2}, events.Read())

	events.Update()
	events.Send(3)
	assert.Equal(t, []int{1, 2, 3}, events.Read())
	assert.Equal(t, 3, events.Len())

	events.Update()
	assert.Equal(t, []int{3}, events.Read())
	events.Update()
	assert.Empty(t, events.Read())
}

func TestUseEvents_RegistersOnce(t *testing.T) {
	app, _ := newTestApp()
	first := UseEvents[string](app)
	assert.Same(t, first, UseEvents[string](app))
}

func writePreset(t *testing.T, preset PresetData) string {
	t.Helper()
	data, err := json.Marshal(preset)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "levels.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func levelApp(t *testing.T, level LevelConfig) (*App, *Commands) {
	t.Helper()
	app, _ := newTestApp()
	cfg := DefaultConfig()
	cfg.Level = level
	app.UseModules(ConfigModule{Config: &cfg}, HierarchyModule{}, LevelModule{})
	return app, app.Commands()
}

func TestLevelModule_EmptyLevel(t *testing.T) {
	app, cmd := levelApp(t, LevelConfig{Id: defaultLevelId})
	app.Step()

	cur := Resource[CurrentLevel](app)
	require.NotNil(t, cur)
	assert.Equal(t, uuid.MustParse(defaultLevelId), cur.Id)
	require.NotNil(t, Resource[LevelSelection](app))

	events := Resource[Events[LevelStartedEvent]](app).Read()
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Entities)
	assert.True(t, HasComponent[LevelRoot](cmd, events[0].Root))
}

func TestLevelModule_SpawnsSelectedLevel(t *testing.T) {
	path := writePreset(t, PresetData{Levels: []LevelData{
		{Lights: []LightData{{Position: mgl32.Vec2{1, 1}, Color: mgl32.Vec4{1, 1, 1, 1}, Radius: 5}}},
		{
			Lights: []LightData{
				{Position: mgl32.Vec2{10, 0}, Color: mgl32.Vec4{1, 0, 0, 1}, Radius: 20,
					Pulse: &PulseData{From: 1, To: 2, Period: 1}},
				{Position: mgl32.Vec2{-10, 0}, Rotation: 90, Color: mgl32.Vec4{0, 0, 1, 1}, Radius: 8, HalfLength: 4},
			},
			Occluders: []OccluderData{{Position: mgl32.Vec2{0, 3}, HalfExtents: mgl32.Vec2{2, 1}}},
		},
	}})
	app, cmd := levelApp(t, LevelConfig{Index: 1, Path: path, Id: defaultLevelId})
	app.Step()

	assert.Equal(t, 1, Resource[LevelSelection](app).Index)
	events := Resource[Events[LevelStartedEvent]](app).Read()
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Entities)

	var radii []float32
	MakeQuery3[PointLight2dComponent, Parent, GlobalTransform](cmd).Map(
		func(eid EntityId, l *PointLight2dComponent, p *Parent, g *GlobalTransform) bool {
			assert.Equal(t, events[0].Root, p.Entity)
			radii = append(radii, l.Radius)
			return true
		})
	assert.ElementsMatch(t, []float32{20, 8}, radii)
	assert.Equal(t, 1, MakeQuery1[LightPulseComponent](cmd).Count())
	assert.Equal(t, 1, MakeQuery1[OccluderComponent](cmd).Count())
}

func TestLevelModule_BadIndexLogsError(t *testing.T) {
	path := writePreset(t, PresetData{Levels: []LevelData{{}}})
	app, _ := newTestApp()
	cfg := DefaultConfig()
	cfg.Level = LevelConfig{Index: 4, Path: path, Id: defaultLevelId}
	app.UseModules(ConfigModule{Config: &cfg}, LevelModule{})

	require.NotPanics(t, app.Step)
	events := Resource[Events[LevelStartedEvent]](app).Read()
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].Entities)
}

func TestPreset_SaveAndReload(t *testing.T) {
	app, _ := newTestApp()
	app.UseModules(HierarchyModule{})
	cmd := app.Commands()

	parent := cmd.AddEntity(NewTransformComponent(100, 0))
	cmd.AddEntity(
		NewTransformComponent(5, 0),
		Parent{Entity: parent},
		PointLight2dComponent{Color: mgl32.Vec4{1, 0.5, 0.25, 2}, Radius: 30, HalfLength: 10},
		NewLightPulse(1, 2, 4),
	)
	occluder := NewTransformComponent(0, -20)
	occluder.Rotation = mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{0, 0, 1})
	cmd.AddEntity(occluder, OccluderComponent{HalfExtents: mgl32.Vec2{4, 2}})
	app.Step()

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, SavePreset(cmd, path))

	preset, err := ReadPreset(path)
	require.NoError(t, err)
	require.Len(t, preset.Levels, 1)
	level := preset.Levels[0]

	require.Len(t, level.Lights, 1)
	light := level.Lights[0]
	assert.InDelta(t, 105, light.Position.X(), 1e-4, "positions are saved in world space")
	assert.Equal(t, float32(30), light.Radius)
	require.NotNil(t, light.Pulse)
	assert.Equal(t, float32(4), light.Pulse.Period)

	require.Len(t, level.Occluders, 1)
	assert.InDelta(t, 30, level.Occluders[0].Rotation, 1e-3)
	assert.Equal(t, mgl32.Vec2{4, 2}, level.Occluders[0].HalfExtents)
}

func TestReadPreset_Errors(t *testing.T) {
	_, err := ReadPreset(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadPreset(path)
	assert.Error(t, err)
}
