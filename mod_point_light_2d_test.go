package gekko2d

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/gekko3d/gekko2d/render2d/lighting"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

const softSize = 64

// newSoftApp builds an app rendering 64x64 frames on the software backend
// where one world unit is one pixel.
func newSoftApp(t *testing.T, mutate func(*Config), extra ...Module) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Window.Width, cfg.Window.Height = softSize, softSize
	cfg.Render.Backend = BackendSoft
	cfg.Lighting.ExtractionWorkers = 2
	if mutate != nil {
		mutate(&cfg)
	}
	app, logs := newTestApp()
	app.UseModules(
		ConfigModule{Config: &cfg},
		TimeModule{FixedDt: time.Second / 60},
		HierarchyModule{},
		Render2dModule{},
		PointLight2dModule{},
	)
	app.UseModules(extra...)
	return app, logs
}

func whiteLight(radius float32) PointLight2dComponent {
	return PointLight2dComponent{Color: mgl32.Vec4{1, 1, 1, 1}, Radius: radius}
}

func softTarget(t *testing.T, app *App) *gpu.SoftTexture {
	t.Helper()
	target, ok := Resource[Render2d](app).SoftTarget()
	require.True(t, ok)
	return target
}

func lightDraws(app *App) int {
	n := 0
	for _, d := range Resource[Render2d](app).SoftDevice().Draws() {
		if d.Pipeline == "point_light_2d" {
			n++
		}
	}
	return n
}

func TestPointLight2d_RendersLight(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	app.Commands().AddEntity(NewTransformComponent(0, 0), whiteLight(10))
	app.Step()

	pl := Resource[PointLights2d](app)
	assert.Equal(t, 1, pl.Stats.Extracted)
	assert.Equal(t, 1, pl.Stats.Uploaded)
	assert.Equal(t, 1, pl.Stats.Phase.Drawn)
	assert.Equal(t, 1, lightDraws(app))

	target := softTarget(t, app)
	assert.Greater(t, target.At(32, 32).X(), float32(0.8))
	assert.Equal(t, mgl32.Vec4{}, target.At(0, 0))
}

func TestPointLight2d_FollowsParentAndCamera(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	holder := cmd.AddEntity(NewTransformComponent(100, 100))
	cmd.AddEntity(NewTransformComponent(0, 0), Parent{Entity: holder}, whiteLight(10))
	camera := cmd.AddEntity(NewTransformComponent(100, 100), Camera2dComponent{Zoom: 1, Active: true})
	app.Step()

	target := softTarget(t, app)
	assert.Greater(t, target.At(32, 32).X(), float32(0.8), "the camera centers the light")

	GetComponent[TransformComponent](cmd, camera).Position = mgl32.Vec3{0, 0, 0}
	app.Step()
	assert.Equal(t, mgl32.Vec4{}, target.At(32, 32), "the light left the view")
}

func TestPointLight2d_OccluderBlocksLight(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	cmd.AddEntity(NewTransformComponent(0, 0), whiteLight(20))
	cmd.AddEntity(NewTransformComponent(0, 0), OccluderComponent{HalfExtents: mgl32.Vec2{5, 5}})
	app.Step()

	pl := Resource[PointLights2d](app)
	assert.Equal(t, 1, pl.Stats.Occluders)
	r := Resource[Render2d](app)
	assert.Equal(t, uint8(lighting.OccludedStencil), r.Stencil.(*gpu.SoftTexture).StencilAt(32, 32))

	target := softTarget(t, app)
	assert.Equal(t, float32(0), target.At(32, 32).X())
	assert.Greater(t, target.At(44, 32).X(), float32(0))
}

func TestPointLight2d_VisibilityCulls(t *testing.T) {
	app, _ := newSoftApp(t, nil, VisibilityModule{})
	cmd := app.Commands()
	cmd.AddEntity(NewTransformComponent(0, 0), whiteLight(10))
	cmd.AddEntity(NewTransformComponent(500, 0), whiteLight(10))
	app.Step()

	pl := Resource[PointLights2d](app)
	assert.Equal(t, 2, pl.Stats.Extracted)
	assert.Equal(t, 1, pl.Stats.Uploaded)
	assert.Equal(t, 1, pl.Stats.Queued)
	assert.Equal(t, 1, lightDraws(app))
	assert.Equal(t, 1, Resource[Visibility](app).Culled)
}

func TestPointLight2d_WithoutVisibilityEverythingDraws(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	cmd.AddEntity(NewTransformComponent(0, 0), whiteLight(10))
	cmd.AddEntity(NewTransformComponent(500, 0), whiteLight(10))
	app.Step()

	assert.Equal(t, 2, Resource[PointLights2d](app).Stats.Uploaded)
	assert.Equal(t, 2, lightDraws(app))
}

func TestPointLight2d_SingularTransformSkipped(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	flat := NewTransformComponent(0, 0)
	flat.Scale = mgl32.Vec3{0, 1, 1}
	cmd.AddEntity(flat, whiteLight(10))
	cmd.AddEntity(NewTransformComponent(5, 0), whiteLight(10))

	require.NotPanics(t, app.Step)
	pl := Resource[PointLights2d](app)
	assert.Len(t, pl.Lights, 1)
	assert.Equal(t, 1, pl.Stats.Phase.Drawn)
}

func TestPointLight2d_LightsExtractedInEntityOrder(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	var ids []EntityId
	for i := range 5 {
		tr := NewTransformComponent(float32(i), 0)
		if i%2 == 1 {
			// a different archetype, iterated separately
			ids = append(ids, cmd.AddEntity(tr, whiteLight(4), LifetimeComponent{TimeLeft: 10}))
		} else {
			ids = append(ids, cmd.AddEntity(tr, whiteLight(4)))
		}
	}
	app.Step()

	var got []EntityId
	for _, l := range Resource[PointLights2d](app).Lights {
		got = append(got, EntityId(l.Entity))
	}
	assert.Equal(t, ids, got)
}

func TestPointLight2d_UniformGrowthAcrossFrames(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	cmd := app.Commands()
	cmd.AddEntity(NewTransformComponent(0, 0), whiteLight(4))
	app.Step()
	pl := Resource[PointLights2d](app)
	builds := pl.Renderer.Binds.Builds

	for i := range 300 {
		cmd.AddEntity(NewTransformComponent(float32(i%20), float32(i/20)), whiteLight(4))
	}
	app.Step()

	assert.Equal(t, 301, pl.Stats.Uploaded)
	assert.Equal(t, 301, pl.Stats.Phase.Drawn)
	assert.Greater(t, pl.Renderer.Binds.Builds, builds, "a larger buffer needs a new bind group")
}

func TestPointLight2d_WritesTIFFOnExit(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.tiff")
	app, _ := newSoftApp(t, func(cfg *Config) { cfg.Render.OutputPath = out }, FrameLimitModule{Frames: 2})
	app.Commands().AddEntity(NewTransformComponent(0, 0), whiteLight(10))
	app.Run()

	assert.Equal(t, uint64(2), app.Frame())
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, softSize, img.Bounds().Dx())

	center := color.NRGBA64Model.Convert(img.At(32, 32)).(color.NRGBA64)
	corner := color.NRGBA64Model.Convert(img.At(0, 0)).(color.NRGBA64)
	assert.Greater(t, center.R, corner.R)
}

func TestPointLight2d_RequiresRender2d(t *testing.T) {
	app, _ := newTestApp()
	app.UseModules(PointLight2dModule{})
	assert.Panics(t, app.Step)
}

func TestPointLight2d_BadShaderPathPanics(t *testing.T) {
	app, _ := newSoftApp(t, func(cfg *Config) {
		cfg.Lighting.ShaderPath = filepath.Join(t.TempDir(), "missing.wgsl")
	})
	assert.Panics(t, app.Step)
}

func TestRenderer_SecondBackendPanics(t *testing.T) {
	app, _ := newSoftApp(t, nil)
	app.Step()
	assert.NotPanics(t, func() { ensureSingleRenderer(app, BackendSoft) })
	assert.Panics(t, func() { ensureSingleRenderer(app, BackendWgpu) })
}
