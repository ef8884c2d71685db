package lighting

import (
	"context"
	"fmt"
	"testing"

	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/core"
	"github.com/gekko3d/gekko2d/render2d/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSize = 64

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}
func (l *recordingLogger) Errorf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

type frameFixture struct {
	dev      *gpu.SoftDevice
	cache    *gpu.PipelineCache
	post     *UniformBinding
	view     *UniformBinding
	renderer *Renderer
	color    *gpu.SoftTexture
	stencil  *gpu.SoftTexture
	logger   *recordingLogger
}

// newFrameFixture renders into a 64x64 target where one world unit is one
// pixel and the origin sits on the corner shared by pixels (31..32, 31..32).
func newFrameFixture(t *testing.T, opts gpu.SoftDeviceOptions) *frameFixture {
	t.Helper()
	dev := gpu.NewSoftDevice(opts)
	RegisterSoftPrograms(dev)
	logger := &recordingLogger{}
	cache := gpu.NewPipelineCache(dev, logger)

	post, err := NewUniformBinding(dev, "post_process", PostProcessUniform{
		Viewport:        mgl32.Vec2{frameSize, frameSize},
		VolumetricScale: 1,
	})
	require.NoError(t, err)
	view, err := NewUniformBinding(dev, "view_2d", OrthographicView(mgl32.Vec2{}, frameSize, frameSize, 1))
	require.NoError(t, err)

	r, err := NewRenderer(dev, cache, RendererOptions{
		PostProcessLayout: post.Layout,
		ViewLayout:        view.Layout,
		HDRFormat:         wgpu.TextureFormatRGBA16Float,
		Logger:            logger,
	})
	require.NoError(t, err)

	color, err := dev.CreateTexture(&gpu.TextureDescriptor{Label: "hdr", Width: frameSize, Height: frameSize, Format: wgpu.TextureFormatRGBA16Float})
	require.NoError(t, err)
	stencil, err := dev.CreateTexture(&gpu.TextureDescriptor{Label: "stencil", Width: frameSize, Height: frameSize, Format: StencilFormat})
	require.NoError(t, err)

	return &frameFixture{
		dev:      dev,
		cache:    cache,
		post:     post,
		view:     view,
		renderer: r,
		color:    color.(*gpu.SoftTexture),
		stencil:  stencil.(*gpu.SoftTexture),
		logger:   logger,
	}
}

func (f *frameFixture) extract(t *testing.T, instances []LightInstance) []ExtractedLight {
	t.Helper()
	lights, err := NewExtractor(ExtractorOptions{Workers: 2}).Extract(context.Background(), instances)
	require.NoError(t, err)
	return lights
}

func (f *frameFixture) render(t *testing.T, lights []ExtractedLight, occluders []Occluder) FrameStats {
	t.Helper()
	f.dev.ResetTrace()
	f.renderer.Prepare(lights, occluders)
	f.renderer.Queue(lights)
	pass, err := f.dev.BeginRenderPass(&gpu.RenderPassDescriptor{
		Label:       "main",
		Color:       f.color,
		ColorLoadOp: wgpu.LoadOpClear,
		Stencil:     f.stencil,
		StencilLoad: wgpu.LoadOpClear,
	})
	require.NoError(t, err)
	stats := f.renderer.Render(pass, f.post.Group, f.view.Group)
	require.NoError(t, pass.End())
	require.NoError(t, f.dev.Submit())
	return stats
}

func (f *frameFixture) lightDraws() []gpu.SoftDraw {
	var out []gpu.SoftDraw
	for _, d := range f.dev.Draws() {
		if d.Pipeline == "point_light_2d" {
			out = append(out, d)
		}
	}
	return out
}

// expectedAt is the shaded value of a white, non-volumetric light centered
// at the origin for pixel (x, y) of the fixture.
func expectedAt(x, y int, radius float32) float32 {
	wx := float32(x) + 0.5 - frameSize/2
	wy := frameSize/2 - float32(y) - 0.5
	d := mgl32.Vec2{wx, wy}.Len() / radius
	falloff := mgl32.Clamp(1-d, 0, 1)
	return falloff * falloff
}

func TestRenderer_SingleLight(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	lights := f.extract(t, []LightInstance{lightAt(1, 0, 0, 10)})

	stats := f.render(t, lights, nil)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 1, stats.Phase.Drawn)

	draws := f.lightDraws()
	require.Len(t, draws, 1)
	d := draws[0]
	assert.Equal(t, uint32(core.LightNumIndices), d.IndexCount)
	assert.Equal(t, uint32(1), d.InstanceCount)
	assert.Equal(t, uint32(0), d.FirstIndex)
	assert.Equal(t, uint32(0), d.StencilReference)
	assert.Equal(t, []uint32{0}, d.DynamicOffsets[2])
	assert.Equal(t, f.post.Group.Id(), d.BindGroups[0])
	assert.Equal(t, f.view.Group.Id(), d.BindGroups[1])
	assert.Equal(t, f.renderer.Binds.Current().Id(), d.BindGroups[2])

	c := f.color.At(32, 32)
	assert.InDelta(t, expectedAt(32, 32, 10), c.X(), 0.01)
	assert.InDelta(t, c.X(), c.Y(), 1e-6)
	assert.Zero(t, c.W())
	assert.Equal(t, mgl32.Vec4{}, f.color.At(0, 0))
}

func TestRenderer_LightsAddUp(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	one := lightAt(1, 0, 0, 10)
	two := lightAt(2, 0, 0, 10)
	two.Params.Color = mgl32.Vec4{0, 0, 1, 1}

	f.render(t, f.extract(t, []LightInstance{one, two}), nil)

	c := f.color.At(33, 30)
	want := expectedAt(33, 30, 10)
	assert.InDelta(t, want, c.X(), 0.01)
	assert.InDelta(t, 2*want, c.Z(), 0.02)
}

func TestRenderer_VolumetricIntensityScalesWithPostProcess(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	l := lightAt(1, 0, 0, 10)
	l.Params.VolumetricIntensity = 2
	lights := f.extract(t, []LightInstance{l})

	f.render(t, lights, nil)
	lit := f.color.At(32, 32).X()

	require.NoError(t, f.post.Update(f.dev, PostProcessUniform{Viewport: mgl32.Vec2{frameSize, frameSize}}))
	f.render(t, lights, nil)
	plain := f.color.At(32, 32).X()

	assert.InDelta(t, expectedAt(32, 32, 10), plain, 0.01)
	assert.Greater(t, lit, plain)
}

func TestRenderer_ZeroLights(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	groups := f.dev.BindGroupsCreated()

	stats := f.render(t, nil, nil)

	assert.Nil(t, f.renderer.Binds.Current())
	assert.Equal(t, groups, f.dev.BindGroupsCreated())
	assert.Empty(t, f.dev.Draws())
	assert.Equal(t, gpu.PhaseStats{}, stats.Phase)
}

func TestRenderer_UniformGrowthRebuildsBindGroup(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})

	f.render(t, f.extract(t, manyLights(4)), nil)
	assert.Equal(t, 1, f.renderer.Binds.Builds)
	first := f.renderer.Uniforms.Buffer().Id()

	f.render(t, f.extract(t, manyLights(3)), nil)
	assert.Equal(t, 1, f.renderer.Binds.Builds)
	assert.Equal(t, first, f.renderer.Uniforms.Buffer().Id())

	stats := f.render(t, f.extract(t, manyLights(40)), nil)
	assert.True(t, f.renderer.Uniforms.Reallocated())
	assert.NotEqual(t, first, f.renderer.Uniforms.Buffer().Id())
	assert.Equal(t, 2, f.renderer.Binds.Builds)
	assert.Equal(t, 40, stats.Phase.Drawn)
	assert.Len(t, f.lightDraws(), 40)
	assert.GreaterOrEqual(t, f.renderer.Uniforms.Buffer().Size(), uint64(40)*f.renderer.Uniforms.Stride())
}

func TestRenderer_UploadedSnapshotsReadBack(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	lights := f.extract(t, manyLights(5))
	f.render(t, lights, nil)

	data := f.dev.ReadBuffer(f.renderer.Uniforms.Buffer())
	stride := f.renderer.Uniforms.Stride()
	require.GreaterOrEqual(t, uint64(len(data)), 5*stride)
	for i, l := range lights {
		require.True(t, l.Uploaded)
		assert.Equal(t, uint32(uint64(i)*stride), l.DynamicOffset)
		got := core.UnmarshalLightSnapshot(data[l.DynamicOffset : l.DynamicOffset+core.LightSnapshotSize])
		assert.Equal(t, l.Snapshot, got)
	}
}

func TestRenderer_DrawCountMatchesUploadedCount(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	instances := manyLights(6)
	instances[2].Transform.Scale = mgl32.Vec3{1, 0, 1}
	lights := f.extract(t, instances)
	require.Len(t, lights, 5)
	lights[0].Culled = true
	lights[3].Culled = true

	stats := f.render(t, lights, nil)
	assert.Equal(t, 3, stats.Uploaded)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 3, stats.Phase.Drawn)

	draws := f.lightDraws()
	require.Len(t, draws, 3)
	stride := uint32(f.renderer.Uniforms.Stride())
	for i, d := range draws {
		assert.Equal(t, []uint32{uint32(i) * stride}, d.DynamicOffsets[2])
	}
}

func TestRenderer_AllocationFailureSkipsFrame(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{MaxBufferSize: 512})
	lights := f.extract(t, manyLights(3))

	stats := f.render(t, lights, nil)
	assert.Zero(t, stats.Uploaded)
	assert.Zero(t, stats.Queued)
	assert.Empty(t, f.lightDraws())
	for _, l := range lights {
		assert.False(t, l.Uploaded)
	}
	require.NotEmpty(t, f.logger.warnings)
	assert.Contains(t, f.logger.warnings[0], "point lights skipped")
}

func TestRenderer_OccludedPixelsStayDark(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	occ := Occluder{Entity: 9, Transform: core.NewTransform(), HalfExtents: mgl32.Vec2{5, 5}}

	stats := f.render(t, f.extract(t, []LightInstance{lightAt(1, 0, 0, 20)}), []Occluder{occ})
	assert.Equal(t, 1, stats.Occluders)
	assert.Equal(t, 1, stats.Phase.Drawn)

	assert.Equal(t, uint8(OccludedStencil), f.stencil.StencilAt(32, 32))
	assert.Equal(t, mgl32.Vec4{}, f.color.At(32, 32))
	assert.Equal(t, mgl32.Vec4{}, f.color.At(30, 34))

	assert.Equal(t, uint8(0), f.stencil.StencilAt(44, 32))
	lit := f.color.At(44, 32)
	assert.InDelta(t, expectedAt(44, 32, 20), lit.X(), 0.01)
	assert.Greater(t, lit.X(), float32(0.1))
}

func TestRenderer_ReloadKeepsPipelineOnFailure(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	before := f.renderer.Pipeline.Id

	broken := DefaultShader()
	broken.WGSL = "@vertex fn vertex() {}"
	require.Error(t, f.renderer.Reload(broken))
	assert.Equal(t, before, f.renderer.Pipeline.Id)

	stats := f.render(t, f.extract(t, []LightInstance{lightAt(1, 0, 0, 10)}), nil)
	assert.Equal(t, 1, stats.Phase.Drawn)

	edited := DefaultShader()
	edited.WGSL += "\n// edited\n"
	require.NoError(t, f.renderer.Reload(edited))
	assert.NotEqual(t, before, f.renderer.Pipeline.Id)
	_, err := f.cache.Get(before)
	assert.ErrorIs(t, err, gpu.ErrUnknownPipeline)
}

// expectedCapsuleAt is the shaded value of a light centered at the origin
// with the given half length, for pixel (x, y) of the fixture.
func expectedCapsuleAt(x, y int, radius, halfLength float32) float32 {
	wx := float32(x) + 0.5 - frameSize/2
	wy := frameSize/2 - float32(y) - 0.5
	along := max(math32.Abs(wx)-halfLength, 0)
	falloff := mgl32.Clamp(1-math32.Hypot(along, wy)/radius, 0, 1)
	return falloff * falloff
}

func TestRenderer_YellowCapsuleLight(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	l := lightAt(1, 0, 0, 100)
	l.Params.HalfLength = 10
	l.Params.Color = mgl32.Vec4{1, 1, 0, 1}
	lights := f.extract(t, []LightInstance{l})
	require.Len(t, lights, 1)

	stats := f.render(t, lights, nil)
	assert.Equal(t, 1, stats.Uploaded)
	assert.Equal(t, 1, stats.Phase.Drawn)

	draws := f.lightDraws()
	require.Len(t, draws, 1)
	assert.Equal(t, uint32(core.LightNumIndices), draws[0].IndexCount)
	assert.Equal(t, AdditiveBlend(), draws[0].Blend)

	// Inside the body, on the end caps and in a corner.
	for _, px := range [][2]int{{32, 32}, {40, 20}, {60, 10}, {2, 60}} {
		c := f.color.At(px[0], px[1])
		want := expectedCapsuleAt(px[0], px[1], 100, 10)
		assert.InDelta(t, want, c.X(), 0.01, "pixel %v", px)
		assert.InDelta(t, c.X(), c.Y(), 1e-6, "pixel %v", px)
		assert.Zero(t, c.Z(), "pixel %v", px)
	}
	assert.Greater(t, f.color.At(32, 32).X(), f.color.At(60, 10).X())
}

func TestRenderer_MissingGeometrySkipsDraws(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	f.renderer.draw.Geometry = &GeometryBuffers{}

	stats := f.render(t, f.extract(t, manyLights(2)), nil)
	assert.Equal(t, 2, stats.Uploaded)
	assert.Equal(t, gpu.PhaseStats{Skipped: 2}, stats.Phase)
	assert.Empty(t, f.lightDraws())
	assert.Empty(t, f.logger.warnings)
}

func TestRenderer_SingularOccludersDropped(t *testing.T) {
	f := newFrameFixture(t, gpu.SoftDeviceOptions{})
	flat := core.NewTransform()
	flat.Scale = mgl32.Vec3{0, 1, 1}
	occluders := []Occluder{
		{Entity: 1, Transform: flat, HalfExtents: mgl32.Vec2{5, 5}},
		{Entity: 2, Transform: core.NewTransform(), HalfExtents: mgl32.Vec2{5, 5}},
	}

	stats := f.render(t, f.extract(t, []LightInstance{lightAt(1, 0, 0, 20)}), occluders)
	assert.Equal(t, 1, stats.Occluders)
	assert.Equal(t, uint8(OccludedStencil), f.stencil.StencilAt(32, 32))
}
