package lighting

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/gekko2d/render2d/gpu"
)

// PointLightItem is one light queued into the transparent phase.
type PointLightItem struct {
	Entity        uint64
	Pipeline      gpu.CachedPipelineId
	DynamicOffset uint32
	HasOffset     bool
}

// DrawContext is the per-frame state the light render commands read.
type DrawContext struct {
	Cache       *gpu.PipelineCache
	PostProcess gpu.BindGroup
	View        gpu.BindGroup
	Lights      gpu.BindGroup
	Geometry    *GeometryBuffers
	Logger      gpu.Logger
}

func (c *DrawContext) logger() gpu.Logger {
	if c.Logger == nil {
		return gpu.NopLogger()
	}
	return c.Logger
}

type LightCommand = gpu.RenderCommand[PointLightItem]

func SetItemPipeline(ctx *DrawContext) LightCommand {
	return func(item *PointLightItem, pass *gpu.TrackedPass) gpu.RenderCommandResult {
		pipeline, err := ctx.Cache.Get(item.Pipeline)
		if err != nil {
			ctx.logger().Warnf("point light %d: %v", item.Entity, err)
			return gpu.Failure
		}
		if pipeline == nil {
			return gpu.Skip
		}
		pass.SetPipeline(pipeline)
		return gpu.Success
	}
}

func setStaticGroup(index uint32, group func() gpu.BindGroup) LightCommand {
	return func(_ *PointLightItem, pass *gpu.TrackedPass) gpu.RenderCommandResult {
		g := group()
		if g == nil {
			return gpu.Skip
		}
		pass.SetBindGroup(index, g, nil)
		return gpu.Success
	}
}

func SetPostProcessBindGroup(ctx *DrawContext, index uint32) LightCommand {
	return setStaticGroup(index, func() gpu.BindGroup { return ctx.PostProcess })
}

func SetViewBindGroup(ctx *DrawContext, index uint32) LightCommand {
	return setStaticGroup(index, func() gpu.BindGroup { return ctx.View })
}

// SetPointLight2dBindGroup binds the light uniform at the item's dynamic
// offset. Items that were never uploaded are skipped.
func SetPointLight2dBindGroup(ctx *DrawContext, index uint32) LightCommand {
	return func(item *PointLightItem, pass *gpu.TrackedPass) gpu.RenderCommandResult {
		if !item.HasOffset || ctx.Lights == nil {
			return gpu.Skip
		}
		pass.SetBindGroup(index, ctx.Lights, []uint32{item.DynamicOffset})
		return gpu.Success
	}
}

func DrawPointLight2d(ctx *DrawContext) LightCommand {
	return func(_ *PointLightItem, pass *gpu.TrackedPass) gpu.RenderCommandResult {
		g := ctx.Geometry
		if !g.Ready() {
			return gpu.Skip
		}
		pass.SetStencilReference(0)
		pass.SetVertexBuffer(0, g.Vertices, 0, g.Vertices.Size())
		pass.SetIndexBuffer(g.Indices, wgpu.IndexFormatUint32, 0, g.Indices.Size())
		pass.DrawIndexed(g.IndexCount, 1, 0, 0, 0)
		return gpu.Success
	}
}

// DrawPointLight2dFunction is the full command chain for one light.
func DrawPointLight2dFunction(ctx *DrawContext) LightCommand {
	return gpu.DrawFunction(
		SetItemPipeline(ctx),
		SetPostProcessBindGroup(ctx, 0),
		SetViewBindGroup(ctx, 1),
		SetPointLight2dBindGroup(ctx, 2),
		DrawPointLight2d(ctx),
	)
}

// QueueLights adds one phase item per uploaded light, in extraction order.
func QueueLights(phase *gpu.Phase[PointLightItem], pipeline gpu.CachedPipelineId, lights []ExtractedLight) int {
	queued := 0
	for _, l := range lights {
		if !l.Uploaded {
			continue
		}
		phase.Add(PointLightItem{
			Entity:        l.Entity,
			Pipeline:      pipeline,
			DynamicOffset: l.DynamicOffset,
			HasOffset:     true,
		})
		queued++
	}
	return queued
}
