package gpu

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/vector"
)

type bufferSlice struct {
	buffer *softBuffer
	offset uint64
	size   uint64
}

func (s bufferSlice) bytes() []byte {
	if s.buffer == nil {
		return nil
	}
	end := s.offset + s.size
	if s.size == wgpu.WholeSize || end > s.buffer.Size() {
		end = s.buffer.Size()
	}
	return s.buffer.data[s.offset:end]
}

type softPass struct {
	device      *SoftDevice
	label       string
	color       *SoftTexture
	stencil     *SoftTexture
	pipeline    *softPipeline
	bindings    SoftBindings
	stencilRef  uint32
	vertex      bufferSlice
	index       bufferSlice
	indexFormat wgpu.IndexFormat
	err         error
	ended       bool
}

func (d *SoftDevice) BeginRenderPass(desc *RenderPassDescriptor) (RenderPass, error) {
	color, ok := desc.Color.(*SoftTexture)
	if !ok || color == nil || color.color == nil {
		return nil, fmt.Errorf("soft: pass %q needs a color texture", desc.Label)
	}
	var stencil *SoftTexture
	if desc.Stencil != nil {
		stencil, ok = desc.Stencil.(*SoftTexture)
		if !ok || stencil.stencil == nil {
			return nil, fmt.Errorf("soft: pass %q stencil attachment is not a stencil texture", desc.Label)
		}
		if stencil.width != color.width || stencil.height != color.height {
			return nil, fmt.Errorf("soft: pass %q attachments differ in size", desc.Label)
		}
		if desc.StencilLoad == wgpu.LoadOpClear {
			stencil.clearStencil(desc.StencilClear)
		}
	}
	if desc.ColorLoadOp == wgpu.LoadOpClear {
		color.clear(desc.ClearColor)
	}
	d.openPasses++
	return &softPass{device: d, label: desc.Label, color: color, stencil: stencil}, nil
}

func (p *softPass) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("soft: pass %q: "+format, append([]any{p.label}, args...)...)
	}
}

func (p *softPass) SetPipeline(pipeline RenderPipeline) {
	sp, ok := pipeline.(*softPipeline)
	if !ok || sp == nil {
		p.fail("foreign pipeline %T", pipeline)
		return
	}
	p.pipeline = sp
}

func (p *softPass) SetBindGroup(groupIndex uint32, group BindGroup, dynamicOffsets []uint32) {
	if groupIndex >= maxBindGroups {
		p.fail("bind group index %d out of range", groupIndex)
		return
	}
	g, ok := group.(*softBindGroup)
	if !ok || g == nil {
		p.fail("foreign bind group %T", group)
		return
	}
	want := 0
	for _, le := range g.layout.entries {
		if le.Buffer.HasDynamicOffset {
			want++
		}
	}
	if len(dynamicOffsets) != want {
		p.fail("group %d expects %d dynamic offsets, got %d", groupIndex, want, len(dynamicOffsets))
		return
	}
	align := p.device.limits.MinUniformBufferOffsetAlignment
	for _, off := range dynamicOffsets {
		if align > 0 && off%align != 0 {
			p.fail("dynamic offset %d is not %d-aligned", off, align)
			return
		}
	}
	p.bindings.groups[groupIndex] = boundGroup{group: g, offsets: append([]uint32(nil), dynamicOffsets...)}
}

func (p *softPass) SetStencilReference(reference uint32) {
	p.stencilRef = reference
}

func (p *softPass) SetVertexBuffer(slot uint32, buffer Buffer, offset, size uint64) {
	b, ok := buffer.(*softBuffer)
	if !ok || b == nil {
		p.fail("foreign vertex buffer %T", buffer)
		return
	}
	if slot != 0 {
		p.fail("only vertex slot 0 is supported, got %d", slot)
		return
	}
	p.vertex = bufferSlice{buffer: b, offset: offset, size: size}
}

func (p *softPass) SetIndexBuffer(buffer Buffer, format wgpu.IndexFormat, offset, size uint64) {
	b, ok := buffer.(*softBuffer)
	if !ok || b == nil {
		p.fail("foreign index buffer %T", buffer)
		return
	}
	p.index = bufferSlice{buffer: b, offset: offset, size: size}
	p.indexFormat = format
}

func (p *softPass) End() error {
	if p.ended {
		return fmt.Errorf("soft: pass %q ended twice", p.label)
	}
	p.ended = true
	p.device.openPasses--
	return p.err
}

func (p *softPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if p.ended {
		p.fail("draw after End")
		return
	}
	if !p.ready() {
		return
	}
	draw := SoftDraw{
		Pipeline:         p.pipeline.desc.Label,
		StencilReference: p.stencilRef,
		IndexCount:       indexCount,
		InstanceCount:    instanceCount,
		FirstIndex:       firstIndex,
		BaseVertex:       baseVertex,
		FirstInstance:    firstInstance,
	}
	for i, bg := range p.bindings.groups {
		if bg.group != nil {
			draw.BindGroups[i] = bg.group.id
			draw.DynamicOffsets[i] = bg.offsets
		}
	}
	if frag := p.pipeline.desc.Fragment; frag != nil && len(frag.Targets) > 0 && frag.Targets[0].Blend != nil {
		b := *frag.Targets[0].Blend
		draw.Blend = &b
	}
	p.device.draws = append(p.device.draws, draw)

	indices := p.index.bytes()
	indexSize := uint32(4)
	if p.indexFormat == wgpu.IndexFormatUint16 {
		indexSize = 2
	}
	if (firstIndex+indexCount)*indexSize > uint32(len(indices)) {
		p.fail("draw reads %d indices past the index buffer", indexCount)
		return
	}
	readIndex := func(i uint32) uint32 {
		if indexSize == 2 {
			return uint32(binary.LittleEndian.Uint16(indices[i*2:]))
		}
		return binary.LittleEndian.Uint32(indices[i*4:])
	}

	vertices := p.vertex.bytes()
	stride := p.pipeline.desc.Vertex.Buffers[0].ArrayStride
	for inst := uint32(0); inst < instanceCount; inst++ {
		for tri := uint32(0); tri+3 <= indexCount; tri += 3 {
			var corners [3]shadedVertex
			for k := uint32(0); k < 3; k++ {
				v := int64(readIndex(firstIndex+tri+k)) + int64(baseVertex)
				start := uint64(v) * stride
				if v < 0 || start+stride > uint64(len(vertices)) {
					p.fail("vertex %d out of range", v)
					return
				}
				clip, varyings := p.pipeline.program.Vertex(vertices[start:start+stride], p.bindings)
				corners[k] = shadedVertex{clip: clip, varyings: varyings}
			}
			p.rasterize(corners)
		}
	}
}

func (p *softPass) ready() bool {
	if p.pipeline == nil {
		p.fail("draw without pipeline")
		return false
	}
	desc := &p.pipeline.desc
	for i, layout := range desc.Layouts {
		bg := p.bindings.groups[i].group
		if bg == nil {
			p.fail("pipeline %q: group %d not bound", desc.Label, i)
			return false
		}
		if bg.layout.id != layout.Id() {
			p.fail("pipeline %q: group %d bound with an incompatible layout", desc.Label, i)
			return false
		}
	}
	if p.vertex.buffer == nil || p.index.buffer == nil {
		p.fail("pipeline %q: geometry buffers not set", desc.Label)
		return false
	}
	if desc.DepthStencil != nil && p.stencil == nil {
		p.fail("pipeline %q expects a stencil attachment", desc.Label)
		return false
	}
	if desc.Fragment != nil && len(desc.Fragment.Targets) > 0 {
		if f := desc.Fragment.Targets[0].Format; f != p.color.format {
			p.fail("pipeline %q targets format %v, attachment is %v", desc.Label, f, p.color.format)
			return false
		}
	}
	return true
}

type shadedVertex struct {
	clip     mgl32.Vec4
	varyings []float32
}

func edge(a, b, c mgl32.Vec2) float32 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// rasterize covers a triangle with area coverage from a vector rasterizer.
// Varyings are interpolated at pixel centers; color contributions are
// weighted by coverage so triangles sharing an edge sum to full coverage.
// Stencil state updates where coverage reaches half a pixel.
func (p *softPass) rasterize(tri [3]shadedVertex) {
	w, h := float32(p.color.width), float32(p.color.height)
	var ndc [3]mgl32.Vec2
	var screen [3]mgl32.Vec2
	for i, v := range tri {
		if v.clip[3] == 0 {
			return
		}
		ndc[i] = mgl32.Vec2{v.clip[0] / v.clip[3], v.clip[1] / v.clip[3]}
		screen[i] = mgl32.Vec2{(ndc[i][0]*0.5 + 0.5) * w, (0.5 - ndc[i][1]*0.5) * h}
	}

	ccw := edge(ndc[0], ndc[1], ndc[2]) > 0
	front := ccw
	if p.pipeline.desc.Primitive.FrontFace == wgpu.FrontFaceCW {
		front = !ccw
	}
	switch p.pipeline.desc.Primitive.CullMode {
	case wgpu.CullModeBack:
		if !front {
			return
		}
	case wgpu.CullModeFront:
		if front {
			return
		}
	}

	area := edge(screen[0], screen[1], screen[2])
	if area == 0 || math32.IsNaN(area) {
		return
	}

	minX := math32.Floor(math32.Min(screen[0][0], math32.Min(screen[1][0], screen[2][0])))
	minY := math32.Floor(math32.Min(screen[0][1], math32.Min(screen[1][1], screen[2][1])))
	maxX := math32.Ceil(math32.Max(screen[0][0], math32.Max(screen[1][0], screen[2][0])))
	maxY := math32.Ceil(math32.Max(screen[0][1], math32.Max(screen[1][1], screen[2][1])))
	x0, y0 := int(math32.Max(minX, 0)), int(math32.Max(minY, 0))
	x1, y1 := int(math32.Min(maxX, w)), int(math32.Min(maxY, h))
	if x1 <= x0 || y1 <= y0 {
		return
	}

	bw, bh := x1-x0, y1-y0
	z := vector.NewRasterizer(bw, bh)
	ox, oy := float32(x0), float32(y0)
	z.MoveTo(screen[0][0]-ox, screen[0][1]-oy)
	z.LineTo(screen[1][0]-ox, screen[1][1]-oy)
	z.LineTo(screen[2][0]-ox, screen[2][1]-oy)
	z.ClosePath()
	mask := image.NewAlpha(image.Rect(0, 0, bw, bh))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	var face *wgpu.StencilFaceState
	ds := p.pipeline.desc.DepthStencil
	if ds != nil {
		if front {
			face = &ds.StencilFront
		} else {
			face = &ds.StencilBack
		}
	}

	varyings := make([]float32, len(tri[0].varyings))
	for py := 0; py < bh; py++ {
		for px := 0; px < bw; px++ {
			a := mask.AlphaAt(px, py).A
			if a == 0 {
				continue
			}
			coverage := float32(a) / 0xff
			x, y := x0+px, y0+py
			center := mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}
			b0 := edge(screen[1], screen[2], center) / area
			b1 := edge(screen[2], screen[0], center) / area
			b2 := 1 - b0 - b1
			for i := range varyings {
				varyings[i] = b0*tri[0].varyings[i] + b1*tri[1].varyings[i] + b2*tri[2].varyings[i]
			}
			p.shade(x, y, coverage, face, varyings)
		}
	}
}

func (p *softPass) shade(x, y int, coverage float32, face *wgpu.StencilFaceState, varyings []float32) {
	idx := y*p.color.width + x
	writesStencil := coverage >= 0.5
	if face != nil {
		ds := p.pipeline.desc.DepthStencil
		stored := p.stencil.stencil[idx]
		if !stencilCompare(face.Compare, p.stencilRef&ds.StencilReadMask, uint32(stored)&ds.StencilReadMask) {
			if writesStencil {
				p.stencil.stencil[idx] = stencilApply(face.FailOp, stored, p.stencilRef, ds.StencilWriteMask)
			}
			return
		}
		defer func() {
			if writesStencil {
				p.stencil.stencil[idx] = stencilApply(face.PassOp, stored, p.stencilRef, ds.StencilWriteMask)
			}
		}()
	}

	frag := p.pipeline.desc.Fragment
	if frag == nil || len(frag.Targets) == 0 {
		return
	}
	src, keep := p.pipeline.program.Fragment(varyings, p.bindings)
	if !keep {
		writesStencil = false
		return
	}
	target := frag.Targets[0]
	dst := p.color.color[idx]
	out := src
	if target.Blend != nil {
		out = blend(target.Blend, src, dst)
	}
	for c := 0; c < 4; c++ {
		if target.WriteMask&(wgpu.ColorWriteMask(1)<<c) == 0 {
			out[c] = dst[c]
			continue
		}
		out[c] = dst[c] + (out[c]-dst[c])*coverage
	}
	p.color.color[idx] = out
}

func stencilCompare(fn wgpu.CompareFunction, ref, stored uint32) bool {
	switch fn {
	case wgpu.CompareFunctionNever:
		return false
	case wgpu.CompareFunctionLess:
		return ref < stored
	case wgpu.CompareFunctionLessEqual:
		return ref <= stored
	case wgpu.CompareFunctionGreater:
		return ref > stored
	case wgpu.CompareFunctionGreaterEqual:
		return ref >= stored
	case wgpu.CompareFunctionEqual:
		return ref == stored
	case wgpu.CompareFunctionNotEqual:
		return ref != stored
	default:
		return true
	}
}

func stencilApply(op wgpu.StencilOperation, stored uint8, ref, writeMask uint32) uint8 {
	var v uint8
	switch op {
	case wgpu.StencilOperationZero:
		v = 0
	case wgpu.StencilOperationReplace:
		v = uint8(ref)
	case wgpu.StencilOperationInvert:
		v = ^stored
	case wgpu.StencilOperationIncrementClamp:
		v = stored
		if v < 0xff {
			v++
		}
	case wgpu.StencilOperationDecrementClamp:
		v = stored
		if v > 0 {
			v--
		}
	case wgpu.StencilOperationIncrementWrap:
		v = stored + 1
	case wgpu.StencilOperationDecrementWrap:
		v = stored - 1
	default:
		return stored
	}
	mask := uint8(writeMask)
	return stored&^mask | v&mask
}

func blend(state *wgpu.BlendState, src, dst mgl32.Vec4) mgl32.Vec4 {
	var out mgl32.Vec4
	for c := 0; c < 3; c++ {
		out[c] = blendComponent(state.Color, src[c], dst[c], src, dst)
	}
	out[3] = blendComponent(state.Alpha, src[3], dst[3], src, dst)
	return out
}

func blendComponent(bc wgpu.BlendComponent, s, d float32, src, dst mgl32.Vec4) float32 {
	sf := blendFactor(bc.SrcFactor, s, d, src, dst)
	df := blendFactor(bc.DstFactor, s, d, src, dst)
	switch bc.Operation {
	case wgpu.BlendOperationSubtract:
		return s*sf - d*df
	case wgpu.BlendOperationReverseSubtract:
		return d*df - s*sf
	case wgpu.BlendOperationMin:
		return math32.Min(s, d)
	case wgpu.BlendOperationMax:
		return math32.Max(s, d)
	default:
		return s*sf + d*df
	}
}

func blendFactor(f wgpu.BlendFactor, s, d float32, src, dst mgl32.Vec4) float32 {
	switch f {
	case wgpu.BlendFactorZero:
		return 0
	case wgpu.BlendFactorOne:
		return 1
	case wgpu.BlendFactorSrc:
		return s
	case wgpu.BlendFactorOneMinusSrc:
		return 1 - s
	case wgpu.BlendFactorSrcAlpha:
		return src[3]
	case wgpu.BlendFactorOneMinusSrcAlpha:
		return 1 - src[3]
	case wgpu.BlendFactorDst:
		return d
	case wgpu.BlendFactorOneMinusDst:
		return 1 - d
	case wgpu.BlendFactorDstAlpha:
		return dst[3]
	case wgpu.BlendFactorOneMinusDstAlpha:
		return 1 - dst[3]
	default:
		return 1
	}
}
