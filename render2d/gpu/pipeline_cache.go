package gpu

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"
)

// CachedPipelineId is the content address of a pipeline descriptor.
type CachedPipelineId = uuid.UUID

var pipelineNamespace = uuid.MustParse("6f1d3c2a-8b7e-4d5f-9a10-2c3b4d5e6f70")

type cachedPipeline struct {
	desc     RenderPipelineDescriptor
	pipeline RenderPipeline
	err      error
}

// PipelineCache compiles each distinct descriptor once. Queueing the same
// descriptor again returns the same id.
type PipelineCache struct {
	device  Device
	logger  Logger
	entries map[CachedPipelineId]*cachedPipeline
	pending []CachedPipelineId
}

func NewPipelineCache(device Device, logger Logger) *PipelineCache {
	if logger == nil {
		logger = NopLogger()
	}
	return &PipelineCache{
		device:  device,
		logger:  logger,
		entries: make(map[CachedPipelineId]*cachedPipeline),
	}
}

// DescriptorKey returns the content address of a descriptor.
func DescriptorKey(desc *RenderPipelineDescriptor) CachedPipelineId {
	return uuid.NewSHA1(pipelineNamespace, canonicalDescriptor(desc))
}

// Queue registers a descriptor for compilation on the next Process call.
func (c *PipelineCache) Queue(desc *RenderPipelineDescriptor) CachedPipelineId {
	id := DescriptorKey(desc)
	if _, ok := c.entries[id]; ok {
		return id
	}
	c.entries[id] = &cachedPipeline{desc: *desc}
	c.pending = append(c.pending, id)
	return id
}

// Process compiles every queued descriptor.
func (c *PipelineCache) Process() error {
	var errs []error
	for _, id := range c.pending {
		entry := c.entries[id]
		pipeline, err := c.device.CreateRenderPipeline(&entry.desc)
		if err != nil {
			entry.err = fmt.Errorf("%s: %w: %w", entry.desc.Label, ErrPipelineCompile, err)
			c.logger.Errorf("pipeline %s failed to compile: %v", entry.desc.Label, err)
			errs = append(errs, entry.err)
			continue
		}
		entry.pipeline = pipeline
		c.logger.Debugf("compiled pipeline %s (%s)", entry.desc.Label, id)
	}
	c.pending = c.pending[:0]
	return errors.Join(errs...)
}

// Compile queues a descriptor and compiles it right away.
func (c *PipelineCache) Compile(desc *RenderPipelineDescriptor) (CachedPipelineId, error) {
	id := c.Queue(desc)
	if err := c.Process(); err != nil {
		return id, err
	}
	return id, c.entries[id].err
}

// Get returns the compiled pipeline for id. Pipelines still queued return
// (nil, nil).
func (c *PipelineCache) Get(id CachedPipelineId) (RenderPipeline, error) {
	entry, ok := c.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownPipeline)
	}
	return entry.pipeline, entry.err
}

// Forget drops a pipeline so a failed descriptor can be queued again.
func (c *PipelineCache) Forget(id CachedPipelineId) {
	if entry, ok := c.entries[id]; ok {
		if entry.pipeline != nil {
			entry.pipeline.Release()
		}
		delete(c.entries, id)
	}
}

func (c *PipelineCache) Len() int { return len(c.entries) }

func canonicalDescriptor(desc *RenderPipelineDescriptor) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "label=%s\n", desc.Label)
	for i, l := range desc.Layouts {
		fmt.Fprintf(&b, "layout[%d]=%s\n", i, l.Id())
	}
	fmt.Fprintf(&b, "shader=%s\n%s\n", desc.Shader.Label, desc.Shader.WGSL)
	fmt.Fprintf(&b, "vertex=%s\n", desc.Vertex.EntryPoint)
	for i, vb := range desc.Vertex.Buffers {
		fmt.Fprintf(&b, "vb[%d]=%d,%d,%+v\n", i, vb.ArrayStride, vb.StepMode, vb.Attributes)
	}
	if f := desc.Fragment; f != nil {
		fmt.Fprintf(&b, "fragment=%s\n", f.EntryPoint)
		for i, t := range f.Targets {
			fmt.Fprintf(&b, "target[%d]=%d,%d,%s\n", i, t.Format, t.WriteMask, blendKey(t.Blend))
		}
	}
	fmt.Fprintf(&b, "primitive=%+v\n", desc.Primitive)
	if ds := desc.DepthStencil; ds != nil {
		fmt.Fprintf(&b, "depthstencil=%+v\n", *ds)
	}
	fmt.Fprintf(&b, "multisample=%+v\n", desc.Multisample)
	return b.Bytes()
}

func blendKey(blend *wgpu.BlendState) string {
	if blend == nil {
		return "none"
	}
	return fmt.Sprintf("%+v", *blend)
}
