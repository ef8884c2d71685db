package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/gekko2d/render2d/shaders"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Surface owns the swapchain of a window and tone maps the HDR target
// onto it.
type Surface struct {
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *WgpuDevice
	config   wgpu.SurfaceConfiguration
	blit     *wgpu.RenderPipeline
	sampler  *wgpu.Sampler
	settings *wgpu.Buffer
	group    *wgpu.BindGroup
	groupFor ResourceId
}

// OpenWindow creates a GLFW window without a client API.
func OpenWindow(width, height int, title string) (*glfw.Window, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, err
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	return glfw.CreateWindow(width, height, title, nil, nil)
}

// NewWindowSurface picks an adapter compatible with the window, creates the
// device and configures the swapchain.
func NewWindowSurface(win *glfw.Window, width, height int) (*Surface, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	raw, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "gekko2d device"})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}

	caps := surface.GetCapabilities(adapter)
	s := &Surface{
		surface: surface,
		adapter: adapter,
		device:  NewWgpuDevice(raw),
		config: wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      caps.Formats[0],
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: wgpu.PresentModeFifo,
			AlphaMode:   caps.AlphaModes[0],
		},
	}
	surface.Configure(adapter, raw, &s.config)

	if err := s.createBlit(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Surface) Device() *WgpuDevice { return s.device }

func (s *Surface) createBlit() error {
	raw := s.device.raw
	module, err := raw.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          shaders.TonemapLabel,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.TonemapWGSL},
	})
	if err != nil {
		return fmt.Errorf("%w: tonemap: %w", ErrPipelineCompile, err)
	}
	defer module.Release()

	s.blit, err = raw.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: shaders.TonemapLabel,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vertex",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fragment",
			Targets: []wgpu.ColorTargetState{{
				Format:    s.config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: tonemap: %w", ErrPipelineCompile, err)
	}

	s.sampler, err = raw.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	s.settings, err = raw.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "tonemap settings",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("tonemap settings: %w: %w", ErrBufferAllocation, err)
	}
	return nil
}

// Resize reconfigures the swapchain.
func (s *Surface) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.config.Width = uint32(width)
	s.config.Height = uint32(height)
	s.surface.Configure(s.adapter, s.device.raw, &s.config)
}

// Present tone maps hdr onto the next swapchain image, submits the frame
// and presents it.
func (s *Surface) Present(hdr Texture, exposure float32) error {
	src, ok := hdr.(*WgpuTexture)
	if !ok {
		return fmt.Errorf("wgpu: cannot present %T", hdr)
	}
	if s.group == nil || s.groupFor != src.id {
		if err := s.bindSource(src); err != nil {
			return err
		}
	}
	settings := make([]byte, 16)
	binary.LittleEndian.PutUint32(settings, math.Float32bits(exposure))
	if err := s.device.queue.WriteBuffer(s.settings, 0, settings); err != nil {
		return err
	}

	next, err := s.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer next.Release()
	view, err := next.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	enc, err := s.device.Encoder()
	if err != nil {
		return err
	}
	pass := enc.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(s.blit)
	pass.SetBindGroup(0, s.group, nil)
	pass.Draw(3, 1, 0, 0)
	err = pass.End()
	pass.Release()
	if err != nil {
		return err
	}
	if err := s.device.Submit(); err != nil {
		return err
	}
	s.surface.Present()
	return nil
}

func (s *Surface) bindSource(src *WgpuTexture) error {
	if s.group != nil {
		s.group.Release()
		s.group = nil
	}
	layout := s.blit.GetBindGroupLayout(0)
	defer layout.Release()
	group, err := s.device.raw.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "tonemap source",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src.view},
			{Binding: 1, Sampler: s.sampler},
			{Binding: 2, Buffer: s.settings, Size: 16},
		},
	})
	if err != nil {
		return fmt.Errorf("tonemap source: %w: %w", ErrBindGroup, err)
	}
	s.group = group
	s.groupFor = src.id
	return nil
}

func (s *Surface) Release() {
	if s.group != nil {
		s.group.Release()
	}
	s.settings.Release()
	s.sampler.Release()
	s.blit.Release()
	s.surface.Release()
	s.adapter.Release()
}
