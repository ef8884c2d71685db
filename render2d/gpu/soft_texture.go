package gpu

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/tiff"
)

// SoftTexture is a CPU texture. Color formats keep linear float RGBA per
// pixel whatever the declared format; stencil formats keep one byte.
type SoftTexture struct {
	softResource
	label   string
	width   int
	height  int
	format  wgpu.TextureFormat
	color   []mgl32.Vec4
	stencil []uint8
}

func (t *SoftTexture) Width() uint32              { return uint32(t.width) }
func (t *SoftTexture) Height() uint32             { return uint32(t.height) }
func (t *SoftTexture) Format() wgpu.TextureFormat { return t.format }

func isStencilFormat(f wgpu.TextureFormat) bool {
	return f == wgpu.TextureFormatStencil8 || f == wgpu.TextureFormatDepth24PlusStencil8
}

func (d *SoftDevice) CreateTexture(desc *TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%s: %w: empty extent %dx%d", desc.Label, ErrTexture, desc.Width, desc.Height)
	}
	t := &SoftTexture{
		softResource: newSoftResource(),
		label:        desc.Label,
		width:        int(desc.Width),
		height:       int(desc.Height),
		format:       desc.Format,
	}
	n := t.width * t.height
	if isStencilFormat(desc.Format) {
		t.stencil = make([]uint8, n)
	} else {
		t.color = make([]mgl32.Vec4, n)
	}
	return t, nil
}

// At returns the color at (x, y). Stencil textures return zero.
func (t *SoftTexture) At(x, y int) mgl32.Vec4 {
	if t.color == nil || x < 0 || y < 0 || x >= t.width || y >= t.height {
		return mgl32.Vec4{}
	}
	return t.color[y*t.width+x]
}

// StencilAt returns the stencil value at (x, y).
func (t *SoftTexture) StencilAt(x, y int) uint8 {
	if t.stencil == nil || x < 0 || y < 0 || x >= t.width || y >= t.height {
		return 0
	}
	return t.stencil[y*t.width+x]
}

func (t *SoftTexture) clear(c wgpu.Color) {
	v := mgl32.Vec4{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
	for i := range t.color {
		t.color[i] = v
	}
}

func (t *SoftTexture) clearStencil(v uint32) {
	for i := range t.stencil {
		t.stencil[i] = uint8(v)
	}
}

// Image tone maps the texture with exposure and Reinhard, x/(1+x), and
// returns an opaque 16-bit image.
func (t *SoftTexture) Image(exposure float32) *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, t.width, t.height))
	if t.color == nil {
		return img
	}
	channel := func(v float32) uint16 {
		v *= exposure
		if v <= 0 || math32.IsNaN(v) {
			return 0
		}
		return uint16(math32.Round(v / (1 + v) * 0xffff))
	}
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			c := t.color[y*t.width+x]
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: channel(c[0]),
				G: channel(c[1]),
				B: channel(c[2]),
				A: 0xffff,
			})
		}
	}
	return img
}

// EncodeTIFF writes the tone mapped texture as a deflate-compressed TIFF.
func (t *SoftTexture) EncodeTIFF(w io.Writer, exposure float32) error {
	return tiff.Encode(w, t.Image(exposure), &tiff.Options{Compression: tiff.Deflate})
}
