package gpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
)

// ErrInvalidTextureSize is returned for a texture with a zero dimension.
var ErrInvalidTextureSize = errors.New("gpu: invalid texture size")

// Texture is a 2D texture and its full view.
type Texture struct {
	adapter gpucore.GPUAdapter
	id      gpucore.TextureID
	view    gpucore.TextureViewID
	label   string
	width   uint32
	height  uint32
	format  gpucore.TextureFormat
	usage   gpucore.TextureUsage
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Label  string
	Width  uint32
	Height uint32
	Format gpucore.TextureFormat
	Usage  gpucore.TextureUsage
}

// DisplayTextureDesc describes the image the shading stage writes: RGBA8,
// writable as a storage texture, sampleable by a compositor and copyable
// for readback.
func DisplayTextureDesc(label string, width, height uint32) TextureDesc {
	return TextureDesc{
		Label:  label,
		Width:  width,
		Height: height,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage: gpucore.TextureUsageStorageBinding |
			gpucore.TextureUsageTextureBinding |
			gpucore.TextureUsageCopySrc |
			gpucore.TextureUsageCopyDst,
	}
}

// NewTexture creates a texture and a view of it.
func NewTexture(ctx *Context, desc TextureDesc) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: %s: %dx%d", ErrInvalidTextureSize, desc.Label, desc.Width, desc.Height)
	}
	a := ctx.adapter
	id, err := a.CreateTexture(&gpucore.TextureDesc{
		Label:  desc.Label,
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
		Usage:  desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create texture %s: %w", desc.Label, err)
	}
	view, err := a.CreateTextureView(id, desc.Label+"_view")
	if err != nil {
		a.DestroyTexture(id)
		return nil, fmt.Errorf("gpu: create view of %s: %w", desc.Label, err)
	}

	oscuras.Logger().Debug("gpu: texture created",
		"label", desc.Label, "width", desc.Width, "height", desc.Height)

	return &Texture{
		adapter: a,
		id:      id,
		view:    view,
		label:   desc.Label,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
		usage:   desc.Usage,
	}, nil
}

// ID returns the texture handle.
func (t *Texture) ID() gpucore.TextureID { return t.id }

// View returns the view handle a compositor binds.
func (t *Texture) View() gpucore.TextureViewID { return t.view }

// Size returns the texture dimensions.
func (t *Texture) Size() (width, height uint32) { return t.width, t.height }

// Format returns the texel format.
func (t *Texture) Format() gpucore.TextureFormat { return t.format }

// DescribeBinding returns the layout entry for the texture at slot, as a
// write-only storage texture when storage is set and as a sampled texture
// otherwise. The usage the texture was created with must allow it.
func (t *Texture) DescribeBinding(slot uint32, visibility gpucore.ShaderStage, storage bool) (gpucore.BindGroupLayoutEntry, error) {
	entry := gpucore.BindGroupLayoutEntry{Binding: slot, Visibility: visibility}
	switch {
	case storage && t.usage&gpucore.TextureUsageStorageBinding != 0:
		entry.Type = gpucore.BindingTypeStorageTexture
		entry.StorageFormat = t.format
	case !storage && t.usage&gpucore.TextureUsageTextureBinding != 0:
		entry.Type = gpucore.BindingTypeSampledTexture
	default:
		return entry, fmt.Errorf("gpu: texture %s: %w", t.label, oscuras.ErrUnsupportedBindingUsage)
	}
	return entry, nil
}

// BindingEntry binds the texture view at slot.
func (t *Texture) BindingEntry(slot uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: slot, TextureView: t.view}
}

// Read returns the texels as tightly packed rows.
func (t *Texture) Read(ctx context.Context) ([]byte, error) {
	return t.adapter.ReadTexture(ctx, t.id)
}

// Destroy releases the view and the texture.
func (t *Texture) Destroy() {
	if t.view != gpucore.InvalidID {
		t.adapter.DestroyTextureView(t.view)
		t.view = gpucore.InvalidID
	}
	if t.id != gpucore.InvalidID {
		t.adapter.DestroyTexture(t.id)
		t.id = gpucore.InvalidID
	}
}

// Sampler is a texture sampler.
type Sampler struct {
	adapter gpucore.GPUAdapter
	id      gpucore.SamplerID
	desc    gpucore.SamplerDesc
}

// DisplaySamplerDesc is the sampler the compositor expects for the display
// texture: clamped to edge, linear magnification, nearest minification and
// mipmap selection.
func DisplaySamplerDesc(label string) gpucore.SamplerDesc {
	return gpucore.SamplerDesc{
		Label:        label,
		AddressMode:  gpucore.AddressModeClampToEdge,
		MagFilter:    gpucore.FilterModeLinear,
		MinFilter:    gpucore.FilterModeNearest,
		MipmapFilter: gpucore.FilterModeNearest,
	}
}

// NewSampler creates a sampler.
func NewSampler(ctx *Context, desc gpucore.SamplerDesc) (*Sampler, error) {
	id, err := ctx.adapter.CreateSampler(&desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler %s: %w", desc.Label, err)
	}
	return &Sampler{adapter: ctx.adapter, id: id, desc: desc}, nil
}

// ID returns the sampler handle.
func (s *Sampler) ID() gpucore.SamplerID { return s.id }

// Desc returns the sampler configuration.
func (s *Sampler) Desc() gpucore.SamplerDesc { return s.desc }

// DescribeBinding returns the layout entry for the sampler at slot.
func (s *Sampler) DescribeBinding(slot uint32, visibility gpucore.ShaderStage) gpucore.BindGroupLayoutEntry {
	return gpucore.BindGroupLayoutEntry{Binding: slot, Visibility: visibility, Type: gpucore.BindingTypeSampler}
}

// BindingEntry binds the sampler at slot.
func (s *Sampler) BindingEntry(slot uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: slot, Sampler: s.id}
}

// Destroy releases the sampler.
func (s *Sampler) Destroy() {
	if s.id == gpucore.InvalidID {
		return
	}
	s.adapter.DestroySampler(s.id)
	s.id = gpucore.InvalidID
}
