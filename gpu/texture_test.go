package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/gputest"
)

func TestNewDisplayTexture(t *testing.T) {
	ctx, a := newTestContext(t)

	tex, err := NewTexture(ctx, DisplayTextureDesc("display", 40, 30))
	if err != nil {
		t.Fatalf("NewTexture() error = %v", err)
	}
	w, h := tex.Size()
	if w != 40 || h != 30 {
		t.Errorf("Size() = %dx%d, want 40x30", w, h)
	}
	if tex.Format() != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("Format() = %v, want RGBA8Unorm", tex.Format())
	}
	if got := a.Views[tex.View()]; got != tex.ID() {
		t.Errorf("view points at texture %d, want %d", got, tex.ID())
	}

	storage, err := tex.DescribeBinding(3, gpucore.ShaderStageCompute, true)
	if err != nil {
		t.Fatalf("DescribeBinding(storage) error = %v", err)
	}
	if storage.Type != gpucore.BindingTypeStorageTexture || storage.StorageFormat != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("storage entry = %+v", storage)
	}
	sampled, err := tex.DescribeBinding(0, gpucore.ShaderStageFragment, false)
	if err != nil {
		t.Fatalf("DescribeBinding(sampled) error = %v", err)
	}
	if sampled.Type != gpucore.BindingTypeSampledTexture {
		t.Errorf("sampled entry type = %v", sampled.Type)
	}
	if e := tex.BindingEntry(3); e.TextureView != tex.View() || e.Binding != 3 {
		t.Errorf("BindingEntry() = %+v", e)
	}

	tex.Destroy()
	if len(a.Textures) != 0 || len(a.Views) != 0 {
		t.Errorf("Destroy() left %d textures and %d views", len(a.Textures), len(a.Views))
	}
}

func TestTextureBindingRequiresUsage(t *testing.T) {
	ctx, _ := newTestContext(t)
	tex, err := NewTexture(ctx, TextureDesc{
		Label: "copy-only", Width: 2, Height: 2,
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tex.DescribeBinding(0, gpucore.ShaderStageCompute, true); !errors.Is(err, oscuras.ErrUnsupportedBindingUsage) {
		t.Errorf("DescribeBinding() error = %v, want ErrUnsupportedBindingUsage", err)
	}
}

func TestNewTextureInvalidSize(t *testing.T) {
	ctx, _ := newTestContext(t)
	if _, err := NewTexture(ctx, DisplayTextureDesc("empty", 0, 10)); !errors.Is(err, ErrInvalidTextureSize) {
		t.Errorf("NewTexture(0x10) error = %v, want ErrInvalidTextureSize", err)
	}
}

func TestDisplaySampler(t *testing.T) {
	ctx, a := newTestContext(t)
	s, err := NewSampler(ctx, DisplaySamplerDesc("display_sampler"))
	if err != nil {
		t.Fatalf("NewSampler() error = %v", err)
	}
	got := a.Samplers[s.ID()]
	if got.AddressMode != gpucore.AddressModeClampToEdge {
		t.Errorf("AddressMode = %v, want clamp-to-edge", got.AddressMode)
	}
	if got.MagFilter != gpucore.FilterModeLinear || got.MinFilter != gpucore.FilterModeNearest || got.MipmapFilter != gpucore.FilterModeNearest {
		t.Errorf("filters = mag %v min %v mip %v, want linear/nearest/nearest", got.MagFilter, got.MinFilter, got.MipmapFilter)
	}
	if e := s.DescribeBinding(1, gpucore.ShaderStageFragment); e.Type != gpucore.BindingTypeSampler {
		t.Errorf("DescribeBinding().Type = %v, want sampler", e.Type)
	}
	if e := s.BindingEntry(1); e.Sampler != s.ID() {
		t.Errorf("BindingEntry().Sampler = %d, want %d", e.Sampler, s.ID())
	}
	s.Destroy()
	if len(a.Samplers) != 0 {
		t.Error("Destroy() did not release the sampler")
	}
}

func TestContext(t *testing.T) {
	if _, err := NewContext(nil, nil); !errors.Is(err, ErrNilAdapter) {
		t.Errorf("NewContext(nil) error = %v, want ErrNilAdapter", err)
	}

	released := 0
	ctx, err := NewContext(gputest.New(), func() { released++ })
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Info().Name != "gputest" {
		t.Errorf("Info().Name = %q, want gputest", ctx.Info().Name)
	}
	ctx.Close()
	ctx.Close()
	if released != 1 {
		t.Errorf("release called %d times, want 1", released)
	}
	if !ctx.Closed() {
		t.Error("Closed() = false after Close")
	}
}
