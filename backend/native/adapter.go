//go:build !nogpu

package native

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
)

// DefaultTimeout bounds a fence wait when the caller's context carries no
// deadline.
const DefaultTimeout = 5 * time.Second

type halBuffer struct {
	raw  hal.Buffer
	size uint64
}

type halTexture struct {
	raw  hal.Texture
	desc gpucore.TextureDesc
}

// HALAdapter implements gpucore.GPUAdapter on top of a gogpu/wgpu HAL
// device and queue.
//
// HALAdapter is safe for concurrent use. Once the device reports itself
// lost, every operation that touches the queue fails with
// oscuras.ErrDeviceLost.
type HALAdapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue
	info   gpucore.AdapterInfo

	maxBufferSz  uint64
	maxWorkgroup [3]uint32

	nextID atomic.Uint64
	lost   atomic.Bool

	buffers   map[gpucore.BufferID]halBuffer
	textures  map[gpucore.TextureID]halTexture
	views     map[gpucore.TextureViewID]hal.TextureView
	samplers  map[gpucore.SamplerID]hal.Sampler
	modules   map[gpucore.ShaderModuleID]hal.ShaderModule
	layouts   map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipeLays  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	pipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	groups    map[gpucore.BindGroupID]hal.BindGroup
	commands  map[gpucore.CommandBufferID]hal.CommandBuffer

	// wait is device.Wait; tests replace it to simulate slow fences.
	wait func(fence hal.Fence, value uint64, timeout time.Duration) (bool, error)

	// Submissions whose fence timed out. Their command buffers stay alive
	// until the fence signals.
	submitMu sync.Mutex
	pending  []inflight
}

type inflight struct {
	fence   hal.Fence
	cmds    []hal.CommandBuffer
	staging []hal.Buffer
}

var _ gpucore.GPUAdapter = (*HALAdapter)(nil)

// NewHALAdapter wraps device and queue. If limits is nil, the default
// limits are assumed.
func NewHALAdapter(device hal.Device, queue hal.Queue, limits *gputypes.Limits, info gpucore.AdapterInfo) *HALAdapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}
	a := &HALAdapter{
		device:       device,
		queue:        queue,
		info:         info,
		maxBufferSz:  lim.MaxBufferSize,
		maxWorkgroup: [3]uint32{lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ},
		buffers:      make(map[gpucore.BufferID]halBuffer),
		textures:     make(map[gpucore.TextureID]halTexture),
		views:        make(map[gpucore.TextureViewID]hal.TextureView),
		samplers:     make(map[gpucore.SamplerID]hal.Sampler),
		modules:      make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		layouts:      make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipeLays:     make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		pipelines:    make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		groups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		commands:     make(map[gpucore.CommandBufferID]hal.CommandBuffer),
	}
	a.wait = device.Wait
	a.nextID.Store(1)
	return a
}

func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// check converts err to its runtime class and remembers device loss.
func (a *HALAdapter) check(err error) error {
	err = mapError(err)
	if err != nil && isLost(err) {
		if !a.lost.Swap(true) {
			oscuras.Logger().Warn("native: device lost", "adapter", a.info.Name, "error", err)
		}
	}
	return err
}

func (a *HALAdapter) alive() error {
	if a.lost.Load() {
		return oscuras.ErrDeviceLost
	}
	return nil
}

// Lost reports whether the device has been lost.
func (a *HALAdapter) Lost() bool { return a.lost.Load() }

// Info describes the device.
func (a *HALAdapter) Info() gpucore.AdapterInfo { return a.info }

// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
func (a *HALAdapter) MaxWorkgroupSize() [3]uint32 { return a.maxWorkgroup }

// MaxBufferSize returns the maximum buffer size in bytes.
func (a *HALAdapter) MaxBufferSize() uint64 { return a.maxBufferSz }

// === Shaders ===

// CreateShaderModule creates a shader module from SPIR-V words.
func (a *HALAdapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if len(desc.SPIRV) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %s", errEmptyModule, desc.Label)
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.SPIRV},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.modules[id] = module
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.modules[id]
	delete(a.modules, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffers ===

// CreateBuffer allocates a buffer and uploads its initial contents.
func (a *HALAdapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %s: size must be positive", desc.Label)
	}
	if desc.Size > a.maxBufferSz && a.maxBufferSz != 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer %s: %d bytes exceeds limit %d: %w",
			desc.Label, desc.Size, a.maxBufferSz, oscuras.ErrOutOfMemory)
	}
	if err := a.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	usage := desc.Usage
	if desc.Contents != nil {
		usage |= gpucore.BufferUsageCopyDst
	}
	buf, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %s: %w", desc.Label, a.check(err))
	}
	if len(desc.Contents) > 0 {
		a.queue.WriteBuffer(buf, 0, desc.Contents)
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = halBuffer{raw: buf, size: desc.Size}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buf, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBuffer(buf.raw)
	}
}

// WriteBuffer writes data to a buffer at offset.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	if err := a.alive(); err != nil {
		return err
	}
	a.mu.RLock()
	buf, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("native: write of %d bytes at %d overflows %d byte buffer", len(data), offset, buf.size)
	}
	if len(data) > 0 {
		a.queue.WriteBuffer(buf.raw, offset, data)
	}
	return nil
}

// ReadBuffer copies a range of a buffer into a staging buffer and reads it
// back once the copy has completed.
func (a *HALAdapter) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if err := a.alive(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	buf, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+size > buf.size {
		return nil, fmt.Errorf("native: read of %d bytes at %d overflows %d byte buffer", size, offset, buf.size)
	}

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", a.check(err))
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback_encoder"})
	if err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: create command encoder: %w", a.check(err))
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: begin encoding: %w", a.check(err))
	}
	encoder.CopyBufferToBuffer(buf.raw, staging, []hal.BufferCopy{
		{SrcOffset: offset, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: end encoding: %w", a.check(err))
	}

	if err := a.submitAndWait(ctx, []hal.CommandBuffer{cmdBuf}, staging); err != nil {
		return nil, err
	}
	defer a.device.DestroyBuffer(staging)

	out := make([]byte, size)
	if err := a.queue.ReadBuffer(staging, 0, out); err != nil {
		return nil, fmt.Errorf("native: readback: %w", a.check(err))
	}
	return out, nil
}

// === Textures and samplers ===

// CreateTexture creates a 2D texture.
func (a *HALAdapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %s: dimensions must be positive", desc.Label)
	}
	if err := a.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	tex, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(desc.Format),
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = halTexture{raw: tex, desc: *desc}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (a *HALAdapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	tex, ok := a.textures[id]
	delete(a.textures, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyTexture(tex.raw)
	}
}

// CreateTextureView creates a full 2D view of a texture.
func (a *HALAdapter) CreateTextureView(texture gpucore.TextureID, label string) (gpucore.TextureViewID, error) {
	a.mu.RLock()
	tex, ok := a.textures[texture]
	a.mu.RUnlock()
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: texture %d", ErrUnknownResource, texture)
	}
	view, err := a.device.CreateTextureView(tex.raw, &hal.TextureViewDescriptor{
		Label:         label,
		Format:        convertTextureFormat(tex.desc.Format),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %s: %w", label, a.check(err))
	}
	id := gpucore.TextureViewID(a.newID())
	a.mu.Lock()
	a.views[id] = view
	a.mu.Unlock()
	return id, nil
}

// DestroyTextureView releases a texture view.
func (a *HALAdapter) DestroyTextureView(id gpucore.TextureViewID) {
	a.mu.Lock()
	view, ok := a.views[id]
	delete(a.views, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyTextureView(view)
	}
}

// ReadTexture copies a texture into a staging buffer with row pitches
// aligned to 256 bytes and returns the texels as tightly packed rows.
//
// The texture is expected to have been last written as a storage texture;
// it is transitioned back to that usage after the copy.
func (a *HALAdapter) ReadTexture(ctx context.Context, id gpucore.TextureID) ([]byte, error) {
	if err := a.alive(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	tex, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	w, h := tex.desc.Width, tex.desc.Height
	bpp := tex.desc.Format.BytesPerPixel()
	pitch := alignedBytesPerRow(w, bpp)
	size := uint64(pitch) * uint64(h)

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "texture_readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create staging buffer: %w", a.check(err))
	}

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "texture_readback_encoder"})
	if err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: create command encoder: %w", a.check(err))
	}
	if err := encoder.BeginEncoding("texture_readback"); err != nil {
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: begin encoding: %w", a.check(err))
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageStorageBinding,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(tex.raw, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: tex.raw, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageStorageBinding,
		},
	}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		a.device.DestroyBuffer(staging)
		return nil, fmt.Errorf("native: end encoding: %w", a.check(err))
	}

	if err := a.submitAndWait(ctx, []hal.CommandBuffer{cmdBuf}, staging); err != nil {
		return nil, err
	}
	defer a.device.DestroyBuffer(staging)

	readback := make([]byte, size)
	if err := a.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("native: readback: %w", a.check(err))
	}
	return unpadRows(readback, w, h, bpp, pitch), nil
}

// CreateSampler creates a sampler.
func (a *HALAdapter) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	mode := convertAddressMode(desc.AddressMode)
	sampler, err := a.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: mode,
		AddressModeV: mode,
		AddressModeW: mode,
		MagFilter:    convertFilterMode(desc.MagFilter),
		MinFilter:    convertFilterMode(desc.MinFilter),
		MipmapFilter: convertFilterMode(desc.MipmapFilter),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.SamplerID(a.newID())
	a.mu.Lock()
	a.samplers[id] = sampler
	a.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (a *HALAdapter) DestroySampler(id gpucore.SamplerID) {
	a.mu.Lock()
	sampler, ok := a.samplers[id]
	delete(a.samplers, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroySampler(sampler)
	}
}

// === Pipelines ===

// CreateBindGroupLayout creates a bind group layout.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(e)
	}
	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.layouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.layouts[id]
	delete(a.layouts, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout combines bind group layouts into a pipeline layout.
func (a *HALAdapter) CreatePipelineLayout(label string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	a.mu.RLock()
	for i, lid := range layouts {
		l, ok := a.layouts[lid]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, lid)
		}
		halLayouts[i] = l
	}
	a.mu.RUnlock()

	layout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout %s: %w", label, a.check(err))
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipeLays[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	layout, ok := a.pipeLays[id]
	delete(a.pipeLays, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyPipelineLayout(layout)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	layout, layoutOK := a.pipeLays[desc.Layout]
	module, moduleOK := a.modules[desc.ShaderModule]
	a.mu.RUnlock()
	if !layoutOK {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	if !moduleOK {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.pipelines[id] = pipeline
	a.mu.Unlock()
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	pipeline, ok := a.pipelines[id]
	delete(a.pipelines, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyComputePipeline(pipeline)
	}
}

// CreateBindGroup binds resources to a layout.
func (a *HALAdapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	layout, ok := a.layouts[desc.Layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	entries := make([]gputypes.BindGroupEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entry, err := a.convertBindGroupEntry(e)
		if err != nil {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("native: bind group %s: %w", desc.Label, err)
		}
		entries[i] = entry
	}
	a.mu.RUnlock()

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group %s: %w", desc.Label, a.check(err))
	}
	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.groups[id] = group
	a.mu.Unlock()
	return id, nil
}

// convertBindGroupEntry must be called with mu held for reading.
func (a *HALAdapter) convertBindGroupEntry(e gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	out := gputypes.BindGroupEntry{Binding: e.Binding}
	switch {
	case e.Buffer != gpucore.InvalidID:
		buf, ok := a.buffers[e.Buffer]
		if !ok {
			return out, fmt.Errorf("%w: buffer %d at slot %d", ErrUnknownResource, e.Buffer, e.Binding)
		}
		size := e.Size
		if size == 0 {
			size = buf.size - e.Offset
		}
		out.Resource = gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Offset: e.Offset, Size: size}
	case e.TextureView != gpucore.InvalidID:
		view, ok := a.views[e.TextureView]
		if !ok {
			return out, fmt.Errorf("%w: texture view %d at slot %d", ErrUnknownResource, e.TextureView, e.Binding)
		}
		out.Resource = gputypes.TextureViewBinding{TextureView: view.NativeHandle()}
	case e.Sampler != gpucore.InvalidID:
		sampler, ok := a.samplers[e.Sampler]
		if !ok {
			return out, fmt.Errorf("%w: sampler %d at slot %d", ErrUnknownResource, e.Sampler, e.Binding)
		}
		out.Resource = gputypes.SamplerBinding{Sampler: sampler.NativeHandle()}
	default:
		return out, fmt.Errorf("native: nothing bound at slot %d", e.Binding)
	}
	return out, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	group, ok := a.groups[id]
	delete(a.groups, id)
	a.mu.Unlock()
	if ok {
		a.device.DestroyBindGroup(group)
	}
}

// === Command recording and execution ===

// CreateCommandEncoder starts recording a command buffer.
func (a *HALAdapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	if err := a.alive(); err != nil {
		return nil, err
	}
	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder %s: %w", label, a.check(err))
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding %s: %w", label, a.check(err))
	}
	return &commandEncoder{adapter: a, raw: encoder, label: label}, nil
}

// Submit executes command buffers in order and waits on a fence for them
// to complete. The wait is bounded by ctx's deadline, or DefaultTimeout
// when ctx has none.
func (a *HALAdapter) Submit(ctx context.Context, buffers ...gpucore.CommandBufferID) error {
	a.mu.Lock()
	cmds := make([]hal.CommandBuffer, 0, len(buffers))
	for _, id := range buffers {
		cmd, ok := a.commands[id]
		if !ok {
			a.mu.Unlock()
			return fmt.Errorf("%w: command buffer %d", ErrUnknownResource, id)
		}
		cmds = append(cmds, cmd)
	}
	for _, id := range buffers {
		delete(a.commands, id)
	}
	a.mu.Unlock()

	if err := a.alive(); err != nil {
		a.free(cmds)
		return err
	}
	return a.submitAndWait(ctx, cmds)
}

func (a *HALAdapter) free(cmds []hal.CommandBuffer, staging ...hal.Buffer) {
	for _, cmd := range cmds {
		a.device.FreeCommandBuffer(cmd)
	}
	for _, b := range staging {
		a.device.DestroyBuffer(b)
	}
}

// contextError maps a done context: a passed deadline is a timeout, a
// cancellation is returned as is.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", oscuras.ErrTimeout, err)
	}
	return err
}

// submitAndWait owns cmds. Staging buffers the commands write to are
// handed back to the caller on success and released on failure. When the
// fence does not signal in time the submission is parked in a.pending with
// its command and staging buffers, and later submissions wait for it
// before touching the queue.
func (a *HALAdapter) submitAndWait(ctx context.Context, cmds []hal.CommandBuffer, staging ...hal.Buffer) error {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()

	if err := ctx.Err(); err != nil {
		a.free(cmds, staging...)
		return contextError(err)
	}
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			a.free(cmds, staging...)
			return fmt.Errorf("%w: %w", oscuras.ErrTimeout, context.DeadlineExceeded)
		}
	}

	if err := a.drainPending(timeout); err != nil {
		a.free(cmds, staging...)
		return err
	}

	fence, err := a.device.CreateFence()
	if err != nil {
		a.free(cmds, staging...)
		return fmt.Errorf("native: create fence: %w", a.check(err))
	}
	if err := a.queue.Submit(cmds, fence, 1); err != nil {
		a.device.DestroyFence(fence)
		a.free(cmds, staging...)
		return fmt.Errorf("native: submit: %w", a.check(err))
	}
	ok, err := a.wait(fence, 1, timeout)
	if err != nil {
		a.pending = append(a.pending, inflight{fence: fence, cmds: cmds, staging: staging})
		return fmt.Errorf("native: wait for GPU: %w", a.check(err))
	}
	if !ok {
		a.pending = append(a.pending, inflight{fence: fence, cmds: cmds, staging: staging})
		oscuras.Logger().Warn("native: submission still running", "timeout", timeout, "pending", len(a.pending))
		return fmt.Errorf("native: wait for GPU after %v: %w", timeout, oscuras.ErrTimeout)
	}
	a.device.DestroyFence(fence)
	a.free(cmds)
	return nil
}

// drainPending waits for parked submissions and releases the ones that
// completed. It fails with ErrTimeout while any is still running.
func (a *HALAdapter) drainPending(timeout time.Duration) error {
	for len(a.pending) > 0 {
		p := a.pending[0]
		ok, err := a.wait(p.fence, 1, timeout)
		if err != nil {
			return fmt.Errorf("native: wait for earlier submission: %w", a.check(err))
		}
		if !ok {
			return fmt.Errorf("native: earlier submission still running after %v: %w", timeout, oscuras.ErrTimeout)
		}
		a.device.DestroyFence(p.fence)
		a.free(p.cmds, p.staging...)
		a.pending = a.pending[1:]
	}
	return nil
}

// Pending returns the number of submissions whose fence has not been seen
// to signal.
func (a *HALAdapter) Pending() int {
	a.submitMu.Lock()
	defer a.submitMu.Unlock()
	return len(a.pending)
}

type commandEncoder struct {
	adapter *HALAdapter
	raw     hal.CommandEncoder
	label   string
	done    bool
}

func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	pass := e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return &computePass{adapter: e.adapter, raw: pass}
}

func (e *commandEncoder) Finish() (gpucore.CommandBufferID, error) {
	if e.done {
		return gpucore.InvalidID, fmt.Errorf("native: encoder %s already finished", e.label)
	}
	cmd, err := e.raw.EndEncoding()
	if err != nil {
		e.Discard()
		return gpucore.InvalidID, fmt.Errorf("native: end encoding %s: %w", e.label, e.adapter.check(err))
	}
	e.done = true
	id := gpucore.CommandBufferID(e.adapter.newID())
	e.adapter.mu.Lock()
	e.adapter.commands[id] = cmd
	e.adapter.mu.Unlock()
	return id, nil
}

func (e *commandEncoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.raw.DiscardEncoding()
}

type computePass struct {
	adapter *HALAdapter
	raw     hal.ComputePassEncoder
}

func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	p.adapter.mu.RLock()
	pipeline, ok := p.adapter.pipelines[id]
	p.adapter.mu.RUnlock()
	if ok {
		p.raw.SetPipeline(pipeline)
	}
}

func (p *computePass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	p.adapter.mu.RLock()
	group, ok := p.adapter.groups[id]
	p.adapter.mu.RUnlock()
	if ok {
		p.raw.SetBindGroup(index, group, nil)
	}
}

func (p *computePass) Dispatch(x, y, z uint32) { p.raw.Dispatch(x, y, z) }

func (p *computePass) End() { p.raw.End() }
