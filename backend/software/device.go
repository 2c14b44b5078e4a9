package software

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/kernels"
	"github.com/gogpu/oscuras/internal/parallel"
)

var errNotBound = errors.New("software: nothing bound at slot")

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

type texture struct {
	desc gpucore.TextureDesc
	data []byte
}

type pipeline struct {
	desc   gpucore.ComputePipelineDesc
	kernel kernels.Kernel
}

type dispatch struct {
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
	grid     [3]uint32
}

// Device is a gpucore.GPUAdapter that keeps every resource in host memory
// and executes compute pipelines with the host kernels of the same name.
//
// Dispatches run to completion inside Submit; there is no asynchronous
// work in flight once Submit returns.
type Device struct {
	mu     sync.Mutex
	nextID uint64
	pool   *parallel.WorkerPool
	limit  uint64
	lost   atomic.Bool

	buffers   map[gpucore.BufferID]*buffer
	textures  map[gpucore.TextureID]*texture
	views     map[gpucore.TextureViewID]gpucore.TextureID
	samplers  map[gpucore.SamplerID]gpucore.SamplerDesc
	modules   map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc
	layouts   map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc
	pipeLays  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines map[gpucore.ComputePipelineID]*pipeline
	groups    map[gpucore.BindGroupID]gpucore.BindGroupDesc
	commands  map[gpucore.CommandBufferID][]dispatch
}

// NewDevice returns a device running dispatches on workers goroutines
// (GOMAXPROCS when workers <= 0). Allocations that would bring the live
// total above limit bytes fail with oscuras.ErrOutOfMemory; limit 0 means
// DefaultMemoryLimit.
func NewDevice(workers int, limit uint64) *Device {
	if limit == 0 {
		limit = DefaultMemoryLimit
	}
	return &Device{
		pool:      parallel.NewWorkerPool(workers),
		limit:     limit,
		buffers:   make(map[gpucore.BufferID]*buffer),
		textures:  make(map[gpucore.TextureID]*texture),
		views:     make(map[gpucore.TextureViewID]gpucore.TextureID),
		samplers:  make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		modules:   make(map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc),
		layouts:   make(map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc),
		pipeLays:  make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines: make(map[gpucore.ComputePipelineID]*pipeline),
		groups:    make(map[gpucore.BindGroupID]gpucore.BindGroupDesc),
		commands:  make(map[gpucore.CommandBufferID][]dispatch),
	}
}

// DefaultMemoryLimit is the default device memory budget.
const DefaultMemoryLimit = 2 << 30

// Lose marks the device as lost. Every later Submit and read fails with
// oscuras.ErrDeviceLost, as a GPU does after a reset.
func (d *Device) Lose() { d.lost.Store(true) }

// Release stops the worker pool.
func (d *Device) Release() { d.pool.Close() }

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

// allocated returns the bytes held by live buffers and textures.
// Must be called with mu held.
func (d *Device) allocated() uint64 {
	var n uint64
	for _, b := range d.buffers {
		n += uint64(len(b.data))
	}
	for _, t := range d.textures {
		n += uint64(len(t.data))
	}
	return n
}

func (d *Device) reserve(size uint64) error {
	if used := d.allocated(); used+size > d.limit {
		return fmt.Errorf("software: %d bytes requested, %d of %d in use: %w",
			size, used, d.limit, oscuras.ErrOutOfMemory)
	}
	return nil
}

func (d *Device) checkLost() error {
	if d.lost.Load() {
		return oscuras.ErrDeviceLost
	}
	return nil
}

// Info describes the device.
func (d *Device) Info() gpucore.AdapterInfo {
	return gpucore.AdapterInfo{
		Name:       fmt.Sprintf("software (%d workers)", d.pool.Workers()),
		Backend:    "software",
		DeviceType: gpucore.DeviceTypeCPU,
	}
}

// MaxWorkgroupSize returns the per-axis workgroup limits.
func (d *Device) MaxWorkgroupSize() [3]uint32 { return [3]uint32{256, 256, 64} }

// MaxBufferSize returns the device memory budget.
func (d *Device) MaxBufferSize() uint64 { return d.limit }

func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if _, ok := kernels.Lookup(desc.Name); !ok {
		return gpucore.InvalidID, fmt.Errorf("software: no host kernel %q: %w", desc.Name, oscuras.ErrShaderNotFound)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderModuleID(d.id())
	d.modules[id] = *desc
	return id, nil
}

func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.modules, id)
}

func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: zero size", desc.Label)
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return gpucore.InvalidID, fmt.Errorf("software: buffer %q: %d bytes of contents exceed size %d",
			desc.Label, len(desc.Contents), desc.Size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(desc.Size); err != nil {
		return gpucore.InvalidID, err
	}
	b := &buffer{desc: *desc, data: make([]byte, desc.Size)}
	copy(b.data, desc.Contents)
	b.desc.Contents = nil
	id := gpucore.BufferID(d.id())
	d.buffers[id] = b
	return id, nil
}

func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("software: buffer %d not found", id)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("software: write of %d bytes at %d overflows buffer %q", len(data), offset, b.desc.Label)
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *Device) ReadBuffer(ctx context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("software: buffer %d not found", id)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("software: read of %d bytes at %d overflows buffer %q", size, offset, b.desc.Label)
	}
	out := make([]byte, size)
	copy(out, b.data[offset:])
	return out, nil
}

func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	bpp := desc.Format.BytesPerPixel()
	if bpp == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: texture %q: unsupported format %d", desc.Label, desc.Format)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: texture %q: empty extent", desc.Label)
	}
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(bpp)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reserve(size); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.TextureID(d.id())
	d.textures[id] = &texture{desc: *desc, data: make([]byte, size)}
	return id, nil
}

func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

func (d *Device) CreateTextureView(tex gpucore.TextureID, _ string) (gpucore.TextureViewID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[tex]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: texture %d not found", tex)
	}
	id := gpucore.TextureViewID(d.id())
	d.views[id] = tex
	return id, nil
}

func (d *Device) DestroyTextureView(id gpucore.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, id)
}

func (d *Device) ReadTexture(ctx context.Context, id gpucore.TextureID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return nil, fmt.Errorf("software: texture %d not found", id)
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out, nil
}

func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.SamplerID(d.id())
	d.samplers[id] = *desc
	return id, nil
}

func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, id)
}

func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BindGroupLayoutID(d.id())
	d.layouts[id] = *desc
	return id, nil
}

func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, id)
}

func (d *Device) CreatePipelineLayout(_ string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range layouts {
		if _, ok := d.layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("software: bind group layout %d not found", l)
		}
	}
	id := gpucore.PipelineLayoutID(d.id())
	d.pipeLays[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipeLays, id)
}

func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mod, ok := d.modules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: shader module %d not found", desc.Label, desc.ShaderModule)
	}
	if _, ok := d.pipeLays[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("software: pipeline %q: layout %d not found", desc.Label, desc.Layout)
	}
	k, _ := kernels.Lookup(mod.Name)
	id := gpucore.ComputePipelineID(d.id())
	d.pipelines[id] = &pipeline{desc: *desc, kernel: k}
	return id, nil
}

func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layout, ok := d.layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: bind group %q: layout %d not found", desc.Label, desc.Layout)
	}
	if len(desc.Entries) != len(layout.Entries) {
		return gpucore.InvalidID, fmt.Errorf("software: bind group %q: %d entries, layout has %d",
			desc.Label, len(desc.Entries), len(layout.Entries))
	}
	for _, e := range desc.Entries {
		if e.Buffer != gpucore.InvalidID {
			if _, ok := d.buffers[e.Buffer]; !ok {
				return gpucore.InvalidID, fmt.Errorf("software: bind group %q: buffer %d not found", desc.Label, e.Buffer)
			}
		}
	}
	id := gpucore.BindGroupID(d.id())
	d.groups[id] = gpucore.BindGroupDesc{
		Label:   desc.Label,
		Layout:  desc.Layout,
		Entries: append([]gpucore.BindGroupEntry(nil), desc.Entries...),
	}
	return id, nil
}

func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, id)
}

func (d *Device) CreateCommandEncoder(_ string) (gpucore.CommandEncoder, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &encoder{device: d}, nil
}

// Submit runs the dispatches of each command buffer in order. A dispatch
// starts only after the previous one has completed. A done ctx rejects the
// submission before anything runs; it never interrupts one.
func (d *Device) Submit(ctx context.Context, cmds ...gpucore.CommandBufferID) error {
	d.mu.Lock()
	var work []dispatch
	for _, id := range cmds {
		rec, ok := d.commands[id]
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("software: command buffer %d not found", id)
		}
		delete(d.commands, id)
		work = append(work, rec...)
	}
	d.mu.Unlock()

	if err := d.checkLost(); err != nil {
		return err
	}
	// The context gates the submission as a whole. Once the first dispatch
	// starts, every dispatch runs.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("software: submit: %w: %w", oscuras.ErrTimeout, err)
		}
		return fmt.Errorf("software: submit: %w", err)
	}
	for i, w := range work {
		if err := d.run(w); err != nil {
			return fmt.Errorf("software: dispatch %d of %d: %w", i, len(work), err)
		}
	}
	return nil
}

func (d *Device) run(w dispatch) error {
	d.mu.Lock()
	p, ok := d.pipelines[w.pipeline]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("pipeline %d not found", w.pipeline)
	}
	group, ok := d.groups[w.group]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("bind group %d not found", w.group)
	}
	b, err := d.resolve(group)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	inv, err := p.kernel.Bind(b)
	if err != nil {
		return fmt.Errorf("%s: %w", p.kernel.Name, err)
	}
	oscuras.Logger().Debug("software: dispatch",
		"kernel", p.kernel.Name, "x", w.grid[0], "y", w.grid[1], "z", w.grid[2])
	d.pool.Dispatch(w.grid, p.kernel.WorkgroupSize, inv)
	return nil
}

// resolve snapshots the memory a bind group refers to. Must be called
// with mu held.
func (d *Device) resolve(group gpucore.BindGroupDesc) (*bindings, error) {
	b := &bindings{
		buffers:  make(map[uint32][]byte),
		textures: make(map[uint32]*texture),
	}
	for _, e := range group.Entries {
		switch {
		case e.Buffer != gpucore.InvalidID:
			buf, ok := d.buffers[e.Buffer]
			if !ok {
				return nil, fmt.Errorf("binding %d: buffer %d destroyed", e.Binding, e.Buffer)
			}
			end := uint64(len(buf.data))
			if e.Size != 0 {
				end = e.Offset + e.Size
			}
			if e.Offset > end || end > uint64(len(buf.data)) {
				return nil, fmt.Errorf("binding %d: range [%d, %d) outside buffer %q", e.Binding, e.Offset, end, buf.desc.Label)
			}
			b.buffers[e.Binding] = buf.data[e.Offset:end]
		case e.TextureView != gpucore.InvalidID:
			tex, ok := d.textures[d.views[e.TextureView]]
			if !ok {
				return nil, fmt.Errorf("binding %d: texture view %d destroyed", e.Binding, e.TextureView)
			}
			b.textures[e.Binding] = tex
		}
	}
	return b, nil
}

// bindings exposes resolved resources to a host kernel. Kernels write
// disjoint elements, so no locking is needed while a dispatch runs.
type bindings struct {
	buffers  map[uint32][]byte
	textures map[uint32]*texture
}

func (b *bindings) Buffer(slot uint32) ([]byte, error) {
	buf, ok := b.buffers[slot]
	if !ok {
		return nil, errNotBound
	}
	return buf, nil
}

func (b *bindings) StoreTexel(slot, x, y uint32, rgba [4]float32) error {
	t, ok := b.textures[slot]
	if !ok {
		return errNotBound
	}
	if x >= t.desc.Width || y >= t.desc.Height {
		return nil
	}
	bpp := t.desc.Format.BytesPerPixel()
	px := t.data[(int(y)*int(t.desc.Width)+int(x))*bpp:]
	switch t.desc.Format {
	case gpucore.TextureFormatRGBA8Unorm:
		px[0], px[1], px[2], px[3] = kernels.Unorm8(rgba[0]), kernels.Unorm8(rgba[1]), kernels.Unorm8(rgba[2]), kernels.Unorm8(rgba[3])
	case gpucore.TextureFormatBGRA8Unorm:
		px[0], px[1], px[2], px[3] = kernels.Unorm8(rgba[2]), kernels.Unorm8(rgba[1]), kernels.Unorm8(rgba[0]), kernels.Unorm8(rgba[3])
	case gpucore.TextureFormatRGBA32Float:
		for i, c := range rgba {
			binary.LittleEndian.PutUint32(px[i*4:], math.Float32bits(c))
		}
	}
	return nil
}

type encoder struct {
	device *Device
	rec    []dispatch
	open   bool
	done   bool
}

func (e *encoder) BeginComputePass(string) gpucore.ComputePassEncoder {
	e.open = true
	return &pass{enc: e}
}

func (e *encoder) Finish() (gpucore.CommandBufferID, error) {
	if e.done {
		return gpucore.InvalidID, fmt.Errorf("software: encoder already finished")
	}
	if e.open {
		return gpucore.InvalidID, fmt.Errorf("software: compute pass not ended")
	}
	e.done = true
	d := e.device
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.CommandBufferID(d.id())
	d.commands[id] = e.rec
	return id, nil
}

func (e *encoder) Discard() {
	e.done = true
	e.rec = nil
}

type pass struct {
	enc      *encoder
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
}

func (p *pass) SetPipeline(id gpucore.ComputePipelineID) { p.pipeline = id }

func (p *pass) SetBindGroup(_ uint32, id gpucore.BindGroupID) { p.group = id }

func (p *pass) Dispatch(x, y, z uint32) {
	p.enc.rec = append(p.enc.rec, dispatch{pipeline: p.pipeline, group: p.group, grid: [3]uint32{x, y, z}})
}

func (p *pass) End() { p.enc.open = false }

var (
	_ gpucore.GPUAdapter = (*Device)(nil)
	_ gpucore.KernelHost = (*Device)(nil)
)

// HostKernels reports that the device runs kernels by name and ignores
// SPIR-V.
func (d *Device) HostKernels() bool { return true }
