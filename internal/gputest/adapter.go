// Package gputest provides a recording gpucore.GPUAdapter for tests.
//
// The adapter keeps buffer and texture contents in memory and records
// every pass, pipeline binding and dispatch it is given, but executes
// nothing.
package gputest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/oscuras/gpucore"
)

// Dispatch is one recorded dispatch.
type Dispatch struct {
	Pass      string
	Pipeline  gpucore.ComputePipelineID
	BindGroup gpucore.BindGroupID
	Grid      [3]uint32
}

// Submission is one recorded Submit call.
type Submission struct {
	Label      string
	Dispatches []Dispatch
}

// Buffer is a recorded buffer.
type Buffer struct {
	Desc gpucore.BufferDesc
	Data []byte
}

// Texture is a recorded texture.
type Texture struct {
	Desc gpucore.TextureDesc
	Data []byte
}

// Adapter is an in-memory GPUAdapter that records what it is asked to do.
// The zero value is not usable; call New.
type Adapter struct {
	mu     sync.Mutex
	nextID uint64

	Buffers      map[gpucore.BufferID]*Buffer
	Textures     map[gpucore.TextureID]*Texture
	Views        map[gpucore.TextureViewID]gpucore.TextureID
	Samplers     map[gpucore.SamplerID]gpucore.SamplerDesc
	Modules      map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc
	Layouts      map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc
	PipeLayouts  map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	Pipelines    map[gpucore.ComputePipelineID]gpucore.ComputePipelineDesc
	BindGroups   map[gpucore.BindGroupID]gpucore.BindGroupDesc
	commands     map[gpucore.CommandBufferID]Submission
	Submissions  []Submission
	Destroyed    int
	createdTotal int

	// SubmitErr, when set, is returned by every Submit.
	SubmitErr error

	// FailAfter, when positive, makes the Nth resource creation fail.
	FailAfter int
}

// New returns an empty recording adapter.
func New() *Adapter {
	return &Adapter{
		Buffers:     make(map[gpucore.BufferID]*Buffer),
		Textures:    make(map[gpucore.TextureID]*Texture),
		Views:       make(map[gpucore.TextureViewID]gpucore.TextureID),
		Samplers:    make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		Modules:     make(map[gpucore.ShaderModuleID]gpucore.ShaderModuleDesc),
		Layouts:     make(map[gpucore.BindGroupLayoutID]gpucore.BindGroupLayoutDesc),
		PipeLayouts: make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		Pipelines:   make(map[gpucore.ComputePipelineID]gpucore.ComputePipelineDesc),
		BindGroups:  make(map[gpucore.BindGroupID]gpucore.BindGroupDesc),
		commands:    make(map[gpucore.CommandBufferID]Submission),
	}
}

// ErrInjected is returned by creations selected with FailAfter.
var ErrInjected = fmt.Errorf("gputest: injected failure")

// create allocates an ID. Must be called with mu held.
func (a *Adapter) create() (uint64, error) {
	a.createdTotal++
	if a.FailAfter > 0 && a.createdTotal == a.FailAfter {
		return 0, ErrInjected
	}
	a.nextID++
	return a.nextID, nil
}

// Live returns the number of resources not yet destroyed.
func (a *Adapter) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Buffers) + len(a.Textures) + len(a.Views) + len(a.Samplers) +
		len(a.Modules) + len(a.Layouts) + len(a.PipeLayouts) + len(a.Pipelines) + len(a.BindGroups)
}

// BufferByLabel returns the live buffer with the given label.
func (a *Adapter) BufferByLabel(label string) (*Buffer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.Buffers {
		if b.Desc.Label == label {
			return b, true
		}
	}
	return nil, false
}

func (a *Adapter) Info() gpucore.AdapterInfo {
	return gpucore.AdapterInfo{Name: "gputest", Backend: "test", DeviceType: gpucore.DeviceTypeCPU}
}

func (a *Adapter) MaxWorkgroupSize() [3]uint32 { return [3]uint32{256, 256, 64} }

func (a *Adapter) MaxBufferSize() uint64 { return 1 << 30 }

func (a *Adapter) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.Modules[gpucore.ShaderModuleID(id)] = *desc
	return gpucore.ShaderModuleID(id), nil
}

func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Modules[id]; ok {
		delete(a.Modules, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	data := make([]byte, desc.Size)
	copy(data, desc.Contents)
	d := *desc
	d.Contents = nil
	a.Buffers[gpucore.BufferID(id)] = &Buffer{Desc: d, Data: data}
	return gpucore.BufferID(id), nil
}

func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Buffers[id]; ok {
		delete(a.Buffers, id)
		a.Destroyed++
	}
}

func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.Buffers[id]
	if !ok {
		return fmt.Errorf("gputest: buffer %d not found", id)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("gputest: write of %d bytes at %d overflows buffer %d", len(data), offset, id)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (a *Adapter) ReadBuffer(_ context.Context, id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.Buffers[id]
	if !ok {
		return nil, fmt.Errorf("gputest: buffer %d not found", id)
	}
	if offset+size > uint64(len(b.Data)) {
		return nil, fmt.Errorf("gputest: read out of range")
	}
	out := make([]byte, size)
	copy(out, b.Data[offset:])
	return out, nil
}

func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	size := int(desc.Width) * int(desc.Height) * desc.Format.BytesPerPixel()
	a.Textures[gpucore.TextureID(id)] = &Texture{Desc: *desc, Data: make([]byte, size)}
	return gpucore.TextureID(id), nil
}

func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Textures[id]; ok {
		delete(a.Textures, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateTextureView(texture gpucore.TextureID, _ string) (gpucore.TextureViewID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Textures[texture]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: texture %d not found", texture)
	}
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.Views[gpucore.TextureViewID(id)] = texture
	return gpucore.TextureViewID(id), nil
}

func (a *Adapter) DestroyTextureView(id gpucore.TextureViewID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Views[id]; ok {
		delete(a.Views, id)
		a.Destroyed++
	}
}

func (a *Adapter) ReadTexture(_ context.Context, id gpucore.TextureID) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.Textures[id]
	if !ok {
		return nil, fmt.Errorf("gputest: texture %d not found", id)
	}
	return append([]byte(nil), t.Data...), nil
}

func (a *Adapter) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.Samplers[gpucore.SamplerID(id)] = *desc
	return gpucore.SamplerID(id), nil
}

func (a *Adapter) DestroySampler(id gpucore.SamplerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Samplers[id]; ok {
		delete(a.Samplers, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.Layouts[gpucore.BindGroupLayoutID(id)] = *desc
	return gpucore.BindGroupLayoutID(id), nil
}

func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Layouts[id]; ok {
		delete(a.Layouts, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreatePipelineLayout(_ string, layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.Layouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("gputest: bind group layout %d not found", l)
		}
	}
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.PipeLayouts[gpucore.PipelineLayoutID(id)] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return gpucore.PipelineLayoutID(id), nil
}

func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.PipeLayouts[id]; ok {
		delete(a.PipeLayouts, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Modules[desc.ShaderModule]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: shader module %d not found", desc.ShaderModule)
	}
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.Pipelines[gpucore.ComputePipelineID(id)] = *desc
	return gpucore.ComputePipelineID(id), nil
}

func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Pipelines[id]; ok {
		delete(a.Pipelines, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	layout, ok := a.Layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: bind group layout %d not found", desc.Layout)
	}
	if len(layout.Entries) != len(desc.Entries) {
		return gpucore.InvalidID, fmt.Errorf("gputest: %d entries for a layout of %d", len(desc.Entries), len(layout.Entries))
	}
	id, err := a.create()
	if err != nil {
		return gpucore.InvalidID, err
	}
	a.BindGroups[gpucore.BindGroupID(id)] = *desc
	return gpucore.BindGroupID(id), nil
}

func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.BindGroups[id]; ok {
		delete(a.BindGroups, id)
		a.Destroyed++
	}
}

func (a *Adapter) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &encoder{adapter: a, rec: Submission{Label: label}}, nil
}

func (a *Adapter) Submit(_ context.Context, buffers ...gpucore.CommandBufferID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SubmitErr != nil {
		for _, id := range buffers {
			delete(a.commands, id)
		}
		return a.SubmitErr
	}
	for _, id := range buffers {
		rec, ok := a.commands[id]
		if !ok {
			return fmt.Errorf("gputest: command buffer %d not found", id)
		}
		delete(a.commands, id)
		a.Submissions = append(a.Submissions, rec)
	}
	return nil
}

type encoder struct {
	adapter *Adapter
	rec     Submission
	open    bool
	done    bool
}

func (e *encoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	e.open = true
	return &pass{enc: e, label: label}
}

func (e *encoder) Finish() (gpucore.CommandBufferID, error) {
	if e.done {
		return gpucore.InvalidID, fmt.Errorf("gputest: encoder already finished")
	}
	if e.open {
		return gpucore.InvalidID, fmt.Errorf("gputest: compute pass not ended")
	}
	e.done = true
	a := e.adapter
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := gpucore.CommandBufferID(a.nextID)
	a.commands[id] = e.rec
	return id, nil
}

func (e *encoder) Discard() { e.done = true }

type pass struct {
	enc      *encoder
	label    string
	pipeline gpucore.ComputePipelineID
	group    gpucore.BindGroupID
}

func (p *pass) SetPipeline(id gpucore.ComputePipelineID) { p.pipeline = id }

func (p *pass) SetBindGroup(_ uint32, id gpucore.BindGroupID) { p.group = id }

func (p *pass) Dispatch(x, y, z uint32) {
	p.enc.rec.Dispatches = append(p.enc.rec.Dispatches, Dispatch{
		Pass:      p.label,
		Pipeline:  p.pipeline,
		BindGroup: p.group,
		Grid:      [3]uint32{x, y, z},
	})
}

func (p *pass) End() { p.enc.open = false }

var _ gpucore.GPUAdapter = (*Adapter)(nil)
