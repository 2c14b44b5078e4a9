// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pathtracer renders a scene from a camera with three compute
// stages: ray generation, closest-hit intersection and shading.
//
// An Engine is built for one camera and one scene and owns every device
// resource it allocates. Each Run records the three stages into one
// command buffer and submits it once; the result lands in the display
// texture, which a compositor samples with the display sampler.
//
//	eng, err := pathtracer.New(ctx, cam, sc)
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	if err := eng.Run(context.Background()); err != nil {
//		return err
//	}
//
// Changing the resolution or the camera means building a new Engine.
package pathtracer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/camera"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/kernels"
	"github.com/gogpu/oscuras/scene"
	"github.com/gogpu/oscuras/shader"
)

// ErrNoFrame is returned by Hits until a Run has completed.
var ErrNoFrame = errors.New("pathtracer: no frame rendered")

var (
	defaultLoaderOnce sync.Once
	defaultLoader     *shader.EmbeddedLoader
)

func embeddedLoader() shader.Loader {
	defaultLoaderOnce.Do(func() { defaultLoader = shader.Embedded() })
	return defaultLoader
}

type stageState struct {
	module     gpucore.ShaderModuleID
	layout     gpucore.BindGroupLayoutID
	pipeLayout gpucore.PipelineLayoutID
	pipeline   gpucore.ComputePipelineID
	group      gpucore.BindGroupID
}

// Engine is the pathtracing pipeline for one camera, scene and device.
// Its methods must be called from a single goroutine.
type Engine struct {
	ctx     *gpu.Context
	adapter gpucore.GPUAdapter
	opts    options

	cam    *camera.Camera
	scene  *scene.Scene
	width  uint32
	height uint32

	buffers [resourceCount]*gpu.Buffer
	display *gpu.Texture
	sampler *gpu.Sampler
	stages  [StageCount]stageState

	// rendered is set by a successful Run and cleared when one starts.
	rendered bool
	closed   bool
}

// New allocates every resource for rendering sc from cam on ctx and
// builds the three stage pipelines. On failure nothing stays allocated.
func New(ctx *gpu.Context, cam *camera.Camera, sc *scene.Scene, opts ...Option) (*Engine, error) {
	if ctx == nil {
		return nil, gpu.ErrNilAdapter
	}
	if ctx.Closed() {
		return nil, fmt.Errorf("pathtracer: %w", oscuras.ErrClosed)
	}
	if cam == nil || sc == nil {
		return nil, fmt.Errorf("pathtracer: nil camera or scene: %w", oscuras.ErrConstruction)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		o.loader = embeddedLoader()
		if h, ok := ctx.Adapter().(gpucore.KernelHost); ok && h.HostKernels() {
			o.loader = shader.HostLoader{}
		}
	}

	w, h := cam.Resolution()
	e := &Engine{
		ctx:     ctx,
		adapter: ctx.Adapter(),
		opts:    o,
		cam:     cam,
		scene:   sc,
		width:   w,
		height:  h,
	}
	if err := e.allocate(); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.build(); err != nil {
		e.Close()
		return nil, err
	}

	oscuras.Logger().Info("pathtracer: engine ready",
		"width", w, "height", h,
		"primitives", sc.Len(),
		"adapter", ctx.Info().Name)
	return e, nil
}

func (e *Engine) label(suffix string) string {
	return e.opts.label + "_" + suffix
}

func (e *Engine) allocate() error {
	pixels := uint64(e.width) * uint64(e.height)
	n := uint64(e.scene.Len())

	descs := [...]struct {
		res Resource
		gpu.BufferDesc
	}{
		{ResourceCamera, gpu.BufferDesc{
			Usage: gpu.UsageUniform, Count: 1, Stride: camera.UniformSize,
			Contents: e.cam.Bytes(),
		}},
		{ResourcePaths, gpu.BufferDesc{
			Usage: gpu.UsageStorage | gpu.UsageCopySrc, Count: pixels, Stride: kernels.RayStride,
		}},
		{ResourceIntersect, gpu.BufferDesc{
			Usage: gpu.UsageStorage | gpu.UsageCopySrc, Count: pixels, Stride: kernels.IntersectionStride,
		}},
		// An empty scene still needs a bindable geometry buffer; params1
		// tells the kernel how many records are real.
		{ResourceGeometry, gpu.BufferDesc{
			Usage: gpu.UsageStorageReadOnly, Count: max(n, 1), Stride: scene.GeometryStride,
			Contents: e.scene.Bytes(),
		}},
		{ResourceParams0, gpu.BufferDesc{
			Usage: gpu.UsageUniform, Count: 1, Stride: kernels.ParamsSize,
			Contents: kernels.Params{e.width, e.height}.Bytes(),
		}},
		{ResourceParams1, gpu.BufferDesc{
			Usage: gpu.UsageUniform, Count: 1, Stride: kernels.ParamsSize,
			Contents: kernels.Params{uint32(n), uint32(pixels)}.Bytes(),
		}},
	}
	for _, d := range descs {
		d.Label = e.label(d.res.String())
		if len(d.Contents) == 0 {
			d.Contents = nil
		}
		buf, err := gpu.NewBuffer(e.ctx, d.BufferDesc)
		if err != nil {
			return fmt.Errorf("pathtracer: %s buffer: %w", d.res, err)
		}
		e.buffers[d.res] = buf
	}

	display, err := gpu.NewTexture(e.ctx, gpu.DisplayTextureDesc(e.label("display"), e.width, e.height))
	if err != nil {
		return fmt.Errorf("pathtracer: display texture: %w", err)
	}
	e.display = display

	sampler, err := gpu.NewSampler(e.ctx, gpu.DisplaySamplerDesc(e.label("display_sampler")))
	if err != nil {
		return fmt.Errorf("pathtracer: display sampler: %w", err)
	}
	e.sampler = sampler
	return nil
}

func (e *Engine) build() error {
	for s := Stage(0); s < StageCount; s++ {
		if err := e.buildStage(s); err != nil {
			return fmt.Errorf("pathtracer: stage %s: %w", s, err)
		}
	}
	return nil
}

func (e *Engine) buildStage(s Stage) error {
	st := &e.stages[s]
	name := e.label(s.String())

	mod, err := e.opts.loader.Load(s.Shader())
	if err != nil {
		return err
	}
	st.module, err = e.adapter.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label: name,
		Name:  mod.Name,
		SPIRV: mod.SPIRV,
	})
	if err != nil {
		return fmt.Errorf("shader module: %w", err)
	}

	bindings := s.Bindings()
	layoutEntries := make([]gpucore.BindGroupLayoutEntry, 0, len(bindings))
	groupEntries := make([]gpucore.BindGroupEntry, 0, len(bindings))
	for _, b := range bindings {
		le, ge, err := e.bind(b)
		if err != nil {
			return fmt.Errorf("binding %d (%s): %w", b.Slot, b.Resource, err)
		}
		layoutEntries = append(layoutEntries, le)
		groupEntries = append(groupEntries, ge)
	}

	st.layout, err = e.adapter.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   name + "_bgl",
		Entries: layoutEntries,
	})
	if err != nil {
		return fmt.Errorf("bind group layout: %w", err)
	}
	st.pipeLayout, err = e.adapter.CreatePipelineLayout(name+"_pl", []gpucore.BindGroupLayoutID{st.layout})
	if err != nil {
		return fmt.Errorf("pipeline layout: %w", err)
	}
	st.pipeline, err = e.adapter.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        name,
		Layout:       st.pipeLayout,
		ShaderModule: st.module,
		EntryPoint:   mod.EntryPoint,
	})
	if err != nil {
		return fmt.Errorf("compute pipeline: %w", err)
	}
	st.group, err = e.adapter.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   name + "_bg",
		Layout:  st.layout,
		Entries: groupEntries,
	})
	if err != nil {
		return fmt.Errorf("bind group: %w", err)
	}

	oscuras.Logger().Debug("pathtracer: pipeline created",
		"stage", s.String(),
		"bindings", len(bindings),
		"spirv_words", len(mod.SPIRV))
	return nil
}

// bind derives the layout and group entries of one binding from the
// resource it names.
func (e *Engine) bind(b Binding) (gpucore.BindGroupLayoutEntry, gpucore.BindGroupEntry, error) {
	if b.Resource == ResourceDisplay {
		le, err := e.display.DescribeBinding(b.Slot, gpucore.ShaderStageCompute, true)
		return le, e.display.BindingEntry(b.Slot), err
	}
	buf := e.buffers[b.Resource]
	le, err := buf.DescribeBinding(b.Slot, gpucore.ShaderStageCompute, !b.Write)
	return le, buf.BindingEntry(b.Slot), err
}

// Run renders one frame: the three stages are recorded as three compute
// passes of one command buffer, submitted once, and awaited.
func (e *Engine) Run(ctx context.Context) error {
	if e.closed {
		return fmt.Errorf("pathtracer: %w", oscuras.ErrClosed)
	}
	e.rendered = false
	if _, ok := ctx.Deadline(); !ok && e.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.timeout)
		defer cancel()
	}

	enc, err := e.adapter.CreateCommandEncoder(e.opts.label)
	if err != nil {
		return fmt.Errorf("pathtracer: create command encoder: %w", err)
	}
	for s := Stage(0); s < StageCount; s++ {
		grid := DispatchSize(s, e.width, e.height)
		pass := enc.BeginComputePass(e.label(s.String()))
		pass.SetPipeline(e.stages[s].pipeline)
		pass.SetBindGroup(0, e.stages[s].group)
		pass.Dispatch(grid[0], grid[1], grid[2])
		pass.End()

		oscuras.Logger().Debug("pathtracer: dispatched stage",
			"stage", s.String(),
			"x", grid[0], "y", grid[1], "z", grid[2])
	}
	cmd, err := enc.Finish()
	if err != nil {
		enc.Discard()
		return fmt.Errorf("pathtracer: finish commands: %w", err)
	}
	if err := e.adapter.Submit(ctx, cmd); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, oscuras.ErrTimeout) {
			err = fmt.Errorf("%w: %w", oscuras.ErrTimeout, err)
		}
		return fmt.Errorf("pathtracer: submit: %w", err)
	}
	e.rendered = true
	return nil
}

// ResetResources would update the engine for a new camera in place. It is
// not supported: build a new Engine instead.
func (e *Engine) ResetResources(*camera.Camera) error {
	return fmt.Errorf("pathtracer: reset resources: %w", oscuras.ErrNotImplemented)
}

// Texture returns the display texture the shade stage writes.
func (e *Engine) Texture() *gpu.Texture { return e.display }

// Sampler returns the sampler the compositor should read the display
// texture with.
func (e *Engine) Sampler() *gpu.Sampler { return e.sampler }

// Resolution returns the frame size in pixels.
func (e *Engine) Resolution() (width, height uint32) { return e.width, e.height }

// Camera returns the camera the engine was built with.
func (e *Engine) Camera() *camera.Camera { return e.cam }

// Scene returns the scene the engine was built with.
func (e *Engine) Scene() *scene.Scene { return e.scene }

// Hit is the intersection result of one pixel.
type Hit struct {
	Normal mgl32.Vec3
	T      float32

	// Primitive is the scene index of the hit primitive, or -1 on a miss.
	Primitive int
	Kind      scene.Kind
}

// Hits reads back the intersection records of the last frame, row by row.
// It returns ErrNoFrame when no Run has completed since the engine was
// built or since the last failed Run.
func (e *Engine) Hits(ctx context.Context) ([]Hit, error) {
	if e.closed {
		return nil, fmt.Errorf("pathtracer: %w", oscuras.ErrClosed)
	}
	if !e.rendered {
		return nil, ErrNoFrame
	}
	b, err := e.buffers[ResourceIntersect].Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("pathtracer: read intersections: %w", err)
	}
	pixels := uint32(len(b) / kernels.IntersectionStride)
	hits := make([]Hit, pixels)
	for i := range pixels {
		rec := kernels.ReadIntersection(b, i)
		h := Hit{Normal: rec.Normal, T: rec.T, Primitive: -1, Kind: scene.Kind(rec.Kind)}
		if rec.Hit() {
			h.Primitive = int(rec.Primitive)
		}
		hits[i] = h
	}
	return hits, nil
}

// Close releases every device resource of the engine. The device context
// itself stays open. Close is idempotent.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	a := e.adapter
	for s := StageCount - 1; s >= 0; s-- {
		st := &e.stages[s]
		if st.group != gpucore.InvalidID {
			a.DestroyBindGroup(st.group)
		}
		if st.pipeline != gpucore.InvalidID {
			a.DestroyComputePipeline(st.pipeline)
		}
		if st.pipeLayout != gpucore.InvalidID {
			a.DestroyPipelineLayout(st.pipeLayout)
		}
		if st.layout != gpucore.InvalidID {
			a.DestroyBindGroupLayout(st.layout)
		}
		if st.module != gpucore.InvalidID {
			a.DestroyShaderModule(st.module)
		}
		*st = stageState{}
	}
	if e.sampler != nil {
		e.sampler.Destroy()
	}
	if e.display != nil {
		e.display.Destroy()
	}
	for i, b := range e.buffers {
		if b != nil {
			b.Destroy()
			e.buffers[i] = nil
		}
	}
	oscuras.Logger().Debug("pathtracer: engine closed", "label", e.opts.label)
}
