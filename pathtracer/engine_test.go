package pathtracer

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/camera"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/gputest"
	"github.com/gogpu/oscuras/scene"
	"github.com/gogpu/oscuras/shader"
)

func newTestEngine(t *testing.T, a *gputest.Adapter, w, h int, opts ...Option) *Engine {
	t.Helper()
	e, err := tryEngine(a, w, h, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func tryEngine(a *gputest.Adapter, w, h int, opts ...Option) (*Engine, error) {
	ctx, err := gpu.NewContext(a, nil)
	if err != nil {
		return nil, err
	}
	cam, err := camera.New(w, h)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithShaderLoader(shader.HostLoader{})}, opts...)
	return New(ctx, cam, scene.Default(), opts...)
}

func TestNewAllocatesResources(t *testing.T) {
	a := gputest.New()
	e := newTestEngine(t, a, 64, 32)

	tests := []struct {
		label string
		size  uint64
		usage gpucore.BufferUsage
	}{
		{"pathtracer_camera", camera.UniformSize, gpucore.BufferUsageUniform},
		{"pathtracer_paths", 64 * 32 * 32, gpucore.BufferUsageStorage},
		{"pathtracer_intersect", 64 * 32 * 32, gpucore.BufferUsageStorage},
		{"pathtracer_geometry", scene.GeometryStride, gpucore.BufferUsageStorage},
		{"pathtracer_params0", 8, gpucore.BufferUsageUniform},
		{"pathtracer_params1", 8, gpucore.BufferUsageUniform},
	}
	for _, tt := range tests {
		b, ok := a.BufferByLabel(tt.label)
		if !ok {
			t.Errorf("buffer %s not allocated", tt.label)
			continue
		}
		if b.Desc.Size != tt.size {
			t.Errorf("%s size = %d, want %d", tt.label, b.Desc.Size, tt.size)
		}
		if !b.Desc.Usage.Has(tt.usage) {
			t.Errorf("%s usage = %b, want %b set", tt.label, b.Desc.Usage, tt.usage)
		}
	}

	p0, _ := a.BufferByLabel("pathtracer_params0")
	p1, _ := a.BufferByLabel("pathtracer_params1")
	if got := [2]uint32(decodeParams(p0.Data)); got != [2]uint32{64, 32} {
		t.Errorf("params0 = %v, want [64 32]", got)
	}
	if got := [2]uint32(decodeParams(p1.Data)); got != [2]uint32{1, 64 * 32} {
		t.Errorf("params1 = %v, want [1 2048]", got)
	}

	tex := a.Textures[e.Texture().ID()]
	if tex.Desc.Format != gpucore.TextureFormatRGBA8Unorm {
		t.Errorf("display format = %v, want RGBA8Unorm", tex.Desc.Format)
	}
	for _, u := range []gpucore.TextureUsage{
		gpucore.TextureUsageStorageBinding,
		gpucore.TextureUsageTextureBinding,
		gpucore.TextureUsageCopySrc,
	} {
		if tex.Desc.Usage&u == 0 {
			t.Errorf("display usage %b lacks %b", tex.Desc.Usage, u)
		}
	}

	sd := e.Sampler().Desc()
	if sd.AddressMode != gpucore.AddressModeClampToEdge ||
		sd.MagFilter != gpucore.FilterModeLinear ||
		sd.MinFilter != gpucore.FilterModeNearest ||
		sd.MipmapFilter != gpucore.FilterModeNearest {
		t.Errorf("sampler = %+v", sd)
	}
	if w, h := e.Resolution(); w != 64 || h != 32 {
		t.Errorf("Resolution() = %dx%d, want 64x32", w, h)
	}
}

func TestBindingTypes(t *testing.T) {
	a := gputest.New()
	e := newTestEngine(t, a, 8, 8)

	want := [StageCount][]gpucore.BindingType{
		StageRayGen: {
			gpucore.BindingTypeUniformBuffer,
			gpucore.BindingTypeStorageBuffer,
		},
		StageIntersect: {
			gpucore.BindingTypeReadOnlyStorageBuffer,
			gpucore.BindingTypeReadOnlyStorageBuffer,
			gpucore.BindingTypeUniformBuffer,
			gpucore.BindingTypeStorageBuffer,
		},
		StageShade: {
			gpucore.BindingTypeReadOnlyStorageBuffer,
			gpucore.BindingTypeReadOnlyStorageBuffer,
			gpucore.BindingTypeUniformBuffer,
			gpucore.BindingTypeStorageTexture,
		},
	}
	for s := Stage(0); s < StageCount; s++ {
		layout := a.Layouts[e.stages[s].layout]
		if len(layout.Entries) != len(want[s]) {
			t.Fatalf("%s: %d entries, want %d", s, len(layout.Entries), len(want[s]))
		}
		for i, entry := range layout.Entries {
			if entry.Type != want[s][i] {
				t.Errorf("%s binding %d = %v, want %v", s, i, entry.Type, want[s][i])
			}
			if entry.Visibility != gpucore.ShaderStageCompute {
				t.Errorf("%s binding %d visibility = %v", s, i, entry.Visibility)
			}
		}
		if mod := a.Modules[e.stages[s].module]; mod.Name != s.Shader() {
			t.Errorf("%s module name = %q, want %q", s, mod.Name, s.Shader())
		}
	}
}

func TestRunRecordsStagesInOrder(t *testing.T) {
	a := gputest.New()
	e := newTestEngine(t, a, 1920, 1080)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.Submissions) != 1 {
		t.Fatalf("%d submissions, want 1", len(a.Submissions))
	}
	got := a.Submissions[0].Dispatches
	want := []struct {
		pass string
		grid [3]uint32
	}{
		{"pathtracer_raygen", [3]uint32{120, 68, 1}},
		{"pathtracer_intersect", [3]uint32{8101, 1, 1}},
		{"pathtracer_shade", [3]uint32{120, 68, 1}},
	}
	if len(got) != len(want) {
		t.Fatalf("%d dispatches, want %d", len(got), len(want))
	}
	for i, d := range got {
		if d.Pass != want[i].pass || d.Grid != want[i].grid {
			t.Errorf("dispatch %d = %s %v, want %s %v", i, d.Pass, d.Grid, want[i].pass, want[i].grid)
		}
		if d.Pipeline != e.stages[i].pipeline || d.BindGroup != e.stages[i].group {
			t.Errorf("dispatch %d uses pipeline %d group %d", i, d.Pipeline, d.BindGroup)
		}
	}

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(a.Submissions) != 2 {
		t.Errorf("%d submissions after two frames, want 2", len(a.Submissions))
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		severity oscuras.Severity
	}{
		{"lost", oscuras.ErrDeviceLost, oscuras.SeverityRebuild},
		{"oom", oscuras.ErrOutOfMemory, oscuras.SeverityFatal},
		{"timeout", oscuras.ErrTimeout, oscuras.SeverityTransient},
		{"deadline", context.DeadlineExceeded, oscuras.SeverityTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := gputest.New()
			e := newTestEngine(t, a, 4, 4)
			a.SubmitErr = tt.err

			err := e.Run(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("Run error = %v, want %v", err, tt.err)
			}
			if got := oscuras.Classify(err); got != tt.severity {
				t.Errorf("Classify = %v, want %v", got, tt.severity)
			}
		})
	}
}

func TestNewFailureReleasesEverything(t *testing.T) {
	// Resource creations: 6 buffers, texture, view, sampler, then 5 per
	// stage. Fail at each point in turn.
	for n := 1; n <= 9+5*int(StageCount); n++ {
		a := gputest.New()
		a.FailAfter = n
		e, err := tryEngine(a, 8, 8)
		if err == nil {
			e.Close()
			t.Fatalf("FailAfter=%d: New succeeded", n)
		}
		if !errors.Is(err, gputest.ErrInjected) {
			t.Errorf("FailAfter=%d: error = %v, want injected", n, err)
		}
		if live := a.Live(); live != 0 {
			t.Errorf("FailAfter=%d: %d resources leaked", n, live)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	a := gputest.New()
	ctx, _ := gpu.NewContext(a, nil)
	cam, _ := camera.New(4, 4)

	if _, err := New(ctx, nil, scene.Default()); !errors.Is(err, oscuras.ErrConstruction) {
		t.Errorf("nil camera error = %v", err)
	}
	if _, err := New(nil, cam, scene.Default()); err == nil {
		t.Error("nil context accepted")
	}

	_, err := New(ctx, cam, scene.Default(), WithShaderLoader(shader.DirLoader{Dir: t.TempDir()}))
	if !errors.Is(err, oscuras.ErrShaderNotFound) {
		t.Errorf("missing shaders error = %v, want ErrShaderNotFound", err)
	}
	if a.Live() != 0 {
		t.Errorf("%d resources leaked", a.Live())
	}

	ctx.Close()
	if _, err := New(ctx, cam, scene.Default()); !errors.Is(err, oscuras.ErrClosed) {
		t.Errorf("closed context error = %v, want ErrClosed", err)
	}
}

func TestEmptyScene(t *testing.T) {
	a := gputest.New()
	ctx, _ := gpu.NewContext(a, nil)
	cam, _ := camera.New(4, 4)
	empty, err := scene.New()
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(ctx, cam, empty, WithShaderLoader(shader.HostLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	p1, _ := a.BufferByLabel("pathtracer_params1")
	if got := decodeParams(p1.Data); got[0] != 0 {
		t.Errorf("params1 primitives = %d, want 0", got[0])
	}
}

func TestResetResourcesNotImplemented(t *testing.T) {
	e := newTestEngine(t, gputest.New(), 4, 4)
	cam, _ := camera.New(8, 8)
	if err := e.ResetResources(cam); !errors.Is(err, oscuras.ErrNotImplemented) {
		t.Errorf("ResetResources = %v, want ErrNotImplemented", err)
	}
	if w, _ := e.Resolution(); w != 4 {
		t.Errorf("ResetResources changed resolution to %d", w)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	a := gputest.New()
	e, err := tryEngine(a, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	e.Close()
	e.Close()
	if a.Live() != 0 {
		t.Errorf("%d resources live after Close", a.Live())
	}
	if err := e.Run(context.Background()); !errors.Is(err, oscuras.ErrClosed) {
		t.Errorf("Run after Close = %v, want ErrClosed", err)
	}
}

func TestResizeReallocates(t *testing.T) {
	a := gputest.New()
	small, err := tryEngine(a, 64, 32)
	if err != nil {
		t.Fatal(err)
	}
	oldIDs := map[Resource]gpucore.BufferID{}
	for _, r := range []Resource{ResourcePaths, ResourceIntersect} {
		oldIDs[r] = small.buffers[r].ID()
	}
	oldTex := small.Texture().ID()
	small.Close()

	big := newTestEngine(t, a, 128, 96)
	for r, old := range oldIDs {
		b := big.buffers[r]
		if b.ID() == old {
			t.Errorf("%s buffer reused", r)
		}
		if b.Count() != 128*96 {
			t.Errorf("%s count = %d, want %d", r, b.Count(), 128*96)
		}
	}
	if big.Texture().ID() == oldTex {
		t.Error("display texture reused")
	}
	if w, h := big.Texture().Size(); w != 128 || h != 96 {
		t.Errorf("display size = %dx%d, want 128x96", w, h)
	}
	p1, _ := a.BufferByLabel("pathtracer_params1")
	if got := decodeParams(p1.Data); got[1] != 128*96 {
		t.Errorf("params1 pixels = %d, want %d", got[1], 128*96)
	}
	cam := a.Buffers[big.buffers[ResourceCamera].ID()]
	u, err := camera.DecodeUniform(cam.Data)
	if err != nil {
		t.Fatal(err)
	}
	if u.Resolution != [2]uint32{128, 96} {
		t.Errorf("camera resolution = %v", u.Resolution)
	}
}

func TestWithLabel(t *testing.T) {
	a := gputest.New()
	newTestEngine(t, a, 4, 4, WithLabel("view0"))
	if _, ok := a.BufferByLabel("view0_paths"); !ok {
		t.Error("labelled paths buffer not found")
	}
}

func TestHitsReadback(t *testing.T) {
	a := gputest.New()
	e := newTestEngine(t, a, 2, 1)

	if _, err := e.Hits(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Hits before Run = %v, want ErrNoFrame", err)
	}
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	buf := a.Buffers[e.buffers[ResourceIntersect].ID()]
	putIntersection(buf.Data, 1, mgl32.Vec3{0, 0, -1}, 2.5, 0, uint32(scene.KindSphere))
	putIntersection(buf.Data, 0, mgl32.Vec3{}, -1, ^uint32(0), 0)

	hits, err := e.Hits(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("%d hits, want 2", len(hits))
	}
	if hits[0].Primitive != -1 {
		t.Errorf("miss primitive = %d, want -1", hits[0].Primitive)
	}
	if hits[1].Primitive != 0 || hits[1].T != 2.5 || hits[1].Kind != scene.KindSphere {
		t.Errorf("hit = %+v", hits[1])
	}
}

func TestHitsAfterFailedRun(t *testing.T) {
	a := gputest.New()
	e := newTestEngine(t, a, 2, 1)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	a.SubmitErr = oscuras.ErrTimeout
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded, want error")
	}
	if _, err := e.Hits(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Hits after failed Run = %v, want ErrNoFrame", err)
	}
}
