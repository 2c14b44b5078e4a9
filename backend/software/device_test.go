package software

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/camera"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/kernels"
)

func newDevice(t *testing.T) *Device {
	t.Helper()
	d := NewDevice(2, 0)
	t.Cleanup(d.Release)
	return d
}

func TestBufferWriteRead(t *testing.T) {
	d := newDevice(t)
	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "b", Size: 8, Contents: []byte{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteBuffer(id, 4, []byte{9, 9}); err != nil {
		t.Fatal(err)
	}
	got, err := d.ReadBuffer(context.Background(), id, 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 3, 0, 9, 9, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("ReadBuffer = %v, want %v", got, want)
	}
	if err := d.WriteBuffer(id, 7, []byte{1, 2}); err == nil {
		t.Error("overflowing write succeeded")
	}
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 2, Contents: []byte{1, 2, 3}}); err == nil {
		t.Error("contents larger than buffer accepted")
	}
}

func TestMemoryLimit(t *testing.T) {
	d := NewDevice(1, 1024)
	defer d.Release()

	a, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 1000})
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.CreateTexture(&gpucore.TextureDesc{Width: 4, Height: 4, Format: gpucore.TextureFormatRGBA8Unorm})
	if !errors.Is(err, oscuras.ErrOutOfMemory) {
		t.Fatalf("CreateTexture error = %v, want ErrOutOfMemory", err)
	}
	if oscuras.Classify(err) != oscuras.SeverityFatal {
		t.Errorf("Classify = %v, want fatal", oscuras.Classify(err))
	}
	d.DestroyBuffer(a)
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 1024}); err != nil {
		t.Errorf("allocation after free: %v", err)
	}
}

func TestUnknownShader(t *testing.T) {
	d := newDevice(t)
	_, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Name: "bogus"})
	if !errors.Is(err, oscuras.ErrShaderNotFound) || !errors.Is(err, oscuras.ErrConstruction) {
		t.Errorf("error = %v, want ErrShaderNotFound", err)
	}
}

// rayGenPipeline builds the raygen stage for cam by hand.
func rayGenPipeline(t *testing.T, d *Device, cam *camera.Camera) (gpucore.ComputePipelineID, gpucore.BindGroupID, gpucore.BufferID) {
	t.Helper()
	w, h := cam.Resolution()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	mod, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{Name: kernels.NameRayGen})
	must(err)
	layout, err := d.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{Entries: []gpucore.BindGroupLayoutEntry{
		{Binding: kernels.RayGenCamera, Type: gpucore.BindingTypeUniformBuffer},
		{Binding: kernels.RayGenPaths, Type: gpucore.BindingTypeStorageBuffer},
	}})
	must(err)
	pl, err := d.CreatePipelineLayout("", []gpucore.BindGroupLayoutID{layout})
	must(err)
	pipe, err := d.CreateComputePipeline(&gpucore.ComputePipelineDesc{Layout: pl, ShaderModule: mod, EntryPoint: "main"})
	must(err)
	camBuf, err := d.CreateBuffer(&gpucore.BufferDesc{Size: camera.UniformSize, Contents: cam.Bytes()})
	must(err)
	paths, err := d.CreateBuffer(&gpucore.BufferDesc{Size: uint64(w*h) * kernels.RayStride})
	must(err)
	group, err := d.CreateBindGroup(&gpucore.BindGroupDesc{Layout: layout, Entries: []gpucore.BindGroupEntry{
		{Binding: kernels.RayGenCamera, Buffer: camBuf},
		{Binding: kernels.RayGenPaths, Buffer: paths},
	}})
	must(err)
	return pipe, group, paths
}

func submit(d *Device, ctx context.Context, pipe gpucore.ComputePipelineID, group gpucore.BindGroupID, grid [3]uint32) error {
	enc, err := d.CreateCommandEncoder("test")
	if err != nil {
		return err
	}
	p := enc.BeginComputePass("raygen")
	p.SetPipeline(pipe)
	p.SetBindGroup(0, group)
	p.Dispatch(grid[0], grid[1], grid[2])
	p.End()
	cmd, err := enc.Finish()
	if err != nil {
		return err
	}
	return d.Submit(ctx, cmd)
}

func TestSubmitRunsKernel(t *testing.T) {
	d := newDevice(t)
	cam, err := camera.New(20, 10)
	if err != nil {
		t.Fatal(err)
	}
	pipe, group, paths := rayGenPipeline(t, d, cam)
	if err := submit(d, context.Background(), pipe, group, [3]uint32{2, 1, 1}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	data, err := d.ReadBuffer(context.Background(), paths, 0, 20*10*kernels.RayStride)
	if err != nil {
		t.Fatal(err)
	}
	u := cam.Uniform()
	for _, px := range [][2]uint32{{0, 0}, {19, 9}, {7, 3}} {
		i := px[1]*20 + px[0]
		got := kernels.ReadRay(data, i)
		want := kernels.PrimaryRay(u, px[0], px[1])
		if got != want {
			t.Errorf("ray %v = %+v, want %+v", px, got, want)
		}
	}
}

func TestSubmitCanceled(t *testing.T) {
	d := newDevice(t)
	cam, _ := camera.New(4, 4)
	pipe, group, _ := rayGenPipeline(t, d, cam)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := submit(d, ctx, pipe, group, [3]uint32{1, 1, 1})
	if !errors.Is(err, context.Canceled) || errors.Is(err, oscuras.ErrTimeout) {
		t.Errorf("error = %v, want context.Canceled without ErrTimeout", err)
	}
}

func TestSubmitDeadlineExceeded(t *testing.T) {
	d := newDevice(t)
	cam, _ := camera.New(4, 4)
	pipe, group, _ := rayGenPipeline(t, d, cam)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := submit(d, ctx, pipe, group, [3]uint32{1, 1, 1})
	if !errors.Is(err, oscuras.ErrTimeout) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrTimeout wrapping context.DeadlineExceeded", err)
	}
}

func TestLostDevice(t *testing.T) {
	d := newDevice(t)
	cam, _ := camera.New(4, 4)
	pipe, group, _ := rayGenPipeline(t, d, cam)

	d.Lose()
	err := submit(d, context.Background(), pipe, group, [3]uint32{1, 1, 1})
	if !errors.Is(err, oscuras.ErrDeviceLost) {
		t.Errorf("error = %v, want ErrDeviceLost", err)
	}
}

func TestFinishWithOpenPass(t *testing.T) {
	d := newDevice(t)
	enc, err := d.CreateCommandEncoder("")
	if err != nil {
		t.Fatal(err)
	}
	enc.BeginComputePass("open")
	if _, err := enc.Finish(); err == nil {
		t.Error("Finish with an open pass succeeded")
	}
}

func TestStoreTexelFormats(t *testing.T) {
	tests := []struct {
		format gpucore.TextureFormat
		want   []byte
	}{
		{gpucore.TextureFormatRGBA8Unorm, []byte{255, 128, 0, 255}},
		{gpucore.TextureFormatBGRA8Unorm, []byte{0, 128, 255, 255}},
	}
	for _, tt := range tests {
		tex := &texture{
			desc: gpucore.TextureDesc{Width: 2, Height: 2, Format: tt.format},
			data: make([]byte, 2*2*tt.format.BytesPerPixel()),
		}
		b := &bindings{textures: map[uint32]*texture{3: tex}}
		if err := b.StoreTexel(3, 1, 1, [4]float32{1, 0.5, 0, 1}); err != nil {
			t.Fatal(err)
		}
		if got := tex.data[12:16]; !bytes.Equal(got, tt.want) {
			t.Errorf("format %d texel = %v, want %v", tt.format, got, tt.want)
		}
		if err := b.StoreTexel(3, 5, 5, [4]float32{}); err != nil {
			t.Errorf("out of range store: %v", err)
		}
		if err := b.StoreTexel(0, 0, 0, [4]float32{}); err == nil {
			t.Error("store to unbound slot succeeded")
		}
	}
}

func TestBackendLifecycle(t *testing.T) {
	b := New(WithWorkers(2))
	if _, err := b.Context(); !errors.Is(err, backend.ErrNotInitialized) {
		t.Errorf("Context before Init = %v, want ErrNotInitialized", err)
	}
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	if err := b.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	ctx, err := b.Context()
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Info().DeviceType; got != gpucore.DeviceTypeCPU {
		t.Errorf("DeviceType = %v, want cpu", got)
	}
	b.Close()
	if !ctx.Closed() {
		t.Error("context still open after Close")
	}
	if !backend.IsRegistered(backend.BackendSoftware) {
		t.Error("software backend not registered")
	}
}
