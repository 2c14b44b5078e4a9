package viewer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/backend/software"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/gputest"
	"github.com/gogpu/oscuras/pathtracer"
	"github.com/gogpu/oscuras/shader"
)

func newSoftwareViewer(t *testing.T, w, h int, opts ...Option) (*Viewer, *software.Backend) {
	t.Helper()
	b := software.New(software.WithWorkers(2))
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	v, err := New(b, w, h, nil, opts...)
	if err != nil {
		b.Close()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(v.Close)
	return v, b
}

// fakeBackend hands out gputest adapters that fail every submit with err.
type fakeBackend struct {
	err     error
	inits   int
	adapter *gputest.Adapter
	ctx     *gpu.Context
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Init() error {
	f.inits++
	f.adapter = gputest.New()
	f.adapter.SubmitErr = f.err
	ctx, err := gpu.NewContext(f.adapter, nil)
	if err != nil {
		return err
	}
	f.ctx = ctx
	return nil
}

func (f *fakeBackend) Close() {
	if f.ctx != nil {
		f.ctx.Close()
	}
	f.ctx = nil
}

func (f *fakeBackend) Info() gpucore.AdapterInfo { return gpucore.AdapterInfo{Name: "fake"} }

func (f *fakeBackend) Context() (*gpu.Context, error) {
	if f.ctx == nil {
		return nil, backend.ErrNotInitialized
	}
	return f.ctx, nil
}

func newFakeViewer(t *testing.T, submitErr error, opts ...Option) (*Viewer, *fakeBackend) {
	t.Helper()
	f := &fakeBackend{err: submitErr}
	if err := f.Init(); err != nil {
		t.Fatal(err)
	}
	opts = append(opts, WithEngineOptions(pathtracer.WithShaderLoader(shader.HostLoader{})))
	v, err := New(f, 8, 8, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(v.Close)
	return v, f
}

func TestFramePresents(t *testing.T) {
	p := NewImagePresenter()
	v, _ := newSoftwareViewer(t, 16, 12, WithPresenter(p))

	if err := v.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	img := p.Image()
	if img == nil {
		t.Fatal("no image presented")
	}
	if got := img.Bounds(); got != image.Rect(0, 0, 16, 12) {
		t.Errorf("Bounds() = %v, want 16x12", got)
	}
	if got := v.Stats(); got != (Stats{Frames: 1}) {
		t.Errorf("Stats() = %+v, want one frame", got)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			t.Fatalf("alpha at byte %d = %d, want 255", i, img.Pix[i])
		}
	}
}

func TestEncodeFormats(t *testing.T) {
	p := NewImagePresenter()
	if err := p.Encode(&bytes.Buffer{}, FormatPNG); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Encode before Present = %v, want ErrNoFrame", err)
	}

	v, _ := newSoftwareViewer(t, 8, 8, WithPresenter(p))
	if err := v.Frame(context.Background()); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	want := p.Image()

	decoders := map[Format]func(*bytes.Buffer) (image.Image, error){
		FormatPNG:  func(b *bytes.Buffer) (image.Image, error) { return png.Decode(b) },
		FormatBMP:  func(b *bytes.Buffer) (image.Image, error) { return bmp.Decode(b) },
		FormatTIFF: func(b *bytes.Buffer) (image.Image, error) { return tiff.Decode(b) },
	}
	for f, decode := range decoders {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := p.Encode(&buf, f); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := decode(&buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Bounds() != want.Bounds() {
				t.Fatalf("Bounds() = %v, want %v", got.Bounds(), want.Bounds())
			}
			r1, g1, b1, _ := got.At(4, 4).RGBA()
			r2, g2, b2, _ := want.At(4, 4).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 {
				t.Errorf("pixel (4,4) = %d,%d,%d, want %d,%d,%d", r1>>8, g1>>8, b1>>8, r2>>8, g2>>8, b2>>8)
			}
		})
	}
}

func TestFrameRebuildsLostDevice(t *testing.T) {
	v, b := newSoftwareViewer(t, 8, 8)
	old := b.Device()
	old.Lose()

	if err := v.Frame(context.Background()); err != nil {
		t.Fatalf("Frame after loss = %v, want nil", err)
	}
	if got := v.Stats(); got.Rebuilds != 1 || got.Dropped != 1 || got.Frames != 0 {
		t.Errorf("Stats() = %+v, want one rebuild and one dropped frame", got)
	}
	if b.Device() == old {
		t.Error("backend still on the lost device")
	}

	if err := v.Frame(context.Background()); err != nil {
		t.Fatalf("Frame on rebuilt device: %v", err)
	}
	if got := v.Stats().Frames; got != 1 {
		t.Errorf("Frames = %d, want 1", got)
	}
}

func TestFrameGivesUpAfterMaxRebuilds(t *testing.T) {
	v, f := newFakeViewer(t, oscuras.ErrDeviceLost, WithMaxRebuilds(2))

	for i := 0; i < 2; i++ {
		if err := v.Frame(context.Background()); err != nil {
			t.Fatalf("Frame %d = %v, want nil", i, err)
		}
	}
	err := v.Frame(context.Background())
	if !errors.Is(err, ErrTooManyRebuilds) {
		t.Fatalf("Frame = %v, want ErrTooManyRebuilds", err)
	}
	if !errors.Is(err, oscuras.ErrDeviceLost) {
		t.Errorf("Frame = %v, should still wrap ErrDeviceLost", err)
	}
	if f.inits != 3 {
		t.Errorf("Init called %d times, want 3", f.inits)
	}
}

func TestFrameErrorPolicy(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
		want    Stats
	}{
		{"timeout drops the frame", oscuras.ErrTimeout, false, Stats{Dropped: 1}},
		{"outdated drops the frame", oscuras.ErrOutdated, false, Stats{Dropped: 1}},
		{"out of memory is fatal", oscuras.ErrOutOfMemory, true, Stats{}},
		{"unknown error is fatal", errors.New("boom"), true, Stats{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, f := newFakeViewer(t, tt.err)
			err := v.Frame(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Frame = %v, wantErr %v", err, tt.wantErr)
			}
			if got := v.Stats(); got != tt.want {
				t.Errorf("Stats() = %+v, want %+v", got, tt.want)
			}
			if f.inits != 1 {
				t.Errorf("Init called %d times, want 1", f.inits)
			}
		})
	}
}

func TestPresenterErrorIsClassified(t *testing.T) {
	calls := 0
	p := PresenterFunc(func(context.Context, *pathtracer.Engine) error {
		calls++
		return oscuras.ErrOutdated
	})
	v, _ := newSoftwareViewer(t, 4, 4, WithPresenter(p))
	if err := v.Frame(context.Background()); err != nil {
		t.Fatalf("Frame = %v, want nil", err)
	}
	if calls != 1 || v.Stats().Dropped != 1 {
		t.Errorf("calls = %d, stats = %+v", calls, v.Stats())
	}
}

func TestResize(t *testing.T) {
	v, _ := newSoftwareViewer(t, 8, 8)
	first := v.Engine()

	if err := v.Resize(16, 4); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := v.Engine().Resolution(); w != 16 || h != 4 {
		t.Errorf("Resolution() = %dx%d, want 16x4", w, h)
	}
	if v.Engine() == first {
		t.Error("Resize kept the old engine")
	}
	if w, h := v.Camera().Resolution(); w != 16 || h != 4 {
		t.Errorf("camera resolution = %dx%d, want 16x4", w, h)
	}

	current := v.Engine()
	if err := v.Resize(0, 4); !errors.Is(err, oscuras.ErrInvalidResolution) {
		t.Errorf("Resize(0, 4) = %v, want ErrInvalidResolution", err)
	}
	if v.Engine() != current {
		t.Error("failed Resize replaced the engine")
	}
	if err := v.Frame(context.Background()); err != nil {
		t.Errorf("Frame after failed resize: %v", err)
	}
}

func TestClose(t *testing.T) {
	v, _ := newSoftwareViewer(t, 4, 4)
	v.Close()
	v.Close()
	if err := v.Frame(context.Background()); !errors.Is(err, oscuras.ErrClosed) {
		t.Errorf("Frame after Close = %v, want ErrClosed", err)
	}
}

func TestNewRejectsBadResolution(t *testing.T) {
	b := software.New()
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := New(b, -1, 4, nil); !errors.Is(err, oscuras.ErrConstruction) {
		t.Errorf("New(-1, 4) = %v, want a construction error", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"png", FormatPNG, true},
		{".PNG", FormatPNG, true},
		{"bmp", FormatBMP, true},
		{"tif", FormatTIFF, true},
		{".tiff", FormatTIFF, true},
		{"jpeg", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseFormat(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if f, err := FormatFromPath("out/frame.bmp"); err != nil || f != FormatBMP {
		t.Errorf("FormatFromPath = %v, %v, want bmp", f, err)
	}
}
