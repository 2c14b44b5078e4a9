package software

import (
	"sync"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
)

func init() {
	backend.Register(backend.BackendSoftware, func() backend.Backend {
		return New()
	})
}

// Option configures a software backend.
type Option func(*options)

type options struct {
	workers int
	limit   uint64
}

// WithWorkers sets the number of goroutines dispatches run on.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithMemoryLimit sets the device memory budget in bytes.
func WithMemoryLimit(bytes uint64) Option {
	return func(o *options) { o.limit = bytes }
}

// Backend is the CPU reference backend.
type Backend struct {
	mu     sync.Mutex
	opts   options
	device *Device
	ctx    *gpu.Context
}

// New returns an uninitialized software backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, o := range opts {
		o(&b.opts)
	}
	return b
}

// Name returns backend.BackendSoftware.
func (b *Backend) Name() string { return backend.BackendSoftware }

// Init creates the device.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device != nil {
		return nil
	}
	b.device = NewDevice(b.opts.workers, b.opts.limit)
	ctx, err := gpu.NewContext(b.device, b.device.Release)
	if err != nil {
		b.device.Release()
		b.device = nil
		return err
	}
	b.ctx = ctx
	oscuras.Logger().Debug("software: initialized", "workers", b.device.pool.Workers())
	return nil
}

// Close releases the device.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		b.ctx.Close()
	}
	b.ctx = nil
	b.device = nil
}

// Info describes the device.
func (b *Backend) Info() gpucore.AdapterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.device == nil {
		return gpucore.AdapterInfo{}
	}
	return b.device.Info()
}

// Context returns the device context.
func (b *Backend) Context() (*gpu.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, backend.ErrNotInitialized
	}
	return b.ctx, nil
}

// Device returns the underlying device, or nil before Init.
func (b *Backend) Device() *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device
}
