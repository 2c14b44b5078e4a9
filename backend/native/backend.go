//go:build !nogpu

package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
)

func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return New()
	})
}

// Option configures a native backend.
type Option func(*options)

type options struct {
	provider   gpucontext.DeviceProvider
	deviceType gpucore.DeviceType
	limits     *gputypes.Limits
}

// WithProvider makes the backend use a device owned by the host
// application instead of opening its own. The provider must also expose
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
// The shared device is not destroyed by Close.
func WithProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithDeviceType prefers adapters of type t. Without it discrete and
// integrated GPUs are preferred over everything else.
func WithDeviceType(t gpucore.DeviceType) Option {
	return func(o *options) { o.deviceType = t }
}

// WithLimits requests limits other than gputypes.DefaultLimits when the
// device is opened.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) { o.limits = &l }
}

// Backend drives a Vulkan device through gogpu/wgpu HAL.
type Backend struct {
	mu       sync.Mutex
	opts     options
	instance hal.Instance
	device   hal.Device
	adapter  *HALAdapter
	ctx      *gpu.Context
	external bool
}

// New returns an uninitialized native backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, o := range opts {
		o(&b.opts)
	}
	return b
}

// Name returns backend.BackendNative.
func (b *Backend) Name() string { return backend.BackendNative }

// Init opens the device, or adopts the provider's device.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.adapter != nil {
		return nil
	}

	limits := gputypes.DefaultLimits()
	if b.opts.limits != nil {
		limits = *b.opts.limits
	}

	if b.opts.provider != nil {
		device, queue, err := halFromProvider(b.opts.provider)
		if err != nil {
			return err
		}
		b.device = device
		b.external = true
		b.adapter = NewHALAdapter(device, queue, &limits, gpucore.AdapterInfo{
			Name:    "shared",
			Backend: backend.BackendNative,
		})
	} else {
		instance, selected, err := openInstance(b.opts.deviceType)
		if err != nil {
			return err
		}
		openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
		if err != nil {
			instance.Destroy()
			return fmt.Errorf("native: open device: %w", mapError(err))
		}
		b.instance = instance
		b.device = openDev.Device
		b.adapter = NewHALAdapter(openDev.Device, openDev.Queue, &limits, adapterInfo(selected))
	}

	ctx, err := gpu.NewContext(b.adapter, b.release)
	if err != nil {
		b.releaseLocked()
		return err
	}
	b.ctx = ctx
	oscuras.Logger().Info("native: device initialized",
		"adapter", b.adapter.Info().Name,
		"type", b.adapter.Info().DeviceType.String(),
		"shared", b.external)
	return nil
}

// release is handed to the context; it runs while Close holds no lock.
func (b *Backend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

func (b *Backend) releaseLocked() {
	if b.device != nil && !b.external {
		b.device.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
	}
	b.device = nil
	b.instance = nil
	b.adapter = nil
	b.external = false
}

// Close releases the device unless it is shared.
func (b *Backend) Close() {
	b.mu.Lock()
	ctx := b.ctx
	b.ctx = nil
	b.mu.Unlock()
	if ctx != nil {
		ctx.Close()
	}
}

// Info describes the device.
func (b *Backend) Info() gpucore.AdapterInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.adapter == nil {
		return gpucore.AdapterInfo{Backend: backend.BackendNative}
	}
	return b.adapter.Info()
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

// Adapter returns the HAL adapter, or nil before Init.
func (b *Backend) Adapter() *HALAdapter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adapter
}

// Devices lists the adapters the Vulkan backend can see.
func Devices() ([]gpucore.AdapterInfo, error) {
	start := time.Now()
	instance, err := createInstance()
	if err != nil {
		return nil, err
	}
	defer instance.Destroy()

	adapters := instance.EnumerateAdapters(nil)
	out := make([]gpucore.AdapterInfo, 0, len(adapters))
	for i := range adapters {
		out = append(out, adapterInfo(&adapters[i]))
	}
	oscuras.Logger().Debug("native: enumerated adapters", "count", len(out), "elapsed", time.Since(start))
	return out, nil
}

func createInstance() (hal.Instance, error) {
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, ErrVulkanUnavailable
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrVulkanUnavailable, err)
	}
	return instance, nil
}

func openInstance(want gpucore.DeviceType) (hal.Instance, *hal.ExposedAdapter, error) {
	instance, err := createInstance()
	if err != nil {
		return nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, ErrNoGPU
	}
	return instance, selectAdapter(adapters, want), nil
}

func selectAdapter(adapters []hal.ExposedAdapter, want gpucore.DeviceType) *hal.ExposedAdapter {
	types := make([]gpucore.DeviceType, len(adapters))
	for i := range adapters {
		types[i] = convertDeviceType(adapters[i].Info.DeviceType)
	}
	return &adapters[pickAdapter(types, want)]
}

// pickAdapter returns the index of the first adapter of type want, falling
// back to the first discrete or integrated GPU and then to the first
// adapter.
func pickAdapter(types []gpucore.DeviceType, want gpucore.DeviceType) int {
	if want != gpucore.DeviceTypeOther {
		for i, t := range types {
			if t == want {
				return i
			}
		}
	}
	for i, t := range types {
		if t == gpucore.DeviceTypeDiscreteGPU || t == gpucore.DeviceTypeIntegratedGPU {
			return i
		}
	}
	return 0
}

func adapterInfo(a *hal.ExposedAdapter) gpucore.AdapterInfo {
	return gpucore.AdapterInfo{
		Name:       a.Info.Name,
		Backend:    backend.BackendNative,
		DeviceType: convertDeviceType(a.Info.DeviceType),
	}
}

func halFromProvider(provider any) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}
	return device, queue, nil
}
