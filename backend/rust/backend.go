//go:build rust

package rust

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/backend"
	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
)

func init() {
	backend.Register(backend.BackendRust, func() backend.Backend {
		return New()
	})
}

// Backend holds a wgpu-native device.
type Backend struct {
	mu sync.RWMutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	info        gpucore.AdapterInfo
	initialized bool
}

// New returns an uninitialized rust backend.
func New() *Backend {
	return &Backend{}
}

// Name returns backend.BackendRust.
func (b *Backend) Name() string { return backend.BackendRust }

// Init loads wgpu-native and opens a device on the high performance
// adapter.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return nil
	}

	if err := wgpu.Init(); err != nil {
		return fmt.Errorf("%w: %w", ErrLibraryNotFound, err)
	}
	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return fmt.Errorf("rust: create instance: %w", err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return fmt.Errorf("rust: request device: %w", err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return fmt.Errorf("rust: device has no queue")
	}

	b.instance, b.adapter, b.device, b.queue = instance, adapter, device, queue
	b.info = adapterInfo(adapter)
	b.initialized = true

	oscuras.Logger().Info("rust: backend initialized",
		"adapter", b.info.Name,
		"type", b.info.DeviceType.String())
	return nil
}

// Close releases the device.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return
	}
	if b.queue != nil {
		b.queue.Release()
	}
	if b.device != nil {
		b.device.Release()
	}
	if b.adapter != nil {
		b.adapter.Release()
	}
	if b.instance != nil {
		b.instance.Release()
	}
	b.instance, b.adapter, b.device, b.queue = nil, nil, nil, nil
	b.initialized = false
	oscuras.Logger().Debug("rust: backend closed")
}

// Info describes the adapter.
func (b *Backend) Info() gpucore.AdapterInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// Context is not available yet; see the package documentation.
func (b *Backend) Context() (*gpu.Context, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return nil, fmt.Errorf("rust: compute dispatch: %w", oscuras.ErrNotImplemented)
}

// IsInitialized reports whether Init succeeded.
func (b *Backend) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func adapterInfo(adapter *wgpu.Adapter) gpucore.AdapterInfo {
	info, err := adapter.GetInfo()
	if err != nil {
		return gpucore.AdapterInfo{Name: "wgpu-native", Backend: backend.BackendRust}
	}
	name := info.Device
	if info.Description != "" {
		name = fmt.Sprintf("%s (%s)", info.Device, info.Description)
	}
	return gpucore.AdapterInfo{
		Name:       name,
		Backend:    backend.BackendRust + "/" + backendTypeToString(info.BackendType),
		DeviceType: convertAdapterType(info.AdapterType),
	}
}

func backendTypeToString(bt wgpu.BackendType) string {
	switch bt {
	case wgpu.BackendTypeNull:
		return "null"
	case wgpu.BackendTypeWebGPU:
		return "webgpu"
	case wgpu.BackendTypeD3D11:
		return "d3d11"
	case wgpu.BackendTypeD3D12:
		return "d3d12"
	case wgpu.BackendTypeMetal:
		return "metal"
	case wgpu.BackendTypeVulkan:
		return "vulkan"
	case wgpu.BackendTypeOpenGL:
		return "opengl"
	case wgpu.BackendTypeOpenGLES:
		return "opengles"
	default:
		return "unknown"
	}
}

func convertAdapterType(at wgpu.AdapterType) gpucore.DeviceType {
	switch at {
	case wgpu.AdapterTypeDiscreteGPU:
		return gpucore.DeviceTypeDiscreteGPU
	case wgpu.AdapterTypeIntegratedGPU:
		return gpucore.DeviceTypeIntegratedGPU
	case wgpu.AdapterTypeCPU:
		return gpucore.DeviceTypeCPU
	default:
		return gpucore.DeviceTypeOther
	}
}
