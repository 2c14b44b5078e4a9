package backend

import (
	"errors"

	"github.com/gogpu/oscuras/gpu"
	"github.com/gogpu/oscuras/gpucore"
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference device.
	BackendSoftware = "software"
	// BackendNative is the name of the Pure Go GPU backend (gogpu/wgpu HAL).
	BackendNative = "native"
	// BackendRust is the name of the Rust GPU backend (go-webgpu/webgpu FFI).
	BackendRust = "rust"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend is a device the pathtracer can run on.
//
// Backends must be registered via Register() and are selected via
// Get(), Default() or Open().
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Init acquires the device. It is safe to call more than once.
	Init() error

	// Close releases the device. Contexts handed out by Context become
	// unusable.
	Close()

	// Info describes the selected adapter. It is zero before Init.
	Info() gpucore.AdapterInfo

	// Context returns the device context engines are built on.
	// It fails with ErrNotInitialized before Init.
	Context() (*gpu.Context, error)
}
