package gpu

import (
	"errors"
	"sync"

	"github.com/gogpu/oscuras"
	"github.com/gogpu/oscuras/gpucore"
)

// ErrNilAdapter is returned when a context is created without an adapter.
var ErrNilAdapter = errors.New("gpu: nil adapter")

// Context is the explicit device handle passed to every component that
// allocates device resources. Several contexts, and engines on them, can
// coexist in one process.
type Context struct {
	adapter gpucore.GPUAdapter
	info    gpucore.AdapterInfo

	mu      sync.Mutex
	closed  bool
	release func()
}

// NewContext wraps adapter. release, when non-nil, is called once by Close
// to free the device behind the adapter.
func NewContext(adapter gpucore.GPUAdapter, release func()) (*Context, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	info := adapter.Info()
	oscuras.Logger().Info("gpu: context created",
		"adapter", info.Name,
		"backend", info.Backend,
		"type", info.DeviceType.String())
	return &Context{adapter: adapter, info: info, release: release}, nil
}

// Adapter returns the device adapter.
func (c *Context) Adapter() gpucore.GPUAdapter { return c.adapter }

// Info describes the device.
func (c *Context) Info() gpucore.AdapterInfo { return c.info }

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the device. Resources created on the context must be
// destroyed first. Close is idempotent.
func (c *Context) Close() {
	c.mu.Lock()
	release := c.release
	done := c.closed
	c.closed = true
	c.release = nil
	c.mu.Unlock()

	if done {
		return
	}
	if release != nil {
		release()
	}
}
