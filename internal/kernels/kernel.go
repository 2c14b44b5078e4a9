// Package kernels is the host reference implementation of the three
// compute stages. It follows the WGSL kernels invocation for invocation and
// is what the software device runs.
package kernels

import (
	"fmt"
	"sort"
)

// Logical kernel names. They double as shader module names.
const (
	NameRayGen    = "raygen"
	NameIntersect = "intersect"
	NameShade     = "shade"
)

// Bindings gives a kernel access to the resources of its bind group.
type Bindings interface {
	// Buffer returns the bytes of the buffer bound at slot. Writes are
	// visible to later dispatches.
	Buffer(slot uint32) ([]byte, error)

	// StoreTexel writes a texel of the storage texture bound at slot,
	// converting from normalized floats.
	StoreTexel(slot, x, y uint32, rgba [4]float32) error
}

// Invocation runs the kernel for one global invocation id.
type Invocation func(gid [3]uint32)

// Kernel is a host compute kernel.
type Kernel struct {
	Name          string
	WorkgroupSize [3]uint32

	// Bind resolves the kernel's bindings once per dispatch and returns
	// the per-invocation function. Invocations of one dispatch may run
	// concurrently; each writes only its own elements.
	Bind func(b Bindings) (Invocation, error)
}

var registry = map[string]Kernel{
	NameRayGen:    rayGenKernel,
	NameIntersect: intersectKernel,
	NameShade:     shadeKernel,
}

// Lookup returns the kernel with the given logical name.
func Lookup(name string) (Kernel, bool) {
	k, ok := registry[name]
	return k, ok
}

// Names returns the registered kernel names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func bindBuffer(b Bindings, slot uint32, min int, what string) ([]byte, error) {
	buf, err := b.Buffer(slot)
	if err != nil {
		return nil, fmt.Errorf("%s (binding %d): %w", what, slot, err)
	}
	if len(buf) < min {
		return nil, fmt.Errorf("%s (binding %d): %d bytes, want at least %d", what, slot, len(buf), min)
	}
	return buf, nil
}
