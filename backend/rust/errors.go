//go:build rust

package rust

import "errors"

var (
	// ErrNoGPU is returned when no GPU adapter is available.
	ErrNoGPU = errors.New("rust: no GPU adapter available")

	// ErrLibraryNotFound is returned when wgpu-native library is not found.
	ErrLibraryNotFound = errors.New("rust: wgpu-native library not found")
)
