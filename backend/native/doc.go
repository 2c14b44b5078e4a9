//go:build !nogpu

// Package native runs the pathtracer on a Vulkan device through the Pure Go
// gogpu/wgpu HAL.
//
// Importing the package registers it as backend.BackendNative:
//
//	import _ "github.com/gogpu/oscuras/backend/native"
//
// A host application that already owns a device can share it with
// WithProvider; otherwise Init opens the preferred adapter itself.
//
// HALAdapter maps gpucore IDs to HAL objects. Readbacks go through a
// staging buffer and a fence wait; texture rows are copied with a 256-byte
// aligned pitch and repacked tightly. HAL failures are tagged with
// oscuras.ErrDeviceLost, oscuras.ErrOutOfMemory or oscuras.ErrTimeout so
// that oscuras.Classify can route them.
package native
