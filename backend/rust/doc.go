// Package rust probes the wgpu-native (Rust) WebGPU implementation through
// go-webgpu/webgpu.
//
// The package is compiled with the "rust" build tag:
//
//	go build -tags rust ./...
//	import _ "github.com/gogpu/oscuras/backend/rust"
//
// Without the tag a stub registers a nil factory and backend selection
// skips straight to native.
//
// With the tag, Init loads wgpu-native, requests a high performance adapter
// and opens a device, so the adapter shows up in device listings. The
// compute stages are not yet wired to go-webgpu: Context reports
// oscuras.ErrNotImplemented and backend.Open falls back to the next backend
// in priority order (rust > native > software).
//
// wgpu-native must be on the library path:
//   - Windows: wgpu_native.dll
//   - Linux: libwgpu_native.so
//   - macOS: libwgpu_native.dylib
package rust
