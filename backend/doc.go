// Package backend provides the pluggable device abstraction the
// pathtracer runs on.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime:
//
//	import (
//		_ "github.com/gogpu/oscuras/backend/native"
//		_ "github.com/gogpu/oscuras/backend/software"
//	)
//
// # Backend Selection
//
// Open initializes the named backend, or the best available one, and
// returns its device context:
//
//	b, ctx, err := backend.Open("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	eng, err := pathtracer.New(ctx, cam, sc)
//
// # Available Backends
//
//   - "rust": wgpu-native through go-webgpu (build tag rust, probe only)
//   - "native": Vulkan through the gogpu/wgpu HAL
//   - "software": CPU reference device (always available)
package backend
