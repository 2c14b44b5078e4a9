// Package oscuras is a real-time pathtracing core built on GPU compute.
//
// A frame is produced by three compute stages that run in a fixed order:
//
//	raygen    camera           -> paths       (16x16 workgroups, one per tile)
//	intersect geometry + paths -> intersect   (256 invocations per workgroup)
//	shade     paths + intersect -> display texture
//
// The stages are recorded into a single command buffer and submitted once
// per frame. The resulting texture and its sampler are handed to whatever
// compositor presents them.
//
// # Packages
//
//   - [github.com/gogpu/oscuras/camera]: camera basis and projection math
//   - [github.com/gogpu/oscuras/scene]: geometry primitives and transforms
//   - [github.com/gogpu/oscuras/gpu]: device context, buffers, textures, samplers
//   - [github.com/gogpu/oscuras/pathtracer]: the engine and its stage table
//   - [github.com/gogpu/oscuras/backend]: device backends (native, software, rust)
//   - [github.com/gogpu/oscuras/viewer]: frame loop, resize and error policy
//
// # Logging
//
// By default nothing is logged. Call [SetLogger] to route diagnostics from
// every sub-package to a [log/slog] logger.
//
// # Errors
//
// Construction problems wrap [ErrConstruction]. Per-frame device failures
// are reported as [ErrDeviceLost] or [ErrOutOfMemory]; [Classify] maps any
// error to the action a frame loop should take.
package oscuras
