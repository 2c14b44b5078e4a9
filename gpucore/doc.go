// Package gpucore provides the device abstraction shared by every oscuras
// backend.
//
// The [GPUAdapter] interface covers exactly what a compute pipeline needs:
// buffers, storage textures, samplers, shader modules, bind groups, compute
// pipelines and command encoders. Resources are addressed by opaque IDs
// ([BufferID], [TextureID], ...) and each adapter keeps the mapping to its
// own objects.
//
//	               +------------------+
//	               |   pathtracer     |
//	               +--------+---------+
//	                        |
//	                 gpucore.GPUAdapter
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  native adapter |          | software adapter|
//	|  (hal.Device)   |          | (host kernels)  |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	+-----------------+
//
// # Command model
//
// Work is recorded through a [CommandEncoder] as a sequence of compute
// passes. Passes run in recording order and each one sees the writes of the
// previous ones. [GPUAdapter.Submit] executes finished command buffers and
// returns when the device has completed them.
//
// # Dispatch sizing
//
// [WorkgroupCount] and [GridSize] compute the ceiling division used to
// cover an image or array with fixed-size workgroups.
package gpucore
