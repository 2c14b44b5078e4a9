// Package software provides the CPU reference device.
//
// The device implements gpucore.GPUAdapter entirely in host memory and
// runs each compute pipeline with the host kernel registered under the
// shader module's name, spreading workgroups over a worker pool. Output is
// deterministic for a given camera and scene.
//
// The package registers itself as backend "software" on import:
//
//	import _ "github.com/gogpu/oscuras/backend/software"
package software
