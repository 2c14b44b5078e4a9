package kernels

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras/camera"
)

// Bindings of the raygen stage, group 0.
const (
	RayGenCamera uint32 = 0
	RayGenPaths  uint32 = 1
)

var rayGenKernel = Kernel{
	Name:          NameRayGen,
	WorkgroupSize: [3]uint32{16, 16, 1},
	Bind:          bindRayGen,
}

func bindRayGen(b Bindings) (Invocation, error) {
	ub, err := bindBuffer(b, RayGenCamera, camera.UniformSize, "raygen camera")
	if err != nil {
		return nil, err
	}
	cam, err := camera.DecodeUniform(ub)
	if err != nil {
		return nil, err
	}
	w, h := cam.Resolution[0], cam.Resolution[1]
	paths, err := bindBuffer(b, RayGenPaths, int(w*h)*RayStride, "raygen paths")
	if err != nil {
		return nil, err
	}
	return func(gid [3]uint32) {
		x, y := gid[0], gid[1]
		if x >= w || y >= h {
			return
		}
		WriteRay(paths, y*w+x, PrimaryRay(cam, x, y))
	}, nil
}

// PrimaryRay returns the ray through the center of pixel (x, y). Pixel rows
// advance along the camera's up vector.
func PrimaryRay(cam camera.Uniform, x, y uint32) Ray {
	w, h := float32(cam.Resolution[0]), float32(cam.Resolution[1])
	sx := (float32(x) + 0.5 - 0.5*w) * cam.PixelLength[0]
	sy := (float32(y) + 0.5 - 0.5*h) * cam.PixelLength[1]

	view := mgl32.Vec3(cam.ViewDir)
	dir := view.
		Add(mgl32.Vec3(cam.Right).Mul(sx)).
		Add(mgl32.Vec3(cam.Up).Mul(sy))
	return Ray{Origin: cam.Position, Direction: dir.Normalize()}
}
