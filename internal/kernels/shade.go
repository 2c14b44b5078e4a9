package kernels

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras/scene"
)

// Bindings of the shade stage, group 0.
const (
	ShadePaths     uint32 = 0
	ShadeIntersect uint32 = 1
	ShadeParams    uint32 = 2
	ShadeDisplay   uint32 = 3
)

const ambient = 0.15

var (
	skyLow  = mgl32.Vec3{1, 1, 1}
	skyHigh = mgl32.Vec3{0.5, 0.7, 1}
)

// Albedo returns the base color of a primitive kind.
func Albedo(k scene.Kind) mgl32.Vec3 {
	switch k {
	case scene.KindSphere:
		return mgl32.Vec3{0.9, 0.35, 0.3}
	case scene.KindBox:
		return mgl32.Vec3{0.3, 0.8, 0.4}
	case scene.KindTriangle:
		return mgl32.Vec3{0.35, 0.5, 0.95}
	default:
		return mgl32.Vec3{1, 0, 1}
	}
}

var shadeKernel = Kernel{
	Name:          NameShade,
	WorkgroupSize: [3]uint32{16, 16, 1},
	Bind:          bindShade,
}

func bindShade(b Bindings) (Invocation, error) {
	pb, err := bindBuffer(b, ShadeParams, ParamsSize, "shade params")
	if err != nil {
		return nil, err
	}
	params := DecodeParams(pb)
	w, h := params[0], params[1]

	paths, err := bindBuffer(b, ShadePaths, int(w*h)*RayStride, "shade paths")
	if err != nil {
		return nil, err
	}
	hits, err := bindBuffer(b, ShadeIntersect, int(w*h)*IntersectionStride, "shade intersect")
	if err != nil {
		return nil, err
	}

	return func(gid [3]uint32) {
		x, y := gid[0], gid[1]
		if x >= w || y >= h {
			return
		}
		i := y*w + x
		c := Shade(ReadRay(paths, i), ReadIntersection(hits, i))
		// Texel writes address distinct pixels; the store cannot fail for
		// a bound texture inside the grid.
		_ = b.StoreTexel(ShadeDisplay, x, y, c)
	}, nil
}

// Shade returns the color of one pixel. Hits are lit by a headlight along
// the ray; misses get a vertical sky gradient.
func Shade(r Ray, hit Intersection) [4]float32 {
	if !hit.Hit() {
		t := 0.5 * (r.Direction[1] + 1)
		c := skyLow.Mul(1 - t).Add(skyHigh.Mul(t))
		return [4]float32{c[0], c[1], c[2], 1}
	}
	lambert := -hit.Normal.Dot(r.Direction)
	if lambert < 0 {
		lambert = 0
	}
	c := Albedo(scene.Kind(hit.Kind)).Mul(ambient + (1-ambient)*lambert)
	return [4]float32{c[0], c[1], c[2], 1}
}

// Unorm8 converts a normalized float to an 8-bit channel, rounding to
// nearest as a rgba8unorm store does.
func Unorm8(f float32) uint8 {
	switch {
	case f != f || f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(f*255 + 0.5)
}
