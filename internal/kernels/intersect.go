package kernels

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras/scene"
)

// Bindings of the intersect stage, group 0.
const (
	IntersectGeometry uint32 = 0
	IntersectPaths    uint32 = 1
	IntersectParams   uint32 = 2
	IntersectOut      uint32 = 3
)

// IntersectWorkgroupSize is the 1D workgroup size of the intersect stage.
const IntersectWorkgroupSize = 256

var intersectKernel = Kernel{
	Name:          NameIntersect,
	WorkgroupSize: [3]uint32{IntersectWorkgroupSize, 1, 1},
	Bind:          bindIntersect,
}

func bindIntersect(b Bindings) (Invocation, error) {
	pb, err := bindBuffer(b, IntersectParams, ParamsSize, "intersect params")
	if err != nil {
		return nil, err
	}
	params := DecodeParams(pb)
	n, pixels := params[0], params[1]

	gb, err := bindBuffer(b, IntersectGeometry, int(n)*scene.GeometryStride, "intersect geometry")
	if err != nil {
		return nil, err
	}
	records, err := scene.DecodeRecords(gb, int(n))
	if err != nil {
		return nil, err
	}
	paths, err := bindBuffer(b, IntersectPaths, int(pixels)*RayStride, "intersect paths")
	if err != nil {
		return nil, err
	}
	out, err := bindBuffer(b, IntersectOut, int(pixels)*IntersectionStride, "intersect output")
	if err != nil {
		return nil, err
	}

	return func(gid [3]uint32) {
		i := gid[0]
		if i >= pixels {
			return
		}
		WriteIntersection(out, i, ClosestHit(records, ReadRay(paths, i)))
	}, nil
}

// ClosestHit returns the nearest intersection of r with the geometry, in
// order. A later primitive replaces the current hit only when strictly
// closer, so equal distances keep the lowest index.
func ClosestHit(records []scene.Record, r Ray) Intersection {
	best := Miss()
	for i := range records {
		rec := &records[i]
		t, n, ok := hitObject(rec, r)
		if !ok {
			continue
		}
		if best.Hit() && !(t < best.T) {
			continue
		}
		best = Intersection{
			Normal:    worldNormal(rec, n, r.Direction),
			T:         t,
			Primitive: uint32(i),
			Kind:      rec.Kind,
		}
	}
	return best
}

// hitObject intersects r with one primitive in its canonical space. The
// direction is transformed without renormalizing so t is a world distance
// along r.
func hitObject(rec *scene.Record, r Ray) (float32, mgl32.Vec3, bool) {
	inv := mgl32.Mat4(rec.Inverse)
	o := inv.Mul4x1(r.Origin.Vec4(1)).Vec3()
	d := inv.Mul4x1(r.Direction.Vec4(0)).Vec3()

	switch scene.Kind(rec.Kind) {
	case scene.KindSphere:
		return hitSphere(o, d)
	case scene.KindBox:
		return hitBox(o, d)
	case scene.KindTriangle:
		return hitTriangle(o, d)
	default:
		return 0, mgl32.Vec3{}, false
	}
}

func hitSphere(o, d mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	a := d.Dot(d)
	hb := o.Dot(d)
	c := o.Dot(o) - 1
	disc := hb*hb - a*c
	if a == 0 || disc < 0 {
		return 0, mgl32.Vec3{}, false
	}
	s := float32(math.Sqrt(float64(disc)))
	t := (-hb - s) / a
	if t <= Epsilon {
		t = (-hb + s) / a
		if t <= Epsilon {
			return 0, mgl32.Vec3{}, false
		}
	}
	return t, o.Add(d.Mul(t)), true
}

func hitBox(o, d mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	tNear := float32(math.Inf(-1))
	tFar := float32(math.Inf(1))
	var nearN, farN mgl32.Vec3
	for axis := 0; axis < 3; axis++ {
		if d[axis] == 0 {
			if o[axis] < -1 || o[axis] > 1 {
				return 0, mgl32.Vec3{}, false
			}
			continue
		}
		inv := 1 / d[axis]
		t0 := (-1 - o[axis]) * inv
		t1 := (1 - o[axis]) * inv
		var n mgl32.Vec3
		n[axis] = -1
		if t0 > t1 {
			t0, t1 = t1, t0
			n[axis] = 1
		}
		if t0 > tNear {
			tNear = t0
			nearN = n
		}
		if t1 < tFar {
			tFar = t1
			farN = n.Mul(-1)
		}
	}
	if tNear > tFar {
		return 0, mgl32.Vec3{}, false
	}
	if tNear > Epsilon {
		return tNear, nearN, true
	}
	if tFar > Epsilon {
		return tFar, farN, true
	}
	return 0, mgl32.Vec3{}, false
}

func hitTriangle(o, d mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	if d[2] == 0 {
		return 0, mgl32.Vec3{}, false
	}
	t := -o[2] / d[2]
	if t <= Epsilon {
		return 0, mgl32.Vec3{}, false
	}
	p := o.Add(d.Mul(t))
	if p[0] < 0 || p[1] < 0 || p[0]+p[1] > 1 {
		return 0, mgl32.Vec3{}, false
	}
	return t, mgl32.Vec3{0, 0, 1}, true
}

// worldNormal maps an object-space normal to world space and orients it
// against the ray.
func worldNormal(rec *scene.Record, n, dir mgl32.Vec3) mgl32.Vec3 {
	w := mgl32.Mat4(rec.TranspInv).Mul4x1(n.Vec4(0)).Vec3().Normalize()
	if w.Dot(dir) > 0 {
		w = w.Mul(-1)
	}
	return w
}
