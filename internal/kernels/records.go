package kernels

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Record sizes in bytes, matching the WGSL structs.
const (
	RayStride          = 32
	IntersectionStride = 32
	ParamsSize         = 8
)

// MissT is the distance recorded for a ray that hits nothing.
const MissT float32 = -1

// NoPrimitive is the primitive index recorded for a miss.
const NoPrimitive = ^uint32(0)

// Epsilon is the smallest accepted hit distance.
const Epsilon float32 = 1e-4

// Ray is one entry of the paths buffer.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// Intersection is one entry of the intersect buffer.
type Intersection struct {
	Normal    mgl32.Vec3
	T         float32
	Primitive uint32
	Kind      uint32
}

// Hit reports whether the record holds a hit: a primitive index and a
// positive distance. A zeroed record is not a hit.
func (i Intersection) Hit() bool { return i.Primitive != NoPrimitive && i.T > 0 }

// Miss is the record written for a ray that hits nothing.
func Miss() Intersection {
	return Intersection{T: MissT, Primitive: NoPrimitive}
}

// Params is a pair of u32 values in a uniform block. The engine uses
// params0 = (width, height) and params1 = (primitives, pixels).
type Params [2]uint32

// Bytes encodes p.
func (p Params) Bytes() []byte {
	b := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(b[0:], p[0])
	binary.LittleEndian.PutUint32(b[4:], p[1])
	return b
}

// DecodeParams decodes a params block.
func DecodeParams(b []byte) Params {
	return Params{binary.LittleEndian.Uint32(b[0:]), binary.LittleEndian.Uint32(b[4:])}
}

func getVec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{getF32(b[0:]), getF32(b[4:]), getF32(b[8:])}
}

func putVec3(b []byte, v mgl32.Vec3) {
	putF32(b[0:], v[0])
	putF32(b[4:], v[1])
	putF32(b[8:], v[2])
}

func getF32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

func putF32(b []byte, f float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(f)) }

// ReadRay decodes ray i from a paths buffer.
func ReadRay(paths []byte, i uint32) Ray {
	off := int(i) * RayStride
	return Ray{
		Origin:    getVec3(paths[off:]),
		Direction: getVec3(paths[off+16:]),
	}
}

// WriteRay encodes r as ray i of a paths buffer.
func WriteRay(paths []byte, i uint32, r Ray) {
	off := int(i) * RayStride
	putVec3(paths[off:], r.Origin)
	putF32(paths[off+12:], 0)
	putVec3(paths[off+16:], r.Direction)
	putF32(paths[off+28:], 0)
}

// ReadIntersection decodes record i from an intersect buffer.
func ReadIntersection(buf []byte, i uint32) Intersection {
	off := int(i) * IntersectionStride
	return Intersection{
		Normal:    getVec3(buf[off:]),
		T:         getF32(buf[off+12:]),
		Primitive: binary.LittleEndian.Uint32(buf[off+16:]),
		Kind:      binary.LittleEndian.Uint32(buf[off+20:]),
	}
}

// WriteIntersection encodes h as record i of an intersect buffer.
func WriteIntersection(buf []byte, i uint32, h Intersection) {
	off := int(i) * IntersectionStride
	putVec3(buf[off:], h.Normal)
	putF32(buf[off+12:], h.T)
	binary.LittleEndian.PutUint32(buf[off+16:], h.Primitive)
	binary.LittleEndian.PutUint32(buf[off+20:], h.Kind)
	binary.LittleEndian.PutUint64(buf[off+24:], 0)
}
