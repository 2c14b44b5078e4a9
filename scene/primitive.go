package scene

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Kind is the tag of a primitive as stored in the geometry buffer.
// Values are bit flags so shaders can test a set of kinds with one mask.
type Kind uint32

// Primitive kinds.
const (
	KindSphere   Kind = 1 << 0
	KindBox      Kind = 1 << 1
	KindTriangle Kind = 1 << 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "sphere"
	case KindBox:
		return "box"
	case KindTriangle:
		return "triangle"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Primitive is one of Sphere, Box or Triangle.
//
// Every primitive is intersected in a canonical object space: a sphere of
// radius 1 at the origin, the cube [-1, 1]^3, and the triangle
// (0,0,0) (1,0,0) (0,1,0). Model maps that canonical shape to the shape
// the value describes; the scene composes it with the placement transform.
type Primitive interface {
	Kind() Kind
	Model() mgl32.Mat4

	primitive()
}

// Sphere is a sphere centered at the origin.
type Sphere struct {
	Radius float32
}

// Kind returns KindSphere.
func (Sphere) Kind() Kind { return KindSphere }

// Model scales the unit sphere to Radius.
func (s Sphere) Model() mgl32.Mat4 { return mgl32.Scale3D(s.Radius, s.Radius, s.Radius) }

func (Sphere) primitive() {}

// Box is an axis-aligned box centered at the origin.
type Box struct {
	HalfExtents mgl32.Vec3
}

// Kind returns KindBox.
func (Box) Kind() Kind { return KindBox }

// Model scales the cube [-1, 1]^3 to HalfExtents.
func (b Box) Model() mgl32.Mat4 {
	return mgl32.Scale3D(b.HalfExtents[0], b.HalfExtents[1], b.HalfExtents[2])
}

func (Box) primitive() {}

// Triangle is a single triangle given by its vertices.
type Triangle struct {
	A, B, C mgl32.Vec3
}

// Kind returns KindTriangle.
func (Triangle) Kind() Kind { return KindTriangle }

// Model maps the canonical triangle onto A, B, C. The third column is the
// unit normal so the matrix is invertible for any non-degenerate triangle.
func (t Triangle) Model() mgl32.Mat4 {
	e1 := t.B.Sub(t.A)
	e2 := t.C.Sub(t.A)
	n := e1.Cross(e2)
	if l := n.Len(); l > 0 {
		n = n.Mul(1 / l)
	}
	return mgl32.Mat4FromCols(e1.Vec4(0), e2.Vec4(0), n.Vec4(0), t.A.Vec4(1))
}

func (Triangle) primitive() {}

// UnitSphere returns a sphere of radius 1.
func UnitSphere() Sphere { return Sphere{Radius: 1} }

// UnitBox returns the cube [-1, 1]^3.
func UnitBox() Box { return Box{HalfExtents: mgl32.Vec3{1, 1, 1}} }
