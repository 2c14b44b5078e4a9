// Package scene holds the ordered list of primitives a frame is traced
// against.
//
// A Scene is immutable once built. Its order is significant: the position of
// a primitive is the index the intersection stage reports, and equal-distance
// hits resolve to the lowest index.
package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras"
)

// GeometryStride is the size in bytes of one geometry record:
// three column-major mat4x4<f32> followed by the kind and padding.
const GeometryStride = 3*64 + 16

// minDeterminant is the smallest |det| accepted as invertible.
const minDeterminant = 1e-12

// Entry places a primitive in the world.
type Entry struct {
	Primitive Primitive

	// Transform maps the primitive's own space to world space. It is
	// applied after Primitive.Model.
	Transform mgl32.Mat4
}

// Place returns an entry for p with the given placement transform.
func Place(p Primitive, transform mgl32.Mat4) Entry {
	return Entry{Primitive: p, Transform: transform}
}

// Geometry is a placed primitive with its derived matrices. Transform maps
// the canonical shape to world space.
type Geometry struct {
	Primitive Primitive
	Transform mgl32.Mat4
	Inverse   mgl32.Mat4
	TranspInv mgl32.Mat4
}

// Kind returns the primitive's tag.
func (g Geometry) Kind() Kind { return g.Primitive.Kind() }

// Scene is an ordered, immutable list of geometry.
type Scene struct {
	geometry []Geometry
}

// New builds a scene from entries in order. It fails with
// oscuras.ErrSingularTransform if any combined transform is not
// invertible.
func New(entries ...Entry) (*Scene, error) {
	geometry := make([]Geometry, 0, len(entries))
	for i, e := range entries {
		if e.Primitive == nil {
			return nil, fmt.Errorf("scene: entry %d: nil primitive", i)
		}
		g, err := place(e)
		if err != nil {
			return nil, fmt.Errorf("scene: entry %d (%s): %w", i, e.Primitive.Kind(), err)
		}
		geometry = append(geometry, g)
	}

	oscuras.Logger().Debug("scene: built", "primitives", len(geometry))

	return &Scene{geometry: geometry}, nil
}

// Default returns the reference scene: one unit sphere translated one unit
// along the camera's forward axis.
func Default() *Scene {
	s, err := New(Place(UnitSphere(), mgl32.Translate3D(0, 0, 1)))
	if err != nil {
		panic(err) // translation is always invertible
	}
	return s
}

func place(e Entry) (Geometry, error) {
	m := e.Transform.Mul4(e.Primitive.Model())
	det := m.Det()
	if math.IsNaN(float64(det)) || math.Abs(float64(det)) < minDeterminant {
		return Geometry{}, fmt.Errorf("det=%g: %w", det, oscuras.ErrSingularTransform)
	}
	inv := m.Inv()
	return Geometry{
		Primitive: e.Primitive,
		Transform: m,
		Inverse:   inv,
		TranspInv: inv.Transpose(),
	}, nil
}

// Len returns the number of primitives.
func (s *Scene) Len() int { return len(s.geometry) }

// At returns the geometry at index i.
func (s *Scene) At(i int) Geometry { return s.geometry[i] }

// Geometry returns a copy of the scene's geometry in order.
func (s *Scene) Geometry() []Geometry {
	out := make([]Geometry, len(s.geometry))
	copy(out, s.geometry)
	return out
}

// Record is one geometry entry as laid out in the geometry storage buffer.
type Record struct {
	Transform [16]float32
	Inverse   [16]float32
	TranspInv [16]float32
	Kind      uint32
	_         [3]uint32
}

// Record returns the buffer representation of g.
func (g Geometry) Record() Record {
	return Record{
		Transform: g.Transform,
		Inverse:   g.Inverse,
		TranspInv: g.TranspInv,
		Kind:      uint32(g.Kind()),
	}
}

// Bytes encodes every geometry record in order, GeometryStride bytes each.
func (s *Scene) Bytes() []byte {
	buf := make([]byte, 0, len(s.geometry)*GeometryStride)
	for _, g := range s.geometry {
		buf, _ = binary.Append(buf, binary.LittleEndian, g.Record())
	}
	return buf
}

// DecodeRecords decodes n geometry records from b.
func DecodeRecords(b []byte, n int) ([]Record, error) {
	if len(b) < n*GeometryStride {
		return nil, fmt.Errorf("scene: geometry buffer is %d bytes, want %d", len(b), n*GeometryStride)
	}
	out := make([]Record, n)
	for i := range out {
		off := i * GeometryStride
		if _, err := binary.Decode(b[off:off+GeometryStride], binary.LittleEndian, &out[i]); err != nil {
			return nil, fmt.Errorf("scene: record %d: %w", i, err)
		}
	}
	return out, nil
}
