// Package camera builds the pinhole camera that parameterizes ray
// generation.
//
// A Camera is fixed for its lifetime: it is built once for a resolution and
// snapshotted into the engine's uniform buffer. Any change means building a
// new camera and a new engine.
package camera

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras"
)

// FovY is the vertical field of view in radians (45 degrees).
var FovY = mgl32.DegToRad(45)

// UniformSize is the size in bytes of the camera uniform block.
const UniformSize = 96

var (
	worldUp = mgl32.Vec3{0, 1, 0}
	forward = mgl32.Vec3{0, 0, 1}
)

// Camera is a pinhole camera at a fixed resolution.
type Camera struct {
	width, height uint32

	position mgl32.Vec3
	viewDir  mgl32.Vec3
	up       mgl32.Vec3
	right    mgl32.Vec3

	aspect float32
	fovX   float32
	fovY   float32

	// pixelLength is the tangent-space extent of one pixel per axis.
	pixelLength mgl32.Vec2
}

// New returns a camera for a width x height image, placed at the origin and
// looking along +Z.
func New(width, height int) (*Camera, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("camera: %dx%d: %w", width, height, oscuras.ErrInvalidResolution)
	}

	viewDir := forward
	// Project the forward component out of world up.
	up := worldUp.Cross(viewDir).Cross(viewDir).Normalize()
	right := viewDir.Cross(up).Normalize()

	aspect := float32(width) / float32(height)
	fovY := FovY
	tanHalfY := math.Tan(float64(fovY) / 2)
	tanHalfX := tanHalfY * float64(aspect)
	fovX := float32(2 * math.Atan(tanHalfX))

	c := &Camera{
		width:    uint32(width),
		height:   uint32(height),
		position: mgl32.Vec3{},
		viewDir:  viewDir,
		up:       up,
		right:    right,
		aspect:   aspect,
		fovX:     fovX,
		fovY:     fovY,
		pixelLength: mgl32.Vec2{
			float32(2 * tanHalfX / float64(width)),
			float32(2 * tanHalfY / float64(height)),
		},
	}

	oscuras.Logger().Debug("camera: built",
		"width", width, "height", height,
		"fovx", c.fovX, "fovy", c.fovY)

	return c, nil
}

// Resolution returns the image size in pixels.
func (c *Camera) Resolution() (width, height uint32) { return c.width, c.height }

// Position returns the eye position.
func (c *Camera) Position() mgl32.Vec3 { return c.position }

// ViewDir returns the unit forward vector.
func (c *Camera) ViewDir() mgl32.Vec3 { return c.viewDir }

// LookAt returns the point one unit in front of the eye.
func (c *Camera) LookAt() mgl32.Vec3 { return c.position.Add(c.viewDir) }

// Up returns the unit up vector, orthogonal to ViewDir.
func (c *Camera) Up() mgl32.Vec3 { return c.up }

// Right returns the unit right vector, orthogonal to ViewDir and Up.
func (c *Camera) Right() mgl32.Vec3 { return c.right }

// Aspect returns width / height.
func (c *Camera) Aspect() float32 { return c.aspect }

// FovX returns the horizontal field of view in radians.
func (c *Camera) FovX() float32 { return c.fovX }

// FovY returns the vertical field of view in radians.
func (c *Camera) FovY() float32 { return c.fovY }

// PixelLength returns 2*tan(fov/2)/resolution for each axis.
func (c *Camera) PixelLength() mgl32.Vec2 { return c.pixelLength }

// Uniform is the camera block as laid out in the raygen shader.
//
//	offset  field
//	0       resolution   vec2<u32>
//	8       pixel_length vec2<f32>
//	16      position     vec3<f32>, aspect f32
//	32      look_at      vec3<f32>, fovx   f32
//	48      up           vec3<f32>, fovy   f32
//	64      right        vec3<f32>, pad
//	80      view_dir     vec3<f32>, pad
type Uniform struct {
	Resolution  [2]uint32
	PixelLength [2]float32
	Position    [3]float32
	Aspect      float32
	LookAt      [3]float32
	FovX        float32
	Up          [3]float32
	FovY        float32
	Right       [3]float32
	_           uint32
	ViewDir     [3]float32
	_           uint32
}

// Uniform returns the shader representation of c.
func (c *Camera) Uniform() Uniform {
	return Uniform{
		Resolution:  [2]uint32{c.width, c.height},
		PixelLength: c.pixelLength,
		Position:    c.position,
		Aspect:      c.aspect,
		LookAt:      c.LookAt(),
		FovX:        c.fovX,
		Up:          c.up,
		FovY:        c.fovY,
		Right:       c.right,
		ViewDir:     c.viewDir,
	}
}

// Bytes encodes the camera uniform block in little endian order.
func (c *Camera) Bytes() []byte {
	buf := make([]byte, 0, UniformSize)
	buf, _ = binary.Append(buf, binary.LittleEndian, c.Uniform())
	return buf
}

// DecodeUniform is the inverse of Bytes. b must hold at least UniformSize
// bytes.
func DecodeUniform(b []byte) (Uniform, error) {
	var u Uniform
	if len(b) < UniformSize {
		return u, fmt.Errorf("camera: uniform block is %d bytes, want %d", len(b), UniformSize)
	}
	_, err := binary.Decode(b[:UniformSize], binary.LittleEndian, &u)
	return u, err
}
