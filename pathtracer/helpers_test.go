package pathtracer

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/oscuras/internal/kernels"
)

func decodeParams(b []byte) kernels.Params { return kernels.DecodeParams(b) }

func putIntersection(buf []byte, i uint32, n mgl32.Vec3, t float32, prim, kind uint32) {
	kernels.WriteIntersection(buf, i, kernels.Intersection{Normal: n, T: t, Primitive: prim, Kind: kind})
}
