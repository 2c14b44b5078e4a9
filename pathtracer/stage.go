// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pathtracer

import (
	"fmt"

	"github.com/gogpu/oscuras/gpucore"
	"github.com/gogpu/oscuras/internal/kernels"
	"github.com/gogpu/oscuras/shader"
)

// Stage is one compute stage of a frame.
type Stage int

const (
	// StageRayGen writes one primary ray per pixel.
	// Reads: camera. Writes: paths.
	StageRayGen Stage = iota

	// StageIntersect finds the closest primitive along every ray.
	// Reads: geometry, paths, params1. Writes: intersect.
	StageIntersect

	// StageShade colors every pixel.
	// Reads: paths, intersect, params0. Writes: display.
	StageShade

	// StageCount is the total number of stages.
	StageCount
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageRayGen:
		return "raygen"
	case StageIntersect:
		return "intersect"
	case StageShade:
		return "shade"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Resource names a device resource owned by the engine.
type Resource int

// Engine resources.
const (
	ResourceCamera Resource = iota
	ResourcePaths
	ResourceIntersect
	ResourceGeometry
	ResourceParams0
	ResourceParams1
	ResourceDisplay

	resourceCount
)

// String returns the resource name, also used as its label suffix.
func (r Resource) String() string {
	switch r {
	case ResourceCamera:
		return "camera"
	case ResourcePaths:
		return "paths"
	case ResourceIntersect:
		return "intersect"
	case ResourceGeometry:
		return "geometry"
	case ResourceParams0:
		return "params0"
	case ResourceParams1:
		return "params1"
	case ResourceDisplay:
		return "display"
	default:
		return fmt.Sprintf("Resource(%d)", int(r))
	}
}

// Binding places a resource in a stage's bind group 0.
type Binding struct {
	Slot     uint32
	Resource Resource
	Write    bool
}

type stageInfo struct {
	shader    string
	workgroup [3]uint32
	bindings  []Binding
}

var stageTable = [StageCount]stageInfo{
	StageRayGen: {
		shader:    shader.RayGen,
		workgroup: [3]uint32{16, 16, 1},
		bindings: []Binding{
			{kernels.RayGenCamera, ResourceCamera, false},
			{kernels.RayGenPaths, ResourcePaths, true},
		},
	},
	StageIntersect: {
		shader:    shader.Intersect,
		workgroup: [3]uint32{kernels.IntersectWorkgroupSize, 1, 1},
		bindings: []Binding{
			{kernels.IntersectGeometry, ResourceGeometry, false},
			{kernels.IntersectPaths, ResourcePaths, false},
			{kernels.IntersectParams, ResourceParams1, false},
			{kernels.IntersectOut, ResourceIntersect, true},
		},
	},
	StageShade: {
		shader:    shader.Shade,
		workgroup: [3]uint32{16, 16, 1},
		bindings: []Binding{
			{kernels.ShadePaths, ResourcePaths, false},
			{kernels.ShadeIntersect, ResourceIntersect, false},
			{kernels.ShadeParams, ResourceParams0, false},
			{kernels.ShadeDisplay, ResourceDisplay, true},
		},
	},
}

// Shader returns the logical name of the stage's kernel.
func (s Stage) Shader() string { return stageTable[s].shader }

// WorkgroupSize returns the stage's workgroup dimensions.
func (s Stage) WorkgroupSize() [3]uint32 { return stageTable[s].workgroup }

// Bindings returns the stage's bind group 0 layout, in slot order.
func (s Stage) Bindings() []Binding {
	return append([]Binding(nil), stageTable[s].bindings...)
}

// Reads returns the resources the stage reads.
func (s Stage) Reads() []Resource { return s.resources(false) }

// Writes returns the resources the stage writes.
func (s Stage) Writes() []Resource { return s.resources(true) }

func (s Stage) resources(write bool) []Resource {
	var out []Resource
	for _, b := range stageTable[s].bindings {
		if b.Write == write {
			out = append(out, b.Resource)
		}
	}
	return out
}

// DispatchSize returns the workgroup grid of a stage for a width x height
// frame.
//
// The 2D stages cover the frame with 16x16 workgroups, rounding up. The
// intersect stage runs one invocation per pixel in 256-wide workgroups and
// always adds one trailing workgroup: 1920x1080 dispatches 8101 groups.
// Invocations past the last pixel return immediately.
func DispatchSize(s Stage, width, height uint32) [3]uint32 {
	wg := s.WorkgroupSize()
	switch s {
	case StageIntersect:
		pixels := uint64(width) * uint64(height)
		return [3]uint32{uint32(pixels/uint64(wg[0])) + 1, 1, 1}
	default:
		return gpucore.GridSize([3]uint32{width, height, 1}, wg)
	}
}
