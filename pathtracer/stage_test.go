package pathtracer

import (
	"slices"
	"testing"
)

func TestDispatchSize(t *testing.T) {
	tests := []struct {
		stage Stage
		w, h  uint32
		want  [3]uint32
	}{
		{StageRayGen, 1920, 1080, [3]uint32{120, 68, 1}},
		{StageIntersect, 1920, 1080, [3]uint32{8101, 1, 1}},
		{StageShade, 1920, 1080, [3]uint32{120, 68, 1}},
		{StageRayGen, 1, 1, [3]uint32{1, 1, 1}},
		{StageIntersect, 1, 1, [3]uint32{1, 1, 1}},
		{StageRayGen, 17, 16, [3]uint32{2, 1, 1}},
		{StageIntersect, 16, 16, [3]uint32{2, 1, 1}},
		{StageIntersect, 100, 3, [3]uint32{2, 1, 1}},
	}
	for _, tt := range tests {
		if got := DispatchSize(tt.stage, tt.w, tt.h); got != tt.want {
			t.Errorf("DispatchSize(%s, %d, %d) = %v, want %v", tt.stage, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestDispatchCoversEveryPixel(t *testing.T) {
	for _, res := range [][2]uint32{{1, 1}, {15, 17}, {640, 480}, {1921, 1079}} {
		w, h := res[0], res[1]
		for s := Stage(0); s < StageCount; s++ {
			grid := DispatchSize(s, w, h)
			wg := s.WorkgroupSize()
			invocations := uint64(grid[0]*wg[0]) * uint64(grid[1]*wg[1]) * uint64(grid[2]*wg[2])
			if invocations < uint64(w)*uint64(h) {
				t.Errorf("%s at %dx%d: %d invocations for %d pixels", s, w, h, invocations, w*h)
			}
		}
	}
}

func TestStageTable(t *testing.T) {
	tests := []struct {
		stage  Stage
		shader string
		wg     [3]uint32
		reads  []Resource
		writes []Resource
	}{
		{StageRayGen, "raygen", [3]uint32{16, 16, 1},
			[]Resource{ResourceCamera},
			[]Resource{ResourcePaths}},
		{StageIntersect, "intersect", [3]uint32{256, 1, 1},
			[]Resource{ResourceGeometry, ResourcePaths, ResourceParams1},
			[]Resource{ResourceIntersect}},
		{StageShade, "shade", [3]uint32{16, 16, 1},
			[]Resource{ResourcePaths, ResourceIntersect, ResourceParams0},
			[]Resource{ResourceDisplay}},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			if got := tt.stage.Shader(); got != tt.shader {
				t.Errorf("Shader() = %q, want %q", got, tt.shader)
			}
			if got := tt.stage.WorkgroupSize(); got != tt.wg {
				t.Errorf("WorkgroupSize() = %v, want %v", got, tt.wg)
			}
			if got := tt.stage.Reads(); !slices.Equal(got, tt.reads) {
				t.Errorf("Reads() = %v, want %v", got, tt.reads)
			}
			if got := tt.stage.Writes(); !slices.Equal(got, tt.writes) {
				t.Errorf("Writes() = %v, want %v", got, tt.writes)
			}
			for i, b := range tt.stage.Bindings() {
				if b.Slot != uint32(i) {
					t.Errorf("binding %d has slot %d", i, b.Slot)
				}
			}
		})
	}
}

// Every resource a stage reads is written by an earlier stage or uploaded
// at construction.
func TestStageDataFlow(t *testing.T) {
	produced := map[Resource]bool{
		ResourceCamera:   true,
		ResourceGeometry: true,
		ResourceParams0:  true,
		ResourceParams1:  true,
	}
	for s := Stage(0); s < StageCount; s++ {
		for _, r := range s.Reads() {
			if !produced[r] {
				t.Errorf("%s reads %s before anything writes it", s, r)
			}
		}
		for _, r := range s.Writes() {
			produced[r] = true
		}
	}
}

func TestStageString(t *testing.T) {
	if got := Stage(7).String(); got != "Unknown(7)" {
		t.Errorf("String() = %q", got)
	}
	if got := Resource(42).String(); got != "Resource(42)" {
		t.Errorf("String() = %q", got)
	}
}
