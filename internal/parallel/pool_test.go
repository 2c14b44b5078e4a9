package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, got, want)
		}
		pool.Close()
	}
}

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	ran := 0
	pool.ExecuteAll([]func(){func() { ran++ }, func() { ran++ }})
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		grid [3]uint32
		wg   [3]uint32
	}{
		{"2d", [3]uint32{3, 2, 1}, [3]uint32{16, 16, 1}},
		{"1d", [3]uint32{9, 1, 1}, [3]uint32{256, 1, 1}},
		{"3d", [3]uint32{2, 3, 4}, [3]uint32{2, 2, 2}},
		{"single", [3]uint32{1, 1, 1}, [3]uint32{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(3)
			defer pool.Close()

			var mu sync.Mutex
			seen := make(map[[3]uint32]int)
			pool.Dispatch(tt.grid, tt.wg, func(gid [3]uint32) {
				mu.Lock()
				seen[gid]++
				mu.Unlock()
			})

			want := 1
			for i := range 3 {
				want *= int(tt.grid[i] * tt.wg[i])
			}
			if len(seen) != want {
				t.Fatalf("distinct invocations = %d, want %d", len(seen), want)
			}
			for gid, n := range seen {
				if n != 1 {
					t.Errorf("gid %v ran %d times", gid, n)
				}
				for i := range 3 {
					if gid[i] >= tt.grid[i]*tt.wg[i] {
						t.Errorf("gid %v outside grid", gid)
					}
				}
			}
		})
	}
}

func TestWorkerPool_DispatchEmpty(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	called := false
	pool.Dispatch([3]uint32{0, 1, 1}, [3]uint32{16, 16, 1}, func([3]uint32) { called = true })
	pool.Dispatch([3]uint32{1, 1, 1}, [3]uint32{0, 16, 1}, func([3]uint32) { called = true })
	if called {
		t.Error("empty dispatch invoked fn")
	}
}

func TestGroupID(t *testing.T) {
	grid := [3]uint32{4, 3, 2}
	seen := make(map[[3]uint32]bool)
	for i := range 24 {
		id := groupID(i, grid)
		if seen[id] {
			t.Fatalf("groupID(%d) = %v repeated", i, id)
		}
		seen[id] = true
	}
	if got := groupID(23, grid); got != [3]uint32{3, 2, 1} {
		t.Errorf("groupID(23) = %v, want [3 2 1]", got)
	}
}
