// Package parallel runs compute dispatches on a pool of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines executing workgroups.
//
// Each worker has its own queue and steals from the others when it runs
// dry, so slow workgroups (pixels covering many primitives) do not stall
// the whole dispatch.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll distributes work across workers and waits for all of it.
// On a closed pool the work runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer pending.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	pending.Wait()
}

// Dispatch runs fn once for every invocation of a compute grid: grid
// workgroups of size wg along each axis. Workgroups are the unit of
// scheduling; invocations inside one workgroup run sequentially in x, y,
// z order. Dispatch returns when every invocation has finished.
func (p *WorkerPool) Dispatch(grid, wg [3]uint32, fn func(gid [3]uint32)) {
	groups := int(grid[0]) * int(grid[1]) * int(grid[2])
	if groups == 0 || wg[0]*wg[1]*wg[2] == 0 {
		return
	}

	// Batch workgroups so small groups do not drown in queue traffic.
	batch := max(groups/(p.workers*8), 1)
	work := make([]func(), 0, groups/batch+1)
	for start := 0; start < groups; start += batch {
		end := min(start+batch, groups)
		work = append(work, func() {
			for g := start; g < end; g++ {
				runGroup(groupID(g, grid), wg, fn)
			}
		})
	}
	p.ExecuteAll(work)
}

func groupID(linear int, grid [3]uint32) [3]uint32 {
	gx, gy := int(grid[0]), int(grid[1])
	return [3]uint32{
		uint32(linear % gx),
		uint32(linear / gx % gy),
		uint32(linear / (gx * gy)),
	}
}

func runGroup(group, wg [3]uint32, fn func(gid [3]uint32)) {
	base := [3]uint32{group[0] * wg[0], group[1] * wg[1], group[2] * wg[2]}
	for z := range wg[2] {
		for y := range wg[1] {
			for x := range wg[0] {
				fn([3]uint32{base[0] + x, base[1] + y, base[2] + z})
			}
		}
	}
}

// Close stops the pool after running the work already queued.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
