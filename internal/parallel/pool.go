// Package parallel provides the background work context used for image
// fetch I/O.
//
// Work submitted to a Pool never runs on the caller's goroutine. The
// interaction loop relies on this: it hands decode requests to the pool and
// gets control back immediately.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed set of goroutines executing submitted closures.
//
// Each worker owns a buffered queue. Submissions go to the shortest queue,
// and idle workers steal from their neighbours so that one slow decode does
// not stall the items queued behind it.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// submitMu excludes Close while a submission is selecting on a queue,
	// so no closure is left behind in a queue nobody drains.
	submitMu sync.RWMutex

	executed atomic.Uint64
	rejected atomic.Uint64
}

// NewPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 16 {
		queueSize = 16
	}

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			p.run(fn)
			continue
		default:
		}

		if fn := p.steal(id); fn != nil {
			p.run(fn)
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			p.run(fn)
		}
	}
}

func (p *Pool) run(fn func()) {
	if fn == nil {
		return
	}
	fn()
	p.executed.Add(1)
}

// drain executes whatever is left in a queue after Close.
func (p *Pool) drain(queue chan func()) {
	for {
		select {
		case fn := <-queue:
			p.run(fn)
		default:
			return
		}
	}
}

func (p *Pool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// shortest returns the index of the least loaded queue.
func (p *Pool) shortest() int {
	idx, n := 0, len(p.queues[0])
	for i := 1; i < p.workers; i++ {
		if l := len(p.queues[i]); l < n {
			idx, n = i, l
		}
	}
	return idx
}

// Submit queues fn, blocking while every queue is full.
// It reports false if the pool is closed.
func (p *Pool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if !p.running.Load() {
		p.rejected.Add(1)
		return false
	}
	select {
	case p.queues[p.shortest()] <- fn:
		return true
	case <-p.done:
		p.rejected.Add(1)
		return false
	}
}

// TrySubmit queues fn without blocking.
// It reports false if the pool is closed or the chosen queue is full.
func (p *Pool) TrySubmit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if !p.running.Load() {
		p.rejected.Add(1)
		return false
	}
	select {
	case p.queues[p.shortest()] <- fn:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Close stops accepting work, runs everything already queued and waits for
// the workers to exit. Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	// Submissions already past the running check finish enqueueing while
	// the workers are still consuming.
	p.submitMu.Lock()
	close(p.done)
	p.submitMu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still accepts work.
func (p *Pool) IsRunning() bool {
	return p.running.Load()
}

// Queued returns an approximate count of closures waiting in queues.
func (p *Pool) Queued() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers  int
	Queued   int
	Executed uint64
	Rejected uint64
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.workers,
		Queued:   p.Queued(),
		Executed: p.executed.Load(),
		Rejected: p.rejected.Load(),
	}
}
