package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Create(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero uses GOMAXPROCS", 0, runtime.GOMAXPROCS(0)},
		{"negative uses GOMAXPROCS", -3, runtime.GOMAXPROCS(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(tt.workers)
			defer p.Close()

			if p.Workers() != tt.want {
				t.Errorf("Workers() = %d, want %d", p.Workers(), tt.want)
			}
			if !p.IsRunning() {
				t.Error("pool should be running after creation")
			}
		})
	}
}

func TestPool_SubmitRunsAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	const n = 200
	var wg sync.WaitGroup
	var counter atomic.Int64
	wg.Add(n)
	for range n {
		if !p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}) {
			t.Fatal("Submit rejected on a running pool")
		}
	}
	wg.Wait()

	if counter.Load() != n {
		t.Errorf("counter = %d, want %d", counter.Load(), n)
	}
}

func TestPool_SubmitNotOnCallerGoroutine(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-release
	})

	// Submit returned while the closure is still blocked.
	<-started
	close(release)
}

func TestPool_TrySubmitFull(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	block := make(chan struct{})
	running := make(chan struct{})
	p.Submit(func() {
		close(running)
		<-block
	})
	<-running

	accepted := 0
	for range 1000 {
		if p.TrySubmit(func() {}) {
			accepted++
		}
	}
	close(block)

	if accepted == 1000 {
		t.Error("TrySubmit never reported a full queue")
	}
	if p.Stats().Rejected == 0 {
		t.Error("Rejected counter not incremented")
	}
}

func TestPool_CloseDrainsQueued(t *testing.T) {
	p := NewPool(2)

	var counter atomic.Int64
	for range 20 {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	p.Close()

	if counter.Load() != 20 {
		t.Errorf("counter = %d after Close, want 20", counter.Load())
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close() // idempotent

	if p.IsRunning() {
		t.Error("pool still running after Close")
	}
	if p.Submit(func() { t.Error("closure ran after Close") }) {
		t.Error("Submit accepted work after Close")
	}
	if p.TrySubmit(func() { t.Error("closure ran after Close") }) {
		t.Error("TrySubmit accepted work after Close")
	}
}

func TestPool_NilClosure(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	if p.Submit(nil) || p.TrySubmit(nil) {
		t.Error("nil closure accepted")
	}
}

func TestPool_ConcurrentSubmitAndClose(t *testing.T) {
	p := NewPool(4)

	var ran, accepted atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if p.Submit(func() { ran.Add(1) }) {
					accepted.Add(1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	p.Close()
	wg.Wait()

	if ran.Load() != accepted.Load() {
		t.Errorf("ran %d closures, accepted %d", ran.Load(), accepted.Load())
	}
}

func BenchmarkPool_Submit(b *testing.B) {
	p := NewPool(0)
	defer p.Close()

	var wg sync.WaitGroup
	b.ResetTimer()
	for range b.N {
		wg.Add(1)
		p.Submit(wg.Done)
	}
	wg.Wait()
}
