package reveal

import (
	"context"
	"errors"
	"image"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/reveal/internal/parallel"
)

func newTestPreloader(t *testing.T, src ImageSource, opts ...Option) *Preloader {
	t.Helper()
	pool := parallel.NewPool(4)
	opts = append([]Option{WithConfig(testConfig()), WithRand(rand.New(rand.NewPCG(7, 11)))}, opts...)
	p := NewPreloader(NewFetchGateway(src, Sz(10, 10), AspectFill), pool, opts...)
	t.Cleanup(func() {
		p.Close()
		pool.Close()
	})
	return p
}

func TestPreloader_SetCatalogFillsBuffer(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(100))
	waitFor(t, "buffer to fill", func() bool { return p.Len() == 10 })

	s := p.Stats()
	if s.Batches != 1 {
		t.Errorf("Batches = %d, want 1", s.Batches)
	}
	if s.Merges < 2 {
		t.Errorf("Merges = %d, want at least 2 (half batch + remainder)", s.Merges)
	}
	if s.Used > 10 || s.Used == 0 {
		t.Errorf("Used = %d, want 1..10", s.Used)
	}
}

func TestPreloader_SetCatalogDoesNotBlock(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.setGate(gate)
	p := newTestPreloader(t, src)

	done := make(chan struct{})
	go func() {
		p.SetCatalog(testCatalog(50))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetCatalog blocked on fetches")
	}
	close(gate)
	waitFor(t, "buffer to fill", func() bool { return p.Len() == 10 })
}

func TestPreloader_TakeEmpty(t *testing.T) {
	p := newTestPreloader(t, newFakeSource())

	_, img, ok := p.Take()
	if ok || img != nil {
		t.Fatal("Take on empty buffer returned an entry")
	}
	// Empty catalog: nothing may be scheduled.
	time.Sleep(10 * time.Millisecond)
	if s := p.Stats(); s.Triggers != 0 || s.Batches != 0 {
		t.Errorf("empty catalog scheduled work: %+v", s)
	}
	if p.Stats().Misses != 1 {
		t.Errorf("Misses = %d, want 1", p.Stats().Misses)
	}
}

func TestPreloader_TakeDoesNotBlock(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)
	p.SetCatalog(testCatalog(100))
	waitFor(t, "buffer to fill", func() bool { return p.Len() == 10 })

	// Every later fetch hangs; takes must still return immediately.
	gate := make(chan struct{})
	defer close(gate)
	src.setGate(gate)

	seen := map[SlotID]bool{}
	for i := range 15 {
		start := time.Now()
		id, img, ok := p.Take()
		if time.Since(start) > 100*time.Millisecond {
			t.Fatalf("Take %d blocked for %v", i, time.Since(start))
		}
		if i < 10 {
			if !ok || img == nil {
				t.Fatalf("Take %d: empty with %d buffered", i, 10-i)
			}
			if seen[id] {
				t.Fatalf("slot %s returned twice", id)
			}
			seen[id] = true
		} else if ok {
			t.Fatalf("Take %d returned an entry from a drained buffer", i)
		}
	}
}

func TestPreloader_OneRefillPerLowWaterCrossing(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)
	p.SetCatalog(testCatalog(100))
	waitFor(t, "buffer to fill", func() bool { return p.Len() == 10 })

	gate := make(chan struct{})
	src.setGate(gate)

	base := p.Stats().Triggers
	// 10 -> 5: still at the low-water mark, no refill.
	for range 5 {
		p.Take()
	}
	if got := p.Stats().Triggers - base; got != 0 {
		t.Fatalf("refill scheduled above the low-water mark (%d)", got)
	}

	// 5 -> 4 crosses; 4 -> 0 and empty takes must not schedule again while
	// the first refill is outstanding.
	for range 8 {
		p.Take()
	}
	if got := p.Stats().Triggers - base; got != 1 {
		t.Fatalf("Triggers after crossing = %d, want 1", got)
	}
	waitFor(t, "refill requests", func() bool { return src.requests.Load() == 20 })

	close(gate)
	waitFor(t, "refill to land", func() bool { return p.Len() == 10 })

	// Drain below the mark again: a new crossing schedules a new refill.
	waitFor(t, "low-water flag to clear", func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return !p.lowPending
	})
	for range 6 {
		p.Take()
	}
	if got := p.Stats().Triggers - base; got != 2 {
		t.Errorf("Triggers after second crossing = %d, want 2", got)
	}
}

func TestPreloader_FailedFetchesContributeNothing(t *testing.T) {
	src := newFakeSource()
	src.failAll(4) // assets 0..3 always fail
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(4))
	waitFor(t, "batch to finish", func() bool { return p.Stats().Failed == 10 })

	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
	if src.requests.Load() != 10 {
		t.Errorf("requests = %d, want 10 (no retries)", src.requests.Load())
	}
}

func TestPreloader_DegradedOnlyIgnored(t *testing.T) {
	src := newFakeSource()
	src.mu.Lock()
	src.degraded["0"] = true
	src.mu.Unlock()
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(1))
	waitFor(t, "batch to finish", func() bool { return p.Stats().Failed == 10 })
	if p.Len() != 0 {
		t.Errorf("degraded previews were buffered: Len() = %d", p.Len())
	}
}

func TestPreloader_SmallCatalogEpochReset(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(3))
	waitFor(t, "first batch", func() bool { return p.Len() == 10 })

	s := p.Stats()
	if s.Used != 3 {
		t.Fatalf("Used = %d after 10 draws over 3 assets, want 3", s.Used)
	}
	epoch := s.Epoch

	// Distinct slots: 10 buffered images even though only 3 assets exist.
	if err := p.Refill(context.Background()); err != nil {
		t.Fatal(err)
	}
	s = p.Stats()
	if s.Epoch != epoch+1 {
		t.Errorf("Epoch = %d, want %d (reset at batch start)", s.Epoch, epoch+1)
	}
	if s.Used > 3 {
		t.Errorf("Used = %d exceeds catalog size", s.Used)
	}
	if p.Len() != 20 {
		t.Errorf("Len() = %d, want 20", p.Len())
	}
}

func TestPreloader_ConcurrentRefills(t *testing.T) {
	src := newFakeSource()
	src.setDelay(time.Millisecond)
	p := newTestPreloader(t, src)
	p.SetCatalog(testCatalog(1000))
	waitFor(t, "initial batch", func() bool { return p.Len() == 10 })

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Refill(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	// Takes interleave with the refills.
	taken := 0
	for range 20 {
		if _, _, ok := p.Take(); ok {
			taken++
		}
	}
	wg.Wait()
	waitFor(t, "low-water refills", func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return !p.lowPending
	})

	s := p.Stats()
	if want := int(s.Fetched) - taken; p.Len() != want {
		t.Errorf("Len() = %d, want fetched %d - taken %d", p.Len(), s.Fetched, taken)
	}
	if s.Used > 1000 {
		t.Errorf("Used = %d exceeds catalog", s.Used)
	}
}

func TestPreloader_RefillEmptyCatalog(t *testing.T) {
	p := newTestPreloader(t, newFakeSource())
	if err := p.Refill(context.Background()); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Refill = %v, want ErrEmptyCatalog", err)
	}
}

func TestPreloader_MergeLastWriteWins(t *testing.T) {
	p := newTestPreloader(t, newFakeSource())
	p.installCatalog(testCatalog(1))
	id := newSlotID()
	first, second := solid(1), solid(2)

	p.merge(map[SlotID]image.Image{id: first})
	p.merge(map[SlotID]image.Image{id: second})

	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
	_, img, ok := p.Take()
	if !ok || img != second {
		t.Error("collision did not keep the last write")
	}
}

func TestPreloader_CloseDropsLateResults(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.setGate(gate)
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(20))
	waitFor(t, "requests issued", func() bool { return src.requests.Load() == 10 })

	p.Close()
	close(gate)

	if p.Len() != 0 {
		t.Errorf("Len() = %d after Close, want 0", p.Len())
	}
	if err := p.Refill(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refill after Close = %v, want ErrClosed", err)
	}
	p.SetCatalog(testCatalog(5)) // no-op
	if p.Catalog().Len() != 20 {
		t.Error("SetCatalog after Close replaced the catalog")
	}
}

// installCatalog sets the catalog without starting a refill.
func (p *Preloader) installCatalog(c Catalog) {
	p.mu.Lock()
	p.catalog = c
	p.mu.Unlock()
}

func TestPreloader_EmptyCatalogDropsBuffer(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(100))
	waitFor(t, "buffer to fill", func() bool { return p.Len() == 10 })

	p.SetCatalog(EmptyCatalog)
	if p.Len() != 0 {
		t.Fatalf("Len() = %d after emptying the catalog, want 0", p.Len())
	}
	if _, _, ok := p.Take(); ok {
		t.Error("Take served an image from an emptied catalog")
	}
	if _, ok := p.DrawAsset(); ok {
		t.Error("DrawAsset drew from an emptied catalog")
	}
}

func TestPreloader_LateMergeAfterEmptyCatalogDropped(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.setGate(gate)
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(20))
	waitFor(t, "requests issued", func() bool { return src.requests.Load() == 10 })

	p.SetCatalog(EmptyCatalog)
	close(gate)
	waitFor(t, "fetches finished", func() bool { return p.Stats().Fetched == 10 })

	// The refill goroutine merges after counting its last fetch.
	time.Sleep(20 * time.Millisecond)
	if p.Len() != 0 {
		t.Errorf("Len() = %d, results of the revoked catalog were merged", p.Len())
	}
}

func TestPreloader_SetCatalogClearsUsed(t *testing.T) {
	src := newFakeSource()
	p := newTestPreloader(t, src)

	p.SetCatalog(testCatalog(100))
	waitFor(t, "first batch", func() bool { return p.Len() == 10 })

	gate := make(chan struct{})
	defer close(gate)
	src.setGate(gate)
	p.SetCatalog(testCatalog(2))

	waitFor(t, "second batch planned", func() bool { return p.Stats().Batches == 2 })
	if used := p.Stats().Used; used > 2 {
		t.Errorf("Used = %d after switching to a 2-asset catalog", used)
	}
}

func BenchmarkPreloader_Take(b *testing.B) {
	pool := parallel.NewPool(1)
	defer pool.Close()
	p := NewPreloader(NewFetchGateway(newFakeSource(), Sz(1, 1), AspectFill), pool)
	defer p.Close()
	p.installCatalog(testCatalog(1))

	img := solid(0)
	batch := make(map[SlotID]image.Image, b.N)
	for range b.N {
		batch[newSlotID()] = img
	}
	p.merge(batch)

	b.ResetTimer()
	for range b.N {
		p.Take()
	}
}
