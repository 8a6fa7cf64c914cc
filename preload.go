package reveal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/reveal/internal/parallel"
)

// SlotID keys one buffered image. It is generated per draw and never
// derived from the asset, so repeated draws of one asset never collide.
type SlotID uuid.UUID

// String returns the canonical UUID form.
func (id SlotID) String() string {
	return uuid.UUID(id).String()
}

func newSlotID() SlotID {
	return SlotID(uuid.New())
}

// Preloader keeps a rolling buffer of decoded images ready for instant
// display.
//
// Refill batches sample catalog indices, fetch the images on the background
// pool and merge results into the buffer in two or more commits. Take hands
// out one arbitrary buffered image without blocking and schedules a refill
// when the buffer runs low.
//
// The buffer, the sampler and the catalog are guarded by one mutex, so
// overlapping refills and takes never write the same structure at once.
// Preloader is safe for concurrent use.
type Preloader struct {
	gateway *FetchGateway
	pool    *parallel.Pool
	batch   int
	low     int

	// ctx is cancelled by Close; refills started internally run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	catalog    Catalog
	sampler    *IndexSampler
	buffer     map[SlotID]image.Image
	lowPending bool // a low-water refill is outstanding
	closed     bool

	batches  atomic.Uint64
	merges   atomic.Uint64
	fetched  atomic.Uint64
	failed   atomic.Uint64
	takes    atomic.Uint64
	misses   atomic.Uint64
	triggers atomic.Uint64
}

// NewPreloader returns a Preloader fetching through gateway on pool.
// Only the Config and Rand options apply.
func NewPreloader(gateway *FetchGateway, pool *parallel.Pool, opts ...Option) *Preloader {
	o := applyOptions(opts)

	sampler := NewIndexSampler(o.rng)
	sampler.attempts = o.cfg.SampleAttempts
	sampler.ratio = o.cfg.ResetRatio

	ctx, cancel := context.WithCancel(context.Background())
	return &Preloader{
		gateway: gateway,
		pool:    pool,
		batch:   o.cfg.PreloadCount,
		low:     o.cfg.LowWater,
		ctx:     ctx,
		cancel:  cancel,
		catalog: EmptyCatalog,
		sampler: sampler,
		buffer:  make(map[SlotID]image.Image, o.cfg.PreloadCount),
	}
}

// SetCatalog replaces the catalog and starts a refill in the background.
// The used-index set is cleared because indices of the old catalog mean
// nothing in the new one. Buffered images are kept unless the new catalog
// is empty: an empty catalog means access was lost, and nothing may be
// revealed afterwards.
func (p *Preloader) SetCatalog(c Catalog) {
	if c == nil {
		c = EmptyCatalog
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.catalog = c
	p.sampler.Reset()
	Logger().Info("reveal: catalog replaced", "assets", c.Len())

	if c.Len() == 0 {
		clear(p.buffer)
		return
	}
	p.startRefillLocked(false)
}

// Catalog returns the current catalog.
func (p *Preloader) Catalog() Catalog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.catalog
}

// startRefillLocked launches a refill goroutine. Caller must hold p.mu and
// have checked p.closed, which keeps wg.Add ordered before Close's Wait.
func (p *Preloader) startRefillLocked(lowWater bool) {
	p.triggers.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if lowWater {
			defer func() {
				p.mu.Lock()
				p.lowPending = false
				p.mu.Unlock()
			}()
		}
		if err := p.Refill(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
			Logger().Debug("reveal: refill skipped", "err", err)
		}
	}()
}

// pick is one planned fetch of a batch.
type pick struct {
	slot  SlotID
	index int
	asset Asset
}

// fetchResult is the outcome of one pick.
type fetchResult struct {
	slot SlotID
	img  image.Image
	err  error
}

// Refill runs one batch: apply the epoch rule, draw PreloadCount indices,
// fetch them on the pool and merge the results into the buffer. Half a batch
// of successful fetches is committed as soon as it is available; the rest is
// committed when every fetch has finished. Failed fetches contribute nothing
// and are not retried.
//
// Refill blocks until the batch finishes. It must not be called from the
// interaction loop; Take and SetCatalog call it on their own goroutines.
func (p *Preloader) Refill(ctx context.Context) error {
	picks, err := p.plan()
	if err != nil {
		return err
	}
	p.batches.Add(1)

	results := make(chan fetchResult, len(picks))
	for _, pk := range picks {
		ok := p.pool.Submit(func() {
			img, err := p.gateway.Fetch(ctx, pk.asset)
			results <- fetchResult{slot: pk.slot, img: img, err: err}
		})
		if !ok {
			results <- fetchResult{slot: pk.slot, err: ErrClosed}
		}
	}

	threshold := max(1, len(picks)/2)
	pending := make(map[SlotID]image.Image, threshold)
	for range picks {
		r := <-results
		if r.err != nil {
			p.failed.Add(1)
			Logger().Debug("reveal: preload fetch failed", "slot", r.slot.String(), "err", r.err)
			continue
		}
		p.fetched.Add(1)
		pending[r.slot] = r.img
		if len(pending) >= threshold {
			p.merge(pending)
			clear(pending)
		}
	}
	p.merge(pending)
	return nil
}

// plan applies the epoch rule and draws one batch under the lock.
func (p *Preloader) plan() ([]pick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	n := catalogLen(p.catalog)
	if n == 0 {
		return nil, ErrEmptyCatalog
	}

	if p.sampler.BeginBatch(n) {
		Logger().Debug("reveal: sampler epoch reset", "catalog", n, "epoch", p.sampler.Epoch())
	}

	picks := make([]pick, p.batch)
	for i := range picks {
		idx := p.sampler.Draw(n - 1)
		p.sampler.Mark(idx)
		picks[i] = pick{slot: newSlotID(), index: idx, asset: p.catalog.At(idx)}
	}
	Logger().Debug("reveal: refill batch planned", "draws", len(picks), "used", p.sampler.Used())
	return picks, nil
}

// DrawAsset samples a single asset for a direct fetch, as a batch of one.
// It reports false when the catalog is empty or the preloader is closed.
func (p *Preloader) DrawAsset() (Asset, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := catalogLen(p.catalog)
	if p.closed || n == 0 {
		return Asset{}, false
	}
	p.sampler.BeginBatch(n)
	idx := p.sampler.Draw(n - 1)
	p.sampler.Mark(idx)
	return p.catalog.At(idx), true
}

// merge commits a batch-local map into the shared buffer. Colliding keys are
// overwritten. Nothing is merged after Close or while the catalog is empty.
func (p *Preloader) merge(batch map[SlotID]image.Image) {
	if len(batch) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || catalogLen(p.catalog) == 0 {
		return
	}
	for id, img := range batch {
		p.buffer[id] = img
	}
	p.merges.Add(1)
	Logger().Debug("reveal: merged preload batch", "added", len(batch), "buffered", len(p.buffer))
}

// Take removes and returns one buffered image. The entry is arbitrary (map
// iteration order), neither FIFO nor uniformly random. Take never blocks on
// I/O. When the remaining size is below the low-water mark and no
// low-water refill is outstanding, exactly one refill is started before Take
// returns, without waiting for it.
func (p *Preloader) Take() (SlotID, image.Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		id    SlotID
		img   image.Image
		found bool
	)
	for k, v := range p.buffer {
		id, img, found = k, v, true
		break
	}
	if found {
		delete(p.buffer, id)
		p.takes.Add(1)
	} else {
		p.misses.Add(1)
	}

	if !p.closed && !p.lowPending && len(p.buffer) < p.low && catalogLen(p.catalog) > 0 {
		p.lowPending = true
		p.startRefillLocked(true)
	}
	return id, img, found
}

// Len returns the number of buffered images.
func (p *Preloader) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close stops scheduling refills, cancels in-flight fetches and waits for
// running refills to return. Results landing after Close are dropped.
func (p *Preloader) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

// PreloadStats counts preloader activity.
type PreloadStats struct {
	Buffered int
	Used     int
	Epoch    uint64
	Triggers uint64 // refills started by SetCatalog or Take
	Batches  uint64 // refill batches that drew indices
	Merges   uint64
	Fetched  uint64
	Failed   uint64
	Takes    uint64
	Misses   uint64
}

// String returns a one-line summary.
func (s PreloadStats) String() string {
	return fmt.Sprintf("buffered=%d used=%d epoch=%d batches=%d merges=%d fetched=%d failed=%d takes=%d misses=%d",
		s.Buffered, s.Used, s.Epoch, s.Batches, s.Merges, s.Fetched, s.Failed, s.Takes, s.Misses)
}

// Stats returns a snapshot of the preloader counters.
func (p *Preloader) Stats() PreloadStats {
	p.mu.Lock()
	buffered, used, epoch := len(p.buffer), p.sampler.Used(), p.sampler.Epoch()
	p.mu.Unlock()

	return PreloadStats{
		Buffered: buffered,
		Used:     used,
		Epoch:    epoch,
		Triggers: p.triggers.Load(),
		Batches:  p.batches.Load(),
		Merges:   p.merges.Load(),
		Fetched:  p.fetched.Load(),
		Failed:   p.failed.Load(),
		Takes:    p.takes.Load(),
		Misses:   p.misses.Load(),
	}
}
