package reveal

import (
	"context"
	"errors"
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/gogpu/reveal/internal/parallel"
)

// Phase is a state of the interaction state machine.
//
//	Idle -> Revealing -> Expanded -> {Zooming|Panning}* -> Collapsing -> Idle
//	Revealing -> Cancelled -> Idle
type Phase uint8

const (
	// PhaseIdle means nothing is shown.
	PhaseIdle Phase = iota
	// PhaseRevealing means a thumbnail is shown at the reveal point and
	// the expansion animation is running.
	PhaseRevealing
	// PhaseExpanded means the photo is full screen and no gesture is active.
	PhaseExpanded
	// PhaseZooming means a pinch gesture is active.
	PhaseZooming
	// PhasePanning means a drag gesture is active.
	PhasePanning
	// PhaseCollapsing means the photo is animating back to its origin.
	PhaseCollapsing
	// PhaseCancelled means the reveal gesture ended before expansion and
	// the thumbnail is shrinking away.
	PhaseCancelled
)

// String returns a string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRevealing:
		return "revealing"
	case PhaseExpanded:
		return "expanded"
	case PhaseZooming:
		return "zooming"
	case PhasePanning:
		return "panning"
	case PhaseCollapsing:
		return "collapsing"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// State is a snapshot of the active viewer record.
type State struct {
	Phase Phase

	// Seq numbers reveals; it changes whenever a new record replaces the
	// previous one.
	Seq uint64

	Origin     Point // clamped reveal point
	OriginSize Size  // thumbnail size at the reveal point
	Position   Point // current center
	Size       Size  // current size

	Zoom       float64
	Pan        Point
	FullScreen bool
	Visible    bool

	// Photo is nil until an image is available. Slot is zero when the
	// photo came from a direct fetch.
	Photo   image.Image
	Slot    SlotID
	Pending bool // a direct fetch is in flight

	// Count is the reveal counter after the last completed expansion.
	Count int64
}

// Viewer is the interaction state machine. It consumes images from a
// Preloader and falls back to a guarded direct fetch on a miss.
//
// All state lives on the Loop. Exported methods post to the loop and wait,
// so they are safe to call from any goroutine except the loop itself
// (including subscriber callbacks).
type Viewer struct {
	loop      *Loop
	preloader *Preloader
	gateway   *FetchGateway
	pool      *parallel.Pool
	counter   Counter
	cfg       Config
	guard     FetchGuard

	ctx    context.Context
	cancel context.CancelFunc

	// Loop-confined.
	st       State
	seq      uint64
	gen      uint64 // bumped to orphan pending timer callbacks
	timer    *Timer
	zoomBase float64
	panBase  Point
	zooming  bool
	panning  bool
	subs     map[int]func(State)
	nextSub  int

	reveals     atomic.Uint64
	hits        atomic.Uint64
	fallbacks   atomic.Uint64
	staleDrops  atomic.Uint64
	expansions  atomic.Uint64
	collapses   atomic.Uint64
	cancels     atomic.Uint64
	fetchErrors atomic.Uint64
}

// NewViewer returns an idle viewer. Only the Config and Counter options
// apply.
func NewViewer(loop *Loop, preloader *Preloader, gateway *FetchGateway, pool *parallel.Pool, opts ...Option) *Viewer {
	o := applyOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Viewer{
		loop:      loop,
		preloader: preloader,
		gateway:   gateway,
		pool:      pool,
		counter:   o.counter,
		cfg:       o.cfg,
		ctx:       ctx,
		cancel:    cancel,
		st:        State{Zoom: 1, Count: o.counter.Value()},
		zoomBase:  1,
		subs:      make(map[int]func(State)),
	}
}

// State returns a snapshot of the current record.
func (v *Viewer) State() State {
	var s State
	v.loop.Do(func() { s = v.st })
	return s
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the loop and must not call Viewer methods. The returned
// function unregisters it.
func (v *Viewer) Subscribe(fn func(State)) (cancel func()) {
	var id int
	v.loop.Do(func() {
		id = v.nextSub
		v.nextSub++
		v.subs[id] = fn
	})
	return func() {
		v.loop.Post(func() { delete(v.subs, id) })
	}
}

func (v *Viewer) notify() {
	for _, fn := range v.subs {
		fn(v.st)
	}
}

// Reveal starts a new record at p, replacing any record in progress. The
// photo comes from the preload buffer, or from a direct fetch on a miss.
// With an empty catalog and an empty buffer the current record is torn
// down and nothing new is shown.
func (v *Viewer) Reveal(p Point) {
	v.loop.Do(func() { v.reveal(p) })
}

// Release ends the reveal gesture. Before expansion completes this cancels
// the reveal and discards its in-flight fetch; afterwards it does nothing.
func (v *Viewer) Release() {
	v.loop.Do(v.release)
}

// Tap dismisses an expanded photo at zoom 1, or resets zoom and pan when
// zoomed.
func (v *Viewer) Tap() {
	v.loop.Do(v.tap)
}

// BeginZoom starts a pinch gesture on an expanded photo.
func (v *Viewer) BeginZoom() {
	v.loop.Do(v.beginZoom)
}

// UpdateZoom applies a magnification relative to the scale at gesture
// start. Magnifications that are not finite and positive are ignored.
func (v *Viewer) UpdateZoom(magnification float64) {
	v.loop.Do(func() { v.updateZoom(magnification) })
}

// EndZoom finishes the pinch gesture. Scales below 1 snap back to 1 and
// clear the pan offset; otherwise the scale becomes the new baseline.
func (v *Viewer) EndZoom() {
	v.loop.Do(v.endZoom)
}

// BeginPan starts a drag gesture on an expanded photo.
func (v *Viewer) BeginPan() {
	v.loop.Do(v.beginPan)
}

// UpdatePan applies a translation relative to the offset at gesture start,
// clamped so the zoomed photo cannot be dragged past its own overhang.
func (v *Viewer) UpdatePan(translation Point) {
	v.loop.Do(func() { v.updatePan(translation) })
}

// EndPan commits the clamped offset as the new baseline.
func (v *Viewer) EndPan() {
	v.loop.Do(v.endPan)
}

// Close tears down the current record and abandons in-flight direct
// fetches. The loop, preloader and pool are owned by the caller.
func (v *Viewer) Close() {
	v.cancel()
	v.loop.Do(func() {
		v.teardown()
		v.st = State{Zoom: 1, Count: v.st.Count}
	})
}

// Guard returns the fetch guard protecting direct fetches.
func (v *Viewer) Guard() *FetchGuard {
	return &v.guard
}

// teardown cancels pending callbacks and stales the current token.
func (v *Viewer) teardown() {
	v.teardownTimer()
	v.guard.Invalidate()
	v.zooming, v.panning = false, false
}

// schedule runs fn after d unless the record changes first.
func (v *Viewer) schedule(d time.Duration, fn func()) {
	gen := v.gen
	v.timer = v.loop.AfterFunc(d, func() {
		if v.gen != gen {
			return
		}
		v.timer = nil
		fn()
	})
}

func (v *Viewer) reveal(p Point) {
	id, img, hit := v.preloader.Take()
	var asset Asset
	if !hit {
		var ok bool
		if asset, ok = v.preloader.DrawAsset(); !ok {
			Logger().Debug("reveal: nothing to reveal")
			if v.st.Phase != PhaseIdle {
				v.teardown()
				v.st = State{Phase: PhaseIdle, Seq: v.st.Seq, Zoom: 1, Count: v.st.Count}
				v.zoomBase, v.panBase = 1, Point{}
				v.notify()
			}
			return
		}
	}

	v.teardown()
	v.seq++
	v.reveals.Add(1)

	thumb := Square(v.cfg.ThumbnailSize)
	origin := ClampCenter(p, thumb, v.cfg.Screen())
	v.st = State{
		Phase:      PhaseRevealing,
		Seq:        v.seq,
		Origin:     origin,
		OriginSize: thumb,
		Position:   origin,
		Size:       thumb,
		Zoom:       1,
		Count:      v.st.Count,
	}
	v.zoomBase, v.panBase = 1, Point{}

	if hit {
		v.hits.Add(1)
		v.st.Photo, v.st.Slot = img, id
	} else {
		v.fetchDirect(asset)
	}

	v.schedule(v.cfg.ExpandDuration, v.expanded)
	v.notify()
}

// fetchDirect issues a guarded fetch for a buffer miss. The completion is
// marshalled back to the loop and checked against the token exactly once.
func (v *Viewer) fetchDirect(asset Asset) {
	v.fallbacks.Add(1)
	tok := v.guard.Issue()
	v.st.Pending = true

	ok := v.pool.TrySubmit(func() {
		img, err := v.gateway.Fetch(v.ctx, asset)
		v.loop.Post(func() { v.directDone(tok, img, err) })
	})
	if !ok {
		Logger().Warn("reveal: direct fetch rejected", "asset", asset.ID)
		v.st.Pending = false
	}
}

func (v *Viewer) directDone(tok Token, img image.Image, err error) {
	if !v.guard.Accept(tok) {
		v.staleDrops.Add(1)
		Logger().Debug("reveal: discarded stale fetch", "token", tok.String())
		return
	}
	v.st.Pending = false
	if err != nil {
		v.fetchErrors.Add(1)
		if !errors.Is(err, context.Canceled) {
			Logger().Warn("reveal: direct fetch failed", "err", err)
		}
	} else {
		v.st.Photo = img
	}
	v.notify()
}

func (v *Viewer) expanded() {
	if v.st.Phase != PhaseRevealing {
		return
	}
	screen := v.cfg.Screen()
	v.st.Phase = PhaseExpanded
	v.st.FullScreen = true
	v.st.Visible = true
	v.st.Size = screen
	v.st.Position = screen.Center()
	v.st.Count = v.counter.Increment()
	v.expansions.Add(1)
	v.notify()
}

func (v *Viewer) release() {
	if v.st.Phase != PhaseRevealing {
		return
	}
	v.teardownTimer()
	v.guard.Invalidate()
	v.st.Phase = PhaseCancelled
	v.st.Pending = false
	v.st.Size = Size{}
	v.cancels.Add(1)
	v.schedule(v.cfg.CollapseDuration, v.finish)
	v.notify()
}

func (v *Viewer) tap() {
	if v.st.Phase != PhaseExpanded {
		return
	}
	if v.st.Zoom != 1 {
		v.st.Zoom, v.zoomBase = 1, 1
		v.st.Pan, v.panBase = Point{}, Point{}
		v.notify()
		return
	}

	v.teardownTimer()
	v.st.Phase = PhaseCollapsing
	v.st.FullScreen = false
	v.st.Size = v.st.OriginSize
	v.st.Position = v.st.Origin
	v.collapses.Add(1)
	v.schedule(v.cfg.CollapseDuration, v.finish)
	v.notify()
}

// finish hides the photo after a collapse or cancel animation.
func (v *Viewer) finish() {
	v.guard.Invalidate()
	v.st = State{Phase: PhaseIdle, Seq: v.st.Seq, Zoom: 1, Count: v.st.Count}
	v.zoomBase, v.panBase = 1, Point{}
	v.notify()
}

// teardownTimer cancels the pending callback without staling the token.
func (v *Viewer) teardownTimer() {
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.gen++
}

// gesturePhase derives the phase of an expanded record from the active
// gestures.
func (v *Viewer) gesturePhase() Phase {
	switch {
	case v.panning:
		return PhasePanning
	case v.zooming:
		return PhaseZooming
	default:
		return PhaseExpanded
	}
}

func (v *Viewer) expandedRecord() bool {
	switch v.st.Phase {
	case PhaseExpanded, PhaseZooming, PhasePanning:
		return true
	}
	return false
}

func (v *Viewer) beginZoom() {
	if !v.expandedRecord() || v.zooming {
		return
	}
	v.zooming = true
	v.zoomBase = v.st.Zoom
	v.st.Phase = v.gesturePhase()
	v.notify()
}

func (v *Viewer) updateZoom(mag float64) {
	if !v.zooming || !(mag > 0) || math.IsInf(mag, 1) {
		return
	}
	v.st.Zoom = v.zoomBase * mag
	v.st.Pan = ClampOffset(v.st.Pan, v.panLimit())
	v.notify()
}

func (v *Viewer) endZoom() {
	if !v.zooming {
		return
	}
	v.zooming = false
	if v.st.Zoom < 1 {
		v.st.Zoom = 1
		v.st.Pan, v.panBase = Point{}, Point{}
	}
	v.zoomBase = v.st.Zoom
	v.panBase = ClampOffset(v.panBase, v.panLimit())
	v.st.Phase = v.gesturePhase()
	v.notify()
}

func (v *Viewer) beginPan() {
	if !v.expandedRecord() || v.panning {
		return
	}
	v.panning = true
	v.panBase = v.st.Pan
	v.st.Phase = v.gesturePhase()
	v.notify()
}

func (v *Viewer) updatePan(t Point) {
	if !v.panning {
		return
	}
	v.st.Pan = ClampOffset(v.panBase.Add(t), v.panLimit())
	v.notify()
}

func (v *Viewer) endPan() {
	if !v.panning {
		return
	}
	v.panning = false
	v.panBase = v.st.Pan
	v.st.Phase = v.gesturePhase()
	v.notify()
}

// panLimit bounds the offset for the current zoom. Zoom below 1 (during a
// pinch) allows no offset at all.
func (v *Viewer) panLimit() Point {
	return PanLimit(v.st.Size, v.st.Zoom, v.cfg.Screen())
}

// ViewerStats counts interaction outcomes.
type ViewerStats struct {
	Reveals     uint64
	Hits        uint64 // reveals served from the preload buffer
	Fallbacks   uint64 // direct fetches issued on a miss
	StaleDrops  uint64 // direct results discarded by the token check
	FetchErrors uint64
	Expansions  uint64
	Collapses   uint64
	Cancels     uint64
}

// Stats returns a snapshot of the viewer counters.
func (v *Viewer) Stats() ViewerStats {
	return ViewerStats{
		Reveals:     v.reveals.Load(),
		Hits:        v.hits.Load(),
		Fallbacks:   v.fallbacks.Load(),
		StaleDrops:  v.staleDrops.Load(),
		FetchErrors: v.fetchErrors.Load(),
		Expansions:  v.expansions.Load(),
		Collapses:   v.collapses.Load(),
		Cancels:     v.cancels.Load(),
	}
}
