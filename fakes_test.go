package reveal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errDecode = errors.New("decode failed")

// solid returns a 1x1 image whose red channel encodes n.
func solid(n int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: uint8(n), A: 255})
	return img
}

func testCatalog(n int) Catalog {
	assets := make([]Asset, n)
	for i := range assets {
		assets[i] = Asset{ID: strconv.Itoa(i)}
	}
	return NewCatalog(assets)
}

// fakeSource is a scriptable ImageSource.
//
// By default every request delivers one degraded preview and then the final
// image. fail marks asset IDs whose requests only produce errors; gate, when
// set, holds every request until it is closed.
type fakeSource struct {
	mu       sync.Mutex
	fail     map[string]bool
	degraded map[string]bool // only degraded deliveries
	gate     chan struct{}
	delay    time.Duration

	requests atomic.Int64
	finished atomic.Int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{fail: map[string]bool{}, degraded: map[string]bool{}}
}

func (s *fakeSource) RequestImage(ctx context.Context, asset Asset, _ Size, _ ContentMode) <-chan Delivery {
	s.requests.Add(1)
	s.mu.Lock()
	fail, degradedOnly, gate, delay := s.fail[asset.ID], s.degraded[asset.ID], s.gate, s.delay
	s.mu.Unlock()

	ch := make(chan Delivery)
	go func() {
		defer close(ch)
		defer s.finished.Add(1)

		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return
			}
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}

		n, _ := strconv.Atoi(asset.ID)
		var script []Delivery
		switch {
		case fail:
			script = []Delivery{{Err: errDecode}}
		case degradedOnly:
			script = []Delivery{{Image: solid(n), Degraded: true}, {Image: solid(n), Degraded: true}}
		default:
			script = []Delivery{{Image: solid(n), Degraded: true}, {Image: solid(n)}, {Image: solid(n)}}
		}
		for _, d := range script {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (s *fakeSource) setGate(g chan struct{}) {
	s.mu.Lock()
	s.gate = g
	s.mu.Unlock()
}

func (s *fakeSource) setDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *fakeSource) failAll(n int) {
	s.mu.Lock()
	for i := range n {
		s.fail[strconv.Itoa(i)] = true
	}
	s.mu.Unlock()
}

// fakeLibrary is a scriptable Library.
type fakeLibrary struct {
	status  AuthStatus
	authErr error
	catalog Catalog
	calls   atomic.Int64
}

func (l *fakeLibrary) Authorize(context.Context) (AuthStatus, error) {
	l.calls.Add(1)
	return l.status, l.authErr
}

func (l *fakeLibrary) FetchCatalog(context.Context, SortOrder) (Catalog, error) {
	if !l.status.Readable() {
		return nil, ErrDenied
	}
	return l.catalog, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// testConfig returns a configuration with short animations for tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ScreenWidth, cfg.ScreenHeight = 400, 800
	cfg.ThumbnailSize = 100
	cfg.ExpandDuration = 5 * time.Millisecond
	cfg.CollapseDuration = 5 * time.Millisecond
	cfg.Workers = 4
	return cfg
}
