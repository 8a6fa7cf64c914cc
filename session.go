package reveal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogpu/reveal/internal/parallel"
)

// Session wires a Library and an ImageSource to the core: one background
// pool, one interaction loop, a preloader and a viewer.
//
// A Session starts inert. Start authorizes the library and loads the
// catalog; until then, or after a denial, Reveal does nothing.
type Session struct {
	lib Library
	cfg Config

	pool      *parallel.Pool
	ownPool   bool
	loop      *Loop
	gateway   *FetchGateway
	preloader *Preloader
	viewer    *Viewer

	mu     sync.Mutex
	status AuthStatus
	closed bool
}

// NewSession creates a Session. The configuration is validated before
// anything is started.
func NewSession(lib Library, src ImageSource, opts ...Option) (*Session, error) {
	o := applyOptions(opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	pool, own := o.pool, false
	if pool == nil {
		pool, own = parallel.NewPool(o.cfg.Workers), true
	}

	gateway := NewFetchGateway(src, o.cfg.FetchTarget(), AspectFill)
	loop := NewLoop()

	// Options are shared so the preloader and viewer see one config and
	// one counter.
	preloader := NewPreloader(gateway, pool, opts...)
	viewer := NewViewer(loop, preloader, gateway, pool, WithConfig(o.cfg), WithCounter(o.counter))

	return &Session{
		lib:       lib,
		cfg:       o.cfg,
		pool:      pool,
		ownPool:   own,
		loop:      loop,
		gateway:   gateway,
		preloader: preloader,
		viewer:    viewer,
	}, nil
}

// Start authorizes the library and, when reading is allowed, installs its
// catalog newest first. The preload buffer starts filling in the
// background; Start does not wait for it.
//
// A denial leaves the core inert and returns the status with ErrDenied.
func (s *Session) Start(ctx context.Context) (AuthStatus, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return AuthDenied, ErrClosed
	}

	status, err := s.lib.Authorize(ctx)
	if err != nil {
		return AuthDenied, fmt.Errorf("reveal: authorize: %w", err)
	}
	s.setStatus(status)
	Logger().Info("reveal: library authorization", "status", status.String())

	if !status.Readable() {
		s.preloader.SetCatalog(EmptyCatalog)
		return status, ErrDenied
	}

	catalog, err := s.lib.FetchCatalog(ctx, SortCreationDesc)
	if err != nil {
		return status, fmt.Errorf("reveal: fetch catalog: %w", err)
	}
	if catalogLen(catalog) == 0 {
		Logger().Warn("reveal: library is empty")
	}
	s.preloader.SetCatalog(catalog)
	return status, nil
}

// Foreground re-runs authorization and the catalog fetch, e.g. after the
// application returns to the foreground and permissions may have changed.
func (s *Session) Foreground(ctx context.Context) (AuthStatus, error) {
	Logger().Debug("reveal: foreground refresh")
	return s.Start(ctx)
}

func (s *Session) setStatus(st AuthStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status returns the last authorization status.
func (s *Session) Status() AuthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Viewer returns the interaction state machine.
func (s *Session) Viewer() *Viewer { return s.viewer }

// Preloader returns the preload buffer.
func (s *Session) Preloader() *Preloader { return s.preloader }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Close tears down the viewer, the loop, the preloader and the pool, in
// that order. Pools passed in with withPool are left running.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.viewer.Close()
	s.loop.Close()
	s.preloader.Close()
	if s.ownPool {
		s.pool.Close()
	}
	Logger().Info("reveal: session closed")
}

// SessionStats aggregates the counters of every component.
type SessionStats struct {
	Status  AuthStatus
	Preload PreloadStats
	Viewer  ViewerStats
	Guard   GuardStats
	Pool    PoolStats
}

// PoolStats counts background pool activity.
type PoolStats struct {
	Workers  int
	Queued   int
	Executed uint64
	Rejected uint64
}

// Stats returns a snapshot of all counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Status:  s.Status(),
		Preload: s.preloader.Stats(),
		Viewer:  s.viewer.Stats(),
		Guard:   s.viewer.Guard().Stats(),
		Pool:    PoolStats(s.pool.Stats()),
	}
}
