package reveal

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Token identifies one user-initiated fetch. The zero Token is never
// current.
type Token uuid.UUID

// String returns the canonical UUID form.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the zero token.
func (t Token) IsZero() bool {
	return t == Token{}
}

// FetchGuard holds the single current fetch token. A result is accepted
// only if the token captured when its fetch was issued is still current
// when the fetch completes. In-flight work is never aborted; its result is
// discarded instead.
//
// FetchGuard is safe for concurrent use.
type FetchGuard struct {
	mu      sync.Mutex
	current Token

	issued    atomic.Uint64
	accepted  atomic.Uint64
	discarded atomic.Uint64
}

// Issue makes a fresh token current and returns it. Any previously issued
// token becomes stale.
func (g *FetchGuard) Issue() Token {
	t := Token(uuid.New())
	g.mu.Lock()
	g.current = t
	g.mu.Unlock()
	g.issued.Add(1)
	return t
}

// Invalidate makes every issued token stale without issuing a new one.
func (g *FetchGuard) Invalidate() {
	g.mu.Lock()
	g.current = Token{}
	g.mu.Unlock()
}

// Current returns the current token, or the zero token after Invalidate.
func (g *FetchGuard) Current() Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Accept is the completion-time check. It reports whether t is still
// current and counts the outcome. Call it exactly once per completed fetch.
func (g *FetchGuard) Accept(t Token) bool {
	g.mu.Lock()
	ok := !t.IsZero() && t == g.current
	g.mu.Unlock()

	if ok {
		g.accepted.Add(1)
	} else {
		g.discarded.Add(1)
	}
	return ok
}

// GuardStats counts fetch outcomes.
type GuardStats struct {
	Issued    uint64
	Accepted  uint64
	Discarded uint64
}

// Stats returns a snapshot of the guard counters.
func (g *FetchGuard) Stats() GuardStats {
	return GuardStats{
		Issued:    g.issued.Load(),
		Accepted:  g.accepted.Load(),
		Discarded: g.discarded.Load(),
	}
}
