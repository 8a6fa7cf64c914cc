package reveal

import (
	"sync"
	"testing"
)

func TestFetchGuard_AcceptCurrent(t *testing.T) {
	var g FetchGuard
	tok := g.Issue()

	if tok.IsZero() {
		t.Fatal("Issue returned the zero token")
	}
	if g.Current() != tok {
		t.Error("issued token is not current")
	}
	if !g.Accept(tok) {
		t.Error("current token rejected")
	}
}

func TestFetchGuard_StaleAfterReissue(t *testing.T) {
	var g FetchGuard
	first := g.Issue()
	second := g.Issue()

	if first == second {
		t.Fatal("Issue returned the same token twice")
	}
	if g.Accept(first) {
		t.Error("stale token accepted")
	}
	if !g.Accept(second) {
		t.Error("current token rejected")
	}

	s := g.Stats()
	if s.Issued != 2 || s.Accepted != 1 || s.Discarded != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestFetchGuard_Invalidate(t *testing.T) {
	var g FetchGuard
	tok := g.Issue()
	g.Invalidate()

	if !g.Current().IsZero() {
		t.Error("Current() not zero after Invalidate")
	}
	if g.Accept(tok) {
		t.Error("token accepted after Invalidate")
	}
	if g.Accept(Token{}) {
		t.Error("zero token accepted")
	}
}

func TestFetchGuard_ConcurrentIssueAccept(t *testing.T) {
	var g FetchGuard
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				g.Accept(g.Issue())
			}
		}()
	}
	wg.Wait()

	s := g.Stats()
	if s.Accepted+s.Discarded != 1600 {
		t.Errorf("accepted %d + discarded %d != 1600", s.Accepted, s.Discarded)
	}
}

func TestToken_String(t *testing.T) {
	var g FetchGuard
	if s := g.Issue().String(); len(s) != 36 {
		t.Errorf("String() = %q, want canonical UUID", s)
	}
}
