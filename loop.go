package reveal

import (
	"sync"
	"time"
)

// Loop is the single-threaded interaction context. Closures posted to it run
// one at a time, in posting order, on one goroutine; every mutation of
// interaction state happens there.
//
// Loop is safe for concurrent use.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	closed bool
}

// NewLoop starts a loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-l.wake:
		case <-l.done:
			l.mu.Lock()
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, fn := range rest {
				fn()
			}
			return
		}
	}
}

// Post queues fn and returns immediately. It reports false if the loop is
// closed; fn is then dropped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts fn and waits for it to run. It must not be called from a closure
// running on the loop. It reports false if the loop is closed.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	<-ran
	return true
}

// Close runs the closures already queued and stops the loop. Pending timers
// whose callbacks fire afterwards are dropped. Close is safe to call more
// than once and must not be called from the loop.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.exited
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	<-l.exited
}

// Timer is a cancellable delayed callback created by AfterFunc.
type Timer struct {
	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// Stop prevents the callback from running if it has not started yet, even
// when the timer has already fired and the callback is queued on the loop.
// It reports whether the callback was prevented.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}

// AfterFunc runs fn on the loop once d has elapsed, unless the returned
// Timer is stopped first.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			tm.mu.Lock()
			stopped := tm.stopped
			tm.stopped = true
			tm.mu.Unlock()
			if !stopped {
				fn()
			}
		})
	})
	return tm
}
