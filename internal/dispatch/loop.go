// Package dispatch provides the single-goroutine task loop that serializes
// all bridge-state mutation and script evaluation. Other goroutines may only
// enqueue work; nothing outside the loop touches shared bridge state.
package dispatch

import "sync"

// Loop runs queued tasks on one owning goroutine, in submission order.
type Loop struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New starts a loop with the given queue capacity.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 64
	}
	l := &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for f := range l.tasks {
		f()
	}
}

// Dispatch enqueues f for execution on the loop goroutine. It reports false
// once the loop is closed; callers short-circuit instead of blocking.
func (l *Loop) Dispatch(f func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	l.tasks <- f
	return true
}

// Invoke runs f on the loop goroutine and waits for it to finish. It must
// not be called from the loop itself. Reports false if the loop is closed.
func (l *Loop) Invoke(f func()) bool {
	ran := make(chan struct{})
	if !l.Dispatch(func() {
		defer close(ran)
		f()
	}) {
		return false
	}
	<-ran
	return true
}

// Close stops intake, runs every already-queued task, and waits for the loop
// goroutine to exit. Safe to call more than once.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	close(l.tasks)
	l.mu.Unlock()
	<-l.done
}
