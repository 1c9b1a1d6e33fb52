// Package runloop provides the single-owner task queue that serialises
// every mutation of manager and Thing state.
//
// Callbacks from bridges and record stores arrive on arbitrary goroutines.
// They never touch shared state directly; they Post a task, and the loop
// runs tasks one at a time in posting order. Posting from inside a task
// schedules the new task for a later turn, never re-entrantly.
package runloop

import (
	"context"
	"sync"
)

// Loop is a FIFO task queue with a single drainer.
//
// Run drives the loop from a dedicated goroutine. Tests and one-shot tools
// call Drain instead to run queued work deterministically on the caller.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	// owner is held while tasks execute so at most one goroutine drains.
	owner sync.Mutex
}

// New returns an empty loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post schedules fn for a later turn. It never blocks and never runs fn
// on the caller's stack.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain runs tasks until the queue is empty, including tasks posted by
// the tasks it runs. It returns the number of tasks executed.
func (l *Loop) Drain() int {
	l.owner.Lock()
	defer l.owner.Unlock()

	n := 0
	for {
		batch := l.take()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Step runs only the tasks queued at the time of the call. Tasks they post
// stay queued for the next turn.
func (l *Loop) Step() int {
	l.owner.Lock()
	defer l.owner.Unlock()

	batch := l.take()
	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.queue
	l.queue = nil
	return batch
}

// Run executes tasks as they are posted until ctx is done. Tasks still
// queued at cancellation are drained before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			l.Drain()
			return nil
		case <-l.wake:
		}
	}
}

// Call posts fn and blocks until it has run or ctx is done. It must not
// be used from inside a task.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
