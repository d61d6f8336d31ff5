// Package mainthread implements the single serialized execution context that
// owns every mutation of the collection.
package mainthread

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/observability"
)

// DefaultQueueSize is the buffer used when New is given a non-positive size.
const DefaultQueueSize = 64

// Executor runs submitted work one item at a time, in submission order, on
// a single goroutine.
//
// Concurrency model: Submit holds a read lock while enqueueing and Close
// takes the write lock before closing the queue, so work that Submit
// accepted is always drained before the loop exits.
type Executor struct {
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan func()
	stopped chan struct{}
}

// New starts an executor with the given queue buffer.
func New(queueSize int, logger *slog.Logger) *Executor {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		logger:  logger,
		queue:   make(chan func(), queueSize),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.stopped)
	for fn := range e.queue {
		observability.SetQueueDepth(len(e.queue))
		e.exec(fn)
	}
	e.logger.Info("main thread: stopped")
}

// exec runs one item; a panic is logged and swallowed so the loop survives.
func (e *Executor) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("main thread: work panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

// Submit enqueues fn. It blocks while the queue is full and returns
// apperr.ErrClosed once Close has been called. Accepted work always runs.
//
// Submit must not be called from work running on the executor while the
// queue may be full; that would wait on itself.
func (e *Executor) Submit(fn func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return apperr.ErrClosed
	}
	e.queue <- fn
	observability.SetQueueDepth(len(e.queue))
	return nil
}

// Close stops accepting work, drains what was already accepted and waits
// for the loop to exit. Calling Close more than once is safe.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	<-e.stopped
}

// Done is closed after the executor has drained its queue and exited.
func (e *Executor) Done() <-chan struct{} {
	return e.stopped
}
