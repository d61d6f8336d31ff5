// Package bridge lets a network goroutine run work on the main-thread
// executor and wait for its outcome.
package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/aprobridge/internal/apperr"
	"github.com/starford/aprobridge/internal/observability"
)

// Submitter accepts work for the main thread. *mainthread.Executor
// satisfies it.
type Submitter interface {
	Submit(fn func()) error
}

// Result is the tagged outcome of one bridged call: a value, or an error
// with its kind.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Kind classifies the failure. Only meaningful when !OK().
func (r Result[T]) Kind() apperr.Kind { return apperr.KindOf(r.Err) }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.Value, r.Err }

// Future is a one-shot slot: resolved at most once before its completion
// signal fires, then read by the waiting goroutine.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	res  Result[T]
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve stores the outcome and fires the signal. Only the first call has
// any effect; it reports whether this call won.
func (f *Future[T]) Resolve(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.res = Result[T]{Value: v, Err: err}
		won = true
		close(f.done)
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future is resolved and returns its result.
func (f *Future[T]) Wait() Result[T] {
	<-f.done
	return f.res
}

// RunAndWait submits work to the main thread and blocks, with no timeout,
// until it has fully finished. A panic inside work becomes a host failure.
// It must not be called from work already running on the main thread.
func RunAndWait[T any](s Submitter, work func() (T, error)) Result[T] {
	started := time.Now()
	f := NewFuture[T]()
	err := s.Submit(func() {
		var (
			v    T
			werr error
		)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("bridge: main thread work panicked", slog.String("panic", fmt.Sprint(r)))
				var zero T
				f.Resolve(zero, fmt.Errorf("main thread panic: %v", r))
				return
			}
			f.Resolve(v, werr)
		}()
		v, werr = work()
	})
	if err != nil {
		var zero T
		observability.ObserveCall(apperr.KindHost.String(), time.Since(started))
		return Result[T]{Value: zero, Err: err}
	}
	res := f.Wait()
	outcome := "ok"
	if !res.OK() {
		outcome = res.Kind().String()
	}
	observability.ObserveCall(outcome, time.Since(started))
	return res
}

// Do is RunAndWait for work that produces no value.
func Do(s Submitter, work func() error) error {
	return RunAndWait(s, func() (struct{}, error) {
		return struct{}{}, work()
	}).Err
}
