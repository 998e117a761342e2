package deferred

import (
	"context"
	"fmt"
	"sync"
)

// Value is a container for a value of type T that becomes known only after an
// asynchronous provisioning step completes. A Value is in exactly one of three
// states: pending, resolved, or failed. Once terminal it never changes.
type Value[T any] struct {
	// mu protects all fields below.
	mu sync.Mutex

	// done is closed when the value reaches a terminal state.
	done chan struct{}

	// val is the resolved value. Valid only when resolved.
	val T

	// err is the failure cause. Non-nil only when failed.
	err error

	// terminal indicates the value has resolved or failed.
	terminal bool

	// conts are continuations to invoke on the resolving goroutine once the
	// value reaches a terminal state.
	conts []func(T, error)
}

// Pending creates a new unresolved value. The owner resolves it later with
// Resolve or Fail.
func Pending[T any]() *Value[T] {
	return &Value[T]{done: make(chan struct{})}
}

// Resolved creates a value that is already known.
func Resolved[T any](val T) *Value[T] {
	v := Pending[T]()
	v.Resolve(val)
	return v
}

// Failed creates a value that already failed with the given cause.
func Failed[T any](err error) *Value[T] {
	v := Pending[T]()
	v.Fail(err)
	return v
}

// Resolve sets the concrete value and invokes registered continuations.
// Resolving a value that is already terminal panics: a resource property is
// realized exactly once, and a second resolution is a programming error.
func (v *Value[T]) Resolve(val T) {
	v.settle(val, nil)
}

// Fail marks the value as failed. All registered continuations are invoked
// with the cause and every derived value fails with the same cause.
func (v *Value[T]) Fail(err error) {
	if err == nil {
		err = fmt.Errorf("deferred value failed with nil cause")
	}
	var zero T
	v.settle(zero, err)
}

func (v *Value[T]) settle(val T, err error) {
	v.mu.Lock()
	if v.terminal {
		v.mu.Unlock()
		panic("deferred: value resolved twice")
	}
	v.val = val
	v.err = err
	v.terminal = true
	conts := v.conts
	v.conts = nil
	close(v.done)
	v.mu.Unlock()

	for _, c := range conts {
		c(val, err)
	}
}

// onDone registers a continuation to run once the value is terminal. If the
// value is already terminal the continuation runs synchronously on the calling
// goroutine; otherwise it runs on the goroutine that settles the value.
func (v *Value[T]) onDone(c func(T, error)) {
	v.mu.Lock()
	if !v.terminal {
		v.conts = append(v.conts, c)
		v.mu.Unlock()
		return
	}
	val, err := v.val, v.err
	v.mu.Unlock()
	c(val, err)
}

// Peek returns the resolved value if the value is terminal and did not fail.
// It never blocks.
func (v *Value[T]) Peek() (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.terminal || v.err != nil {
		var zero T
		return zero, false
	}
	return v.val, true
}

// Wait blocks until the value reaches a terminal state or the context is
// cancelled, and returns the resolved value or the failure cause.
func (v *Value[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-v.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.err
}

// Map derives a new value by applying f to the resolved input. f runs at most
// once, only after the input resolved. If the input fails, f is not invoked
// and the derived value fails with the same cause. If f returns an error the
// derived value fails with that error.
func Map[T, U any](in *Value[T], f func(T) (U, error)) *Value[U] {
	out := Pending[U]()
	in.onDone(func(val T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		mapped, ferr := f(val)
		if ferr != nil {
			out.Fail(ferr)
			return
		}
		out.Resolve(mapped)
	})
	return out
}

// Then sequences a dependent asynchronous step: f receives the resolved input
// and returns a new deferred value whose outcome the derived value adopts.
// Failure of either the input or the inner value propagates unchanged.
func Then[T, U any](in *Value[T], f func(T) (*Value[U], error)) *Value[U] {
	out := Pending[U]()
	in.onDone(func(val T, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		inner, ferr := f(val)
		if ferr != nil {
			out.Fail(ferr)
			return
		}
		inner.onDone(func(ival U, ierr error) {
			if ierr != nil {
				out.Fail(ierr)
				return
			}
			out.Resolve(ival)
		})
	})
	return out
}
