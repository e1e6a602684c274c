package bridge

import (
	"context"
	"errors"
	"sync"
)

var ErrNeverReady = errors.New("resource released before becoming ready")

// WithFunc is the scope-style shape of a resource: it acquires, hands
// the value to use, and tears down after use returns, no matter how.
type WithFunc[T any] func(ctx context.Context, use func(T) error) error

// Handle is the handle-style view of a scope-style resource obtained
// through Open. Close releases the resource and waits for its teardown
// to finish.
type Handle[T any] struct {
	value     T
	done      chan struct{}
	finished  chan struct{}
	err       error
	closeOnce sync.Once
}

// Open runs a scope-style resource on the loop and exposes it as an
// explicit handle usable from blocking code. The loop job acquires the
// resource, signals ready with the value, then parks until the handle
// is closed; teardown runs inside the job exactly once, whether the
// consumer exits cleanly, with an error, or by cancellation.
func Open[T any](ctx context.Context, loop *Loop, with WithFunc[T]) (*Handle[T], error) {
	ready := make(chan T, 1)
	h := &Handle[T]{
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	err := loop.Submit(func(jctx context.Context) {
		defer close(h.finished)
		h.err = with(jctx, func(v T) error {
			ready <- v
			select {
			case <-h.done:
			case <-jctx.Done():
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	select {
	case v := <-ready:
		h.value = v
		return h, nil
	case <-h.finished:
		if h.err != nil {
			return nil, h.err
		}
		return nil, ErrNeverReady
	case <-ctx.Done():
		// Let the job unwind on its own; teardown still runs.
		h.signalDone()
		return nil, ctx.Err()
	}
}

func (h *Handle[T]) Value() T {
	return h.value
}

func (h *Handle[T]) signalDone() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Close permits teardown and waits for it to complete, returning the
// resource's own error if it produced one. Safe to call more than once.
func (h *Handle[T]) Close(ctx context.Context) error {
	h.signalDone()
	select {
	case <-h.finished:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// With runs a handle-style (blocking) resource from scope-style code. A
// dedicated worker goroutine opens the resource and hands the value
// over a bounded single-item channel, then parks until use has
// returned; release always runs on the worker, exactly once. The
// release error is reported unless use already failed.
func With[T any](ctx context.Context, open func(context.Context) (T, func() error, error), use func(T) error) error {
	ready := make(chan T, 1)
	openErr := make(chan error, 1)
	done := make(chan struct{})
	released := make(chan error, 1)

	go func() {
		v, release, err := open(ctx)
		if err != nil {
			openErr <- err
			return
		}
		ready <- v
		<-done
		released <- release()
	}()

	var v T
	select {
	case v = <-ready:
	case err := <-openErr:
		return err
	case <-ctx.Done():
		// The open call may still complete; reap it so the resource is
		// not leaked.
		go func() {
			select {
			case <-ready:
				close(done)
				<-released
			case <-openErr:
			}
		}()
		return ctx.Err()
	}

	useErr := func() (err error) {
		defer close(done)
		return use(v)
	}()

	releaseErr := <-released
	if useErr != nil {
		return useErr
	}
	return releaseErr
}
