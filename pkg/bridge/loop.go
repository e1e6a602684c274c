// Package bridge runs resources and tasks across execution scopes: a
// background loop goroutine per session, one-shot futures, scoped
// resource handoffs in both directions, and task supervision.
package bridge

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopClosed = errors.New("bridge loop is closed")

type loopKey struct{}

// Loop owns one background goroutine per bridge session. Jobs are
// accepted and started in submission order; each runs with the loop's
// context, which is tagged so nested Ensure calls find the running loop
// instead of starting another.
type Loop struct {
	jobs   chan func(context.Context)
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

func StartLoop(ctx context.Context) *Loop {
	lctx, cancel := context.WithCancel(ctx)
	l := &Loop{
		jobs:   make(chan func(context.Context)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	l.ctx = context.WithValue(lctx, loopKey{}, l)
	go l.run()
	return l
}

// FromContext returns the loop the context belongs to, if any.
func FromContext(ctx context.Context) (*Loop, bool) {
	l, ok := ctx.Value(loopKey{}).(*Loop)
	return l, ok
}

// Ensure returns the loop already running in ctx, or starts a fresh one.
// The release function is a no-op for an inherited loop; for a fresh
// loop it stops the goroutine and waits for it to exit. Never starts a
// second loop inside an existing one.
func Ensure(ctx context.Context) (*Loop, func()) {
	if l, ok := FromContext(ctx); ok {
		return l, func() {}
	}
	l := StartLoop(ctx)
	return l, l.Close
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.wg.Wait()
			return
		case job := <-l.jobs:
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				job(l.ctx)
			}()
		}
	}
}

// Context returns the loop's tagged context. It is cancelled when the
// loop closes.
func (l *Loop) Context() context.Context {
	return l.ctx
}

// Submit schedules a job onto the loop without waiting for it.
func (l *Loop) Submit(job func(context.Context)) error {
	select {
	case l.jobs <- job:
		return nil
	case <-l.ctx.Done():
		return ErrLoopClosed
	}
}

// Do schedules fn onto the loop and blocks until it completes or ctx is
// cancelled.
func (l *Loop) Do(ctx context.Context, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	if err := l.Submit(func(lctx context.Context) {
		errc <- fn(lctx)
	}); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals the loop to stop, waits for in-flight jobs, and joins
// the loop goroutine. Safe to call more than once.
func (l *Loop) Close() {
	l.cancel()
	<-l.done
}
