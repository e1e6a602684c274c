package bridge

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Supervise starts the given tasks and returns a stop function that
// cancels them, waits for each to acknowledge, and reports the first
// failure. The expected cancellation error is swallowed; anything else
// propagates. A task failing on its own cancels its siblings, and the
// failure surfaces from stop.
func Supervise(ctx context.Context, tasks ...func(context.Context) error) (stop func() error) {
	g, gctx := errgroup.WithContext(ctx)
	sctx, cancel := context.WithCancel(gctx)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return task(sctx)
		})
	}

	return func() error {
		cancel()
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
