package remote

import (
	"context"

	"github.com/driftfs/driftfs/pkg/bridge"
)

// AsyncPath is the suspension-point view of a Path: the same operation
// set, resolved through futures so many calls can be in flight without
// a caller thread parked on each. Contracts match the blocking forms.
type AsyncPath struct {
	p Path
}

func (p Path) Async() AsyncPath {
	return AsyncPath{p: p}
}

func goErr(ctx context.Context, fn func(context.Context) error) *bridge.Future[struct{}] {
	return bridge.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func (a AsyncPath) Stat(ctx context.Context) *bridge.Future[Item] {
	return bridge.Go(ctx, a.p.Stat)
}

func (a AsyncPath) Exists(ctx context.Context) *bridge.Future[bool] {
	return bridge.Go(ctx, a.p.Exists)
}

func (a AsyncPath) IsFile(ctx context.Context) *bridge.Future[bool] {
	return bridge.Go(ctx, a.p.IsFile)
}

func (a AsyncPath) List(ctx context.Context) *bridge.Future[[]Path] {
	return bridge.Go(ctx, a.p.List)
}

func (a AsyncPath) Mkdir(ctx context.Context, opts MkdirOptions) *bridge.Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error {
		return a.p.Mkdir(ctx, opts)
	})
}

func (a AsyncPath) Rmdir(ctx context.Context) *bridge.Future[struct{}] {
	return goErr(ctx, a.p.Rmdir)
}

func (a AsyncPath) Unlink(ctx context.Context) *bridge.Future[struct{}] {
	return goErr(ctx, a.p.Unlink)
}

func (a AsyncPath) CopyTo(ctx context.Context, dst Destination) *bridge.Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error {
		return a.p.CopyTo(ctx, dst)
	})
}

func (a AsyncPath) MoveTo(ctx context.Context, dst Destination) *bridge.Future[struct{}] {
	return goErr(ctx, func(ctx context.Context) error {
		return a.p.MoveTo(ctx, dst)
	})
}

func (a AsyncPath) ReadText(ctx context.Context) *bridge.Future[string] {
	return bridge.Go(ctx, a.p.ReadText)
}

func (a AsyncPath) WriteText(ctx context.Context, text string) *bridge.Future[int] {
	return bridge.Go(ctx, func(ctx context.Context) (int, error) {
		return a.p.WriteText(ctx, text)
	})
}
