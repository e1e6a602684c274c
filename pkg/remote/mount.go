package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftfs/driftfs/pkg/bridge"
	"github.com/driftfs/driftfs/pkg/controlplane"
	"github.com/driftfs/driftfs/pkg/types"
)

const (
	defaultDrainInterval = 100 * time.Millisecond
	defaultDrainTimeout  = 2 * time.Minute
	defaultSettleDelay   = 100 * time.Millisecond
)

func defaultVfsOpts() map[string]interface{} {
	return map[string]interface{}{
		"CacheMode": "writes",
		"WriteBack": "100ms",
	}
}

// MountSession promotes a Path into a real local directory for its
// lifetime. Close waits for the write-back cache to drain before
// unmounting; unmounting with uploads outstanding would lose data.
type MountSession struct {
	target Path
	dir    string
	cfg    types.MountConfig
	active bool
}

// Mount binds this path to a fresh empty temporary directory through
// the control plane. vfsOpts nil means the client's configured cache
// options, falling back to write-back caching with a short flush delay.
func (p Path) Mount(ctx context.Context, vfsOpts map[string]interface{}) (*MountSession, error) {
	conn, err := p.client.conn()
	if err != nil {
		return nil, err
	}

	cfg := p.client.mount
	if vfsOpts == nil {
		vfsOpts = cfg.VfsOpts
	}
	if vfsOpts == nil {
		vfsOpts = defaultVfsOpts()
	}

	dir, err := os.MkdirTemp("", "driftfs-mount-")
	if err != nil {
		return nil, err
	}

	opt, err := json.Marshal(vfsOpts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	params := url.Values{}
	params.Set("fs", p.String())
	params.Set("mountPoint", dir)
	params.Set("vfsOpt", string(opt))
	if err := conn.Call(ctx, "mount/mount", params, nil, nil); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	log.Debug().Str("target", p.String()).Str("mount_point", dir).Msg("mounted")
	return &MountSession{target: p, dir: dir, cfg: cfg, active: true}, nil
}

// Dir is the local directory view of the mounted path.
func (m *MountSession) Dir() string {
	return m.dir
}

// Active reports whether the mount is still bound.
func (m *MountSession) Active() bool {
	return m.active
}

// Close drains the write-back queues, waits one extra settle delay,
// unmounts, and removes the temporary directory. On a drain timeout the
// mount is left in place and ErrDrainTimeout is returned. Closing an
// already-closed session is a no-op.
func (m *MountSession) Close(ctx context.Context) error {
	if !m.active {
		return nil
	}

	conn, err := m.target.client.conn()
	if err != nil {
		return err
	}

	if err := m.drain(ctx, conn); err != nil {
		return err
	}

	settle := m.cfg.SettleDelay
	if settle <= 0 {
		settle = defaultSettleDelay
	}
	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	params := url.Values{}
	params.Set("mountPoint", m.dir)
	if err := conn.Call(ctx, "mount/unmount", params, nil, nil); err != nil {
		return err
	}

	m.active = false
	log.Debug().Str("target", m.target.String()).Str("mount_point", m.dir).Msg("unmounted")
	return os.RemoveAll(m.dir)
}

// drain polls the VFS statistics until no uploads are in progress or
// queued.
func (m *MountSession) drain(ctx context.Context, conn *controlplane.Connection) error {
	interval := m.cfg.DrainInterval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	timeout := m.cfg.DrainTimeout
	if timeout == 0 {
		timeout = defaultDrainTimeout
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	params := url.Values{}
	params.Set("fs", m.target.String())

	for {
		var resp struct {
			DiskCache struct {
				UploadsInProgress int `json:"uploadsInProgress"`
				UploadsQueued     int `json:"uploadsQueued"`
			} `json:"diskCache"`
		}
		if err := conn.Call(ctx, "vfs/stats", params, nil, &resp); err != nil {
			return err
		}
		if resp.DiskCache.UploadsInProgress == 0 && resp.DiskCache.UploadsQueued == 0 {
			return nil
		}

		select {
		case <-time.After(interval):
		case <-deadline:
			return fmt.Errorf("%w: %d in progress, %d queued", ErrDrainTimeout,
				resp.DiskCache.UploadsInProgress, resp.DiskCache.UploadsQueued)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WithMount runs use with a mounted directory view and tears the mount
// down afterwards, drain barrier included, no matter how use exits.
func (p Path) WithMount(ctx context.Context, vfsOpts map[string]interface{}, use func(dir string) error) error {
	return bridge.With(ctx, func(ctx context.Context) (string, func() error, error) {
		m, err := p.Mount(ctx, vfsOpts)
		if err != nil {
			return "", nil, err
		}
		release := func() error {
			return m.Close(context.WithoutCancel(ctx))
		}
		return m.Dir(), release, nil
	}, use)
}

// File is a native file handle opened inside a mounted view of its
// parent directory. Close tears the backing mount down as well.
type File struct {
	*os.File
	mount *MountSession
}

// OpenFile mounts the parent directory and opens this path inside the
// mounted view with the given flags.
func (p Path) OpenFile(ctx context.Context, flag int, perm os.FileMode) (*File, error) {
	m, err := p.Parent().Mount(ctx, nil)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(m.Dir(), p.Name()), flag, perm)
	if err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return &File{File: f, mount: m}, nil
}

// Close closes the native handle first, then drains and unmounts the
// backing view.
func (f *File) Close(ctx context.Context) error {
	err := f.File.Close()
	if merr := f.mount.Close(ctx); err == nil {
		err = merr
	}
	return err
}
