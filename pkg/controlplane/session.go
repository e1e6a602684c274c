package controlplane

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/driftfs/driftfs/pkg/bridge"
	"github.com/driftfs/driftfs/pkg/types"
)

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

func sharedMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Session is one bridge session: the background loop, the supervised
// control-plane process, and the live connection. The connection is
// installed exactly once at session start and cleared exactly once at
// teardown; in between it is read-only.
type Session struct {
	loop       *bridge.Loop
	socketPath string
	conn       atomic.Pointer[Connection]

	// Set only when the session was opened handle-style via Start.
	handle  *bridge.Handle[*Session]
	release func()
}

// Connection returns the live connection, or ErrNotConnected when the
// session has not started or has been torn down. Operating on a closed
// session is a programming error, not a recoverable condition.
func (s *Session) Connection() (*Connection, error) {
	if c := s.conn.Load(); c != nil {
		return c, nil
	}
	return nil, ErrNotConnected
}

func (s *Session) SocketPath() string {
	return s.socketPath
}

// Run starts the control-plane services, hands a live Session to use,
// and tears everything down when use returns: clear the connection,
// cancel and join the supervised tasks, remove the socket.
func Run(ctx context.Context, cfg types.AppConfig, use func(*Session) error) error {
	loop, release := bridge.Ensure(ctx)
	defer release()

	socketPath := filepath.Join(cfg.ControlPlane.SocketDir, "driftfs-"+uuid.NewString()+".sock")
	s := &Session{loop: loop, socketPath: socketPath}

	daemon := NewDaemon(cfg.ControlPlane, socketPath)
	stop := bridge.Supervise(ctx, daemon.Run)
	defer os.Remove(socketPath)

	conn := Dial(socketPath, sharedMetrics())
	if err := waitReady(ctx, conn, cfg.ControlPlane.StartupTimeout); err != nil {
		return errors.Join(err, stop())
	}

	// The loop serializes the connection install and clear against the
	// session's own start and end.
	if err := loop.Do(ctx, func(context.Context) error {
		s.conn.Store(conn)
		return nil
	}); err != nil {
		return errors.Join(err, stop())
	}

	useErr := use(s)

	if err := loop.Do(context.WithoutCancel(ctx), func(context.Context) error {
		s.conn.Store(nil)
		return nil
	}); err != nil {
		s.conn.Store(nil)
	}

	stopErr := stop()
	if useErr != nil {
		return useErr
	}
	return stopErr
}

// Start opens a session handle-style: the scope-style Run is parked on
// the bridge loop until Close is called. Close tears the session down
// and reports any supervision failure.
func Start(ctx context.Context, cfg types.AppConfig) (*Session, error) {
	loop, release := bridge.Ensure(ctx)

	h, err := bridge.Open(ctx, loop, func(jctx context.Context, yield func(*Session) error) error {
		return Run(jctx, cfg, yield)
	})
	if err != nil {
		release()
		return nil, err
	}

	s := h.Value()
	s.handle = h
	s.release = release
	log.Debug().Str("socket", s.socketPath).Msg("session started")
	return s, nil
}

// Close releases a session opened with Start. Closing a scope-managed
// session is a no-op; Run owns its teardown.
func (s *Session) Close(ctx context.Context) error {
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close(ctx)
	s.handle = nil
	if s.release != nil {
		s.release()
		s.release = nil
	}
	return err
}
