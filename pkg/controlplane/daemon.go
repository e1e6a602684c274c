package controlplane

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"

	"github.com/driftfs/driftfs/pkg/types"
)

// ErrDaemonExited reports that the control-plane process stopped on its
// own while it was supposed to keep serving.
var ErrDaemonExited = errors.New("control plane process exited")

const defaultShutdownGrace = 5 * time.Second

// Daemon runs the control-plane subprocess serving RPC on a unix
// socket. It is meant to be a supervised task: Run blocks until the
// context is cancelled (the child gets SIGINT and is waited on) or the
// child dies, which is reported as ErrDaemonExited.
type Daemon struct {
	cfg        types.ControlPlaneConfig
	socketPath string
}

func NewDaemon(cfg types.ControlPlaneConfig, socketPath string) *Daemon {
	return &Daemon{cfg: cfg, socketPath: socketPath}
}

func (d *Daemon) Run(ctx context.Context) error {
	args := append([]string{
		"rcd",
		"--rc-serve",
		"--rc-no-auth",
		"--rc-addr", "unix://" + d.socketPath,
	}, d.cfg.ExtraArgs...)

	cmd := exec.Command(d.cfg.Command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}
	log.Info().Str("command", d.cfg.Command).Int("pid", cmd.Process.Pid).Str("socket", d.socketPath).Msg("control plane started")

	waitc := make(chan error, 1)
	go func() {
		waitc <- cmd.Wait()
	}()

	select {
	case err := <-waitc:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDaemonExited, err)
		}
		return ErrDaemonExited
	case <-ctx.Done():
	}

	// Graceful stop first; the control plane flushes its VFS state on
	// SIGINT.
	_ = cmd.Process.Signal(syscall.SIGINT)

	grace := d.cfg.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	select {
	case <-waitc:
	case <-time.After(grace):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("control plane did not stop in time, killing")
		_ = cmd.Process.Kill()
		<-waitc
	}

	log.Info().Int("pid", cmd.Process.Pid).Msg("control plane stopped")
	return ctx.Err()
}

// waitReady polls a no-op RPC until the control plane answers on its
// socket, bounded by the configured startup timeout.
func waitReady(ctx context.Context, conn *Connection, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = timeout

	probe := func() error {
		return conn.Call(ctx, "rc/noop", nil, nil, nil)
	}
	if err := backoff.Retry(probe, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("control plane did not become ready: %w", err)
	}
	return nil
}
