package types

import "time"

type AppConfig struct {
	DebugMode    bool               `key:"debugMode" json:"debug_mode"`
	PrettyLogs   bool               `key:"prettyLogs" json:"pretty_logs"`
	ControlPlane ControlPlaneConfig `key:"controlPlane" json:"control_plane"`
	Mount        MountConfig        `key:"mount" json:"mount"`
}

// ControlPlaneConfig describes how to launch and reach the external
// storage control-plane process.
type ControlPlaneConfig struct {
	Command        string        `key:"command" json:"command"`
	ExtraArgs      []string      `key:"extraArgs" json:"extra_args"`
	SocketDir      string        `key:"socketDir" json:"socket_dir"`
	StartupTimeout time.Duration `key:"startupTimeout" json:"startup_timeout"`
	ShutdownGrace  time.Duration `key:"shutdownGrace" json:"shutdown_grace"`
}

// MountConfig carries the defaults applied to every mount session.
type MountConfig struct {
	VfsOpts       map[string]interface{} `key:"vfsOpts" json:"vfs_opts"`
	DrainInterval time.Duration          `key:"drainInterval" json:"drain_interval"`
	DrainTimeout  time.Duration          `key:"drainTimeout" json:"drain_timeout"`
	SettleDelay   time.Duration          `key:"settleDelay" json:"settle_delay"`
}
