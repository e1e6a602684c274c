// Package remote gives callers a uniform, path-like handle to files and
// directories that live on a local disk or a remote storage backend.
// Every operation delegates to the external control plane; no data-plane
// I/O happens in this package apart from mounted directory views.
package remote

import (
	"strings"

	"github.com/driftfs/driftfs/pkg/address"
	"github.com/driftfs/driftfs/pkg/controlplane"
	"github.com/driftfs/driftfs/pkg/types"
)

// ConnectionSource yields the live control-plane connection for each
// operation. A controlplane.Session is the usual implementation.
type ConnectionSource interface {
	Connection() (*controlplane.Connection, error)
}

// Client binds paths to a control-plane connection. Paths constructed
// from a client carry it along; operations on paths whose session has
// ended fail with controlplane.ErrNotConnected.
type Client struct {
	src   ConnectionSource
	mount types.MountConfig
}

func NewClient(src ConnectionSource, mount types.MountConfig) *Client {
	return &Client{src: src, mount: mount}
}

func (c *Client) conn() (*controlplane.Connection, error) {
	return c.src.Connection()
}

// Path parses an address string ([backend:]path) into a Path bound to
// this client.
func (c *Client) Path(s string) (Path, error) {
	addr, rest, err := address.Parse(s)
	if err != nil {
		return Path{}, err
	}
	return newPath(c, addr, rest), nil
}

// LocalPath builds a Path on the local filesystem sentinel. Absolute
// native paths stay absolute; relative ones are backend-relative and
// are never resolved against a working directory.
func (c *Client) LocalPath(p string) Path {
	addr := address.Address{Backend: address.Local, LocalAbsolute: strings.HasPrefix(p, "/")}
	return newPath(c, addr, p)
}
