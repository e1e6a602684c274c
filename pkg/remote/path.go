package remote

import (
	"net/url"
	"path"
	"strings"

	"github.com/driftfs/driftfs/pkg/address"
)

// Path is an immutable path-like value on some backend. Navigation
// methods return new values; equality is structural over the rendered
// string form.
type Path struct {
	client *Client
	addr   address.Address
	rel    string
}

func newPath(c *Client, addr address.Address, rel string) Path {
	rel = cleanRel(rel)
	if addr.IsLocal() {
		addr.LocalAbsolute = strings.HasPrefix(rel, "/")
	}
	return Path{client: c, addr: addr, rel: rel}
}

// cleanRel normalizes to a posix-style relative form, with "" standing
// for the backend root.
func cleanRel(p string) string {
	if p == "" {
		return ""
	}
	cp := path.Clean(p)
	if cp == "." {
		return ""
	}
	return cp
}

// Join returns the path with the given components appended.
func (p Path) Join(parts ...string) Path {
	rel := p.rel
	for _, part := range parts {
		rel = path.Join(rel, part)
	}
	return newPath(p.client, p.addr, rel)
}

// Parent returns the containing directory; the root is its own parent.
func (p Path) Parent() Path {
	if p.rel == "" || p.rel == "/" {
		return p
	}
	return newPath(p.client, p.addr, path.Dir(p.rel))
}

// Name is the final path component, empty at the root.
func (p Path) Name() string {
	if p.rel == "" || p.rel == "/" {
		return ""
	}
	return path.Base(p.rel)
}

// Stem is the final path component without its extension.
func (p Path) Stem() string {
	name := p.Name()
	if ext := path.Ext(name); ext != "" && ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// FsName renders the backend half of the address for control-plane
// calls.
func (p Path) FsName() string {
	return p.addr.FsName()
}

// RemoteArg renders the backend-relative half: empty at the root, and
// relative to "/" for absolute local paths.
func (p Path) RemoteArg() string {
	if p.rel == "" {
		return ""
	}
	if p.addr.IsLocal() && p.addr.LocalAbsolute {
		return strings.TrimPrefix(p.rel, "/")
	}
	return p.rel
}

// String renders the normalized <backend><relativePath> form. The local
// sentinel renders as "/" for absolute paths and as ":local:"
// otherwise.
func (p Path) String() string {
	return p.FsName() + p.RemoteArg()
}

// Equal compares by rendered string form, consistently with hashing via
// String as a map key.
func (p Path) Equal(o Path) bool {
	return p.String() == o.String()
}

func (p Path) params() url.Values {
	v := url.Values{}
	v.Set("fs", p.FsName())
	v.Set("remote", p.RemoteArg())
	return v
}
