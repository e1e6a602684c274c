package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/driftfs/driftfs/pkg/address"
	"github.com/driftfs/driftfs/pkg/controlplane"
)

// Item is the stat record the control plane reports for one entry.
type Item struct {
	Path     string    `json:"Path"`
	Name     string    `json:"Name"`
	Size     int64     `json:"Size"`
	MimeType string    `json:"MimeType"`
	ModTime  time.Time `json:"ModTime"`
	IsDir    bool      `json:"IsDir"`
}

// statOpts turns recursion and hashing off; both are wasted work for a
// single-entry lookup.
const statOpts = `{"recurse":false,"showHash":false}`

// Stat describes this path. A response carrying no item means the
// target does not exist.
func (p Path) Stat(ctx context.Context) (Item, error) {
	conn, err := p.client.conn()
	if err != nil {
		return Item{}, err
	}

	params := p.params()
	params.Set("opt", statOpts)

	var resp struct {
		Item *Item `json:"item"`
	}
	if err := conn.Call(ctx, "operations/stat", params, nil, &resp); err != nil {
		return Item{}, err
	}
	if resp.Item == nil {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return *resp.Item, nil
}

// Exists maps Stat to a boolean; only ErrNotFound reads as false, any
// other failure propagates.
func (p Path) Exists(ctx context.Context) (bool, error) {
	_, err := p.Stat(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsFile reports whether the path exists and is not a directory.
func (p Path) IsFile(ctx context.Context) (bool, error) {
	item, err := p.Stat(ctx)
	if err != nil {
		return false, err
	}
	return !item.IsDir, nil
}

// List returns the immediate children of this directory, each joined
// onto the receiver. A listing failure reads uniformly as the directory
// being absent.
func (p Path) List(ctx context.Context) ([]Path, error) {
	conn, err := p.client.conn()
	if err != nil {
		return nil, err
	}

	params := p.params()
	params.Set("opt", statOpts)

	var resp struct {
		List *[]Item `json:"list"`
	}
	if err := conn.Call(ctx, "operations/list", params, nil, &resp); err != nil {
		var opErr *controlplane.OpError
		if errors.As(err, &opErr) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	if resp.List == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	return lo.Map(*resp.List, func(item Item, _ int) Path {
		return p.Join(item.Name)
	}), nil
}

// MkdirOptions controls Mkdir. With Parents unset the parent directory
// must already exist; ExistOK suppresses the error for an existing
// target.
type MkdirOptions struct {
	Parents bool
	ExistOK bool
}

// Mkdir creates this directory.
func (p Path) Mkdir(ctx context.Context, opts MkdirOptions) error {
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if opts.ExistOK {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrExists, p)
	}

	if !opts.Parents {
		parent := p.Parent()
		if !parent.Equal(p) {
			ok, err := parent.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", ErrNotFound, parent)
			}
		}
	}

	conn, err := p.client.conn()
	if err != nil {
		return err
	}
	return conn.Call(ctx, "operations/mkdir", p.params(), nil, nil)
}

// Rmdir removes this directory. Both a missing target and a reported
// "no such file or directory" read as ErrNotFound; other reported
// errors pass through with the control plane's message.
func (p Path) Rmdir(ctx context.Context) error {
	exists, err := p.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}

	conn, err := p.client.conn()
	if err != nil {
		return err
	}
	if err := conn.Call(ctx, "operations/rmdir", p.params(), nil, nil); err != nil {
		var opErr *controlplane.OpError
		if errors.As(err, &opErr) && strings.Contains(opErr.Message, "no such file or directory") {
			return fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return err
	}
	return nil
}

// Unlink deletes this file; control-plane failures pass through.
func (p Path) Unlink(ctx context.Context) error {
	conn, err := p.client.conn()
	if err != nil {
		return err
	}
	return conn.Call(ctx, "operations/deletefile", p.params(), nil, nil)
}

// Destination names where a copy or move lands: either an existing Path
// or a raw address Spec, resolved once against the source before
// dispatch.
type Destination interface {
	resolveAgainst(src Path) (Path, error)
}

func (p Path) resolveAgainst(Path) (Path, error) {
	return p, nil
}

// Spec is a raw destination address. A backend-qualified or absolute
// spec stands on its own (a bare absolute path inherits the source's
// backend); a bare relative spec resolves against the source's parent.
type Spec string

func (s Spec) resolveAgainst(src Path) (Path, error) {
	backend, rest, err := address.Split(string(s))
	if err != nil {
		return Path{}, err
	}
	if !strings.HasPrefix(rest, "/") {
		return src.Parent().Join(rest), nil
	}

	addr := src.addr
	if backend != "" {
		addr = address.Address{Backend: backend}
	}
	return newPath(src.client, addr, rest), nil
}

// CopyTo copies this file to dst.
func (p Path) CopyTo(ctx context.Context, dst Destination) error {
	return p.transfer(ctx, "operations/copyfile", dst)
}

// MoveTo renames this file to dst.
func (p Path) MoveTo(ctx context.Context, dst Destination) error {
	return p.transfer(ctx, "operations/movefile", dst)
}

func (p Path) transfer(ctx context.Context, op string, dst Destination) error {
	target, err := dst.resolveAgainst(p)
	if err != nil {
		return err
	}

	conn, err := p.client.conn()
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("srcFs", p.FsName())
	params.Set("srcRemote", p.RemoteArg())
	params.Set("dstFs", target.FsName())
	params.Set("dstRemote", target.RemoteArg())
	return conn.Call(ctx, op, params, nil, nil)
}

// ReadText fetches the whole file as text through a generic remote
// command execution; there is no partial read.
func (p Path) ReadText(ctx context.Context) (string, error) {
	isFile, err := p.IsFile(ctx)
	if err != nil {
		return "", err
	}
	if !isFile {
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, p)
	}

	conn, err := p.client.conn()
	if err != nil {
		return "", err
	}

	args, err := json.Marshal([]string{"--quiet", p.String()})
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("command", "cat")
	params.Set("arg", string(args))

	var resp struct {
		Error  bool   `json:"error"`
		Result string `json:"result"`
	}
	if err := conn.Call(ctx, "core/command", params, nil, &resp); err != nil {
		return "", err
	}
	if resp.Error {
		if strings.Contains(resp.Result, "not found") {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", &controlplane.OpError{Op: "core/command", Message: resp.Result}
	}
	return resp.Result, nil
}

// WriteText uploads text as the full content of this file, overwriting
// whatever was there, and returns the number of bytes written.
func (p Path) WriteText(ctx context.Context, text string) (int, error) {
	conn, err := p.client.conn()
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("fs", p.FsName())
	params.Set("remote", p.Parent().RemoteArg())

	body := &controlplane.UploadBody{FileName: p.Name(), Content: []byte(text)}
	if err := conn.Call(ctx, "operations/uploadfile", params, body, nil); err != nil {
		return 0, err
	}
	return len(text), nil
}
