// Package controlplane dials and supervises the external storage
// control-plane process and exposes its RPC surface over a process-local
// unix socket.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftfs/driftfs/pkg/bridge"
)

var ErrNotConnected = errors.New("control plane is not connected")

// OpError carries the raw error string the control plane reported for
// an operation that did not match a recognized failure pattern.
type OpError struct {
	Op      string
	Message string
	Status  int
}

func (e *OpError) Error() string {
	return fmt.Sprintf("control plane %s failed: %s", e.Op, e.Message)
}

// UploadBody is the single-field multipart form used by upload calls.
type UploadBody struct {
	FileName string
	Content  []byte
}

func (b *UploadBody) encode() (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", b.FileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(b.Content); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// Connection is an RPC channel to the control plane over a
// filesystem-addressed unix socket. It is safe for concurrent use and
// performs no retries; retry policy belongs to callers.
type Connection struct {
	socketPath string
	httpc      *http.Client
	metrics    *Metrics
}

func Dial(socketPath string, metrics *Metrics) *Connection {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Connection{
		socketPath: socketPath,
		httpc:      &http.Client{Transport: transport},
		metrics:    metrics,
	}
}

func (c *Connection) SocketPath() string {
	return c.socketPath
}

// Call is the blocking entry point: POST the operation with the given
// query parameters (and optional multipart body) and decode the JSON
// response into out. Non-2xx responses surface the control plane's
// reported error string as an *OpError.
func (c *Connection) Call(ctx context.Context, op string, params url.Values, body *UploadBody, out interface{}) error {
	started := time.Now()
	err := c.call(ctx, op, params, body, out)
	c.metrics.observe(op, err, time.Since(started))

	log.Debug().Str("op", op).Err(err).Msg("control plane call")
	return err
}

// Go is the suspension-point entry point: the same call, resolved
// through a future.
func (c *Connection) Go(ctx context.Context, op string, params url.Values, body *UploadBody) *bridge.Future[json.RawMessage] {
	return bridge.Go(ctx, func(ctx context.Context) (json.RawMessage, error) {
		var raw json.RawMessage
		err := c.Call(ctx, op, params, body, &raw)
		return raw, err
	})
}

func (c *Connection) call(ctx context.Context, op string, params url.Values, body *UploadBody, out interface{}) error {
	u := "http://localhost/" + op
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reqBody io.Reader
	contentType := ""
	if body != nil {
		var err error
		reqBody, contentType, err = body.encode()
		if err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reqBody)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var remoteErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &remoteErr)
		if remoteErr.Error == "" {
			remoteErr.Error = resp.Status
		}
		return &OpError{Op: op, Message: remoteErr.Error, Status: resp.StatusCode}
	}

	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
