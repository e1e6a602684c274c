package remote

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs/pkg/controlplane"
	"github.com/driftfs/driftfs/pkg/types"
)

// fakeEntry is one object in the fake backend, keyed by its rendered
// address string.
type fakeEntry struct {
	content string
	isDir   bool
	modTime time.Time
}

type fakeMount struct {
	fs         string
	mountPoint string
}

// fakeControlPlane emulates the control plane's RPC surface over a unix
// socket, backed by an in-memory object store keyed by rendered address
// strings. Mounting materializes entries into the mount point; unmount
// absorbs local files back into the store, so the drain barrier is
// observable: unmounting while uploads are still reported pending is
// recorded as a prematureUnmount.
type fakeControlPlane struct {
	t  *testing.T
	mu sync.Mutex

	entries map[string]*fakeEntry
	mounts  map[string]*fakeMount

	// One vfs/stats poll reports pending uploads per unit of drainPolls;
	// stickyDrain reports pending uploads forever.
	drainPolls       int
	stickyDrain      bool
	statsCalls       int
	prematureUnmount bool

	// ghosts stat as files but fail content reads.
	ghosts map[string]bool

	// rmdirError forces operations/rmdir to fail with this message.
	rmdirError string
}

func newFakeControlPlane(t *testing.T, roots ...string) (*fakeControlPlane, *controlplane.Connection) {
	t.Helper()

	f := &fakeControlPlane{
		t:       t,
		entries: map[string]*fakeEntry{},
		mounts:  map[string]*fakeMount{},
		ghosts:  map[string]bool{},
	}
	for _, root := range roots {
		f.entries[root] = &fakeEntry{isDir: true, modTime: time.Now()}
	}

	socketPath := filepath.Join(t.TempDir(), "cp.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	f.register(e)
	e.Listener = ln
	go func() { _ = e.Start("") }()
	t.Cleanup(func() { _ = e.Close() })

	return f, controlplane.Dial(socketPath, nil)
}

// newTestClient wires a client to a fresh fake backend seeded with the
// given backend roots.
func newTestClient(t *testing.T, mount types.MountConfig, roots ...string) (*Client, *fakeControlPlane) {
	t.Helper()
	fake, conn := newFakeControlPlane(t, roots...)
	return NewClient(staticSource{conn}, mount), fake
}

type staticSource struct {
	conn *controlplane.Connection
}

func (s staticSource) Connection() (*controlplane.Connection, error) {
	return s.conn, nil
}

// key renders fs+remote the same way Path.String does.
func (f *fakeControlPlane) key(fs, remote string) string {
	if remote == "" {
		return fs
	}
	if strings.HasSuffix(fs, ":") || strings.HasSuffix(fs, "/") {
		return fs + remote
	}
	return fs + "/" + remote
}

func fakeOK(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{})
}

func fakeError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func (f *fakeControlPlane) register(e *echo.Echo) {
	e.POST("/operations/stat", f.handleStat)
	e.POST("/operations/list", f.handleList)
	e.POST("/operations/mkdir", f.handleMkdir)
	e.POST("/operations/rmdir", f.handleRmdir)
	e.POST("/operations/deletefile", f.handleDeletefile)
	e.POST("/operations/copyfile", f.handleTransfer(false))
	e.POST("/operations/movefile", f.handleTransfer(true))
	e.POST("/operations/uploadfile", f.handleUploadfile)
	e.POST("/core/command", f.handleCommand)
	e.POST("/mount/mount", f.handleMount)
	e.POST("/mount/unmount", f.handleUnmount)
	e.POST("/vfs/stats", f.handleVfsStats)
}

func (f *fakeControlPlane) handleStat(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	remote := c.QueryParam("remote")
	entry, ok := f.entries[f.key(c.QueryParam("fs"), remote)]
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"item": nil})
	}

	name := path.Base(remote)
	if remote == "" {
		name = ""
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item": map[string]interface{}{
			"Path":    remote,
			"Name":    name,
			"Size":    len(entry.content),
			"IsDir":   entry.isDir,
			"ModTime": entry.modTime.Format(time.RFC3339Nano),
		},
	})
}

func (f *fakeControlPlane) handleList(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.key(c.QueryParam("fs"), c.QueryParam("remote"))
	dir, ok := f.entries[key]
	if !ok || !dir.isDir {
		return fakeError(c, http.StatusNotFound, "directory not found")
	}

	prefix := key + "/"
	if strings.HasSuffix(key, ":") || strings.HasSuffix(key, "/") {
		prefix = key
	}

	list := []map[string]interface{}{}
	for k, entry := range f.entries {
		if !strings.HasPrefix(k, prefix) || k == key {
			continue
		}
		name := strings.TrimPrefix(k, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		list = append(list, map[string]interface{}{
			"Path":    name,
			"Name":    name,
			"Size":    len(entry.content),
			"IsDir":   entry.isDir,
			"ModTime": entry.modTime.Format(time.RFC3339Nano),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"list": list})
}

func (f *fakeControlPlane) handleMkdir(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fs := c.QueryParam("fs")
	remote := c.QueryParam("remote")

	// Intermediate directories come into being along with the target.
	parts := strings.Split(remote, "/")
	for i := range parts {
		k := f.key(fs, strings.Join(parts[:i+1], "/"))
		if _, ok := f.entries[k]; !ok {
			f.entries[k] = &fakeEntry{isDir: true, modTime: time.Now()}
		}
	}
	return fakeOK(c)
}

func (f *fakeControlPlane) handleRmdir(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rmdirError != "" {
		return fakeError(c, http.StatusInternalServerError, f.rmdirError)
	}

	key := f.key(c.QueryParam("fs"), c.QueryParam("remote"))
	if _, ok := f.entries[key]; !ok {
		return fakeError(c, http.StatusInternalServerError, "rmdir failed: no such file or directory")
	}
	for k := range f.entries {
		if strings.HasPrefix(k, key+"/") {
			return fakeError(c, http.StatusInternalServerError, "rmdir failed: directory not empty")
		}
	}
	delete(f.entries, key)
	return fakeOK(c)
}

func (f *fakeControlPlane) handleDeletefile(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.key(c.QueryParam("fs"), c.QueryParam("remote"))
	entry, ok := f.entries[key]
	if !ok || entry.isDir {
		return fakeError(c, http.StatusNotFound, "object not found")
	}
	delete(f.entries, key)
	delete(f.ghosts, key)
	return fakeOK(c)
}

func (f *fakeControlPlane) handleTransfer(deleteSrc bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()

		srcKey := f.key(c.QueryParam("srcFs"), c.QueryParam("srcRemote"))
		dstKey := f.key(c.QueryParam("dstFs"), c.QueryParam("dstRemote"))

		src, ok := f.entries[srcKey]
		if !ok || src.isDir {
			return fakeError(c, http.StatusNotFound, "object not found")
		}
		f.entries[dstKey] = &fakeEntry{content: src.content, modTime: time.Now()}
		if deleteSrc {
			delete(f.entries, srcKey)
		}
		return fakeOK(c)
	}
}

func (f *fakeControlPlane) handleUploadfile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fakeError(c, http.StatusBadRequest, err.Error())
	}
	file, err := fh.Open()
	if err != nil {
		return fakeError(c, http.StatusBadRequest, err.Error())
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return fakeError(c, http.StatusBadRequest, err.Error())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	dirKey := f.key(c.QueryParam("fs"), c.QueryParam("remote"))
	f.entries[f.key(dirKey, fh.Filename)] = &fakeEntry{content: string(content), modTime: time.Now()}
	return fakeOK(c)
}

func (f *fakeControlPlane) handleCommand(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c.QueryParam("command") != "cat" {
		return fakeError(c, http.StatusBadRequest, "unknown command")
	}
	var args []string
	if err := json.Unmarshal([]byte(c.QueryParam("arg")), &args); err != nil || len(args) == 0 {
		return fakeError(c, http.StatusBadRequest, "bad arg")
	}

	key := args[len(args)-1]
	entry, ok := f.entries[key]
	if !ok || entry.isDir || f.ghosts[key] {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"error":  true,
			"result": "error: file not found: " + key,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"error":  false,
		"result": entry.content,
	})
}

func (f *fakeControlPlane) handleMount(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fs := c.QueryParam("fs")
	mountPoint := c.QueryParam("mountPoint")
	if _, ok := f.entries[fs]; !ok {
		return fakeError(c, http.StatusNotFound, "directory not found")
	}

	// Materialize direct children into the mount point.
	prefix := fs + "/"
	if strings.HasSuffix(fs, ":") || strings.HasSuffix(fs, "/") {
		prefix = fs
	}
	for k, entry := range f.entries {
		if !strings.HasPrefix(k, prefix) || k == fs || entry.isDir {
			continue
		}
		name := strings.TrimPrefix(k, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		if err := os.WriteFile(filepath.Join(mountPoint, name), []byte(entry.content), 0o644); err != nil {
			return fakeError(c, http.StatusInternalServerError, err.Error())
		}
	}

	f.mounts[mountPoint] = &fakeMount{fs: fs, mountPoint: mountPoint}
	return fakeOK(c)
}

func (f *fakeControlPlane) handleUnmount(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	mountPoint := c.QueryParam("mountPoint")
	m, ok := f.mounts[mountPoint]
	if !ok {
		return fakeError(c, http.StatusNotFound, "mount not found")
	}

	if f.drainPolls > 0 || f.stickyDrain {
		f.prematureUnmount = true
	}

	// Absorb local files back into the store.
	names, err := os.ReadDir(mountPoint)
	if err != nil {
		return fakeError(c, http.StatusInternalServerError, err.Error())
	}
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(mountPoint, de.Name()))
		if err != nil {
			return fakeError(c, http.StatusInternalServerError, err.Error())
		}
		f.entries[f.key(m.fs, de.Name())] = &fakeEntry{content: string(content), modTime: time.Now()}
	}

	delete(f.mounts, mountPoint)
	return fakeOK(c)
}

func (f *fakeControlPlane) handleVfsStats(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statsCalls++
	inProgress, queued := 0, 0
	if f.stickyDrain {
		inProgress, queued = 1, 1
	} else if f.drainPolls > 0 {
		inProgress, queued = 1, f.drainPolls-1
		f.drainPolls--
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"diskCache": map[string]interface{}{
			"uploadsInProgress": inProgress,
			"uploadsQueued":     queued,
		},
	})
}

func (f *fakeControlPlane) setDrainPolls(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drainPolls = n
}

func (f *fakeControlPlane) statsCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statsCalls
}

func (f *fakeControlPlane) setStickyDrain(sticky bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stickyDrain = sticky
}

func (f *fakeControlPlane) wasPrematurelyUnmounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prematureUnmount
}

func (f *fakeControlPlane) forceRmdirError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rmdirError = msg
}

func (f *fakeControlPlane) addGhost(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = &fakeEntry{content: "phantom", modTime: time.Now()}
	f.ghosts[key] = true
}
