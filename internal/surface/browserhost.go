package surface

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultBrowsers is the lookup order when config does not name one.
var defaultBrowsers = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"brave-browser",
	"microsoft-edge",
}

const closeGrace = 3 * time.Second

// BrowserHost materializes surfaces as browser app-mode windows. Each
// label gets its own profile directory so the browser treats it as a
// separate single-instance app, which is what makes focus-by-relaunch
// work.
type BrowserHost struct {
	candidates []string
	profileDir string
	log        *zap.Logger

	mu    sync.Mutex
	procs map[string]*browserHandle
}

// NewBrowserHost builds a host. candidates overrides the browser
// lookup order; profileDir roots the per-label profile directories.
func NewBrowserHost(candidates []string, profileDir string, log *zap.Logger) *BrowserHost {
	if len(candidates) == 0 {
		candidates = defaultBrowsers
	}
	return &BrowserHost{
		candidates: candidates,
		profileDir: profileDir,
		log:        log,
		procs:      map[string]*browserHandle{},
	}
}

func (b *BrowserHost) resolveBrowser() (string, error) {
	for _, name := range b.candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no usable browser found (tried %v)", b.candidates)
}

// Spawn launches a new app-mode window for the label.
func (b *BrowserHost) Spawn(ctx context.Context, label string, opts SpawnOptions) (Handle, error) {
	bin, err := b.resolveBrowser()
	if err != nil {
		return nil, err
	}

	args := []string{
		"--app=" + opts.URL,
		"--user-data-dir=" + filepath.Join(b.profileDir, "surface-"+label),
		"--no-first-run",
	}
	if opts.Window.Width > 0 && opts.Window.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.Window.Width, opts.Window.Height))
	}

	// The window must outlive the request that opened it, so the
	// command is deliberately not bound to ctx.
	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch %s: %w", bin, err)
	}

	h := &browserHandle{
		label: label,
		id:    uuid.NewString(),
		bin:   bin,
		args:  args,
		cmd:   cmd,
		done:  make(chan struct{}),
	}
	go func() {
		cmd.Wait()
		close(h.done)
	}()

	b.mu.Lock()
	b.procs[label] = h
	b.mu.Unlock()

	b.log.Debug("browser surface launched",
		zap.String("label", label),
		zap.String("browser", bin),
		zap.Int("pid", cmd.Process.Pid))
	return h, nil
}

// Lookup returns the live window this host spawned for the label.
func (b *BrowserHost) Lookup(label string) (Handle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.procs[label]
	if !ok || !h.Alive() {
		delete(b.procs, label)
		return nil, false
	}
	return h, true
}

type browserHandle struct {
	label string
	id    string
	bin   string
	args  []string
	cmd   *exec.Cmd
	done  chan struct{}
}

func (h *browserHandle) Label() string { return h.label }
func (h *browserHandle) ID() string    { return h.id }

func (h *browserHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Focus relaunches the browser against the same profile; the running
// instance takes over the invocation and raises its window.
func (h *browserHandle) Focus() error {
	cmd := exec.Command(h.bin, h.args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

func (h *browserHandle) Close(ctx context.Context) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(closeGrace):
		return fmt.Errorf("surface %q ignored close", h.label)
	}
}

func (h *browserHandle) Destroy() error {
	if err := h.cmd.Process.Kill(); err != nil {
		return err
	}
	<-h.done
	return nil
}

func (h *browserHandle) Done() <-chan struct{} { return h.done }
