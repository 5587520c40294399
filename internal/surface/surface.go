// Package surface manages the auxiliary display windows (widget,
// settings panel, extras) by label: open, close, toggle, and a
// reconcile loop that keeps every peer informed about which windows
// exist. The window host is pluggable; production uses browser
// app-mode windows, tests use a fake.
package surface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/config"
)

// Handle represents one live window.
type Handle interface {
	Label() string
	ID() string
	Alive() bool
	Focus() error
	// Close asks the window to go away nicely; Destroy forces it.
	Close(ctx context.Context) error
	Destroy() error
	// Done is closed once the window is gone, however that happened.
	Done() <-chan struct{}
}

// SpawnOptions carries what a host needs to materialize a window.
type SpawnOptions struct {
	URL    string
	Window config.Window
}

// Host creates and finds windows.
type Host interface {
	Spawn(ctx context.Context, label string, opts SpawnOptions) (Handle, error)
	Lookup(label string) (Handle, bool)
}

// Seeder re-publishes canonical state for a freshly opened surface.
type Seeder func()

// Manager enforces the one-window-per-label rule and serves surface
// commands from the bus.
type Manager struct {
	host     Host
	bus      *bus.Bus
	baseURL  string
	windows  map[string]config.Window
	interval time.Duration
	seed     Seeder
	log      *zap.Logger

	mu      sync.Mutex
	handles map[string]Handle

	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	subs      []*bus.Subscription
}

// NewManager builds a manager over the given host. baseURL is where the
// hub serves the surface pages, e.g. "http://127.0.0.1:8804".
func NewManager(host Host, b *bus.Bus, baseURL string, cfg config.Surfaces, seed Seeder, log *zap.Logger) *Manager {
	interval := time.Duration(cfg.ReconcileIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	if seed == nil {
		seed = func() {}
	}
	return &Manager{
		host:     host,
		bus:      b,
		baseURL:  baseURL,
		windows:  cfg.Windows,
		interval: interval,
		seed:     seed,
		log:      log,
		handles:  map[string]Handle{},
		closed:   make(chan struct{}),
	}
}

// Labels lists the configured surface labels.
func (m *Manager) Labels() []string {
	labels := make([]string, 0, len(m.windows))
	for label := range m.windows {
		labels = append(labels, label)
	}
	return labels
}

// FindExisting resolves a live handle for the label, dropping dead
// cache entries and falling back to the host's own registry.
func (m *Manager) FindExisting(label string) (Handle, bool) {
	m.mu.Lock()
	if h, ok := m.handles[label]; ok {
		if h.Alive() {
			m.mu.Unlock()
			return h, true
		}
		delete(m.handles, label)
	}
	m.mu.Unlock()

	h, ok := m.host.Lookup(label)
	if !ok || !h.Alive() {
		return nil, false
	}
	m.mu.Lock()
	m.handles[label] = h
	m.mu.Unlock()
	return h, true
}

// Open shows the labeled surface, focusing an existing window instead
// of creating a second one.
func (m *Manager) Open(ctx context.Context, label string) error {
	if h, ok := m.FindExisting(label); ok {
		if err := h.Focus(); err != nil {
			m.log.Debug("focus surface", zap.String("label", label), zap.Error(err))
		}
		return nil
	}

	win, ok := m.windows[label]
	if !ok {
		return fmt.Errorf("unknown surface label %q", label)
	}

	h, err := m.host.Spawn(ctx, label, SpawnOptions{
		URL:    m.baseURL + "/" + label,
		Window: win,
	})
	if err != nil {
		return fmt.Errorf("spawn surface %q: %w", label, err)
	}

	m.mu.Lock()
	m.handles[label] = h
	m.mu.Unlock()
	go m.watch(label, h)

	m.log.Info("surface opened", zap.String("label", label), zap.String("id", h.ID()))
	m.seed()
	m.publishState()
	return nil
}

// Close dismisses the labeled surface. Absent windows are a no-op; a
// failed graceful close falls back to destroying the window.
func (m *Manager) Close(ctx context.Context, label string) error {
	h, ok := m.FindExisting(label)
	if !ok {
		return nil
	}

	if err := h.Close(ctx); err != nil {
		m.log.Warn("graceful close failed, destroying", zap.String("label", label), zap.Error(err))
		if derr := h.Destroy(); derr != nil {
			m.clearHandle(label, h)
			return fmt.Errorf("destroy surface %q: %w", label, derr)
		}
	}

	m.clearHandle(label, h)
	m.log.Info("surface closed", zap.String("label", label))
	m.publishState()
	return nil
}

// Toggle closes the surface when present, opens it when absent.
// Existence is re-resolved on every call, so rapid repetition converges
// instead of erroring.
func (m *Manager) Toggle(ctx context.Context, label string) error {
	if _, ok := m.FindExisting(label); ok {
		return m.Close(ctx, label)
	}
	return m.Open(ctx, label)
}

// States reports liveness for every configured label.
func (m *Manager) States() map[string]bool {
	states := map[string]bool{}
	for label := range m.windows {
		_, ok := m.FindExisting(label)
		states[label] = ok
	}
	return states
}

// Attach subscribes the surfaceCommand handler.
func (m *Manager) Attach(ctx context.Context) {
	m.subs = append(m.subs, m.bus.Subscribe(bus.ChannelSurfaceCommand, func(msg bus.Message) {
		cmd, ok := msg.Payload.(bus.SurfaceCommand)
		if !ok {
			return
		}
		var err error
		switch cmd.Action {
		case "open":
			err = m.Open(ctx, cmd.Label)
		case "close":
			err = m.Close(ctx, cmd.Label)
		case "toggle":
			err = m.Toggle(ctx, cmd.Label)
		default:
			err = fmt.Errorf("unknown surface action %q", cmd.Action)
		}
		if err != nil {
			m.log.Warn("surface command failed",
				zap.String("action", cmd.Action),
				zap.String("label", cmd.Label),
				zap.Error(err))
		}
	}))
}

// Start launches the reconcile loop; Stop tears the manager down.
func (m *Manager) Start(ctx context.Context) error {
	if m.cancel != nil {
		return fmt.Errorf("surface manager already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.reconcile(runCtx, m.done)
	return nil
}

// Stop cancels the reconcile loop and releases the command handlers.
// Open windows are left alone; they belong to the user.
func (m *Manager) Stop() {
	m.closeOnce.Do(func() { close(m.closed) })
	for _, s := range m.subs {
		s.Cancel()
	}
	m.subs = nil
	if m.cancel != nil {
		m.cancel()
		<-m.done
		m.cancel = nil
		m.done = nil
	}
}

func (m *Manager) reconcile(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publishState()
		}
	}
}

func (m *Manager) publishState() {
	m.bus.Publish(bus.ChannelSurfaceState, bus.SurfaceState{Surfaces: m.States()})
}

// watch clears the cache entry when the window dies behind our back
// (user hit the close button, process crashed).
func (m *Manager) watch(label string, h Handle) {
	select {
	case <-h.Done():
		if m.clearHandle(label, h) {
			m.log.Info("surface closed externally", zap.String("label", label))
			m.publishState()
		}
	case <-m.closed:
	}
}

// clearHandle removes the cache entry only if it still maps to h, so a
// stale watcher cannot evict a newer window under the same label.
func (m *Manager) clearHandle(label string, h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handles[label] != h {
		return false
	}
	delete(m.handles, label)
	return true
}
