// Package hub bridges the in-process bus and remote surfaces over
// WebSocket. It serves the embedded surface pages, relays broadcast
// channels out to every connection, replays the last value of each
// seedable channel to late joiners, and feeds inbound envelopes from
// surfaces back onto the bus.
package hub

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/static"
)

const (
	writeTimeout        = 5 * time.Second
	readDeadline        = 60 * time.Second
	readLimit           = 8 * 1024
	healthCheckInterval = 30 * time.Second
	connectionTimeout   = 120 * time.Second
)

// pages maps request paths to embedded surface documents.
var pages = map[string]string{
	"/":         "index.html",
	"/widget":   "widget.html",
	"/settings": "settings.html",
	"/extra":    "extra.html",
}

// surfaceConn tracks one WebSocket connection's health and serializes
// writes to it.
type surfaceConn struct {
	conn *websocket.Conn
	id   string

	mu       sync.Mutex
	active   bool
	lastSeen time.Time

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *surfaceConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.active = true
	c.mu.Unlock()
}

func (c *surfaceConn) markDead() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *surfaceConn) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *surfaceConn) idleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastSeen)
}

func (c *surfaceConn) writeEnvelope(env bus.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(env)
}

func (c *surfaceConn) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

// Hub is the WebSocket side of the broadcast bus.
type Hub struct {
	bus      *bus.Bus
	bind     string
	artRoots []string
	log      *zap.Logger

	mu    sync.RWMutex
	conns []*surfaceConn
	seeds map[string]bus.Envelope

	subs     []*bus.Subscription
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// New wires a hub to the bus. artRoots are the only directories the
// /artwork endpoint will serve files from. The broadcast subscriptions
// attach immediately so the seed cache is warm before serving starts.
func New(b *bus.Bus, bind string, artRoots []string, log *zap.Logger) *Hub {
	h := &Hub{
		bus:      b,
		bind:     bind,
		artRoots: artRoots,
		log:      log,
		seeds:    map[string]bus.Envelope{},
	}
	for _, channel := range bus.BroadcastChannels() {
		ch := channel
		h.subs = append(h.subs, b.Subscribe(ch, func(msg bus.Message) {
			h.relay(ch, msg.Payload)
		}))
	}
	return h
}

// Handler returns the hub's HTTP surface: embedded pages, /ws and
// /artwork.
func (h *Hub) Handler() http.Handler {
	fileServer := http.FileServer(http.FS(static.Files))
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if name, ok := pages[r.URL.Path]; ok {
			r.URL.Path = "/" + name
		}
		fileServer.ServeHTTP(w, r)
	})
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/artwork", h.handleArtwork)
	return mux
}

// Start binds the listener and runs the server and health checker.
func (h *Hub) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", h.bind)
	if err != nil {
		return err
	}
	h.listener = listener
	h.server = &http.Server{Handler: h.Handler()}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.healthCheck(runCtx, h.done)

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.log.Error("hub server failed", zap.Error(err))
		}
	}()

	h.log.Info("hub listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr reports the bound address, useful when the bind port is 0.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return h.bind
	}
	return h.listener.Addr().String()
}

// Stop shuts the server down and closes every surface connection.
func (h *Hub) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		s.Cancel()
	}
	h.subs = nil

	if h.cancel != nil {
		h.cancel()
		<-h.done
		h.cancel = nil
	}

	var err error
	if h.server != nil {
		err = h.server.Shutdown(ctx)
	}

	h.mu.Lock()
	conns := h.conns
	h.conns = nil
	h.mu.Unlock()
	for _, c := range conns {
		c.markDead()
		c.close()
	}
	return err
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin admits same-host and loopback origins, plus requests with
// no origin at all (native clients, file:// pages).
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Host == r.Host {
		return true
	}
	if strings.HasPrefix(originURL.Host, "localhost:") ||
		strings.HasPrefix(originURL.Host, "127.0.0.1:") {
		return true
	}
	return false
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &surfaceConn{
		conn:     conn,
		id:       uuid.NewString(),
		active:   true,
		lastSeen: time.Now(),
	}

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		c.touch()
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		c.touch()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	h.addConn(c)
	defer func() {
		h.removeConn(c)
		c.close()
		h.log.Debug("surface disconnected", zap.String("conn", c.id))
	}()

	h.log.Debug("surface connected", zap.String("conn", c.id))
	if err := h.replaySeeds(c); err != nil {
		h.log.Debug("seed replay failed", zap.String("conn", c.id), zap.Error(err))
		return
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				h.log.Debug("surface read failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		c.touch()
		h.ingest(c, data)
	}
}

// ingest validates one inbound envelope and publishes it on the bus.
// Surfaces may only speak on request and command channels; anything
// else is dropped.
func (h *Hub) ingest(c *surfaceConn, data []byte) {
	var env bus.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.log.Debug("dropping malformed envelope", zap.String("conn", c.id), zap.Error(err))
		return
	}
	if !bus.Inbound(env.Channel) {
		h.log.Debug("dropping disallowed inbound channel",
			zap.String("conn", c.id),
			zap.String("channel", env.Channel))
		return
	}
	msg, err := env.Decode()
	if err != nil {
		h.log.Debug("dropping undecodable envelope", zap.String("conn", c.id), zap.Error(err))
		return
	}
	h.bus.Publish(msg.Channel, msg.Payload)
}

// replaySeeds sends a late joiner the last value of every seedable
// channel, in broadcast order.
func (h *Hub) replaySeeds(c *surfaceConn) error {
	h.mu.RLock()
	seeds := make([]bus.Envelope, 0, len(h.seeds))
	for _, channel := range bus.BroadcastChannels() {
		if env, ok := h.seeds[channel]; ok {
			seeds = append(seeds, env)
		}
	}
	h.mu.RUnlock()

	for _, env := range seeds {
		if err := c.writeEnvelope(env); err != nil {
			return err
		}
	}
	return nil
}

// relay caches seedable payloads and fans the envelope out to every
// active connection in parallel, collecting and evicting the dead.
func (h *Hub) relay(channel string, payload any) {
	env, err := bus.NewEnvelope(channel, payload)
	if err != nil {
		h.log.Warn("encode broadcast", zap.String("channel", channel), zap.Error(err))
		return
	}

	h.mu.Lock()
	if bus.Seedable(channel) {
		h.seeds[channel] = env
	}
	conns := make([]*surfaceConn, len(h.conns))
	copy(conns, h.conns)
	h.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	var wg sync.WaitGroup
	var deadMu sync.Mutex
	var dead []*surfaceConn

	for _, c := range conns {
		if c == nil || !c.isActive() {
			continue
		}
		wg.Add(1)
		go func(c *surfaceConn) {
			defer wg.Done()
			if err := c.writeEnvelope(env); err != nil {
				h.log.Debug("surface write failed", zap.String("conn", c.id), zap.Error(err))
				c.markDead()
				deadMu.Lock()
				dead = append(dead, c)
				deadMu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	for _, c := range dead {
		h.removeConn(c)
		c.close()
	}
}

// healthCheck pings every connection on an interval and evicts the
// ones that stopped answering.
func (h *Hub) healthCheck(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.RLock()
			conns := make([]*surfaceConn, len(h.conns))
			copy(conns, h.conns)
			h.mu.RUnlock()

			now := time.Now()
			var wg sync.WaitGroup
			var deadMu sync.Mutex
			var dead []*surfaceConn

			for _, c := range conns {
				if c == nil {
					continue
				}
				wg.Add(1)
				go func(c *surfaceConn) {
					defer wg.Done()
					if c.idleFor(now) > connectionTimeout {
						h.log.Debug("surface idle too long, evicting", zap.String("conn", c.id))
						c.markDead()
						deadMu.Lock()
						dead = append(dead, c)
						deadMu.Unlock()
						return
					}
					deadline := time.Now().Add(writeTimeout)
					if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
						c.markDead()
						deadMu.Lock()
						dead = append(dead, c)
						deadMu.Unlock()
					}
				}(c)
			}
			wg.Wait()

			for _, c := range dead {
				h.removeConn(c)
				c.close()
			}
		}
	}
}

func (h *Hub) addConn(c *surfaceConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, c)
}

func (h *Hub) removeConn(c *surfaceConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cs := range h.conns {
		if cs == c {
			h.conns = append(h.conns[:i], h.conns[i+1:]...)
			return
		}
	}
}

// ConnCount reports the number of registered surface connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// handleArtwork converts a local artwork path into an HTTP resource so
// browser surfaces can render file-based cover art. Only files under
// the configured roots are served.
func (h *Hub) handleArtwork(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	path := filepath.Clean(raw)
	if !filepath.IsAbs(path) || !h.allowedArt(path) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
	default:
		http.Error(w, "unsupported file type", http.StatusForbidden)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *Hub) allowedArt(path string) bool {
	for _, root := range h.artRoots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
