// Package engine sits between the source strategies and everything that
// renders or records playback: it receives every observed record, fills
// in locally-indexed artwork, feeds the export scheduler, and publishes
// a nowPlayingUpdate only when the record actually changed.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/nowplaying"
)

// Exporter is the slice of the export scheduler the engine drives.
type Exporter interface {
	Observe(d nowplaying.NowPlaying)
	Apply(ctx context.Context, action, dir string) error
	State() (enabled bool, dir string)
}

// ArtworkResolver finds local cover art for records that carry none.
type ArtworkResolver interface {
	Enabled() bool
	Resolve(title, artist, album string) (string, bool)
}

// Engine is the playback pipeline's center piece.
type Engine struct {
	bus      *bus.Bus
	exporter Exporter
	art      ArtworkResolver
	log      *zap.Logger

	mu      sync.Mutex
	current nowplaying.NowPlaying
	det     nowplaying.Detector

	subs []*bus.Subscription
}

func New(b *bus.Bus, exporter Exporter, art ArtworkResolver, log *zap.Logger) *Engine {
	return &Engine{
		bus:      b,
		exporter: exporter,
		art:      art,
		log:      log,
		current:  nowplaying.NotPlaying(),
	}
}

// Attach subscribes the engine's command handlers.
func (e *Engine) Attach(ctx context.Context) {
	e.subs = append(e.subs, e.bus.Subscribe(bus.ChannelExportCommand, func(msg bus.Message) {
		p, ok := msg.Payload.(bus.ExportCommand)
		if !ok {
			return
		}
		if err := e.exporter.Apply(ctx, p.Action, p.Dir); err != nil {
			e.log.Warn("export command failed", zap.String("action", p.Action), zap.Error(err))
		}
		// State goes out even for failed commands so every surface
		// converges on what actually holds.
		e.publishExportState()
	}))
}

// Detach cancels the engine's bus subscriptions.
func (e *Engine) Detach() {
	for _, s := range e.subs {
		s.Cancel()
	}
	e.subs = nil
}

// Current returns the last published record.
func (e *Engine) Current() nowplaying.NowPlaying {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Seed publishes the current record and export state once, warming
// late-joiner caches.
func (e *Engine) Seed() {
	e.bus.Publish(bus.ChannelNowPlayingUpdate, e.Current())
	e.publishExportState()
}

func (e *Engine) publishExportState() {
	enabled, dir := e.exporter.State()
	e.bus.Publish(bus.ChannelExportState, bus.ExportState{Enabled: enabled, Dir: dir})
}

// Observe ingests one record from the live source strategy. The export
// scheduler sees every observation; renders are gated on inequality
// with the previous record so an unchanged poll sample stays silent.
func (e *Engine) Observe(d nowplaying.NowPlaying) {
	if d.IsPlaying && d.ArtworkURL == "" && d.ArtworkPath == "" && e.art != nil && e.art.Enabled() {
		if path, ok := e.art.Resolve(d.TrackName, d.Artists.Join(), d.Album); ok {
			d.ArtworkPath = path
		}
	}

	e.exporter.Observe(d)

	e.mu.Lock()
	if d.Equal(e.current) {
		e.mu.Unlock()
		return
	}
	e.current = d
	changed, key := e.det.Observe(d)
	e.mu.Unlock()

	if changed && key != "" {
		e.log.Info("track changed", zap.String("track", d.String()))
	}
	e.bus.Publish(bus.ChannelNowPlayingUpdate, d)
}

// AuthLost broadcasts that the push source needs a fresh login. The
// controller has already emitted a not-playing record by the time this
// runs.
func (e *Engine) AuthLost() {
	e.log.Warn("source authorization lost, reconnect required")
	e.bus.Publish(bus.ChannelAuthLost, bus.AuthLostPayload{})
}
