//go:build linux

package mediasession

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	busPrefix   = "org.mpris.MediaPlayer2."
	objectPath  = "/org/mpris/MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// mprisProvider reads MPRIS players off the D-Bus session bus.
type mprisProvider struct {
	log *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewProvider returns the MPRIS-backed provider for this platform.
func NewProvider(log *zap.Logger) Provider {
	return &mprisProvider{log: log}
}

func (p *mprisProvider) bus() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *mprisProvider) Snapshot(ctx context.Context) ([]Session, error) {
	conn, err := p.bus()
	if err != nil {
		return nil, err
	}

	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}

	var sessions []Session
	for _, name := range names {
		if !strings.HasPrefix(name, busPrefix) {
			continue
		}
		sess, err := p.readPlayer(ctx, conn, name)
		if err != nil {
			// A player vanishing mid-snapshot is routine; skip it.
			p.log.Debug("skipping media player",
				zap.String("name", name),
				zap.Error(err))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (p *mprisProvider) readPlayer(ctx context.Context, conn *dbus.Conn, name string) (Session, error) {
	obj := conn.Object(name, objectPath)

	var props map[string]dbus.Variant
	if err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.GetAll", 0, playerIface).Store(&props); err != nil {
		return Session{}, fmt.Errorf("get player properties: %w", err)
	}

	sess := Session{
		Status:      variantString(props["PlaybackStatus"]),
		SourceAppID: strings.TrimPrefix(name, busPrefix),
		LastUpdated: time.Now().UnixMilli(),
	}

	if meta, ok := props["Metadata"].Value().(map[string]dbus.Variant); ok {
		sess.Title = variantString(meta["xesam:title"])
		sess.Album = variantString(meta["xesam:album"])
		sess.Artist = strings.Join(variantStrings(meta["xesam:artist"]), ", ")

		// Only local art is usable here; remote URLs stay with the push
		// source.
		if art := variantString(meta["mpris:artUrl"]); art != "" {
			if u, err := url.Parse(art); err == nil && u.Scheme == "file" {
				sess.ArtworkPath = u.Path
			}
		}

		if length, ok := variantInt(meta["mpris:length"]); ok && length > 0 {
			end := length / 1000
			sess.EndTimeMS = &end
		}
	}

	// A position is only meaningful while the player exposes a timeline;
	// stopped players report zero regardless.
	switch strings.ToLower(sess.Status) {
	case "playing", "paused":
		if pos, ok := variantInt(props["Position"]); ok {
			ms := pos / 1000
			sess.PositionMS = &ms
		}
	}

	return sess, nil
}

func variantString(v dbus.Variant) string {
	if s, ok := v.Value().(string); ok {
		return s
	}
	return ""
}

func variantStrings(v dbus.Variant) []string {
	switch val := v.Value().(type) {
	case []string:
		return val
	case string:
		if val != "" {
			return []string{val}
		}
	}
	return nil
}

func variantInt(v dbus.Variant) (int64, bool) {
	switch val := v.Value().(type) {
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}
