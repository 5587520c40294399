package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/identity"
	"overtone/internal/settings"
	"overtone/internal/source"
)

func newTestOwner(t *testing.T) (*Owner, *bus.Bus, *settings.Store) {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	b := bus.New(zap.NewNop())
	o := New(store, b, zap.NewNop())
	require.NoError(t, o.Load(context.Background()))
	return o, b, store
}

func TestRequestThemeAnswered(t *testing.T) {
	o, b, _ := newTestOwner(t)
	o.Attach(context.Background())
	defer o.Detach()

	msg, ok := b.Request(context.Background(), bus.ChannelRequestTheme, bus.ChannelThemeUpdate, time.Second)
	require.True(t, ok)
	require.Equal(t, bus.DefaultTheme(), msg.Payload.(bus.Theme))
}

func TestRequestSourceModeAnswered(t *testing.T) {
	o, b, _ := newTestOwner(t)
	o.Attach(context.Background())
	defer o.Detach()

	msg, ok := b.Request(context.Background(), bus.ChannelRequestSourceMode, bus.ChannelSourceModeUpdate, time.Second)
	require.True(t, ok)
	require.Equal(t, bus.SourceModePayload{Mode: "push"}, msg.Payload.(bus.SourceModePayload))
}

func TestThemeChangePersistsAndBroadcasts(t *testing.T) {
	ctx := context.Background()
	o, b, store := newTestOwner(t)
	o.Attach(ctx)
	defer o.Detach()

	var updates []bus.Theme
	sub := b.Subscribe(bus.ChannelThemeUpdate, func(msg bus.Message) {
		updates = append(updates, msg.Payload.(bus.Theme))
	})
	defer sub.Cancel()

	next := bus.Theme{Background: "#111111", Title: "#222222", Meta: "#333333"}
	b.Publish(bus.ChannelThemeChange, next)

	require.Equal(t, []bus.Theme{next}, updates)
	require.Equal(t, next, o.Theme())

	// A fresh owner over the same store sees the persisted theme.
	reloaded := New(store, b, zap.NewNop())
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, next, reloaded.Theme())
}

func TestPartialThemeChangeMerges(t *testing.T) {
	ctx := context.Background()
	o, b, _ := newTestOwner(t)
	o.Attach(ctx)
	defer o.Detach()

	b.Publish(bus.ChannelThemeChange, bus.Theme{Title: "#123456"})

	got := o.Theme()
	require.Equal(t, bus.DefaultTheme().Background, got.Background)
	require.Equal(t, "#123456", got.Title)
	require.Equal(t, bus.DefaultTheme().Meta, got.Meta)
}

func TestModeCommandAppliedWithoutEcho(t *testing.T) {
	ctx := context.Background()
	o, b, store := newTestOwner(t)

	var applied []source.Mode
	o.OnModeChange(func(m source.Mode) { applied = append(applied, m) })
	o.Attach(ctx)
	defer o.Detach()

	seen := 0
	sub := b.Subscribe(bus.ChannelSourceModeUpdate, func(bus.Message) { seen++ })
	defer sub.Cancel()

	b.Publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: "poll"})

	// Only the surface's own publish reaches subscribers; the owner
	// applies it without a second broadcast.
	require.Equal(t, 1, seen)
	require.Equal(t, []source.Mode{source.ModePoll}, applied)
	require.Equal(t, source.ModePoll, o.Mode())

	v, ok, err := store.Get(ctx, settings.KeySourceMode)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "poll", v)

	// Re-sending the same mode changes nothing and fires no hook.
	b.Publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: "poll"})
	require.Equal(t, 2, seen)
	require.Len(t, applied, 1)
}

func TestFilterCommandApplied(t *testing.T) {
	ctx := context.Background()
	o, b, store := newTestOwner(t)

	var applied []identity.Category
	o.OnFilterChange(func(c identity.Category) { applied = append(applied, c) })
	o.Attach(ctx)
	defer o.Detach()

	b.Publish(bus.ChannelAppFilterUpdate, bus.AppFilterPayload{Value: "ytmusic"})

	require.Equal(t, []identity.Category{identity.CategoryYTMusic}, applied)
	require.Equal(t, identity.CategoryYTMusic, o.Filter())

	v, ok, err := store.Get(ctx, settings.KeyAppFilter)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ytmusic", v)
}

func TestMalformedCommandsDropped(t *testing.T) {
	ctx := context.Background()
	o, b, _ := newTestOwner(t)

	o.OnModeChange(func(source.Mode) { t.Error("hook ran for malformed mode") })
	o.Attach(ctx)
	defer o.Detach()

	b.Publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: "radio"})
	require.Equal(t, source.ModePush, o.Mode())

	b.Publish(bus.ChannelAppFilterUpdate, bus.AppFilterPayload{Value: "winamp"})
	require.Equal(t, identity.CategorySpotify, o.Filter())
}

func TestSeedBroadcastPublishesEverything(t *testing.T) {
	o, b, _ := newTestOwner(t)

	got := map[string]any{}
	for _, ch := range []string{bus.ChannelThemeUpdate, bus.ChannelSourceModeUpdate, bus.ChannelAppFilterUpdate} {
		channel := ch
		sub := b.Subscribe(channel, func(msg bus.Message) { got[channel] = msg.Payload })
		defer sub.Cancel()
	}

	o.SeedBroadcast()

	require.Equal(t, bus.DefaultTheme(), got[bus.ChannelThemeUpdate])
	require.Equal(t, bus.SourceModePayload{Mode: "push"}, got[bus.ChannelSourceModeUpdate])
	require.Equal(t, bus.AppFilterPayload{Value: "spotify"}, got[bus.ChannelAppFilterUpdate])
}

func TestLoadRestoresPersistedValues(t *testing.T) {
	ctx := context.Background()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Set(ctx, settings.KeySourceMode, "poll"))
	require.NoError(t, store.Set(ctx, settings.KeyAppFilter, "applemusic"))
	require.NoError(t, store.Set(ctx, settings.KeyThemeBackground, "#000000"))

	o := New(store, bus.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, o.Load(ctx))

	require.Equal(t, source.ModePoll, o.Mode())
	require.Equal(t, identity.CategoryAppleMusic, o.Filter())
	require.Equal(t, "#000000", o.Theme().Background)
	require.Equal(t, bus.DefaultTheme().Title, o.Theme().Title)
}

func TestLoadIgnoresUnparseablePersistedValues(t *testing.T) {
	ctx := context.Background()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Set(ctx, settings.KeySourceMode, "radio"))

	o := New(store, bus.New(zap.NewNop()), zap.NewNop())
	require.NoError(t, o.Load(ctx))
	require.Equal(t, source.DefaultMode, o.Mode())
}
