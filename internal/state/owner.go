// Package state holds the daemon-resident canonical copies of the
// user-tunable values every surface renders: the display theme, the
// source mode and the poll app filter. Surfaces only ever hold
// read-replicas refreshed over the bus; the owner answers request
// messages, applies command messages, and persists every change.
package state

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/identity"
	"overtone/internal/settings"
	"overtone/internal/source"
)

// Owner is the canonical holder of theme, source mode and app filter.
type Owner struct {
	log   *zap.Logger
	store *settings.Store
	bus   *bus.Bus

	mu     sync.Mutex
	theme  bus.Theme
	mode   source.Mode
	filter identity.Category

	onMode   func(source.Mode)
	onFilter func(identity.Category)

	subs []*bus.Subscription
}

// New builds an owner over its persistence and broadcast collaborators.
// Call Load before Attach.
func New(store *settings.Store, b *bus.Bus, log *zap.Logger) *Owner {
	return &Owner{
		log:    log,
		store:  store,
		bus:    b,
		theme:  bus.DefaultTheme(),
		mode:   source.DefaultMode,
		filter: identity.DefaultCategory,
	}
}

// OnModeChange registers the hook run after an applied source-mode
// command. Register before Attach; the hook runs on the publishing
// goroutine.
func (o *Owner) OnModeChange(fn func(source.Mode)) { o.onMode = fn }

// OnFilterChange registers the hook run after an applied app-filter
// command. Register before Attach.
func (o *Owner) OnFilterChange(fn func(identity.Category)) { o.onFilter = fn }

// Load restores persisted values, falling back to defaults for absent
// or unparseable entries.
func (o *Owner) Load(ctx context.Context) error {
	theme := bus.DefaultTheme()
	if v, ok, err := o.store.Get(ctx, settings.KeyThemeBackground); err != nil {
		return err
	} else if ok {
		theme.Background = v
	}
	if v, ok, err := o.store.Get(ctx, settings.KeyThemeTitle); err != nil {
		return err
	} else if ok {
		theme.Title = v
	}
	if v, ok, err := o.store.Get(ctx, settings.KeyThemeMeta); err != nil {
		return err
	} else if ok {
		theme.Meta = v
	}

	mode := source.DefaultMode
	if v, ok, err := o.store.Get(ctx, settings.KeySourceMode); err != nil {
		return err
	} else if ok {
		if m, perr := source.ParseMode(v); perr != nil {
			o.log.Warn("ignoring persisted source mode", zap.String("value", v), zap.Error(perr))
		} else {
			mode = m
		}
	}

	filter := identity.DefaultCategory
	if v, ok, err := o.store.Get(ctx, settings.KeyAppFilter); err != nil {
		return err
	} else if ok {
		if f, perr := identity.ParseCategory(v); perr != nil {
			o.log.Warn("ignoring persisted app filter", zap.String("value", v), zap.Error(perr))
		} else {
			filter = f
		}
	}

	o.mu.Lock()
	o.theme = theme
	o.mode = mode
	o.filter = filter
	o.mu.Unlock()

	o.log.Info("state loaded",
		zap.String("mode", mode.String()),
		zap.String("filter", filter.String()))
	return nil
}

// Theme returns the canonical theme.
func (o *Owner) Theme() bus.Theme {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.theme
}

// Mode returns the canonical source mode.
func (o *Owner) Mode() source.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Filter returns the canonical app filter.
func (o *Owner) Filter() identity.Category {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filter
}

// Attach subscribes the owner's request and command handlers. Detach
// undoes it.
func (o *Owner) Attach(ctx context.Context) {
	sub := func(channel string, fn bus.Handler) {
		o.subs = append(o.subs, o.bus.Subscribe(channel, fn))
	}

	sub(bus.ChannelRequestTheme, func(bus.Message) {
		o.bus.Publish(bus.ChannelThemeUpdate, o.Theme())
	})
	sub(bus.ChannelRequestSourceMode, func(bus.Message) {
		o.bus.Publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: o.Mode().String()})
	})
	sub(bus.ChannelRequestAppFilter, func(bus.Message) {
		o.bus.Publish(bus.ChannelAppFilterUpdate, bus.AppFilterPayload{Value: o.Filter().String()})
	})

	sub(bus.ChannelThemeChange, func(msg bus.Message) {
		t, ok := msg.Payload.(bus.Theme)
		if !ok {
			o.log.Warn("dropping malformed theme change")
			return
		}
		o.SetTheme(ctx, t)
	})

	// sourceModeUpdate and appFilterUpdate double as commands when sent
	// by a surface. The owner applies them without re-publishing; the
	// hub already fanned the message out, and an echo would loop back
	// into this handler.
	sub(bus.ChannelSourceModeUpdate, func(msg bus.Message) {
		p, ok := msg.Payload.(bus.SourceModePayload)
		if !ok {
			return
		}
		mode, err := source.ParseMode(p.Mode)
		if err != nil {
			o.log.Warn("dropping malformed source mode", zap.String("value", p.Mode))
			return
		}
		o.applyMode(ctx, mode)
	})
	sub(bus.ChannelAppFilterUpdate, func(msg bus.Message) {
		p, ok := msg.Payload.(bus.AppFilterPayload)
		if !ok {
			return
		}
		filter, err := identity.ParseCategory(p.Value)
		if err != nil {
			o.log.Warn("dropping malformed app filter", zap.String("value", p.Value))
			return
		}
		o.applyFilter(ctx, filter)
	})
}

// Detach cancels the owner's bus subscriptions.
func (o *Owner) Detach() {
	for _, s := range o.subs {
		s.Cancel()
	}
	o.subs = nil
}

// SeedBroadcast publishes every owned value once, warming late-joiner
// caches at boot.
func (o *Owner) SeedBroadcast() {
	o.bus.Publish(bus.ChannelThemeUpdate, o.Theme())
	o.bus.Publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: o.Mode().String()})
	o.bus.Publish(bus.ChannelAppFilterUpdate, bus.AppFilterPayload{Value: o.Filter().String()})
}

// SetTheme applies a theme change, persists it and broadcasts the new
// canonical theme. Empty fields keep their current value, so partial
// changes merge instead of blanking colors.
func (o *Owner) SetTheme(ctx context.Context, t bus.Theme) {
	o.mu.Lock()
	if t.Background == "" {
		t.Background = o.theme.Background
	}
	if t.Title == "" {
		t.Title = o.theme.Title
	}
	if t.Meta == "" {
		t.Meta = o.theme.Meta
	}
	changed := t != o.theme
	o.theme = t
	o.mu.Unlock()

	if !changed {
		return
	}
	o.persist(ctx, settings.KeyThemeBackground, t.Background)
	o.persist(ctx, settings.KeyThemeTitle, t.Title)
	o.persist(ctx, settings.KeyThemeMeta, t.Meta)
	o.log.Info("theme changed", zap.String("bg", t.Background))
	o.bus.Publish(bus.ChannelThemeUpdate, t)
}

func (o *Owner) applyMode(ctx context.Context, mode source.Mode) {
	o.mu.Lock()
	changed := mode != o.mode
	o.mode = mode
	o.mu.Unlock()

	if !changed {
		return
	}
	o.persist(ctx, settings.KeySourceMode, mode.String())
	o.log.Info("source mode changed", zap.String("mode", mode.String()))
	if o.onMode != nil {
		o.onMode(mode)
	}
}

func (o *Owner) applyFilter(ctx context.Context, filter identity.Category) {
	o.mu.Lock()
	changed := filter != o.filter
	o.filter = filter
	o.mu.Unlock()

	if !changed {
		return
	}
	o.persist(ctx, settings.KeyAppFilter, filter.String())
	o.log.Info("app filter changed", zap.String("value", filter.String()))
	if o.onFilter != nil {
		o.onFilter(filter)
	}
}

func (o *Owner) persist(ctx context.Context, key, value string) {
	if err := o.store.Set(ctx, key, value); err != nil {
		o.log.Warn("persist setting", zap.String("key", key), zap.Error(err))
	}
}
