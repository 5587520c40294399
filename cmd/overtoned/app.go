package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"overtone/internal/artwork"
	"overtone/internal/bus"
	"overtone/internal/config"
	"overtone/internal/engine"
	"overtone/internal/export"
	"overtone/internal/hub"
	"overtone/internal/identity"
	"overtone/internal/mediasession"
	"overtone/internal/settings"
	"overtone/internal/source"
	"overtone/internal/spotify"
	"overtone/internal/state"
	"overtone/internal/surface"
)

// providers assembles the daemon's component graph.
func providers() fx.Option {
	return fx.Provide(
		bus.New,
		newSettingsStore,
		state.New,
		newPushWatcher,
		mediasession.NewProvider,
		newArtworkIndex,
		newExportScheduler,
		newEngine,
		newController,
		newHub,
		newSurfaceManager,
		newTokenWatcher,
	)
}

func newSettingsStore(cfg *config.Config) (*settings.Store, error) {
	return settings.Open(cfg.SettingsPath())
}

func newPushWatcher(cfg *config.Config, log *zap.Logger) *spotify.Watcher {
	oauth := spotify.NewOAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.RedirectURL)
	interval := time.Duration(cfg.Sources.PollIntervalMS) * time.Millisecond
	return spotify.NewWatcher(oauth, cfg.Spotify.TokenFile, interval, log)
}

func newArtworkIndex(cfg *config.Config, log *zap.Logger) *artwork.Index {
	return artwork.NewIndex(cfg.Paths.LibraryDir, cfg.ArtCachePath(), artwork.NewTagReader(), log)
}

func newExportScheduler(cfg *config.Config, store *settings.Store, b *bus.Bus, log *zap.Logger) (*export.Scheduler, error) {
	fetcher := export.NewArtFetcher(log)
	writer := export.NewFSWriter(fetcher, log)
	picker := export.NewDialogPicker(log)
	notify := newExportNotifier(b, cfg, log)
	return export.NewScheduler(context.Background(), store, picker, writer, notify, log)
}

func newEngine(b *bus.Bus, sched *export.Scheduler, index *artwork.Index, log *zap.Logger) *engine.Engine {
	return engine.New(b, sched, index, log)
}

func newController(cfg *config.Config, push *spotify.Watcher, poll mediasession.Provider, eng *engine.Engine, log *zap.Logger) *source.Controller {
	return source.NewController(source.Options{
		Push:         push,
		Poll:         poll,
		Rules:        cfg.Rules(),
		Filter:       identity.DefaultCategory,
		PollInterval: time.Duration(cfg.Sources.PollIntervalMS) * time.Millisecond,
		Sink:         eng.Observe,
		OnAuthLost:   eng.AuthLost,
		Log:          log,
	})
}

func newHub(cfg *config.Config, b *bus.Bus, log *zap.Logger) *hub.Hub {
	artRoots := []string{cfg.Paths.LibraryDir, cfg.ArtCachePath()}
	return hub.New(b, cfg.Server.Bind, artRoots, log)
}

func newSurfaceManager(cfg *config.Config, b *bus.Bus, owner *state.Owner, eng *engine.Engine, log *zap.Logger) *surface.Manager {
	host := surface.NewBrowserHost(cfg.Surfaces.Browser, filepath.Join(cfg.Paths.DataDir, "profiles"), log)
	seed := func() {
		owner.SeedBroadcast()
		eng.Seed()
	}
	return surface.NewManager(host, b, "http://"+cfg.Server.Bind, cfg.Surfaces, seed, log)
}

// registerHooks wires the lifecycle: hooks start in the order appended
// here and stop in reverse, so the instance lock is the first thing
// taken and the last thing released.
func registerHooks(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	store *settings.Store,
	owner *state.Owner,
	eng *engine.Engine,
	sched *export.Scheduler,
	index *artwork.Index,
	controller *source.Controller,
	h *hub.Hub,
	surfaces *surface.Manager,
	tokens *tokenWatcher,
) {
	// Outlives fx's per-hook start contexts; cancelled as the final
	// teardown step so shutdown-time persists still go through.
	runCtx, stop := context.WithCancel(context.Background())

	owner.OnModeChange(func(mode source.Mode) {
		if err := controller.SetMode(runCtx, mode); err != nil {
			log.Error("switch source mode", zap.Error(err))
		}
	})
	owner.OnFilterChange(controller.SetFilter)

	lock := flock.New(cfg.LockPath())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire instance lock: %w", err)
			}
			if !ok {
				return errors.New("another overtoned instance is already running")
			}
			log.Info("instance lock acquired", zap.String("path", cfg.LockPath()))
			return nil
		},
		OnStop: func(context.Context) error {
			stop()
			if err := lock.Unlock(); err != nil {
				log.Warn("release instance lock", zap.Error(err))
			}
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := owner.Load(ctx); err != nil {
				return fmt.Errorf("load persisted state: %w", err)
			}
			owner.Attach(runCtx)
			owner.SeedBroadcast()
			return nil
		},
		OnStop: func(context.Context) error {
			owner.Detach()
			return nil
		},
	})

	// In-flight exports drain after the engine stops feeding them.
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sched.Close()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			eng.Attach(runCtx)
			eng.Seed()
			return nil
		},
		OnStop: func(context.Context) error {
			eng.Detach()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !index.Enabled() {
				return nil
			}
			// Library walks can take a while; the engine resolves nothing
			// until the first scan lands.
			go func() {
				if err := index.Scan(runCtx); err != nil {
					log.Warn("artwork index scan failed", zap.Error(err))
				}
			}()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			controller.SetFilter(owner.Filter())
			return controller.Start(runCtx, owner.Mode())
		},
		OnStop: func(context.Context) error {
			controller.Stop()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return h.Start(runCtx)
		},
		OnStop: func(ctx context.Context) error {
			return h.Stop(ctx)
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			surfaces.Attach(runCtx)
			return surfaces.Start(runCtx)
		},
		OnStop: func(context.Context) error {
			surfaces.Stop()
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return tokens.Start(runCtx)
		},
		OnStop: func(context.Context) error {
			return tokens.Close()
		},
	})
}
