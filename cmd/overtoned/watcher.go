package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"overtone/internal/config"
	"overtone/internal/spotify"
)

// tokenDebounce absorbs the write bursts editors and SaveToken produce.
const tokenDebounce = 500 * time.Millisecond

// tokenWatcher restores the push session when a fresh token file shows
// up. The interactive login lives in the control CLI and runs in a
// different process, so the file is the hand-off point.
type tokenWatcher struct {
	path string
	push *spotify.Watcher
	log  *zap.Logger

	mu         sync.Mutex
	lastChange time.Time

	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newTokenWatcher(cfg *config.Config, push *spotify.Watcher, log *zap.Logger) *tokenWatcher {
	return &tokenWatcher{
		path: cfg.Spotify.TokenFile,
		push: push,
		log:  log,
	}
}

// Start watches the token file's directory. fsnotify wants the parent
// rather than the file itself so creation of a missing file is seen
// too.
func (t *tokenWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	t.fsw = fsw
	t.done = make(chan struct{})
	go t.loop(ctx)

	t.log.Debug("watching for token changes", zap.String("path", t.path))
	return nil
}

func (t *tokenWatcher) loop(ctx context.Context) {
	defer close(t.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-t.fsw.Events:
			if !ok {
				return
			}
			if event.Name != t.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !t.debounced() {
				continue
			}
			t.restore(ctx)
		case err, ok := <-t.fsw.Errors:
			if !ok {
				return
			}
			t.log.Warn("token watcher error", zap.Error(err))
		}
	}
}

func (t *tokenWatcher) debounced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastChange) < tokenDebounce {
		return false
	}
	t.lastChange = time.Now()
	return true
}

func (t *tokenWatcher) restore(ctx context.Context) {
	ok, err := t.push.RestoreSession(ctx)
	switch {
	case err != nil:
		t.log.Warn("restore session from new token", zap.Error(err))
	case ok:
		t.log.Info("push session restored from new token")
	default:
		t.log.Warn("new token file did not yield a usable session")
	}
}

// Close stops the watcher and waits for its loop to exit.
func (t *tokenWatcher) Close() error {
	if t.fsw == nil {
		return nil
	}
	err := t.fsw.Close()
	<-t.done
	return err
}
