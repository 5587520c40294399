// Package export performs the once-per-track side effect: when a new
// track is observed and exporting is enabled, it writes text and
// artwork assets into a user-chosen directory.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"overtone/internal/nowplaying"
	"overtone/internal/settings"
)

// exportTimeout bounds one write attempt including artwork fetch.
const exportTimeout = 30 * time.Second

// Notifier receives export outcome messages. level is "info" or
// "error".
type Notifier func(level, message string)

// Scheduler gates exports to at most one initiated attempt per distinct
// track key while enabled. Failed attempts do not advance the key, so
// the next observation of the same track retries.
type Scheduler struct {
	store  *settings.Store
	picker DirectoryPicker
	writer AssetWriter
	notify Notifier
	log    *zap.Logger

	mu      sync.Mutex
	enabled bool
	dir     string
	lastKey string

	pickMu sync.Mutex // serializes directory prompts
	wg     sync.WaitGroup
}

// NewScheduler builds a scheduler, restoring the enabled flag and
// directory from the settings store.
func NewScheduler(ctx context.Context, store *settings.Store, picker DirectoryPicker, writer AssetWriter, notify Notifier, log *zap.Logger) (*Scheduler, error) {
	enabled, _, err := store.GetBool(ctx, settings.KeyExportEnabled)
	if err != nil {
		return nil, fmt.Errorf("restore export enabled: %w", err)
	}
	dir, _, err := store.Get(ctx, settings.KeyExportDir)
	if err != nil {
		return nil, fmt.Errorf("restore export dir: %w", err)
	}

	if notify == nil {
		notify = func(string, string) {}
	}
	return &Scheduler{
		store:   store,
		picker:  picker,
		writer:  writer,
		notify:  notify,
		log:     log,
		enabled: enabled,
		dir:     dir,
	}, nil
}

// Observe considers one record for export. A not-playing observation
// exports nothing but resets the dedup memory, so a track resuming
// after an interruption exports again. The track key advances
// synchronously at dispatch time so two quick observations of the same
// new track cannot both pass the gate; the write itself runs on its own
// goroutine.
func (s *Scheduler) Observe(d nowplaying.NowPlaying) {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	if !d.IsPlaying {
		s.lastKey = ""
		s.mu.Unlock()
		return
	}
	key := nowplaying.TrackKey(d)
	if key == "" || key == s.lastKey {
		s.mu.Unlock()
		return
	}
	prev := s.lastKey
	s.lastKey = key
	s.mu.Unlock()

	s.wg.Add(1)
	go s.export(d, key, prev)
}

func (s *Scheduler) export(d nowplaying.NowPlaying, key, prev string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	dir, err := s.resolveDir(ctx)
	if err != nil {
		s.rollback(key, prev)
		s.report(err)
		return
	}

	path, err := s.writer.Write(ctx, dir, d)
	if err != nil {
		s.rollback(key, prev)
		s.report(fmt.Errorf("export %q: %w", d.TrackName, err))
		return
	}

	s.log.Info("exported track assets",
		zap.String("track", d.TrackName),
		zap.String("dir", path))
	s.notify("info", fmt.Sprintf("Exported %q to %s", d.TrackName, path))
}

// rollback restores the pre-dispatch key unless a newer track has
// already superseded this attempt.
func (s *Scheduler) rollback(key, prev string) {
	s.mu.Lock()
	if s.lastKey == key {
		s.lastKey = prev
	}
	s.mu.Unlock()
}

func (s *Scheduler) report(err error) {
	s.log.Warn("export failed", zap.Error(err))
	s.notify("error", err.Error())
}

// resolveDir returns the persisted directory, prompting the user once
// when none is set.
func (s *Scheduler) resolveDir(ctx context.Context) (string, error) {
	s.pickMu.Lock()
	defer s.pickMu.Unlock()

	s.mu.Lock()
	dir := s.dir
	s.mu.Unlock()
	if dir != "" {
		return dir, nil
	}

	picked, err := s.picker.Pick(ctx)
	if err != nil {
		return "", fmt.Errorf("directory picker: %w", err)
	}
	if picked == "" {
		return "", ErrNoDirectory
	}
	if err := s.SetDirectory(ctx, picked); err != nil {
		return "", err
	}
	return picked, nil
}

// SetEnabled flips exporting and persists the flag. Enabling resets the
// dedup key so the currently playing track exports immediately on the
// next observation.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.store.SetBool(ctx, settings.KeyExportEnabled, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	s.enabled = enabled
	if enabled {
		s.lastKey = ""
	}
	s.mu.Unlock()
	return nil
}

// Enabled reports the current flag.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// State reports the flag and directory in one consistent read.
func (s *Scheduler) State() (enabled bool, dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled, s.dir
}

// SetDirectory persists the output directory; empty clears it so the
// next export prompts again.
func (s *Scheduler) SetDirectory(ctx context.Context, dir string) error {
	if dir == "" {
		if err := s.store.Delete(ctx, settings.KeyExportDir); err != nil {
			return err
		}
	} else if err := s.store.Set(ctx, settings.KeyExportDir, dir); err != nil {
		return err
	}
	s.mu.Lock()
	s.dir = dir
	s.mu.Unlock()
	return nil
}

// Directory returns the current output directory ("" when unset).
func (s *Scheduler) Directory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Apply executes one export command from a surface.
func (s *Scheduler) Apply(ctx context.Context, action, dir string) error {
	switch action {
	case "enable":
		return s.SetEnabled(ctx, true)
	case "disable":
		return s.SetEnabled(ctx, false)
	case "setDir":
		if dir == "" {
			return errors.New("setDir requires a directory")
		}
		return s.SetDirectory(ctx, dir)
	case "clearDir":
		return s.SetDirectory(ctx, "")
	}
	return fmt.Errorf("unknown export action %q", action)
}

// Close waits for in-flight exports to finish.
func (s *Scheduler) Close() {
	s.wg.Wait()
}
