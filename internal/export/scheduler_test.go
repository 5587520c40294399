package export

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"overtone/internal/nowplaying"
	"overtone/internal/settings"
)

type fakeWriter struct {
	mu     sync.Mutex
	tracks []string
	fail   map[string]int // track name -> remaining failures
}

func (w *fakeWriter) Write(ctx context.Context, dir string, d nowplaying.NowPlaying) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail[d.TrackName] > 0 {
		w.fail[d.TrackName]--
		return "", errors.New("disk on fire")
	}
	w.tracks = append(w.tracks, d.TrackName)
	return dir, nil
}

func (w *fakeWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tracks...)
}

type fakePicker struct {
	mu    sync.Mutex
	path  string
	calls int
}

func (p *fakePicker) Pick(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.path, nil
}

type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) notify(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, level+": "+message)
}

func track(name string) nowplaying.NowPlaying {
	return nowplaying.NowPlaying{
		IsPlaying: true,
		TrackName: name,
		Artists:   nowplaying.ArtistList{"Artist Y"},
		Album:     "Album Z",
	}
}

func newTestScheduler(t *testing.T, writer AssetWriter, picker DirectoryPicker, notify Notifier) *Scheduler {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := NewScheduler(context.Background(), store, picker, writer, notify, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestDedupAcrossInterruption(t *testing.T) {
	writer := &fakeWriter{}
	s := newTestScheduler(t, writer, &fakePicker{path: "/tmp/out"}, nil)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	require.NoError(t, s.SetDirectory(ctx, t.TempDir()))

	a := track("Song A")
	for _, d := range []nowplaying.NowPlaying{a, a, a, nowplaying.NotPlaying(), a} {
		s.Observe(d)
	}
	s.Close()

	// Song A's first occurrence, then again after the interruption.
	assert.Equal(t, []string{"Song A", "Song A"}, writer.written())
}

func TestDistinctTracksBothExport(t *testing.T) {
	writer := &fakeWriter{}
	s := newTestScheduler(t, writer, &fakePicker{path: "/tmp/out"}, nil)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	require.NoError(t, s.SetDirectory(ctx, t.TempDir()))

	s.Observe(track("Song A"))
	s.Observe(track("Song B"))
	s.Close()

	assert.ElementsMatch(t, []string{"Song A", "Song B"}, writer.written())
}

func TestDisabledIsNoOp(t *testing.T) {
	writer := &fakeWriter{}
	picker := &fakePicker{path: "/tmp/out"}
	s := newTestScheduler(t, writer, picker, nil)

	s.Observe(track("Song A"))
	s.Close()

	assert.Empty(t, writer.written())
	assert.Zero(t, picker.calls)
}

func TestFreshEnableExportsCurrentTrack(t *testing.T) {
	writer := &fakeWriter{}
	s := newTestScheduler(t, writer, &fakePicker{path: "/tmp/out"}, nil)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	require.NoError(t, s.SetDirectory(ctx, t.TempDir()))

	a := track("Song A")
	s.Observe(a)
	s.Close()

	require.NoError(t, s.SetEnabled(ctx, false))
	s.Observe(a) // ignored while disabled

	// Re-enabling resets the dedup key; the same track exports again.
	require.NoError(t, s.SetEnabled(ctx, true))
	s.Observe(a)
	s.Close()

	assert.Equal(t, []string{"Song A", "Song A"}, writer.written())
}

func TestFailureDoesNotAdvanceKey(t *testing.T) {
	writer := &fakeWriter{fail: map[string]int{"Song A": 1}}
	status := &statusLog{}
	s := newTestScheduler(t, writer, &fakePicker{path: "/tmp/out"}, status.notify)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))
	require.NoError(t, s.SetDirectory(ctx, t.TempDir()))

	a := track("Song A")
	s.Observe(a)
	s.Close() // first attempt fails

	s.Observe(a)
	s.Close() // same track retries and succeeds

	assert.Equal(t, []string{"Song A"}, writer.written())

	status.mu.Lock()
	defer status.mu.Unlock()
	require.Len(t, status.msgs, 2)
	assert.Contains(t, status.msgs[0], "error:")
	assert.Contains(t, status.msgs[1], "info:")
}

func TestDeclinedPickerReportsAndRetries(t *testing.T) {
	writer := &fakeWriter{}
	picker := &fakePicker{path: ""} // user declines
	status := &statusLog{}
	s := newTestScheduler(t, writer, picker, status.notify)
	ctx := context.Background()

	require.NoError(t, s.SetEnabled(ctx, true))

	s.Observe(track("Song A"))
	s.Close()

	assert.Empty(t, writer.written())
	assert.Equal(t, 1, picker.calls)

	status.mu.Lock()
	require.Len(t, status.msgs, 1)
	assert.Contains(t, status.msgs[0], "no directory selected")
	status.mu.Unlock()

	// The key rolled back, so the same track can try again once a
	// directory exists.
	picker.mu.Lock()
	picker.path = t.TempDir()
	picker.mu.Unlock()

	s.Observe(track("Song A"))
	s.Close()
	assert.Equal(t, []string{"Song A"}, writer.written())
	assert.Equal(t, s.Directory(), picker.path)
}

func TestPickedDirectoryIsPersisted(t *testing.T) {
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer store.Close()

	writer := &fakeWriter{}
	out := t.TempDir()
	s, err := NewScheduler(context.Background(), store, &fakePicker{path: out}, writer, nil, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SetEnabled(ctx, true))
	s.Observe(track("Song A"))
	s.Close()

	got, ok, err := store.Get(ctx, settings.KeyExportDir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out, got)

	// A rebuilt scheduler restores both settings.
	s2, err := NewScheduler(ctx, store, &fakePicker{}, writer, nil, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, s2.Enabled())
	assert.Equal(t, out, s2.Directory())
}

func TestApplyCommands(t *testing.T) {
	s := newTestScheduler(t, &fakeWriter{}, &fakePicker{}, nil)
	ctx := context.Background()

	require.NoError(t, s.Apply(ctx, "enable", ""))
	assert.True(t, s.Enabled())

	require.NoError(t, s.Apply(ctx, "setDir", "/tmp/exports"))
	assert.Equal(t, "/tmp/exports", s.Directory())

	require.NoError(t, s.Apply(ctx, "clearDir", ""))
	assert.Empty(t, s.Directory())

	require.NoError(t, s.Apply(ctx, "disable", ""))
	assert.False(t, s.Enabled())

	assert.Error(t, s.Apply(ctx, "explode", ""))
	assert.Error(t, s.Apply(ctx, "setDir", ""))
}
