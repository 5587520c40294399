package spotify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"overtone/internal/nowplaying"
)

// Watcher owns the push event stream: a fixed-cadence fetch loop over
// the currently-playing endpoint, emitting canonical records on Events
// and a one-shot signal on AuthLost when the token stops working. The
// watcher keeps ticking without a session; RestoreSession can revive it
// at any time (the daemon calls it again when a fresh token file
// appears).
type Watcher struct {
	cfg       *oauth2.Config
	tokenFile string
	interval  time.Duration
	log       *zap.Logger

	mu           sync.Mutex
	client       *Client
	authLostSent bool
	cancel       context.CancelFunc
	done         chan struct{}

	events   chan nowplaying.NowPlaying
	authLost chan struct{}
}

// NewWatcher builds a watcher; no session is established yet.
func NewWatcher(cfg *oauth2.Config, tokenFile string, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		cfg:       cfg,
		tokenFile: tokenFile,
		interval:  interval,
		log:       log,
		events:    make(chan nowplaying.NowPlaying, 1),
		authLost:  make(chan struct{}, 1),
	}
}

// Events is the push stream of canonical records. Only the latest
// record is retained when the consumer lags.
func (w *Watcher) Events() <-chan nowplaying.NowPlaying { return w.events }

// AuthLost signals once per lost session.
func (w *Watcher) AuthLost() <-chan struct{} { return w.authLost }

// Connected reports whether a session is currently usable.
func (w *Watcher) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client != nil
}

// Connect ensures a usable session exists, restoring from the token
// cache. It never starts an interactive login; that is the control
// CLI's job.
func (w *Watcher) Connect(ctx context.Context) error {
	ok, err := w.RestoreSession(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConnected
	}
	return nil
}

// RestoreSession loads the cached token and validates it with one API
// call. ok is false when there is no cache or the token was rejected.
func (w *Watcher) RestoreSession(ctx context.Context) (bool, error) {
	tok, err := LoadToken(w.tokenFile)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return false, nil
		}
		return false, err
	}

	source := w.cfg.TokenSource(context.Background(), tok)
	client := NewClient(oauth2.NewClient(context.Background(), &savingSource{
		src:  source,
		path: w.tokenFile,
		last: tok.AccessToken,
		log:  w.log,
	}), w.log)

	if _, err := client.CurrentState(ctx); err != nil {
		if errors.Is(err, ErrAuthLost) {
			w.log.Warn("cached spotify token rejected")
			return false, nil
		}
		return false, err
	}

	w.mu.Lock()
	w.client = client
	w.authLostSent = false
	w.mu.Unlock()

	w.log.Info("spotify session restored")
	return true, nil
}

// CurrentState fetches the player state once, or ErrNotConnected.
func (w *Watcher) CurrentState(ctx context.Context) (nowplaying.NowPlaying, error) {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	if client == nil {
		return nowplaying.NotPlaying(), ErrNotConnected
	}
	return client.CurrentState(ctx)
}

// Start launches the fetch loop. Stop undoes it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return errors.New("watcher already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)
	return nil
}

// Stop cancels the fetch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	if client == nil {
		return
	}

	state, err := client.CurrentState(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthLost) {
			w.loseSession()
			return
		}
		// Transient API trouble; the next tick retries.
		w.log.Debug("currently-playing fetch failed", zap.Error(err))
		return
	}

	// Latest-wins delivery: replace a stale undelivered record.
	select {
	case w.events <- state:
	default:
		select {
		case <-w.events:
		default:
		}
		select {
		case w.events <- state:
		default:
		}
	}
}

func (w *Watcher) loseSession() {
	w.mu.Lock()
	w.client = nil
	already := w.authLostSent
	w.authLostSent = true
	w.mu.Unlock()

	if already {
		return
	}
	w.log.Warn("spotify session lost; reconnect required")
	select {
	case w.authLost <- struct{}{}:
	default:
	}
}

// savingSource persists refreshed tokens back to the cache file so a
// restart keeps the session.
type savingSource struct {
	src  oauth2.TokenSource
	path string
	log  *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	if changed {
		s.last = tok.AccessToken
	}
	s.mu.Unlock()

	if changed {
		if err := SaveToken(s.path, tok); err != nil {
			s.log.Warn("persist refreshed token", zap.Error(err))
		}
	}
	return tok, nil
}
