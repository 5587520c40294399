package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"overtone/internal/identity"
	"overtone/internal/mediasession"
	"overtone/internal/nowplaying"
)

// PushProvider is the upstream of the push strategy. Connect restores a
// session without user interaction; Start and Stop own the provider's
// event loop; Events carries canonical records and AuthLost fires once
// per lost session.
type PushProvider interface {
	Connect(ctx context.Context) error
	RestoreSession(ctx context.Context) (bool, error)
	CurrentState(ctx context.Context) (nowplaying.NowPlaying, error)
	Events() <-chan nowplaying.NowPlaying
	AuthLost() <-chan struct{}
	Start(ctx context.Context) error
	Stop()
}

// Sink receives every record a strategy produces, in production order.
type Sink func(nowplaying.NowPlaying)

// Options configures a Controller.
type Options struct {
	Push         PushProvider
	Poll         mediasession.Provider
	Rules        identity.Ruleset
	Filter       identity.Category
	PollInterval time.Duration
	Sink         Sink
	// OnAuthLost runs on the push strategy's goroutine after the push
	// provider reports a lost session.
	OnAuthLost func()
	Log        *zap.Logger
}

// Controller runs at most one source strategy and switches between them
// on demand. A switch tears the old strategy fully down, cancelling its
// context and waiting for its goroutine to exit, before the next one
// starts; records from a dismantled strategy can never interleave with
// its successor's.
type Controller struct {
	push       PushProvider
	poll       mediasession.Provider
	rules      identity.Ruleset
	interval   time.Duration
	sink       Sink
	onAuthLost func()
	log        *zap.Logger

	mu     sync.Mutex
	mode   Mode
	filter identity.Category
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(opts Options) *Controller {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	filter := opts.Filter
	if !filter.Valid() {
		filter = identity.DefaultCategory
	}
	sink := opts.Sink
	if sink == nil {
		sink = func(nowplaying.NowPlaying) {}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		push:       opts.Push,
		poll:       opts.Poll,
		rules:      opts.Rules,
		interval:   interval,
		sink:       sink,
		onAuthLost: opts.OnAuthLost,
		log:        log,
		filter:     filter,
	}
}

// Mode returns the live strategy, or "" while idle.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Filter returns the category the poll strategy selects sessions by.
func (c *Controller) Filter() identity.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter changes the poll selection category. It takes effect on the
// next poll tick; no strategy restart is needed.
func (c *Controller) SetFilter(filter identity.Category) {
	if !filter.Valid() {
		c.log.Warn("ignoring invalid app filter", zap.String("value", filter.String()))
		return
	}
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
	c.log.Info("app filter changed", zap.String("value", filter.String()))
}

// Start activates the given strategy. ctx bounds every strategy started
// through this controller.
func (c *Controller) Start(ctx context.Context, mode Mode) error {
	return c.SetMode(ctx, mode)
}

// SetMode switches strategies. The previous strategy is torn down and
// its goroutine awaited before the next one is activated.
func (c *Controller) SetMode(ctx context.Context, next Mode) error {
	if !next.Valid() {
		return fmt.Errorf("unknown source mode %q", next)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if next == c.mode {
		return nil
	}
	c.teardownLocked()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mode = next

	switch next {
	case ModePush:
		go c.runPush(runCtx, done)
	case ModePoll:
		go c.runPoll(runCtx, done)
	}

	c.log.Info("source mode active", zap.String("mode", next.String()))
	return nil
}

// Stop tears down the live strategy and leaves the controller idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.mode = ""
}

func (c *Controller) teardownLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

func (c *Controller) runPush(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := c.push.Start(ctx); err != nil {
		c.log.Error("start push provider", zap.Error(err))
		return
	}
	defer c.push.Stop()

	if err := c.push.Connect(ctx); err != nil {
		// No cached session yet; the connect flow restores one later.
		c.log.Info("push source not ready", zap.Error(err))
		c.sink(nowplaying.NotPlaying())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-c.push.Events():
			c.sink(d)
		case <-c.push.AuthLost():
			c.log.Warn("push source authorization lost")
			c.sink(nowplaying.NotPlaying())
			if c.onAuthLost != nil {
				c.onAuthLost()
			}
		}
	}
}

func (c *Controller) runPoll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.pollTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollTick(ctx)
		}
	}
}

// pollTick samples the media sessions once. A failed tick is logged and
// swallowed; the cadence never changes.
func (c *Controller) pollTick(ctx context.Context) {
	sessions, err := c.poll.Snapshot(ctx)
	if err != nil {
		c.log.Debug("media session snapshot failed", zap.Error(err))
		return
	}

	filter := c.Filter()
	for _, s := range sessions {
		if c.rules.Matches(s.SourceAppID, filter) {
			c.sink(mediasession.Normalize(s))
			return
		}
	}
	c.sink(nowplaying.NotPlaying())
}
