// Package bus is the in-process broadcast bus spanning every surface.
// Named channels carry typed payloads; a request/response convention is
// layered on top of plain publish for late-joining surfaces.
package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one delivery: a channel name and its typed payload.
type Message struct {
	Channel string
	Payload any
}

// Handler consumes one message. Handlers run on the publisher's
// goroutine; a handler that needs to block must hand off to its own.
type Handler func(Message)

// Bus is a named-channel publish/subscribe fan-out. Delivery to current
// subscribers is in publish order per channel; messages published before
// a subscriber registers are lost, which callers compensate for with the
// request/response pattern.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is one registered handler on one channel.
type Subscription struct {
	bus     *Bus
	channel string
	fn      Handler
	once    sync.Once
}

// New returns an empty bus.
func New(log *zap.Logger) *Bus {
	return &Bus{
		log:  log,
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers fn on the channel and returns its subscription.
func (b *Bus) Subscribe(channel string, fn Handler) *Subscription {
	sub := &Subscription{bus: b, channel: channel, fn: fn}

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	return sub
}

// Cancel removes the subscription. Safe to call more than once; after
// return no further deliveries start, though one already in flight may
// complete.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[sub.channel]
	if len(current) == 0 {
		return
	}
	next := make([]*Subscription, 0, len(current)-1)
	for _, s := range current {
		if s != sub {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(b.subs, sub.channel)
		return
	}
	b.subs[sub.channel] = next
}

// Publish delivers the payload to every current subscriber of the
// channel, in registration order, on the caller's goroutine. Handlers
// may themselves publish; the subscriber list is copied before delivery
// so re-entrant publishes never deadlock.
func (b *Bus) Publish(channel string, payload any) {
	b.mu.RLock()
	current := b.subs[channel]
	subs := make([]*Subscription, len(current))
	copy(subs, current)
	b.mu.RUnlock()

	if b.log.Core().Enabled(zap.DebugLevel) {
		b.log.Debug("publish",
			zap.String("channel", channel),
			zap.Int("subscribers", len(subs)))
	}

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.fn(msg)
	}
}

// Request publishes on requestChannel and waits for the next message on
// updateChannel, up to the timeout. ok is false when the window elapses
// with no response, in which case the caller falls back to its own
// cached value.
func (b *Bus) Request(ctx context.Context, requestChannel, updateChannel string, timeout time.Duration) (Message, bool) {
	reply := make(chan Message, 1)
	sub := b.Subscribe(updateChannel, func(msg Message) {
		select {
		case reply <- msg:
		default:
		}
	})
	defer sub.Cancel()

	b.Publish(requestChannel, RequestPayload{})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		return msg, true
	case <-timer.C:
		return Message{}, false
	case <-ctx.Done():
		return Message{}, false
	}
}
