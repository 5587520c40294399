package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"overtone/internal/bus"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 5 * time.Second

	// settleTimeout bounds how long we give the join-time seed replay
	// before treating a channel as unseeded.
	settleTimeout = 300 * time.Millisecond
)

// remoteSurface is the CLI's end of the wire protocol: it joins the
// daemon's hub exactly like a browser surface does, caches the latest
// message per channel, and lets commands wait for specific answers.
type remoteSurface struct {
	conn      *websocket.Conn
	onMessage func(bus.Message)

	writeMu sync.Mutex

	mu      sync.Mutex
	cache   map[string]bus.Message
	waiters map[string][]chan bus.Message
	readErr error

	readDone chan struct{}
}

// dialDaemon connects to the hub's /ws endpoint. onMessage, when set,
// observes every decoded message on the read goroutine.
func dialDaemon(ctx context.Context, addr string, onMessage func(bus.Message)) (*remoteSurface, error) {
	wsURL := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, err
	}

	rs := &remoteSurface{
		conn:      conn,
		onMessage: onMessage,
		cache:     map[string]bus.Message{},
		waiters:   map[string][]chan bus.Message{},
		readDone:  make(chan struct{}),
	}
	go rs.readLoop()
	return rs, nil
}

func (rs *remoteSurface) close() {
	rs.conn.Close()
	select {
	case <-rs.readDone:
	case <-time.After(time.Second):
	}
}

func (rs *remoteSurface) readLoop() {
	defer close(rs.readDone)
	for {
		_, data, err := rs.conn.ReadMessage()
		if err != nil {
			rs.mu.Lock()
			rs.readErr = err
			waiters := rs.waiters
			rs.waiters = map[string][]chan bus.Message{}
			rs.mu.Unlock()
			for _, chans := range waiters {
				for _, ch := range chans {
					close(ch)
				}
			}
			return
		}

		var env bus.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		msg, err := env.Decode()
		if err != nil {
			continue
		}

		rs.mu.Lock()
		rs.cache[msg.Channel] = msg
		chans := rs.waiters[msg.Channel]
		delete(rs.waiters, msg.Channel)
		rs.mu.Unlock()

		for _, ch := range chans {
			ch <- msg
			close(ch)
		}
		if rs.onMessage != nil {
			rs.onMessage(msg)
		}
	}
}

// publish sends one envelope to the daemon.
func (rs *remoteSurface) publish(channel string, payload any) error {
	env, err := bus.NewEnvelope(channel, payload)
	if err != nil {
		return err
	}
	rs.writeMu.Lock()
	defer rs.writeMu.Unlock()
	rs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := rs.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", channel, err)
	}
	return nil
}

// latest returns the cached message for channel, if any arrived yet.
func (rs *remoteSurface) latest(channel string) (bus.Message, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	msg, ok := rs.cache[channel]
	return msg, ok
}

// subscribeNext registers a one-shot waiter for the next message on
// channel. The returned cleanup deregisters it if it never fires.
func (rs *remoteSurface) subscribeNext(channel string) (<-chan bus.Message, func(), error) {
	ch := make(chan bus.Message, 1)
	rs.mu.Lock()
	if rs.readErr != nil {
		err := rs.readErr
		rs.mu.Unlock()
		return nil, nil, fmt.Errorf("connection lost: %w", err)
	}
	rs.waiters[channel] = append(rs.waiters[channel], ch)
	rs.mu.Unlock()

	cleanup := func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		chans := rs.waiters[channel]
		for i, c := range chans {
			if c == ch {
				rs.waiters[channel] = append(chans[:i], chans[i+1:]...)
				return
			}
		}
	}
	return ch, cleanup, nil
}

// next sends a message (when send != nil) and waits for the following
// message on channel. The waiter registers before send runs so a fast
// answer cannot slip past.
func (rs *remoteSurface) next(channel string, timeout time.Duration, send func() error) (bus.Message, error) {
	ch, cleanup, err := rs.subscribeNext(channel)
	if err != nil {
		return bus.Message{}, err
	}
	defer cleanup()

	if send != nil {
		if err := send(); err != nil {
			return bus.Message{}, err
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return bus.Message{}, errors.New("connection closed while waiting")
		}
		return msg, nil
	case <-timer.C:
		return bus.Message{}, fmt.Errorf("no %s answer within %s", channel, timeout)
	}
}

// request publishes an empty request and waits for the matching update.
// When no fresh answer arrives in time, the latest cached value (the
// join-time seed) stands in, so a momentarily busy daemon still yields
// the last known state.
func (rs *remoteSurface) request(reqChannel, respChannel string, timeout time.Duration) (bus.Message, error) {
	msg, err := rs.next(respChannel, timeout, func() error {
		return rs.publish(reqChannel, bus.RequestPayload{})
	})
	if err == nil {
		return msg, nil
	}
	if cached, ok := rs.latest(respChannel); ok {
		return cached, nil
	}
	return bus.Message{}, err
}

// seed returns the channel's cached value, waiting briefly for the
// join-time replay to deliver one if it has not arrived yet.
func (rs *remoteSurface) seed(channel string, timeout time.Duration) (bus.Message, bool) {
	if msg, ok := rs.latest(channel); ok {
		return msg, true
	}
	if msg, err := rs.next(channel, timeout, nil); err == nil {
		return msg, true
	}
	// The replay may have landed between the cache miss and the waiter.
	return rs.latest(channel)
}

// settle drains the join-time seed for channel so a later next() cannot
// mistake the replayed value for a command's echo.
func (rs *remoteSurface) settle(channel string) {
	rs.seed(channel, settleTimeout)
}
