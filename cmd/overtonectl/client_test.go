package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"overtone/internal/bus"
	"overtone/internal/hub"
)

func newClientTestHub(t *testing.T) (*bus.Bus, string) {
	t.Helper()
	b := bus.New(zap.NewNop())
	h := hub.New(b, "127.0.0.1:0", nil, zap.NewNop())
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return b, strings.TrimPrefix(srv.URL, "http://")
}

func TestClientSeedFromReplay(t *testing.T) {
	b, addr := newClientTestHub(t)

	theme := bus.Theme{Background: "#101010", Title: "#baff00", Meta: "#eeeeee"}
	b.Publish(bus.ChannelThemeUpdate, theme)

	rs, err := dialDaemon(context.Background(), addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rs.close()

	msg, ok := rs.seed(bus.ChannelThemeUpdate, 2*time.Second)
	if !ok {
		t.Fatal("seed never arrived")
	}
	if got := msg.Payload.(bus.Theme); got != theme {
		t.Fatalf("seed mismatch: %+v", got)
	}
}

func TestClientRequestFallsBackToSeed(t *testing.T) {
	b, addr := newClientTestHub(t)

	theme := bus.Theme{Background: "#101010", Title: "#baff00", Meta: "#eeeeee"}
	b.Publish(bus.ChannelThemeUpdate, theme)

	rs, err := dialDaemon(context.Background(), addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rs.close()

	// Consume the join-time replay so the request genuinely goes
	// unanswered, then watch the fallback hand back the cached seed.
	rs.settle(bus.ChannelThemeUpdate)

	msg, err := rs.request(bus.ChannelRequestTheme, bus.ChannelThemeUpdate, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := msg.Payload.(bus.Theme); got != theme {
		t.Fatalf("fallback mismatch: %+v", got)
	}
}

func TestClientNextTimesOut(t *testing.T) {
	_, addr := newClientTestHub(t)

	rs, err := dialDaemon(context.Background(), addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rs.close()

	if _, err := rs.next(bus.ChannelExportState, 100*time.Millisecond, nil); err == nil {
		t.Fatal("expected timeout waiting on a silent channel")
	}
}

func TestClientCommandEchoes(t *testing.T) {
	_, addr := newClientTestHub(t)

	rs, err := dialDaemon(context.Background(), addr, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer rs.close()

	// The hub fans inbound sourceModeUpdate back to every surface,
	// including the sender.
	msg, err := rs.next(bus.ChannelSourceModeUpdate, 2*time.Second, func() error {
		return rs.publish(bus.ChannelSourceModeUpdate, bus.SourceModePayload{Mode: "poll"})
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got := msg.Payload.(bus.SourceModePayload); got.Mode != "poll" {
		t.Fatalf("echo mismatch: %+v", got)
	}
}
