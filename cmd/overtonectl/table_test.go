package main

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"overtone/internal/bus"
	"overtone/internal/nowplaying"
)

func TestRenderTablePlainWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"Setting", "Value"},
		[][]string{{"Source mode", "push"}}, []columnAlignment{alignLeft, alignLeft})

	if !strings.Contains(out, "Setting") || !strings.Contains(out, "push") {
		t.Fatalf("table missing cells: %q", out)
	}
	if strings.Contains(out, "╭") {
		t.Fatalf("expected plain style for piped output, got %q", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"A", "B"}, [][]string{{"only"}}, nil)
	if !strings.Contains(out, "only") {
		t.Fatalf("short row dropped: %q", out)
	}
}

func TestIsTerminalNonFile(t *testing.T) {
	if isTerminal(io.Discard) {
		t.Fatal("expected non-file writer to not be a terminal")
	}
}

func TestSummarize(t *testing.T) {
	cases := []struct {
		msg  bus.Message
		want string
	}{
		{
			msg: bus.Message{Channel: bus.ChannelNowPlayingUpdate, Payload: nowplaying.NowPlaying{
				IsPlaying: true, TrackName: "Song X", Artists: nowplaying.ArtistList{"Artist Y"},
			}},
			want: "Song X",
		},
		{
			msg:  bus.Message{Channel: bus.ChannelNowPlayingUpdate, Payload: nowplaying.NotPlaying()},
			want: "nothing playing",
		},
		{
			msg:  bus.Message{Channel: bus.ChannelSourceModeUpdate, Payload: bus.SourceModePayload{Mode: "poll"}},
			want: "poll",
		},
		{
			msg:  bus.Message{Channel: bus.ChannelAuthLost, Payload: bus.AuthLostPayload{}},
			want: "overtonectl connect",
		},
		{
			msg:  bus.Message{Channel: bus.ChannelExportStatus, Payload: bus.ExportStatus{Level: "error", Message: "disk full"}},
			want: "error: disk full",
		},
		{
			msg: bus.Message{Channel: bus.ChannelSurfaceState, Payload: bus.SurfaceState{
				Surfaces: map[string]bool{"widget": true},
			}},
			want: "widget=yes",
		},
	}
	for _, tc := range cases {
		if got := summarize(tc.msg); !strings.Contains(got, tc.want) {
			t.Fatalf("summarize(%s) = %q, want substring %q", tc.msg.Channel, got, tc.want)
		}
	}
}

func TestExportSummary(t *testing.T) {
	if got := exportSummary(bus.ExportState{}); got != "off" {
		t.Fatalf("disabled summary = %q", got)
	}
	if got := exportSummary(bus.ExportState{Enabled: true, Dir: "/out"}); got != "on, /out" {
		t.Fatalf("enabled summary = %q", got)
	}
	if got := exportSummary(bus.ExportState{Enabled: true}); !strings.Contains(got, "first export") {
		t.Fatalf("no-dir summary = %q", got)
	}
}

func TestOpenSurfaces(t *testing.T) {
	got := openSurfaces(bus.SurfaceState{Surfaces: map[string]bool{
		"widget": true, "extra": true, "settings": false,
	}})
	if got != "extra, widget" {
		t.Fatalf("openSurfaces = %q", got)
	}
	if got := openSurfaces(bus.SurfaceState{}); got != "none" {
		t.Fatalf("empty openSurfaces = %q", got)
	}
}
