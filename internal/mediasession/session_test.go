package mediasession

import (
	"testing"

	"overtone/internal/nowplaying"
)

func int64p(v int64) *int64 { return &v }

func TestSessionActive(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"playing", Session{Status: "Playing"}, true},
		{"paused", Session{Status: "Paused"}, true},
		{"lowercase status", Session{Status: "playing"}, true},
		{"stopped", Session{Status: "Stopped"}, false},
		{"empty status no position", Session{}, false},
		{"empty status with position", Session{PositionMS: int64p(1000)}, true},
		{"unknown status with position", Session{Status: "Buffering", PositionMS: int64p(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizePlayingSession(t *testing.T) {
	s := Session{
		Status:      "Playing",
		Title:       "Song X",
		Artist:      "Artist Y",
		Album:       "Album Z",
		SourceAppID: "com.spotify.desktop",
	}

	got := Normalize(s)
	want := nowplaying.NowPlaying{
		IsPlaying:   true,
		TrackName:   "Song X",
		Artists:     nowplaying.ArtistList{"Artist Y"},
		Album:       "Album Z",
		SourceAppID: "com.spotify.desktop",
	}
	if !got.Equal(want) {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
	if got.ArtworkURL != "" {
		t.Error("poll source must never produce an artwork URL")
	}
}

func TestNormalizeInactiveSession(t *testing.T) {
	s := Session{Status: "Stopped", Title: "Song X", Artist: "Artist Y"}

	if got := Normalize(s); !got.Equal(nowplaying.NotPlaying()) {
		t.Errorf("inactive session should normalize to not playing, got %+v", got)
	}
}

func TestNormalizeKeepsArtworkPath(t *testing.T) {
	s := Session{
		Status:      "Paused",
		Title:       "Song X",
		ArtworkPath: "/home/u/music/cover.jpg",
	}

	got := Normalize(s)
	if got.ArtworkPath != s.ArtworkPath {
		t.Errorf("ArtworkPath = %q, want %q", got.ArtworkPath, s.ArtworkPath)
	}
	if len(got.Artists) != 0 {
		t.Errorf("missing artist should stay empty, got %v", got.Artists)
	}
}
