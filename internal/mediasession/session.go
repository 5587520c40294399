// Package mediasession exposes the host operating system's media-session
// registry as a poll source: one snapshot call returning the raw sessions
// currently known to the OS, plus the normalizer that maps a raw session
// into the canonical now-playing record.
package mediasession

import (
	"strings"

	"overtone/internal/nowplaying"
)

// Session is the raw poll payload for one media session. Status is free
// text as reported by the platform; PositionMS is a pointer because
// presence of a position is itself meaningful to the activity rule.
type Session struct {
	Status      string `json:"status"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	PositionMS  *int64 `json:"position_ms,omitempty"`
	EndTimeMS   *int64 `json:"end_time_ms,omitempty"`
	LastUpdated int64  `json:"last_updated,omitempty"`
	SourceAppID string `json:"source_app_id"`
	ArtworkPath string `json:"artwork_path,omitempty"`
}

// Active reports whether the session carries a usable playback state:
// status playing or paused, or a position value present.
func (s Session) Active() bool {
	switch strings.ToLower(s.Status) {
	case "playing", "paused":
		return true
	}
	return s.PositionMS != nil
}

// Normalize maps a raw session into the canonical record. Inactive
// sessions normalize to not-playing. The poll source never produces an
// artwork URL; only a local path may be available.
func Normalize(s Session) nowplaying.NowPlaying {
	if !s.Active() {
		return nowplaying.NotPlaying()
	}

	var artists nowplaying.ArtistList
	if s.Artist != "" {
		artists = nowplaying.ArtistList{s.Artist}
	}

	return nowplaying.NowPlaying{
		IsPlaying:   true,
		TrackName:   s.Title,
		Artists:     artists,
		Album:       s.Album,
		ArtworkPath: s.ArtworkPath,
		SourceAppID: s.SourceAppID,
	}
}
