// Package nowplaying defines the canonical now-playing record that every
// source produces and every consumer renders from.
package nowplaying

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// NowPlaying is the canonical record. When IsPlaying is false all other
// fields are meaningless and consumers must render a "nothing playing"
// state. ArtworkURL and ArtworkPath are mutually informative: consumers
// prefer the URL and fall back to a served conversion of the path.
type NowPlaying struct {
	IsPlaying   bool       `json:"isPlaying"`
	TrackName   string     `json:"trackName"`
	Artists     ArtistList `json:"artists"`
	Album       string     `json:"album,omitempty"`
	ArtworkURL  string     `json:"artworkUrl,omitempty"`
	ArtworkPath string     `json:"artworkPath,omitempty"`
	SourceAppID string     `json:"sourceAppId,omitempty"`
}

// NotPlaying returns the sentinel record for "nothing playing".
func NotPlaying() NowPlaying {
	return NowPlaying{}
}

// Equal reports whether two records are indistinguishable to a renderer.
func (d NowPlaying) Equal(other NowPlaying) bool {
	return d.IsPlaying == other.IsPlaying &&
		d.TrackName == other.TrackName &&
		slices.Equal(d.Artists, other.Artists) &&
		d.Album == other.Album &&
		d.ArtworkURL == other.ArtworkURL &&
		d.ArtworkPath == other.ArtworkPath &&
		d.SourceAppID == other.SourceAppID
}

func (d NowPlaying) String() string {
	if !d.IsPlaying {
		return "nothing playing"
	}
	return fmt.Sprintf("%s — %s", d.Artists.Join(), d.TrackName)
}

// ArtistList is an ordered artist sequence. Some sources emit a bare
// string instead of a list; decoding accepts either so downstream code
// never has to special-case the raw shapes.
type ArtistList []string

func (a ArtistList) Join() string {
	return strings.Join(a, ", ")
}

func (a *ArtistList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*a = ArtistList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = ArtistList(many)
	return nil
}

// keySeparator never occurs in normal track metadata.
const keySeparator = "||"

// TrackKey derives the fingerprint that identifies "same song" for dedup
// purposes. Not-playing records always key to the empty string so a later
// resume of the same track still registers as a change. Comparison is
// exact string equality; no case or whitespace normalization is applied.
func TrackKey(d NowPlaying) string {
	if !d.IsPlaying {
		return ""
	}
	return d.TrackName + keySeparator + d.Artists.Join() + keySeparator + d.Album
}

// Detector remembers the previously observed track key and reports
// whether a new observation differs from it. The zero value is ready to
// use and treats the first playing observation as a change.
type Detector struct {
	key string
}

// Observe folds an observation into the detector. Two consecutive
// not-playing observations never count as a change.
func (det *Detector) Observe(d NowPlaying) (changed bool, key string) {
	key = TrackKey(d)
	changed = key != det.key
	det.key = key
	return changed, key
}

// Reset clears the remembered key so the next playing observation
// registers as a change.
func (det *Detector) Reset() {
	det.key = ""
}
