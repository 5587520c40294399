package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"overtone/internal/nowplaying"
)

const apiBase = "https://api.spotify.com/v1"

// targetArtworkPx is the edge length the artwork picker aims for.
const targetArtworkPx = 300

// Client is a thin wrapper over the Web API player endpoints. The
// http.Client it is given carries the OAuth2 transport.
type Client struct {
	http *http.Client
	base string
	log  *zap.Logger
}

// NewClient wraps an OAuth2-authenticated http client.
func NewClient(httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient.Timeout == 0 {
		httpClient.Timeout = 10 * time.Second
	}
	return &Client{http: httpClient, base: apiBase, log: log}
}

// API payload shapes, trimmed to the fields the record needs.
type currentlyPlaying struct {
	IsPlaying            bool       `json:"is_playing"`
	CurrentlyPlayingType string     `json:"currently_playing_type"`
	Item                 *trackItem `json:"item"`
}

type trackItem struct {
	Name    string        `json:"name"`
	Artists []trackArtist `json:"artists"`
	Album   trackAlbum    `json:"album"`
}

type trackArtist struct {
	Name string `json:"name"`
}

type trackAlbum struct {
	Name   string       `json:"name"`
	Images []albumImage `json:"images"`
}

type albumImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// CurrentState fetches the player's currently-playing state and maps it
// into the canonical record. A 204 means nothing is playing. A 401 maps
// to ErrAuthLost.
func (c *Client) CurrentState(ctx context.Context) (nowplaying.NowPlaying, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/me/player/currently-playing", nil)
	if err != nil {
		return nowplaying.NotPlaying(), fmt.Errorf("build currently-playing request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nowplaying.NotPlaying(), fmt.Errorf("fetch currently-playing: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNoContent:
		return nowplaying.NotPlaying(), nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nowplaying.NotPlaying(), ErrAuthLost
	default:
		return nowplaying.NotPlaying(), fmt.Errorf("currently-playing: unexpected status %s", resp.Status)
	}

	var payload currentlyPlaying
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nowplaying.NotPlaying(), fmt.Errorf("decode currently-playing: %w", err)
	}
	return mapCurrentlyPlaying(payload), nil
}

func mapCurrentlyPlaying(p currentlyPlaying) nowplaying.NowPlaying {
	if p.Item == nil {
		return nowplaying.NotPlaying()
	}

	artists := make(nowplaying.ArtistList, 0, len(p.Item.Artists))
	for _, a := range p.Item.Artists {
		artists = append(artists, a.Name)
	}

	return nowplaying.NowPlaying{
		IsPlaying:  p.IsPlaying,
		TrackName:  p.Item.Name,
		Artists:    artists,
		Album:      p.Item.Album.Name,
		ArtworkURL: pickImageURL(p.Item.Album.Images, targetArtworkPx),
	}
}

// pickImageURL chooses the image whose width lands closest to the
// target. Images without dimensions only win when nothing else exists.
func pickImageURL(images []albumImage, target int) string {
	best := ""
	bestDist := -1
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		if img.Width <= 0 {
			if best == "" {
				best = img.URL
			}
			continue
		}
		dist := img.Width - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = img.URL
			bestDist = dist
		}
	}
	return best
}
