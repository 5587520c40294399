// Package spotify is the push-based now-playing source: OAuth2 PKCE
// authorization against the Spotify accounts service, a thin Web API
// client, and a watcher that turns the currently-playing endpoint into
// an event stream.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	authURL  = "https://accounts.spotify.com/authorize"
	tokenURL = "https://accounts.spotify.com/api/token"
)

// Scopes cover reading the player state and nothing else.
var Scopes = []string{"user-read-currently-playing", "user-read-playback-state"}

var (
	// ErrAuthLost means the token was rejected and a new interactive
	// login is required.
	ErrAuthLost = errors.New("spotify authorization lost")
	// ErrNotConnected means no usable token is available yet.
	ErrNotConnected = errors.New("spotify not connected")
)

// NewOAuthConfig returns the authorization-code config for the public
// (PKCE, no client secret) Spotify app.
func NewOAuthConfig(clientID, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Scopes:      Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
}

// AuthRequest is one interactive login attempt: the challenge, the state
// nonce and the URL to open in a browser.
type AuthRequest struct {
	Config   *oauth2.Config
	Verifier string
	State    string
	URL      string
}

// NewAuthRequest builds a PKCE login attempt for the config.
func NewAuthRequest(cfg *oauth2.Config) AuthRequest {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	return AuthRequest{
		Config:   cfg,
		Verifier: verifier,
		State:    state,
		URL:      cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
	}
}

// Exchange trades the callback code for a token using the attempt's
// verifier.
func (r AuthRequest) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := r.Config.Exchange(ctx, code, oauth2.VerifierOption(r.Verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// LoadToken reads a cached token. A missing file returns
// ErrNotConnected.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return &tok, nil
}

// SaveToken writes the token cache with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
