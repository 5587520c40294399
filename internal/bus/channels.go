package bus

import (
	"encoding/json"
	"fmt"

	"overtone/internal/nowplaying"
)

// Channel names are part of the wire protocol and must stay bit-exact
// across every surface implementation.
const (
	ChannelThemeUpdate       = "themeUpdate"
	ChannelRequestTheme      = "requestTheme"
	ChannelThemeChange       = "themeChange"
	ChannelSourceModeUpdate  = "sourceModeUpdate"
	ChannelRequestSourceMode = "requestSourceMode"
	ChannelAppFilterUpdate   = "appFilterUpdate"
	ChannelRequestAppFilter  = "requestAppFilter"
	ChannelNowPlayingUpdate  = "nowPlayingUpdate"
	ChannelAuthLost          = "authLost"
	ChannelSurfaceCommand    = "surfaceCommand"
	ChannelSurfaceState      = "surfaceState"
	ChannelExportCommand     = "exportCommand"
	ChannelExportState       = "exportState"
	ChannelExportStatus      = "exportStatus"
)

// Theme is the display theme payload carried by themeUpdate and
// themeChange. All values are hex color strings.
type Theme struct {
	Background string `json:"bg"`
	Title      string `json:"title"`
	Meta       string `json:"meta"`
}

// DefaultTheme returns the colors used until the user picks their own.
func DefaultTheme() Theme {
	return Theme{Background: "#2f2f2f", Title: "#00cf00", Meta: "#ffffff"}
}

// SourceModePayload carries "push" or "poll".
type SourceModePayload struct {
	Mode string `json:"mode"`
}

// AppFilterPayload carries the selected poll-source category tag.
type AppFilterPayload struct {
	Value string `json:"value"`
}

// RequestPayload is the (empty) body of every request* message.
type RequestPayload struct{}

// AuthLostPayload is the (empty) body of an authLost message.
type AuthLostPayload struct{}

// SurfaceCommand asks the lifecycle manager to act on a surface label.
type SurfaceCommand struct {
	Action string `json:"action"` // "open", "close" or "toggle"
	Label  string `json:"label"`
}

// SurfaceState reports which auxiliary surfaces currently exist.
type SurfaceState struct {
	Surfaces map[string]bool `json:"surfaces"`
}

// ExportCommand drives the export scheduler.
type ExportCommand struct {
	Action string `json:"action"` // "enable", "disable", "setDir" or "clearDir"
	Dir    string `json:"dir,omitempty"`
}

// ExportState reports the scheduler's current configuration.
type ExportState struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// ExportStatus reports the outcome of an export attempt.
type ExportStatus struct {
	Level   string `json:"level"` // "info" or "error"
	Message string `json:"message"`
}

// Envelope is the wire form of one bus message.
type Envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals a typed payload into its wire form.
func NewEnvelope(channel string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", channel, err)
	}
	return Envelope{Channel: channel, Payload: raw}, nil
}

// Decode parses the envelope's payload into the typed value for its
// channel.
func (e Envelope) Decode() (Message, error) {
	payload, err := DecodePayload(e.Channel, e.Payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Channel: e.Channel, Payload: payload}, nil
}

// DecodePayload maps raw JSON to the typed payload for a channel.
// Unknown channels are an error so the caller can drop them.
func DecodePayload(channel string, raw json.RawMessage) (any, error) {
	decode := func(v any) (any, error) {
		if len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", channel, err)
		}
		return v, nil
	}

	switch channel {
	case ChannelThemeUpdate, ChannelThemeChange:
		v, err := decode(&Theme{})
		if err != nil {
			return nil, err
		}
		return *v.(*Theme), nil
	case ChannelSourceModeUpdate:
		v, err := decode(&SourceModePayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*SourceModePayload), nil
	case ChannelAppFilterUpdate:
		v, err := decode(&AppFilterPayload{})
		if err != nil {
			return nil, err
		}
		return *v.(*AppFilterPayload), nil
	case ChannelNowPlayingUpdate:
		v, err := decode(&nowplaying.NowPlaying{})
		if err != nil {
			return nil, err
		}
		return *v.(*nowplaying.NowPlaying), nil
	case ChannelRequestTheme, ChannelRequestSourceMode, ChannelRequestAppFilter:
		return RequestPayload{}, nil
	case ChannelAuthLost:
		return AuthLostPayload{}, nil
	case ChannelSurfaceCommand:
		v, err := decode(&SurfaceCommand{})
		if err != nil {
			return nil, err
		}
		return *v.(*SurfaceCommand), nil
	case ChannelSurfaceState:
		v, err := decode(&SurfaceState{})
		if err != nil {
			return nil, err
		}
		return *v.(*SurfaceState), nil
	case ChannelExportCommand:
		v, err := decode(&ExportCommand{})
		if err != nil {
			return nil, err
		}
		return *v.(*ExportCommand), nil
	case ChannelExportState:
		v, err := decode(&ExportState{})
		if err != nil {
			return nil, err
		}
		return *v.(*ExportState), nil
	case ChannelExportStatus:
		v, err := decode(&ExportStatus{})
		if err != nil {
			return nil, err
		}
		return *v.(*ExportStatus), nil
	}
	return nil, fmt.Errorf("unknown channel %q", channel)
}

// BroadcastChannels lists every channel the hub relays out to surfaces,
// seedable channels first in replay order.
func BroadcastChannels() []string {
	return []string{
		ChannelThemeUpdate,
		ChannelSourceModeUpdate,
		ChannelAppFilterUpdate,
		ChannelNowPlayingUpdate,
		ChannelSurfaceState,
		ChannelExportState,
		ChannelAuthLost,
		ChannelExportStatus,
	}
}

// Seedable reports whether a channel's last value should be replayed to
// late-joining surfaces. Request and command channels are transient.
func Seedable(channel string) bool {
	switch channel {
	case ChannelThemeUpdate, ChannelSourceModeUpdate, ChannelAppFilterUpdate,
		ChannelNowPlayingUpdate, ChannelSurfaceState, ChannelExportState:
		return true
	}
	return false
}

// Inbound reports whether surfaces may publish on a channel. Everything
// else arriving from a surface is dropped at the hub.
func Inbound(channel string) bool {
	switch channel {
	case ChannelRequestTheme, ChannelRequestSourceMode, ChannelRequestAppFilter,
		ChannelThemeChange, ChannelSourceModeUpdate, ChannelAppFilterUpdate,
		ChannelSurfaceCommand, ChannelExportCommand:
		return true
	}
	return false
}
