// Package source selects where now-playing data comes from: the push
// strategy consumes a provider's event stream, the poll strategy samples
// local media sessions on a fixed cadence. Exactly one strategy is live
// at a time.
package source

import "fmt"

// Mode names a source strategy. The string values are wire values.
type Mode string

const (
	// ModePush consumes the push provider's event stream.
	ModePush Mode = "push"
	// ModePoll samples the local media-session provider.
	ModePoll Mode = "poll"
)

// DefaultMode is used until the user picks a strategy.
const DefaultMode = ModePush

func (m Mode) String() string { return string(m) }

// Valid reports whether m is a known strategy.
func (m Mode) Valid() bool { return m == ModePush || m == ModePoll }

// ParseMode converts a wire or settings value into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown source mode %q", s)
	}
	return m, nil
}
