package mediasession

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Snapshot on platforms without a
// media-session integration.
var ErrUnsupported = errors.New("media session registry not supported on this platform")

// Provider yields a snapshot of the sessions currently registered with
// the OS. One call per poll tick; implementations must be safe for
// repeated calls and must not cache across calls.
type Provider interface {
	Snapshot(ctx context.Context) ([]Session, error)
}
