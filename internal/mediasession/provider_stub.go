//go:build !linux

package mediasession

import (
	"context"

	"go.uber.org/zap"
)

type stubProvider struct{}

// NewProvider returns a provider that reports the platform as
// unsupported; the poll loop logs the error and keeps ticking.
func NewProvider(log *zap.Logger) Provider {
	log.Warn("no media session integration for this platform; poll source will stay empty")
	return stubProvider{}
}

func (stubProvider) Snapshot(context.Context) ([]Session, error) {
	return nil, ErrUnsupported
}
