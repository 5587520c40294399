package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxArtBytes caps how much remote artwork we are willing to pull.
const maxArtBytes = 10 << 20

// ArtFetcher downloads remote artwork referenced by a record.
type ArtFetcher struct {
	http *http.Client
	log  *zap.Logger
}

// NewArtFetcher returns a fetcher with sane timeouts.
func NewArtFetcher(log *zap.Logger) *ArtFetcher {
	return &ArtFetcher{
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

// Fetch retrieves the image bytes at url.
func (f *ArtFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build artwork request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch artwork: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read artwork body: %w", err)
	}
	if len(data) > maxArtBytes {
		return nil, fmt.Errorf("artwork exceeds %d bytes", maxArtBytes)
	}
	return data, nil
}
