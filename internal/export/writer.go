package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"overtone/internal/nowplaying"
)

// Exported file names inside the output directory.
const (
	songFile    = "song.txt"
	artistFile  = "artist.txt"
	albumFile   = "album.txt"
	artworkFile = "artwork.png"
)

// AssetWriter writes the per-track export assets into a directory.
type AssetWriter interface {
	Write(ctx context.Context, dir string, d nowplaying.NowPlaying) (string, error)
}

// FSWriter writes the text files plus a PNG-converted artwork image,
// for consumption by streaming overlays and widgets that read files.
type FSWriter struct {
	fetcher *ArtFetcher
	log     *zap.Logger
}

// NewFSWriter builds the filesystem writer.
func NewFSWriter(fetcher *ArtFetcher, log *zap.Logger) *FSWriter {
	return &FSWriter{fetcher: fetcher, log: log}
}

// Write lays the assets down and returns the directory on success.
func (w *FSWriter) Write(ctx context.Context, dir string, d nowplaying.NowPlaying) (string, error) {
	if dir == "" {
		return "", errors.New("empty export directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	texts := map[string]string{
		songFile:   sanitizeText(d.TrackName),
		artistFile: sanitizeText(d.Artists.Join()),
		albumFile:  sanitizeText(d.Album),
	}
	for name, content := range texts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}

	if err := w.writeArtwork(ctx, dir, d); err != nil {
		return "", err
	}
	return dir, nil
}

func (w *FSWriter) writeArtwork(ctx context.Context, dir string, d nowplaying.NowPlaying) error {
	target := filepath.Join(dir, artworkFile)

	data, err := w.artworkBytes(ctx, d)
	if err != nil {
		return err
	}
	if data == nil {
		// No art for this track; drop any stale image so overlays don't
		// show the previous cover.
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale artwork: %w", err)
		}
		return nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode artwork: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode artwork png: %w", err)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write artwork: %w", err)
	}
	return nil
}

// artworkBytes prefers the local path over the remote URL; nil with no
// error means the record simply has no art.
func (w *FSWriter) artworkBytes(ctx context.Context, d nowplaying.NowPlaying) ([]byte, error) {
	if d.ArtworkPath != "" {
		data, err := os.ReadFile(d.ArtworkPath)
		if err != nil {
			return nil, fmt.Errorf("read local artwork: %w", err)
		}
		return data, nil
	}
	if d.ArtworkURL != "" {
		return w.fetcher.Fetch(ctx, d.ArtworkURL)
	}
	return nil, nil
}

// sanitizeText strips control characters and collapses line breaks so
// single-line overlay readers stay intact.
func sanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
