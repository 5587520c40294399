// Package artwork resolves local cover art for poll-sourced tracks: the
// OS media session rarely carries artwork, but when the user points the
// daemon at their music library we can usually find the right cover by
// track metadata.
package artwork

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Audio files worth indexing.
var audioExts = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".mp4":  true,
	".ogg":  true,
}

// Sidecar image names tried next to a matched track, in order.
var sidecarNames = []string{"cover", "folder", "front", "album", "art"}

var sidecarExts = []string{".jpg", ".jpeg", ".png"}

// Metadata is the tag subset the index keys on.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// MetadataReader reads tags and embedded pictures from an audio file.
type MetadataReader interface {
	ReadMetadata(path string) (Metadata, error)
	// Picture returns the embedded cover image and its file extension
	// (without dot), or an error when none exists.
	Picture(path string) (data []byte, ext string, err error)
}

// Index maps normalized track metadata to library files and resolves
// artwork paths from them. The zero state (no library dir) resolves
// nothing.
type Index struct {
	libraryDir string
	cacheDir   string
	reader     MetadataReader
	log        *zap.Logger

	mu    sync.RWMutex
	byKey map[string]string // normalized key -> audio file path
}

// NewIndex builds an index over libraryDir, extracting embedded art
// into cacheDir on demand. An empty libraryDir disables the index.
func NewIndex(libraryDir, cacheDir string, reader MetadataReader, log *zap.Logger) *Index {
	return &Index{
		libraryDir: libraryDir,
		cacheDir:   cacheDir,
		reader:     reader,
		log:        log,
		byKey:      make(map[string]string),
	}
}

// Enabled reports whether a library directory is configured.
func (ix *Index) Enabled() bool {
	return ix.libraryDir != ""
}

// Scan walks the library and rebuilds the key map. Unreadable files are
// skipped. Safe to call again to pick up library changes.
func (ix *Index) Scan(ctx context.Context) error {
	if !ix.Enabled() {
		return nil
	}

	byKey := make(map[string]string)
	count := 0

	err := filepath.WalkDir(ix.libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			ix.log.Debug("library walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !audioExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		meta, err := ix.reader.ReadMetadata(path)
		if err != nil {
			ix.log.Debug("unreadable tags", zap.String("path", path), zap.Error(err))
			return nil
		}
		title := normalize(meta.Title)
		if title == "" {
			return nil
		}
		if artist := normalize(meta.Artist); artist != "" {
			byKey[title+"|"+artist] = path
		}
		if album := normalize(meta.Album); album != "" {
			byKey[title+"|"+album] = path
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan library %s: %w", ix.libraryDir, err)
	}

	ix.mu.Lock()
	ix.byKey = byKey
	ix.mu.Unlock()

	ix.log.Info("artwork index built",
		zap.String("library", ix.libraryDir),
		zap.Int("tracks", count),
		zap.Int("keys", len(byKey)))
	return nil
}

// Resolve returns a local artwork path for the track, trying a sidecar
// image next to the matched file first, then embedded art extracted
// into the cache.
func (ix *Index) Resolve(title, artist, album string) (string, bool) {
	track, ok := ix.lookup(title, artist, album)
	if !ok {
		return "", false
	}

	if sidecar, ok := findSidecar(filepath.Dir(track)); ok {
		return sidecar, true
	}
	return ix.extractEmbedded(track)
}

func (ix *Index) lookup(title, artist, album string) (string, bool) {
	t := normalize(title)
	if t == "" {
		return "", false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if a := normalize(artist); a != "" {
		if path, ok := ix.byKey[t+"|"+a]; ok {
			return path, true
		}
	}
	if al := normalize(album); al != "" {
		if path, ok := ix.byKey[t+"|"+al]; ok {
			return path, true
		}
	}
	return "", false
}

func findSidecar(dir string) (string, bool) {
	for _, name := range sidecarNames {
		for _, ext := range sidecarExts {
			candidate := filepath.Join(dir, name+ext)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, true
			}
		}
	}
	return "", false
}

func (ix *Index) extractEmbedded(track string) (string, bool) {
	data, ext, err := ix.reader.Picture(track)
	if err != nil || len(data) == 0 {
		return "", false
	}
	if ext == "" {
		ext = "jpg"
	}

	sum := sha1.Sum([]byte(track))
	cached := filepath.Join(ix.cacheDir, hex.EncodeToString(sum[:])+"."+ext)

	if _, err := os.Stat(cached); err == nil {
		return cached, true
	}
	if err := os.MkdirAll(ix.cacheDir, 0o755); err != nil {
		ix.log.Warn("create art cache dir", zap.Error(err))
		return "", false
	}
	if err := os.WriteFile(cached, data, 0o644); err != nil {
		ix.log.Warn("write extracted art", zap.String("path", cached), zap.Error(err))
		return "", false
	}
	return cached, true
}

// normalize lowercases and strips everything but letters and digits so
// metadata punctuation differences don't break matching.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
