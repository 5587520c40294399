package export

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"overtone/internal/nowplaying"
)

func testImage(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readFileString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestWriteTextAssets(t *testing.T) {
	dir := t.TempDir()
	w := NewFSWriter(NewArtFetcher(zap.NewNop()), zap.NewNop())

	d := nowplaying.NowPlaying{
		IsPlaying: true,
		TrackName: "Song X",
		Artists:   nowplaying.ArtistList{"Artist Y", "Artist W"},
		Album:     "Album Z",
	}

	got, err := w.Write(context.Background(), dir, d)
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("Write returned %q, want %q", got, dir)
	}

	if s := readFileString(t, filepath.Join(dir, "song.txt")); s != "Song X" {
		t.Errorf("song.txt = %q", s)
	}
	if s := readFileString(t, filepath.Join(dir, "artist.txt")); s != "Artist Y, Artist W" {
		t.Errorf("artist.txt = %q", s)
	}
	if s := readFileString(t, filepath.Join(dir, "album.txt")); s != "Album Z" {
		t.Errorf("album.txt = %q", s)
	}
	if _, err := os.Stat(filepath.Join(dir, "artwork.png")); !os.IsNotExist(err) {
		t.Error("artless track should not produce artwork.png")
	}
}

func TestWriteRemovesStaleArtwork(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "artwork.png")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewFSWriter(NewArtFetcher(zap.NewNop()), zap.NewNop())
	_, err := w.Write(context.Background(), dir, nowplaying.NowPlaying{
		IsPlaying: true,
		TrackName: "Song X",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale artwork.png should be removed")
	}
}

func TestWriteConvertsLocalArtToPNG(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "cover.jpg")
	jpegData := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})
	if err := os.WriteFile(src, jpegData, 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewFSWriter(NewArtFetcher(zap.NewNop()), zap.NewNop())
	_, err := w.Write(context.Background(), dir, nowplaying.NowPlaying{
		IsPlaying:   true,
		TrackName:   "Song X",
		ArtworkPath: src,
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := os.Open(filepath.Join(dir, "artwork.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if _, err := png.Decode(out); err != nil {
		t.Errorf("artwork.png is not a decodable png: %v", err)
	}
}

func TestWriteFetchesRemoteArt(t *testing.T) {
	pngData := testImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	}))
	defer srv.Close()

	dir := t.TempDir()
	w := NewFSWriter(NewArtFetcher(zap.NewNop()), zap.NewNop())
	_, err := w.Write(context.Background(), dir, nowplaying.NowPlaying{
		IsPlaying:  true,
		TrackName:  "Song X",
		ArtworkURL: srv.URL + "/cover.png",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "artwork.png")); err != nil {
		t.Errorf("artwork.png missing: %v", err)
	}
}

func TestWriteFailsOnUnreadableArt(t *testing.T) {
	w := NewFSWriter(NewArtFetcher(zap.NewNop()), zap.NewNop())
	_, err := w.Write(context.Background(), t.TempDir(), nowplaying.NowPlaying{
		IsPlaying:   true,
		TrackName:   "Song X",
		ArtworkPath: "/does/not/exist.jpg",
	})
	if err == nil {
		t.Fatal("expected error for unreadable artwork path")
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Song X", "Song X"},
		{"Song\nX", "Song X"},
		{"Song\r\nX\tY", "Song X Y"},
		{"  padded  ", "padded"},
		{"nul\x00byte", "nulbyte"},
	}
	for _, tt := range tests {
		if got := sanitizeText(tt.in); got != tt.want {
			t.Errorf("sanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
