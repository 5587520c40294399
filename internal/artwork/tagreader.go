package artwork

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// tagReader reads metadata through the tag library.
type tagReader struct{}

// NewTagReader returns the production MetadataReader.
func NewTagReader() MetadataReader {
	return tagReader{}
}

func (tagReader) ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("read tags %s: %w", path, err)
	}
	return Metadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
	}, nil
}

func (tagReader) Picture(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, "", fmt.Errorf("read tags %s: %w", path, err)
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", errors.New("no embedded picture")
	}

	ext := strings.ToLower(pic.Ext)
	if ext == "jpeg" {
		ext = "jpg"
	}
	return pic.Data, ext, nil
}
