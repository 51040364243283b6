package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"
)

// ImageSink persists generated images. Save returns the path written.
type ImageSink interface {
	Save(data []byte, suggestedName string) (string, error)
}

// ErrEmptyImage is returned by FileSink.Save for zero-length data.
var ErrEmptyImage = errors.New("imagegen: empty image data")

// FileSink writes images into a directory.
//
// The extension comes from the sniffed image format (png, jpeg, gif, webp),
// defaulting to .png. An existing file is never overwritten: a numeric suffix
// is added instead.
type FileSink struct {
	dir string

	// mu serializes name selection so concurrent workers never pick the same path
	mu sync.Mutex
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "images"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("imagegen: failed to create output directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Save writes data under suggestedName plus the sniffed extension.
func (s *FileSink) Save(data []byte, suggestedName string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	base := sanitizeFilename(strings.TrimSuffix(suggestedName, filepath.Ext(suggestedName)))
	ext := extensionForFormat(DetectFormat(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; ; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("imagegen: failed to create image file: %w", err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("imagegen: failed to write image file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("imagegen: failed to close image file: %w", err)
		}
		return path, nil
	}
}

// DetectFormat returns the registered image format name of data, or "" if
// no decoder recognizes it.
func DetectFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}

// SuggestName builds a collision-resistant base name for an image produced
// by a worker: worker id, wall-clock timestamp and a per-worker sequence.
func SuggestName(workerID, seq int) string {
	return fmt.Sprintf("worker%d_%s_%03d", workerID, time.Now().Format("20060102_150405"), seq)
}

// Ensure FileSink implements ImageSink at compile time.
var _ ImageSink = (*FileSink)(nil)
