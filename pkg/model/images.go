package model

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"log/slog"
	"os"
)

// ImageSequence is the ordered set of still images a story refers to by
// index. Slots may be nil when an image failed to load.
type ImageSequence []image.Image

// At returns image i, falling back to image 0 when i is missing.
// ok is false when neither is available.
func (s ImageSequence) At(i int) (img image.Image, ok bool) {
	if i >= 0 && i < len(s) && s[i] != nil {
		return s[i], true
	}
	if len(s) > 0 && s[0] != nil {
		return s[0], true
	}
	return nil, false
}

// LoadImages decodes the given files in order. A file that cannot be
// decoded leaves a nil slot so later indices stay aligned.
func LoadImages(paths []string) (ImageSequence, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images given")
	}
	seq := make(ImageSequence, len(paths))
	loaded := 0
	for i, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			slog.Warn("Images: failed to load image, keeping empty slot", "index", i, "path", p, "error", err)
			continue
		}
		seq[i] = img
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("none of %d images could be loaded", len(paths))
	}
	return seq, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
