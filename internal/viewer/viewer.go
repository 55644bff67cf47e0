// Package viewer loads originals and compressed outputs for side by side
// comparison, keeping decoded images and rendered previews in bounded caches.
package viewer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/Ewasince/photo-compresser/internal/logger"
	"github.com/Ewasince/photo-compresser/internal/cache"
	"github.com/Ewasince/photo-compresser/internal/extractor"
)

var (
	previewBackground = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	dividerColor      = color.NRGBA{R: 100, G: 100, B: 100, A: 0xff}
)

const (
	dividerWidth   = 2
	previewQuality = 85
	maxPreviewSide = 4096
)

// Viewer renders previews of image pairs.
type Viewer struct {
	logger   *logrus.Logger
	images   *cache.LRU[string, image.Image]
	previews *cache.LRU[string, []byte]
}

// New creates a Viewer with the given cache capacities.
func New(logger *logrus.Logger, cfg cache.Config) *Viewer {
	return &Viewer{
		logger:   logger,
		images:   cache.New[string, image.Image](cfg.MaxLoadedImages),
		previews: cache.New[string, []byte](cfg.MaxLoadedPreviews),
	}
}

// Image returns the decoded image at path.
func (v *Viewer) Image(path string) (image.Image, error) {
	return v.images.Get(path, func(p string) (image.Image, error) {
		img, err := imaging.Open(p, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", extractor.ErrUnreadableImage, p, err)
		}
		logger.WithFile(v.logger, p).Debug("Loaded image")
		return img, nil
	})
}

// Thumbnail returns a JPEG of the image at path fitted into width x height.
func (v *Viewer) Thumbnail(path string, width, height int) ([]byte, error) {
	width, height, err := previewSize(width, height)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%dx%d", path, width, height)
	return v.previews.Get(key, func(string) ([]byte, error) {
		img, err := v.Image(path)
		if err != nil {
			return nil, err
		}
		return encodePreview(imaging.Fit(img, width, height, imaging.Lanczos))
	})
}

// Combined renders two images side by side on a dark background with a
// divider between them. Each half is width/2 wide.
func (v *Viewer) Combined(left, right string, width, height int) ([]byte, error) {
	width, height, err := previewSize(width, height)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s|%s|%dx%d", left, right, width, height)
	return v.previews.Get(key, func(string) ([]byte, error) {
		half := max(width/2, 1)

		canvas := imaging.New(width, height, previewBackground)
		for i, path := range []string{left, right} {
			img, err := v.Image(path)
			if err != nil {
				return nil, err
			}
			thumb := imaging.Fit(img, half, height, imaging.Lanczos)
			b := thumb.Bounds()
			x := i*half + (half-b.Dx())/2
			y := (height - b.Dy()) / 2
			canvas = imaging.Paste(canvas, thumb, image.Pt(x, y))
		}

		divider := imaging.New(dividerWidth, height, dividerColor)
		canvas = imaging.Paste(canvas, divider, image.Pt(half-dividerWidth/2, 0))
		return encodePreview(canvas)
	})
}

// CacheStats reports image and preview cache usage.
func (v *Viewer) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"images":   v.images.Stats(),
		"previews": v.previews.Stats(),
	}
}

// Purge drops every cached image and preview.
func (v *Viewer) Purge() {
	v.images.Purge()
	v.previews.Purge()
}

func previewSize(width, height int) (int, int, error) {
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid preview size %dx%d", width, height)
	}
	return min(width, maxPreviewSide), min(height, maxPreviewSide), nil
}

func encodePreview(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
