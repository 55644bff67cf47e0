package viewer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ewasince/photo-compresser/internal/cache"
	"github.com/Ewasince/photo-compresser/internal/extractor"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeSolidPNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestThumbnailFitsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.png")
	writeSolidPNG(t, path, 400, 200, color.NRGBA{R: 255, A: 255})

	v := New(quietLogger(), cache.Config{MaxLoadedImages: 1, MaxLoadedPreviews: 2})

	data, err := v.Thumbnail(path, 100, 100)
	require.NoError(t, err)
	img := decodeJPEG(t, data)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	again, err := v.Thumbnail(path, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, data, again)

	stats := v.CacheStats()
	assert.Equal(t, int64(1), stats["previews"].Hits)
	assert.Equal(t, 1, stats["images"].Len)

	v.Purge()
	assert.Zero(t, v.CacheStats()["previews"].Len)
}

func TestCombinedPreview(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.png")
	right := filepath.Join(dir, "right.png")
	writeSolidPNG(t, left, 100, 100, color.NRGBA{R: 255, A: 255})
	writeSolidPNG(t, right, 100, 100, color.NRGBA{B: 255, A: 255})

	v := New(quietLogger(), cache.Config{})
	data, err := v.Combined(left, right, 200, 100)
	require.NoError(t, err)

	img := decodeJPEG(t, data)
	require.Equal(t, image.Rect(0, 0, 200, 100), img.Bounds())

	r, _, b, _ := img.At(40, 50).RGBA()
	assert.Greater(t, r, b)
	r, _, b, _ = img.At(160, 50).RGBA()
	assert.Greater(t, b, r)
}

func TestPreviewErrors(t *testing.T) {
	v := New(quietLogger(), cache.Config{})

	_, err := v.Thumbnail("whatever.png", 0, 10)
	assert.Error(t, err)

	_, err = v.Thumbnail(filepath.Join(t.TempDir(), "missing.png"), 10, 10)
	assert.True(t, errors.Is(err, extractor.ErrUnreadableImage))
}
