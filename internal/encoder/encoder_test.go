package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func makeTestImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func makeTestImageWithAlpha(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{200, 50, 50, uint8(x * 255 / w)})
		}
	}
	return img
}

func TestEncodeJPEG(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "sub", "out.jpg")
	enc := New(quietLogger(), Options{})

	params := profile.DefaultJPEGParams()
	params.Progressive = true
	params.Optimize = true

	err := enc.Encode(Request{
		Image:       makeTestImage(120, 80),
		Destination: dst,
		Quality:     80,
		Params:      params,
		Metadata:    metadata.Blocks{XMP: []byte("<x:xmpmeta/>")},
	})
	require.NoError(t, err)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Width)
	assert.Equal(t, 80, cfg.Height)

	blocks, err := metadata.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("<x:xmpmeta/>"), blocks.XMP)

	_, err = os.Stat(dst + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestEncodeJPEGFlattensAlphaOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	dst := filepath.Join(t.TempDir(), "flat.jpg")

	params := profile.DefaultJPEGParams()
	params.Smooth = 50
	params.KeepRGB = true
	require.NoError(t, New(quietLogger(), Options{}).Encode(Request{
		Image:       img,
		Destination: dst,
		Quality:     500,
		Params:      params,
	}))

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	require.NoError(t, err)

	r, g, b, _ := decoded.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestEncodeWEBPKeepsAlpha(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.webp")
	params := profile.DefaultWEBPParams()
	params.AlphaQuality = 50

	require.NoError(t, New(quietLogger(), Options{}).Encode(Request{
		Image:       makeTestImageWithAlpha(64, 32),
		Destination: dst,
		Quality:     90,
		Params:      params,
		Metadata:    metadata.Blocks{EXIF: []byte("II*\x00\x08\x00\x00\x00\x00\x00")},
	}))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)

	img, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
	assert.True(t, HasAlpha(img))

	blocks, err := metadata.Read(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("II*\x00\x08\x00\x00\x00\x00\x00"), blocks.EXIF)
}

func TestEncodeAVIFMissingBinary(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.avif")
	enc := New(quietLogger(), Options{AvifencPath: filepath.Join(t.TempDir(), "no-such-avifenc")})

	err := enc.Encode(Request{
		Image:       makeTestImage(8, 8),
		Destination: dst,
		Quality:     60,
		Params:      profile.DefaultAVIFParams(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncode))

	var encErr *EncodeError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, profile.FormatAVIF, encErr.Format)
	assert.Equal(t, dst, encErr.Path)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEncodeAVIF(t *testing.T) {
	if _, err := exec.LookPath("avifenc"); err != nil {
		t.Skip("avifenc not installed")
	}
	dst := filepath.Join(t.TempDir(), "out.avif")
	require.NoError(t, New(quietLogger(), Options{}).Encode(Request{
		Image:       makeTestImage(32, 32),
		Destination: dst,
		Quality:     60,
		Params:      profile.DefaultAVIFParams(),
	}))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestEncodeRejectsEmptyImage(t *testing.T) {
	err := New(quietLogger(), Options{}).Encode(Request{
		Image:       image.NewRGBA(image.Rect(0, 0, 0, 0)),
		Destination: filepath.Join(t.TempDir(), "x.jpg"),
		Params:      profile.DefaultJPEGParams(),
	})
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestAVIFQuantizers(t *testing.T) {
	p := profile.DefaultAVIFParams()

	qmin, qmax := avifQuantizers(100, p)
	assert.Equal(t, 0, qmin)
	assert.Equal(t, 0, qmax)

	qmin, qmax = avifQuantizers(1, p)
	assert.Equal(t, 62, qmin)
	assert.Equal(t, 62, qmax)

	qmin, qmax = avifQuantizers(50, p)
	assert.Equal(t, 32, qmin)
	assert.Equal(t, 32, qmax)

	p.QMin, p.QMax = 10, 30
	qmin, qmax = avifQuantizers(50, p)
	assert.Equal(t, 10, qmin)
	assert.Equal(t, 30, qmax)

	p.QMin, p.QMax = 40, -1
	qmin, qmax = avifQuantizers(90, p)
	assert.Equal(t, 40, qmin)
	assert.Equal(t, 40, qmax)
}

func TestAVIFArgs(t *testing.T) {
	p := profile.DefaultAVIFParams()
	args := avifArgs(100, p, avifMetaFiles{exif: "e.bin"}, "in.png", "out.avif")
	assert.Equal(t, []string{
		"--min", "0", "--max", "0",
		"--speed", "6",
		"--yuv", "420",
		"--range", "full",
		"--autotiling",
		"--exif", "e.bin",
		"in.png", "out.avif",
	}, args)

	p.Autotiling = false
	p.TileRows, p.TileCols = 1, 2
	p.Codec = "aom"
	args = avifArgs(100, p, avifMetaFiles{}, "in.png", "out.avif")
	assert.Contains(t, args, "--codec")
	assert.Contains(t, args, "aom")
	assert.Contains(t, args, "--tilerowslog2")
	assert.NotContains(t, args, "--autotiling")
}

func TestJPEGSubsampling(t *testing.T) {
	p := profile.DefaultJPEGParams()
	assert.Equal(t, image.YCbCrSubsampleRatio420, jpegSubsampling(p))

	p.Subsampling = profile.Subsampling422
	assert.Equal(t, image.YCbCrSubsampleRatio422, jpegSubsampling(p))

	p.KeepRGB = true
	assert.Equal(t, image.YCbCrSubsampleRatio444, jpegSubsampling(p))
}

func TestQuantizeAlpha(t *testing.T) {
	img := makeTestImageWithAlpha(256, 1)
	out := quantizeAlpha(img, 0)

	for i := 3; i < len(out.Pix); i += 4 {
		a := out.Pix[i]
		assert.True(t, a == 0 || a == 255, "alpha %d", a)
	}
}
