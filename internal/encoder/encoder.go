// Package encoder writes images in the supported output formats.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

// ErrEncode is wrapped by every EncodeError.
var ErrEncode = errors.New("encode failed")

// EncodeError reports a codec failure for one output file.
type EncodeError struct {
	Format profile.Format
	Path   string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s %s: %v", e.Format, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }

// Request is one encode job.
type Request struct {
	Image       image.Image
	Destination string
	Quality     int
	Params      profile.EncodeParams
	Metadata    metadata.Blocks
}

// Options configures an Encoder.
type Options struct {
	// AvifencPath is the avifenc executable, looked up in PATH when empty.
	AvifencPath string
}

// Encoder dispatches to the codec matching the parameter bag.
type Encoder struct {
	logger  *logrus.Logger
	avifenc string
}

// New returns an Encoder.
func New(logger *logrus.Logger, opts Options) *Encoder {
	avifenc := opts.AvifencPath
	if avifenc == "" {
		avifenc = "avifenc"
	}
	return &Encoder{logger: logger, avifenc: avifenc}
}

// Encode writes req.Image to req.Destination. Quality is clamped to 1..100.
// The file appears atomically: it is written next to the destination and
// renamed into place.
func (e *Encoder) Encode(req Request) error {
	if req.Params == nil {
		req.Params = profile.DefaultJPEGParams()
	}
	format := req.Params.Format()
	quality := profile.ClampQuality(req.Quality)

	wrap := func(err error) error {
		return &EncodeError{Format: format, Path: req.Destination, Err: err}
	}

	if req.Image == nil || req.Image.Bounds().Empty() {
		return wrap(errors.New("empty image"))
	}
	if err := os.MkdirAll(filepath.Dir(req.Destination), 0755); err != nil {
		return wrap(err)
	}

	var err error
	switch p := req.Params.(type) {
	case profile.JPEGParams:
		err = e.writeBytes(req.Destination, func() ([]byte, error) {
			return encodeJPEG(req.Image, quality, p, req.Metadata)
		})
	case profile.WEBPParams:
		err = e.writeBytes(req.Destination, func() ([]byte, error) {
			return encodeWEBP(req.Image, quality, p, req.Metadata)
		})
	case profile.AVIFParams:
		err = e.encodeAVIF(req.Image, req.Destination, quality, p, req.Metadata)
	default:
		err = fmt.Errorf("unsupported parameter bag %T", req.Params)
	}
	if err != nil {
		return wrap(err)
	}

	e.logger.WithFields(logrus.Fields{
		"file":    req.Destination,
		"format":  format,
		"quality": quality,
	}).Debug("Encoded image")
	return nil
}

func (e *Encoder) writeBytes(dst string, encode func() ([]byte, error)) error {
	data, err := encode()
	if err != nil {
		return err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// HasAlpha reports whether img contains any non-opaque pixel.
func HasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// Flatten composites img onto an opaque white background.
func Flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func encodeBuffer(size int) *bytes.Buffer {
	var buf bytes.Buffer
	buf.Grow(size)
	return &buf
}
