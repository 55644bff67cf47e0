package encoder

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/jpegli"

	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

// jpegSubsampling maps the profile setting to a chroma ratio. KeepRGB keeps
// full chroma resolution.
func jpegSubsampling(p profile.JPEGParams) image.YCbCrSubsampleRatio {
	if p.KeepRGB {
		return image.YCbCrSubsampleRatio444
	}
	switch p.Subsampling {
	case profile.Subsampling444:
		return image.YCbCrSubsampleRatio444
	case profile.Subsampling422:
		return image.YCbCrSubsampleRatio422
	default:
		return image.YCbCrSubsampleRatio420
	}
}

// smoothSigma converts the 0..100 smoothing strength to a blur sigma.
func smoothSigma(smooth int) float64 {
	return float64(min(max(smooth, 0), 100)) / 25
}

func encodeJPEG(img image.Image, quality int, p profile.JPEGParams, meta metadata.Blocks) ([]byte, error) {
	if HasAlpha(img) {
		img = Flatten(img)
	}
	if p.Smooth > 0 {
		img = imaging.Blur(img, smoothSigma(p.Smooth))
	}

	opts := &jpegli.EncodingOptions{
		Quality:           quality,
		ChromaSubsampling: jpegSubsampling(p),
		OptimizeCoding:    p.Optimize,
	}
	if p.Progressive {
		opts.ProgressiveLevel = 2
	}

	buf := encodeBuffer(img.Bounds().Dx() * img.Bounds().Dy() / 4)
	if err := jpegli.Encode(buf, img, opts); err != nil {
		return nil, err
	}
	return metadata.InjectJPEG(buf.Bytes(), meta)
}
