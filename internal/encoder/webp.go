package encoder

import (
	"image"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

// The binding exposes no method (speed) knob, so WEBPParams.Method is only
// validated and kept in the profile.
func encodeWEBP(img image.Image, quality int, p profile.WEBPParams, meta metadata.Blocks) ([]byte, error) {
	if !p.Lossless && p.AlphaQuality < 100 && HasAlpha(img) {
		img = quantizeAlpha(img, p.AlphaQuality)
	}

	buf := encodeBuffer(img.Bounds().Dx() * img.Bounds().Dy() / 4)
	err := webp.Encode(buf, img, &webp.Options{
		Lossless: p.Lossless,
		Quality:  float32(quality),
		Exact:    p.Exact,
	})
	if err != nil {
		return nil, err
	}
	if meta.Empty() {
		return buf.Bytes(), nil
	}
	return metadata.InjectWEBP(buf.Bytes(), meta)
}

// quantizeAlpha reduces the alpha plane to fewer levels, the lossy
// counterpart of the alpha quality setting.
func quantizeAlpha(img image.Image, alphaQuality int) *image.NRGBA {
	out := imaging.Clone(img)
	levels := 2 + max(alphaQuality, 0)*254/100
	step := 255.0 / float64(levels-1)

	for i := 3; i < len(out.Pix); i += 4 {
		a := out.Pix[i]
		if a == 0 || a == 255 {
			continue
		}
		q := math.Round(math.Round(float64(a)/step) * step)
		out.Pix[i] = uint8(min(max(q, 0), 255))
	}
	return out
}
