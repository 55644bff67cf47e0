package encoder

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

// avifQuantizer maps quality 1..100 onto the 0..63 quantizer scale, where 0
// is lossless.
func avifQuantizer(quality int) int {
	return int(math.Round(float64(100-profile.ClampQuality(quality)) * 63 / 100))
}

// avifQuantizers returns the min/max quantizers. Unset (-1) bounds come from
// quality and the result always satisfies min <= max.
func avifQuantizers(quality int, p profile.AVIFParams) (int, int) {
	q := avifQuantizer(quality)
	qmin, qmax := q, q
	if p.QMin >= 0 {
		qmin = p.QMin
	}
	if p.QMax >= 0 {
		qmax = p.QMax
	}
	if qmin > qmax {
		if p.QMax < 0 {
			qmax = qmin
		} else {
			qmin = qmax
		}
	}
	return qmin, qmax
}

type avifMetaFiles struct {
	exif, xmp, icc string
}

// avifArgs builds the avifenc command line.
func avifArgs(quality int, p profile.AVIFParams, meta avifMetaFiles, input, output string) []string {
	qmin, qmax := avifQuantizers(quality, p)
	args := []string{
		"--min", strconv.Itoa(qmin),
		"--max", strconv.Itoa(qmax),
		"--speed", strconv.Itoa(p.Speed),
		"--yuv", strings.ReplaceAll(p.Subsampling, ":", ""),
		"--range", p.Range,
	}
	if p.Codec != "" && p.Codec != "auto" {
		args = append(args, "--codec", p.Codec)
	}
	if p.Autotiling {
		args = append(args, "--autotiling")
	} else {
		args = append(args,
			"--tilerowslog2", strconv.Itoa(p.TileRows),
			"--tilecolslog2", strconv.Itoa(p.TileCols))
	}
	if meta.exif != "" {
		args = append(args, "--exif", meta.exif)
	}
	if meta.xmp != "" {
		args = append(args, "--xmp", meta.xmp)
	}
	if meta.icc != "" {
		args = append(args, "--icc", meta.icc)
	}
	return append(args, input, output)
}

// encodeAVIF hands a lossless PNG of the pixels to avifenc.
func (e *Encoder) encodeAVIF(img image.Image, dst string, quality int, p profile.AVIFParams, meta metadata.Blocks) error {
	workDir, err := os.MkdirTemp("", "photo-compresser-avif-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "input.png")
	if err := writePNG(input, img); err != nil {
		return fmt.Errorf("write intermediate png: %w", err)
	}

	var files avifMetaFiles
	writeMeta := func(name string, data []byte) (string, error) {
		if len(data) == 0 {
			return "", nil
		}
		path := filepath.Join(workDir, name)
		return path, os.WriteFile(path, data, 0644)
	}
	if files.exif, err = writeMeta("exif.bin", meta.EXIF); err != nil {
		return err
	}
	if files.xmp, err = writeMeta("xmp.xml", meta.XMP); err != nil {
		return err
	}
	if files.icc, err = writeMeta("profile.icc", meta.ICC); err != nil {
		return err
	}

	tmp := dst + ".tmp.avif"
	cmd := exec.Command(e.avifenc, avifArgs(quality, p, files, input, tmp)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("avifenc failed: %v; output: %s", err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
