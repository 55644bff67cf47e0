package compressor

import (
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/Ewasince/photo-compresser/internal/encoder"
	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/fsutil"
	"github.com/Ewasince/photo-compresser/internal/logger"
	"github.com/Ewasince/photo-compresser/internal/metadata"
	"github.com/Ewasince/photo-compresser/internal/resize"
)

// ImageProcessor decodes, resizes and re-encodes a single image.
type ImageProcessor struct {
	logger  *logrus.Logger
	encoder *encoder.Encoder
}

// NewImageProcessor creates an ImageProcessor.
func NewImageProcessor(logger *logrus.Logger, enc *encoder.Encoder) *ImageProcessor {
	return &ImageProcessor{logger: logger, encoder: enc}
}

// Process compresses task.Source into task.Destination. The output carries
// the source's metadata blocks and timestamps.
func (p *ImageProcessor) Process(_ context.Context, task Task) Result {
	res := Result{
		Source:      task.Source,
		Destination: task.Destination,
		ProfileName: task.ProfileName,
		Conditions:  task.Conditions,
		StartedAt:   time.Now(),
	}
	fail := func(operation string, err error) Result {
		res.Error = err
		res.FinishedAt = time.Now()
		logger.WithFileOperation(p.logger, task.Source, operation).WithError(err).Warn("Compression failed")
		return res
	}

	img, err := imaging.Open(task.Source)
	if err != nil {
		return fail("decode", fmt.Errorf("%w: %s: %v", extractor.ErrUnreadableImage, task.Source, err))
	}

	b := img.Bounds()
	width, height := resize.Plan(b.Dx(), b.Dy(), task.Profile.MaxLargestSide, task.Profile.MaxSmallestSide)
	if width != b.Dx() || height != b.Dy() {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	blocks, err := metadata.ReadFile(task.Source)
	if err != nil {
		logger.WithFileOperation(p.logger, task.Source, "metadata").Debugf("No metadata carried over: %v", err)
		blocks = metadata.Blocks{}
	}

	err = p.encoder.Encode(encoder.Request{
		Image:       img,
		Destination: task.Destination,
		Quality:     task.Profile.Quality,
		Params:      task.Profile.EncodeParams(),
		Metadata:    blocks,
	})
	if err != nil {
		return fail("encode", err)
	}

	if err := fsutil.CopyTimes(task.Source, task.Destination); err != nil {
		logger.WithFileOperation(p.logger, task.Destination, "copy_times").Warnf("Failed to copy timestamps: %v", err)
	}

	res.InputBytes = task.Properties.FileSize
	if res.InputBytes == 0 {
		res.InputBytes = fsutil.FileSize(task.Source)
	}
	res.OutputBytes = fsutil.FileSize(task.Destination)
	res.Success = true
	res.FinishedAt = time.Now()

	logger.WithFileOperation(p.logger, task.Source, "compress").WithFields(logrus.Fields{
		"output":  task.Destination,
		"profile": task.ProfileName,
		"width":   width,
		"height":  height,
	}).Debug("Image compressed")
	return res
}
