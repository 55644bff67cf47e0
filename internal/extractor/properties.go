package extractor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	_ "github.com/chai2010/webp"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/Ewasince/photo-compresser/internal/metadata"
)

// headerSize bounds how much of a file Extract reads up front.
const headerSize = 256 << 10

// SupportedExtensions are the image extensions the extractor can measure.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp", ".gif"}

// Options configures a PropertyExtractor.
type Options struct {
	// UseExiftool enables the exiftool fallback when goexif finds nothing.
	UseExiftool bool
}

// PropertyExtractor measures image properties from headers and EXIF.
type PropertyExtractor struct {
	logger   *logrus.Logger
	exiftool *exiftool.Exiftool
	etMutex  sync.Mutex
	cache    *sync.Map
	stats    CacheStats
	mutex    sync.RWMutex
}

// NewPropertyExtractor returns a new PropertyExtractor. A missing exiftool
// binary only disables the fallback.
func NewPropertyExtractor(logger *logrus.Logger, opts Options) *PropertyExtractor {
	e := &PropertyExtractor{
		logger: logger,
		cache:  &sync.Map{},
	}

	if opts.UseExiftool {
		et, err := exiftool.NewExiftool()
		if err != nil {
			logger.WithError(err).Warn("exiftool not available, EXIF fallback disabled")
		} else {
			e.exiftool = et
		}
	}
	return e
}

// Close stops the exiftool process if one was started.
func (e *PropertyExtractor) Close() error {
	if e.exiftool != nil {
		return e.exiftool.Close()
	}
	return nil
}

// SupportsFile reports whether the file has a supported image extension.
func (e *PropertyExtractor) SupportsFile(filePath string) bool {
	return IsSupportedExtension(filepath.Ext(filePath))
}

// IsSupportedExtension reports whether ext (with dot, any case) is an image extension.
func IsSupportedExtension(ext string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(ext))
}

// Extract measures the image at filePath. Decode failures wrap
// ErrUnreadableImage.
func (e *PropertyExtractor) Extract(filePath string) (ImageProperties, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return ImageProperties{}, fmt.Errorf("failed to stat file: %w", err)
	}

	key := e.getCacheKey(filePath, fileInfo)
	if value, ok := e.cache.Load(key); ok {
		e.incrementCacheHits()
		return value.(ImageProperties), nil
	}
	e.incrementCacheMisses()

	data, err := readHeader(filePath)
	if err != nil {
		return ImageProperties{}, fmt.Errorf("failed to read file: %w", err)
	}
	complete := int64(len(data)) >= fileInfo.Size()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageProperties{}, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, filePath, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageProperties{}, fmt.Errorf("%w: %s: empty image", ErrUnreadableImage, filePath)
	}

	props := ImageProperties{
		Path:            filePath,
		Width:           cfg.Width,
		Height:          cfg.Height,
		Format:          strings.ToUpper(format),
		HasTransparency: hasTransparency(format, cfg.ColorModel, data),
		FileSize:        fileInfo.Size(),
		ModTime:         fileInfo.ModTime(),
	}

	props.EXIF, props.EXIFSource = e.readEXIF(filePath, format, data, complete)

	e.cache.Store(key, props)
	e.logger.WithFields(logrus.Fields{
		"file":   filePath,
		"width":  props.Width,
		"height": props.Height,
		"format": props.Format,
		"exif":   len(props.EXIF),
	}).Debug("Extracted image properties")

	return props, nil
}

// readHeader returns at most headerSize leading bytes of the file. Image
// configs, transparency flags and JPEG APP segments all live there.
func readHeader(filePath string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, headerSize))
}

// readEXIF looks for EXIF in the header first. JPEG keeps it in front of the
// scan data; PNG, WEBP and TIFF may store it anywhere, so a truncated header
// falls back to the whole file.
func (e *PropertyExtractor) readEXIF(filePath, format string, header []byte, complete bool) (map[string]any, EXIFSource) {
	data := header
	if !complete && format != "jpeg" {
		full, err := os.ReadFile(filePath)
		if err != nil {
			e.logger.Debugf("Failed to read %s for EXIF: %v", filePath, err)
		} else {
			data = full
		}
	}

	var block []byte
	if format == "tiff" {
		block = data
	} else if blocks, err := metadata.Read(data); err == nil {
		block = blocks.EXIF
	} else if blocks, err = metadata.ReadFile(filePath); err == nil {
		// A JPEG APP segment ran past the header.
		block = blocks.EXIF
	} else {
		e.logger.Debugf("Failed to read metadata blocks from %s: %v", filePath, err)
	}

	if len(block) > 0 {
		fields, err := decodeEXIF(block)
		if err == nil && len(fields) > 0 {
			return fields, EXIFSourceGoExif
		}
		if err != nil {
			e.logger.Debugf("goexif failed for %s: %v", filePath, err)
		}
	}

	if e.exiftool != nil {
		e.etMutex.Lock()
		fields, err := extractWithExiftool(e.exiftool, filePath)
		e.etMutex.Unlock()
		if err != nil {
			e.logger.Debugf("exiftool failed for %s: %v", filePath, err)
		} else if len(fields) > 0 {
			return fields, EXIFSourceExiftool
		}
	}

	return map[string]any{}, EXIFSourceNone
}

// ClearCache removes all entries from the internal cache and resets
// statistics. It is safe to call while Extract runs.
func (e *PropertyExtractor) ClearCache() {
	e.cache.Clear()
	e.mutex.Lock()
	e.stats = CacheStats{}
	e.mutex.Unlock()
}

// GetCacheStats returns cache statistics for this extractor.
func (e *PropertyExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	e.cache.Range(func(_, _ any) bool {
		stats.Size++
		return true
	})
	return stats
}

func (e *PropertyExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (e *PropertyExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

func (e *PropertyExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

// hasTransparency reports whether the image carries an alpha channel or a
// transparent palette entry. Header flags are used where the decoded config
// colour model does not tell.
func hasTransparency(format string, model color.Model, data []byte) bool {
	switch format {
	case "png":
		return pngHasAlpha(data)
	case "webp":
		return webpHasAlpha(data)
	case "gif":
		return gifHasTransparency(data)
	}
	return modelHasAlpha(model)
}

func modelHasAlpha(model color.Model) bool {
	switch m := model.(type) {
	case color.Palette:
		return paletteHasAlpha(m)
	}
	switch model {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model, color.NYCbCrAModel:
		return true
	}
	return false
}

func paletteHasAlpha(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}

// pngHasAlpha checks the IHDR colour type and looks for a tRNS chunk.
func pngHasAlpha(data []byte) bool {
	if len(data) < 33 {
		return false
	}
	colorType := data[25]
	if colorType == 4 || colorType == 6 {
		return true
	}
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		switch string(data[pos+4 : pos+8]) {
		case "tRNS":
			return true
		case "IDAT", "IEND":
			return false
		}
		pos += 12 + length
	}
	return false
}

// webpHasAlpha reads the VP8X alpha flag or the VP8L alpha hint.
func webpHasAlpha(data []byte) bool {
	if len(data) < 30 {
		return false
	}
	switch string(data[12:16]) {
	case "VP8X":
		return data[20]&0x10 != 0
	case "VP8L":
		if data[20] != 0x2f {
			return false
		}
		bits := binary.LittleEndian.Uint32(data[21:25])
		return bits&(1<<28) != 0
	}
	return false
}

// gifHasTransparency walks the GIF blocks in data and reports whether any
// graphic control extension sets the transparent colour flag.
func gifHasTransparency(data []byte) bool {
	const screenDescriptorEnd = 13
	if len(data) < screenDescriptorEnd || !bytes.HasPrefix(data, []byte("GIF")) {
		return false
	}
	pos := screenDescriptorEnd
	if flags := data[10]; flags&0x80 != 0 {
		pos += 3 << ((flags & 0x07) + 1)
	}

	for pos < len(data) {
		switch data[pos] {
		case 0x21: // extension
			if pos+1 >= len(data) {
				return false
			}
			if data[pos+1] == 0xF9 {
				if pos+4 >= len(data) {
					return false
				}
				if data[pos+3]&0x01 != 0 {
					return true
				}
			}
			pos = skipSubBlocks(data, pos+2)
		case 0x2C: // image descriptor
			if pos+10 > len(data) {
				return false
			}
			next := pos + 10
			if flags := data[pos+9]; flags&0x80 != 0 {
				next += 3 << ((flags & 0x07) + 1)
			}
			// LZW minimum code size, then the image data sub-blocks.
			pos = skipSubBlocks(data, next+1)
		default: // trailer or garbage
			return false
		}
	}
	return false
}

// skipSubBlocks returns the offset after the block terminator starting the
// scan at pos, or len(data) when data ends first.
func skipSubBlocks(data []byte, pos int) int {
	for pos < len(data) {
		size := int(data[pos])
		if size == 0 {
			return pos + 1
		}
		pos += size + 1
	}
	return len(data)
}
