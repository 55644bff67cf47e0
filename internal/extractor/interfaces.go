package extractor

import (
	"errors"
	"time"

	"github.com/Ewasince/photo-compresser/internal/profile"
)

// ErrUnreadableImage is returned when a file cannot be decoded as an image.
var ErrUnreadableImage = errors.New("unreadable image")

// Extractor measures the properties profile conditions are evaluated against.
type Extractor interface {
	Extract(filePath string) (ImageProperties, error)
	SupportsFile(filePath string) bool
}

// CachedExtractor extends Extractor with caching capabilities.
type CachedExtractor interface {
	Extractor
	ClearCache()
	GetCacheStats() CacheStats
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64
	Misses       int64
	Size         int
	HitRate      float64
	TotalQueries int64
}

// EXIFSource tells where the EXIF map of an image came from.
type EXIFSource int

const (
	EXIFSourceNone EXIFSource = iota
	EXIFSourceGoExif
	EXIFSourceExiftool
)

// String returns a human-readable description of the EXIF source.
func (s EXIFSource) String() string {
	switch s {
	case EXIFSourceGoExif:
		return "goexif"
	case EXIFSourceExiftool:
		return "exiftool"
	default:
		return "none"
	}
}

// ImageProperties are the measured facts about one image. No pixel data is
// retained.
type ImageProperties struct {
	Path            string         `json:"path"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	Format          string         `json:"format"`
	HasTransparency bool           `json:"has_transparency"`
	FileSize        int64          `json:"file_size"`
	ModTime         time.Time      `json:"mod_time"`
	EXIF            map[string]any `json:"exif,omitempty"`
	EXIFSource      EXIFSource     `json:"-"`
}

// SmallestSide returns min(width, height).
func (p ImageProperties) SmallestSide() int { return min(p.Width, p.Height) }

// LargestSide returns max(width, height).
func (p ImageProperties) LargestSide() int { return max(p.Width, p.Height) }

// PixelCount returns width*height.
func (p ImageProperties) PixelCount() int { return p.Width * p.Height }

// AspectRatio returns width/height, or 0 when height is unknown.
func (p ImageProperties) AspectRatio() float64 {
	if p.Height == 0 {
		return 0
	}
	return float64(p.Width) / float64(p.Height)
}

// Orientation returns landscape, portrait or square.
func (p ImageProperties) Orientation() profile.Orientation {
	return profile.OrientationOf(p.Width, p.Height)
}

// Conditions converts the measurement into the form condition evaluation
// expects. Every measured value is present; EXIF is present even when empty.
func (p ImageProperties) Conditions() profile.Properties {
	transparency := p.HasTransparency
	size := p.FileSize
	exif := p.EXIF
	if exif == nil {
		exif = map[string]any{}
	}
	return profile.Properties{
		Width:           p.Width,
		Height:          p.Height,
		Format:          p.Format,
		HasTransparency: &transparency,
		FileSize:        &size,
		EXIF:            exif,
	}
}
