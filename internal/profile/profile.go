package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// RawProfileName is the attribution used when an image was encoded with
// caller supplied parameters instead of a registered profile.
const RawProfileName = "Raw"

// DefaultQuality is used when a profile omits quality.
const DefaultQuality = 75

// ErrConfig is the sentinel wrapped by every ConfigError.
var ErrConfig = errors.New("invalid profile configuration")

// ConfigError describes a malformed profile file or profile definition.
type ConfigError struct {
	Profile string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("profile config")
	if e.Profile != "" {
		fmt.Fprintf(&b, ": profile %q", e.Profile)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// Profile is a named set of encode parameters with selection conditions.
// All three parameter bags are stored so a profile file round-trips without
// loss; only the bag for OutputFormat is used when encoding.
type Profile struct {
	Name            string     `json:"name"`
	Quality         int        `json:"quality"`
	MaxLargestSide  *int       `json:"max_largest_side"`
	MaxSmallestSide *int       `json:"max_smallest_side"`
	OutputFormat    Format     `json:"output_format"`
	JPEG            JPEGParams `json:"jpeg_params"`
	WEBP            WEBPParams `json:"webp_params"`
	AVIF            AVIFParams `json:"avif_params"`
	Conditions      Conditions `json:"conditions"`
}

// New returns a profile with default parameters and no conditions.
func New(name string, format Format, quality int) Profile {
	return Profile{
		Name:         name,
		Quality:      quality,
		OutputFormat: format,
		JPEG:         DefaultJPEGParams(),
		WEBP:         DefaultWEBPParams(),
		AVIF:         DefaultAVIFParams(),
	}
}

// Raw is the profile used when nothing in the registry applies.
func Raw() Profile {
	return New(RawProfileName, FormatJPEG, DefaultQuality)
}

// UnmarshalJSON applies defaults for omitted keys and normalizes the format name.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	v := plain(New("", FormatJPEG, DefaultQuality))
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.OutputFormat == "" {
		v.OutputFormat = FormatJPEG
	}
	if f, err := ParseFormat(string(v.OutputFormat)); err == nil {
		v.OutputFormat = f
	}
	*p = Profile(v)
	return nil
}

// EncodeParams returns the parameter bag matching the output format.
func (p Profile) EncodeParams() EncodeParams {
	switch p.OutputFormat {
	case FormatWEBP:
		return p.WEBP
	case FormatAVIF:
		return p.AVIF
	default:
		return p.JPEG
	}
}

// ClampedQuality returns quality limited to 1..100.
func (p Profile) ClampedQuality() int {
	return ClampQuality(p.Quality)
}

// ClampQuality limits q to 1..100.
func ClampQuality(q int) int {
	return min(max(q, 1), 100)
}

// Validate checks a single profile definition.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ConfigError{Field: "name", Reason: "name is required"}
	}
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Profile: p.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if _, err := ParseFormat(string(p.OutputFormat)); err != nil {
		return fail("output_format", "%v", err)
	}
	if p.MaxLargestSide != nil && *p.MaxLargestSide <= 0 {
		return fail("max_largest_side", "must be positive, got %d", *p.MaxLargestSide)
	}
	if p.MaxSmallestSide != nil && *p.MaxSmallestSide <= 0 {
		return fail("max_smallest_side", "must be positive, got %d", *p.MaxSmallestSide)
	}
	if p.JPEG.Smooth < 0 || p.JPEG.Smooth > 100 {
		return fail("jpeg_params.smooth", "must be within 0..100, got %d", p.JPEG.Smooth)
	}
	if _, err := ParseSubsampling(string(p.JPEG.Subsampling)); err != nil {
		return fail("jpeg_params.subsampling", "%v", err)
	}
	if p.WEBP.Method < 0 || p.WEBP.Method > 6 {
		return fail("webp_params.method", "must be within 0..6, got %d", p.WEBP.Method)
	}
	if p.WEBP.AlphaQuality < 0 || p.WEBP.AlphaQuality > 100 {
		return fail("webp_params.alpha_quality", "must be within 0..100, got %d", p.WEBP.AlphaQuality)
	}
	if p.AVIF.Speed < 0 || p.AVIF.Speed > 10 {
		return fail("avif_params.speed", "must be within 0..10, got %d", p.AVIF.Speed)
	}
	if p.AVIF.QMin < -1 || p.AVIF.QMin > 63 || p.AVIF.QMax < -1 || p.AVIF.QMax > 63 {
		return fail("avif_params.qmin", "quantizers must be within 0..63 or -1")
	}
	switch p.AVIF.Subsampling {
	case "4:4:4", "4:2:2", "4:2:0", "4:0:0":
	default:
		return fail("avif_params.subsampling", "unknown yuv format %q", p.AVIF.Subsampling)
	}
	if p.AVIF.Range != "full" && p.AVIF.Range != "limited" {
		return fail("avif_params.range", "must be full or limited, got %q", p.AVIF.Range)
	}

	return p.Conditions.validate(p.Name)
}

func (c Conditions) validate(name string) error {
	numeric := map[string]*NumericCondition{
		CondSmallestSide: c.SmallestSide,
		CondLargestSide:  c.LargestSide,
		CondPixelCount:   c.PixelCount,
		CondAspectRatio:  c.AspectRatio,
		CondFileSize:     c.FileSize,
	}
	for field, cond := range numeric {
		if cond != nil && !cond.Op.Valid() {
			return &ConfigError{
				Profile: name,
				Field:   "conditions." + field,
				Reason:  fmt.Sprintf("unknown operator %q", cond.Op),
			}
		}
	}
	if c.Orientation != nil && !c.Orientation.Valid() {
		return &ConfigError{
			Profile: name,
			Field:   "conditions." + CondOrientation,
			Reason:  fmt.Sprintf("unknown orientation %q", *c.Orientation),
		}
	}
	return nil
}
