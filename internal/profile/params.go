package profile

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Format is a supported output raster format.
type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatWEBP Format = "WEBP"
	FormatAVIF Format = "AVIF"
)

// ParseFormat accepts a format name in any case. "JPG" is an alias of JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JPEG", "JPG":
		return FormatJPEG, nil
	case "WEBP":
		return FormatWEBP, nil
	case "AVIF":
		return FormatAVIF, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// Extension returns the file extension written for the format.
func (f Format) Extension() string {
	switch f {
	case FormatWEBP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	default:
		return ".jpg"
	}
}

// EncodeParams is the format specific parameter bag handed to an encoder.
// It is implemented by JPEGParams, WEBPParams and AVIFParams.
type EncodeParams interface {
	Format() Format
}

// Subsampling is the JPEG chroma subsampling mode.
type Subsampling string

const (
	SubsamplingAuto Subsampling = "auto"
	Subsampling444  Subsampling = "4:4:4"
	Subsampling422  Subsampling = "4:2:2"
	Subsampling420  Subsampling = "4:2:0"
)

// ParseSubsampling understands the canonical names, the numeric codes
// -1, 0, 1, 2 and labels such as "Auto (-1)" or "4:2:0 (2)".
func ParseSubsampling(s string) (Subsampling, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "" || strings.HasPrefix(v, "auto") || v == "-1":
		return SubsamplingAuto, nil
	case strings.HasPrefix(v, "4:4:4") || v == "0":
		return Subsampling444, nil
	case strings.HasPrefix(v, "4:2:2") || v == "1":
		return Subsampling422, nil
	case strings.HasPrefix(v, "4:2:0") || v == "2":
		return Subsampling420, nil
	}
	return "", fmt.Errorf("unknown chroma subsampling %q", s)
}

// UnmarshalJSON accepts both string and numeric encodings.
func (s *Subsampling) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case nil:
		*s = SubsamplingAuto
		return nil
	case string:
		text = v
	case float64:
		text = fmt.Sprintf("%d", int(v))
	default:
		return fmt.Errorf("unexpected subsampling value %v", raw)
	}
	parsed, err := ParseSubsampling(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JPEGParams are the JPEG encoder knobs.
type JPEGParams struct {
	Progressive bool        `json:"progressive"`
	Subsampling Subsampling `json:"subsampling"`
	Optimize    bool        `json:"optimize"`
	Smooth      int         `json:"smooth"`
	KeepRGB     bool        `json:"keep_rgb"`
}

func (JPEGParams) Format() Format { return FormatJPEG }

// DefaultJPEGParams returns the JPEG defaults.
func DefaultJPEGParams() JPEGParams {
	return JPEGParams{Subsampling: SubsamplingAuto}
}

// UnmarshalJSON fills keys missing from data with defaults.
func (p *JPEGParams) UnmarshalJSON(data []byte) error {
	type plain JPEGParams
	v := plain(DefaultJPEGParams())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = JPEGParams(v)
	return nil
}

// WEBPParams are the WEBP encoder knobs.
type WEBPParams struct {
	Lossless     bool `json:"lossless"`
	Method       int  `json:"method"`
	AlphaQuality int  `json:"alpha_quality"`
	Exact        bool `json:"exact"`
}

func (WEBPParams) Format() Format { return FormatWEBP }

// DefaultWEBPParams returns the WEBP defaults.
func DefaultWEBPParams() WEBPParams {
	return WEBPParams{Method: 4, AlphaQuality: 100}
}

// UnmarshalJSON fills keys missing from data with defaults.
func (p *WEBPParams) UnmarshalJSON(data []byte) error {
	type plain WEBPParams
	v := plain(DefaultWEBPParams())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = WEBPParams(v)
	return nil
}

// AVIFParams are the AVIF encoder knobs. QMin/QMax of -1 derive the quantizer
// range from the profile quality.
type AVIFParams struct {
	Subsampling string `json:"subsampling"`
	Speed       int    `json:"speed"`
	Codec       string `json:"codec"`
	Range       string `json:"range"`
	QMin        int    `json:"qmin"`
	QMax        int    `json:"qmax"`
	Autotiling  bool   `json:"autotiling"`
	TileRows    int    `json:"tile_rows"`
	TileCols    int    `json:"tile_cols"`
}

func (AVIFParams) Format() Format { return FormatAVIF }

// DefaultAVIFParams returns the AVIF defaults.
func DefaultAVIFParams() AVIFParams {
	return AVIFParams{
		Subsampling: "4:2:0",
		Speed:       6,
		Codec:       "auto",
		Range:       "full",
		QMin:        -1,
		QMax:        -1,
		Autotiling:  true,
	}
}

// UnmarshalJSON fills keys missing from data with defaults.
func (p *AVIFParams) UnmarshalJSON(data []byte) error {
	type plain AVIFParams
	v := plain(DefaultAVIFParams())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = AVIFParams(v)
	return nil
}
