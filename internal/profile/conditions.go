package profile

import (
	"math"
	"strings"
)

// Operator is a numeric comparison operator.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual:
		return true
	}
	return false
}

// Orientation of an image derived from its dimensions.
type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
	Square    Orientation = "square"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	return o == Landscape || o == Portrait || o == Square
}

// OrientationOf returns the orientation for the given dimensions. Square wins ties.
func OrientationOf(width, height int) Orientation {
	switch {
	case width == height:
		return Square
	case width > height:
		return Landscape
	default:
		return Portrait
	}
}

// Condition names as they appear in evaluation maps and profile files.
const (
	CondSmallestSide         = "smallest_side"
	CondLargestSide          = "largest_side"
	CondPixelCount           = "pixel_count"
	CondAspectRatio          = "aspect_ratio"
	CondOrientation          = "orientation"
	CondInputFormats         = "input_formats"
	CondRequiresTransparency = "requires_transparency"
	CondFileSize             = "file_size"
	CondRequiredEXIF         = "required_exif"
)

// NumericCondition compares a measured value against a threshold.
type NumericCondition struct {
	Op    Operator `json:"op"`
	Value float64  `json:"value"`
}

// Matches applies the operator to actual. A missing value never matches and
// neither does an unknown operator. Equality is exact.
func (c NumericCondition) Matches(actual *float64) bool {
	if actual == nil {
		return false
	}
	v := *actual
	switch c.Op {
	case OpLess:
		return v < c.Value
	case OpLessEqual:
		return v <= c.Value
	case OpGreater:
		return v > c.Value
	case OpGreaterEqual:
		return v >= c.Value
	case OpEqual:
		return v == c.Value
	}
	return false
}

// Properties are the measured facts about one image that conditions are
// evaluated against. Zero Width/Height, empty Format and nil pointers/maps mean
// the value could not be measured.
type Properties struct {
	Width           int
	Height          int
	Format          string
	HasTransparency *bool
	FileSize        *int64
	EXIF            map[string]any
}

func (p Properties) hasDimensions() bool {
	return p.Width > 0 && p.Height > 0
}

func (p Properties) smallestSide() *float64 {
	if !p.hasDimensions() {
		return nil
	}
	v := float64(min(p.Width, p.Height))
	return &v
}

func (p Properties) largestSide() *float64 {
	if !p.hasDimensions() {
		return nil
	}
	v := float64(max(p.Width, p.Height))
	return &v
}

func (p Properties) pixelCount() *float64 {
	if !p.hasDimensions() {
		return nil
	}
	v := float64(p.Width) * float64(p.Height)
	return &v
}

func (p Properties) aspectRatio() *float64 {
	if !p.hasDimensions() {
		return nil
	}
	v := float64(p.Width) / float64(p.Height)
	return &v
}

func (p Properties) fileSize() *float64 {
	if p.FileSize == nil {
		return nil
	}
	v := float64(*p.FileSize)
	return &v
}

// Conditions is the set of optional predicates attached to a profile. A nil
// field is unset and always passes. InputFormats distinguishes nil (unset) from
// an empty list (set, matches nothing). RequiredEXIF is unset when empty.
type Conditions struct {
	SmallestSide         *NumericCondition `json:"smallest_side,omitempty"`
	LargestSide          *NumericCondition `json:"largest_side,omitempty"`
	PixelCount           *NumericCondition `json:"pixel_count,omitempty"`
	AspectRatio          *NumericCondition `json:"aspect_ratio,omitempty"`
	Orientation          *Orientation      `json:"orientation,omitempty"`
	InputFormats         []string          `json:"input_formats"`
	RequiresTransparency *bool             `json:"requires_transparency,omitempty"`
	FileSize             *NumericCondition `json:"file_size,omitempty"`
	RequiredEXIF         map[string]any    `json:"required_exif,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (c Conditions) IsEmpty() bool {
	return c.SmallestSide == nil && c.LargestSide == nil && c.PixelCount == nil &&
		c.AspectRatio == nil && c.Orientation == nil && c.InputFormats == nil &&
		c.RequiresTransparency == nil && c.FileSize == nil && len(c.RequiredEXIF) == 0
}

// Evaluate returns the pass/fail result of every set condition, keyed by
// condition name. Unset conditions are absent from the map.
func (c Conditions) Evaluate(p Properties) map[string]bool {
	results := make(map[string]bool)

	if c.SmallestSide != nil {
		results[CondSmallestSide] = c.SmallestSide.Matches(p.smallestSide())
	}
	if c.LargestSide != nil {
		results[CondLargestSide] = c.LargestSide.Matches(p.largestSide())
	}
	if c.PixelCount != nil {
		results[CondPixelCount] = c.PixelCount.Matches(p.pixelCount())
	}
	if c.AspectRatio != nil {
		results[CondAspectRatio] = c.AspectRatio.Matches(p.aspectRatio())
	}
	if c.Orientation != nil {
		results[CondOrientation] = p.hasDimensions() && OrientationOf(p.Width, p.Height) == *c.Orientation
	}
	if c.InputFormats != nil {
		results[CondInputFormats] = formatAccepted(p.Format, c.InputFormats)
	}
	if c.RequiresTransparency != nil {
		results[CondRequiresTransparency] = p.HasTransparency != nil && *p.HasTransparency == *c.RequiresTransparency
	}
	if c.FileSize != nil {
		results[CondFileSize] = c.FileSize.Matches(p.fileSize())
	}
	if len(c.RequiredEXIF) > 0 {
		results[CondRequiredEXIF] = exifMatches(p.EXIF, c.RequiredEXIF)
	}

	return results
}

// Matches is the logical AND of every set condition.
func (c Conditions) Matches(p Properties) bool {
	return allTrue(c.Evaluate(p))
}

func allTrue(results map[string]bool) bool {
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func formatAccepted(format string, accepted []string) bool {
	if format == "" {
		return false
	}
	for _, f := range accepted {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func exifMatches(actual, required map[string]any) bool {
	if actual == nil {
		return false
	}
	for key, want := range required {
		got, ok := actual[key]
		if !ok || !exifValueEqual(got, want) {
			return false
		}
	}
	return true
}

// exifValueEqual compares two scalar EXIF values. Numbers of any Go type are
// compared as float64 so 1 and 1.0 are equal; other kinds must match exactly.
func exifValueEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf && !math.IsNaN(af)
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
