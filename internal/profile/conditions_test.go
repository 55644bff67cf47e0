package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

// Runtime values so the sum is computed in float64, not as an exact constant.
var tenth, fifth = 0.1, 0.2

func fullProps() Properties {
	return Properties{
		Width:           2000,
		Height:          1000,
		Format:          "JPEG",
		HasTransparency: ptr(false),
		FileSize:        ptr(int64(512 * 1024)),
		EXIF:            map[string]any{"Make": "Canon", "ISOSpeedRatings": int64(200)},
	}
}

func TestNumericConditionMatches(t *testing.T) {
	tests := []struct {
		name   string
		cond   NumericCondition
		actual *float64
		want   bool
	}{
		{"less true", NumericCondition{OpLess, 10}, ptr(9.0), true},
		{"less boundary", NumericCondition{OpLess, 10}, ptr(10.0), false},
		{"less equal boundary", NumericCondition{OpLessEqual, 10}, ptr(10.0), true},
		{"greater", NumericCondition{OpGreater, 10}, ptr(11.0), true},
		{"greater boundary", NumericCondition{OpGreater, 10}, ptr(10.0), false},
		{"greater equal", NumericCondition{OpGreaterEqual, 10}, ptr(10.0), true},
		{"equal exact", NumericCondition{OpEqual, 1.5}, ptr(1.5), true},
		{"equal no epsilon", NumericCondition{OpEqual, 0.3}, ptr(tenth + fifth), false},
		{"missing actual", NumericCondition{OpLess, 10}, nil, false},
		{"unknown operator", NumericCondition{"!=", 10}, ptr(3.0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Matches(tt.actual))
		})
	}
}

func TestOrientationOf(t *testing.T) {
	assert.Equal(t, Landscape, OrientationOf(20, 10))
	assert.Equal(t, Portrait, OrientationOf(10, 20))
	assert.Equal(t, Square, OrientationOf(10, 10))
}

func TestEmptyConditionsMatchEverything(t *testing.T) {
	var c Conditions
	assert.True(t, c.IsEmpty())

	for _, p := range []Properties{
		{},
		{Width: 1, Height: 1},
		fullProps(),
		{Width: 10, Height: 3000, Format: "PNG", HasTransparency: ptr(true)},
	} {
		assert.True(t, c.Matches(p))
		assert.Empty(t, c.Evaluate(p))
	}
}

func TestEvaluateReportsOnlySetConditions(t *testing.T) {
	c := Conditions{
		SmallestSide: &NumericCondition{OpLessEqual, 1000},
		Orientation:  ptr(Landscape),
	}

	results := c.Evaluate(fullProps())
	assert.Equal(t, map[string]bool{
		CondSmallestSide: true,
		CondOrientation:  true,
	}, results)
	assert.True(t, c.Matches(fullProps()))
}

func TestEvaluateDerivedFacets(t *testing.T) {
	p := fullProps()

	tests := []struct {
		name string
		cond Conditions
		key  string
		want bool
	}{
		{"largest side", Conditions{LargestSide: &NumericCondition{OpEqual, 2000}}, CondLargestSide, true},
		{"pixel count", Conditions{PixelCount: &NumericCondition{OpGreaterEqual, 2_000_000}}, CondPixelCount, true},
		{"aspect ratio", Conditions{AspectRatio: &NumericCondition{OpEqual, 2}}, CondAspectRatio, true},
		{"portrait fails", Conditions{Orientation: ptr(Portrait)}, CondOrientation, false},
		{"file size", Conditions{FileSize: &NumericCondition{OpLess, 1 << 20}}, CondFileSize, true},
		{"format case insensitive", Conditions{InputFormats: []string{"png", "jpeg"}}, CondInputFormats, true},
		{"format not listed", Conditions{InputFormats: []string{"png"}}, CondInputFormats, false},
		{"empty format list matches nothing", Conditions{InputFormats: []string{}}, CondInputFormats, false},
		{"transparency forbidden", Conditions{RequiresTransparency: ptr(false)}, CondRequiresTransparency, true},
		{"transparency required", Conditions{RequiresTransparency: ptr(true)}, CondRequiresTransparency, false},
		{"exif all keys", Conditions{RequiredEXIF: map[string]any{"Make": "Canon", "ISOSpeedRatings": 200.0}}, CondRequiredEXIF, true},
		{"exif wrong value", Conditions{RequiredEXIF: map[string]any{"Make": "Nikon"}}, CondRequiredEXIF, false},
		{"exif missing key", Conditions{RequiredEXIF: map[string]any{"Model": "X"}}, CondRequiredEXIF, false},
		{"exif string vs number", Conditions{RequiredEXIF: map[string]any{"ISOSpeedRatings": "200"}}, CondRequiredEXIF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.cond.Evaluate(p)
			assert.Len(t, results, 1)
			assert.Equal(t, tt.want, results[tt.key])
			assert.Equal(t, tt.want, tt.cond.Matches(p))
		})
	}
}

func TestMissingValuesFailClosed(t *testing.T) {
	p := Properties{Width: 100, Height: 100}

	c := Conditions{
		FileSize:             &NumericCondition{OpGreater, 0},
		RequiresTransparency: ptr(false),
		InputFormats:         []string{"PNG"},
		RequiredEXIF:         map[string]any{"Make": "Canon"},
	}
	results := c.Evaluate(p)

	assert.Equal(t, map[string]bool{
		CondFileSize:             false,
		CondRequiresTransparency: false,
		CondInputFormats:         false,
		CondRequiredEXIF:         false,
	}, results)
	assert.False(t, c.Matches(p))
}

func TestMissingDimensionsFailClosed(t *testing.T) {
	c := Conditions{
		SmallestSide: &NumericCondition{OpGreater, 0},
		Orientation:  ptr(Square),
		AspectRatio:  &NumericCondition{OpGreater, 0},
	}
	assert.False(t, c.Matches(Properties{Width: 10}))
}

func TestEmptyRequiredEXIFIsUnset(t *testing.T) {
	c := Conditions{RequiredEXIF: map[string]any{}}
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Matches(Properties{}))
}
