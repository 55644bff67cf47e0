package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue() Conditions {
	return Conditions{SmallestSide: &NumericCondition{OpGreater, 0}}
}

func TestSelectLastMatchWins(t *testing.T) {
	reg := Registry{
		New("Default", FormatJPEG, 75),
		{Name: "A", OutputFormat: FormatJPEG, Conditions: alwaysTrue()},
		{Name: "B", OutputFormat: FormatWEBP, Conditions: alwaysTrue()},
	}

	got, ok := Select(fullProps(), reg)
	require.True(t, ok)
	assert.Equal(t, "B", got.Name)
}

func TestSelectIdenticalConditionsLaterDeclaredWins(t *testing.T) {
	cond := Conditions{Orientation: ptr(Landscape)}
	reg := Registry{
		New("Default", FormatJPEG, 75),
		{Name: "First", Conditions: cond},
		{Name: "Second", Conditions: cond},
	}

	sel := SelectWithResults(fullProps(), reg)
	require.True(t, sel.Matched())
	assert.Equal(t, "Second", sel.Profile.Name)

	reg[1], reg[2] = reg[2], reg[1]
	sel = SelectWithResults(fullProps(), reg)
	assert.Equal(t, "First", sel.Profile.Name)
}

func TestSelectSkipsNonMatchingOverrides(t *testing.T) {
	reg := Registry{
		New("Default", FormatJPEG, 75),
		{Name: "Small", Conditions: Conditions{SmallestSide: &NumericCondition{OpLessEqual, 600}}},
		{Name: "PNGOnly", Conditions: Conditions{InputFormats: []string{"PNG"}}},
	}

	sel := SelectWithResults(fullProps(), reg)
	require.True(t, sel.Matched())
	assert.Equal(t, "Default", sel.Profile.Name)
	assert.Equal(t, map[string]map[string]bool{
		"Default": {},
		"Small":   {CondSmallestSide: false},
		"PNGOnly": {CondInputFormats: false},
	}, sel.Results)
	assert.Empty(t, sel.ConditionResults())
}

func TestSelectNoMatch(t *testing.T) {
	reg := Registry{
		{Name: "OnlyPNG", Conditions: Conditions{InputFormats: []string{"PNG"}}},
	}

	p, ok := Select(fullProps(), reg)
	assert.False(t, ok)
	assert.Nil(t, p)

	sel := SelectWithResults(fullProps(), reg)
	assert.False(t, sel.Matched())
	assert.Len(t, sel.Results, 1)

	_, ok = Select(fullProps(), nil)
	assert.False(t, ok)
}

func TestEncodeParamsVariant(t *testing.T) {
	p := New("x", FormatWEBP, 80)
	params, ok := p.EncodeParams().(WEBPParams)
	require.True(t, ok)
	assert.Equal(t, 4, params.Method)

	p.OutputFormat = FormatAVIF
	assert.Equal(t, FormatAVIF, p.EncodeParams().Format())

	p.OutputFormat = FormatJPEG
	assert.Equal(t, FormatJPEG, p.EncodeParams().Format())
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, 1, ClampQuality(-5))
	assert.Equal(t, 1, ClampQuality(0))
	assert.Equal(t, 50, ClampQuality(50))
	assert.Equal(t, 100, ClampQuality(180))
}

func sampleRegistry() Registry {
	small := New("Small", FormatWEBP, 90)
	small.Conditions.SmallestSide = &NumericCondition{OpLessEqual, 600}
	small.WEBP.Lossless = true

	big := New("Big", FormatAVIF, 60)
	big.MaxLargestSide = ptr(1920)
	big.MaxSmallestSide = ptr(1080)
	big.AVIF.Speed = 4
	big.Conditions = Conditions{
		PixelCount:           &NumericCondition{OpGreater, 4_000_000},
		Orientation:          ptr(Portrait),
		InputFormats:         []string{},
		RequiresTransparency: ptr(false),
		FileSize:             &NumericCondition{OpGreaterEqual, 1024},
		RequiredEXIF:         map[string]any{"Make": "Canon", "ISOSpeedRatings": 100.0},
	}

	def := New("Default", FormatJPEG, 75)
	def.JPEG.Progressive = true
	def.JPEG.Subsampling = Subsampling420

	return Registry{def, small, big}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"profiles.json", "profiles.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			reg := sampleRegistry()

			require.NoError(t, Save(reg, path))
			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, reg, loaded)
		})
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, reg)
}

func TestLoadAppliesDefaultsAndLegacyValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	doc := `[
  {"name": "Legacy", "output_format": "jpg", "jpeg_params": {"subsampling": 2, "smooth": 10}},
  {"name": "Labels", "quality": 60, "jpeg_params": {"subsampling": "Auto (-1)"}, "webp_params": {"lossless": true}}
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	reg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reg, 2)

	assert.Equal(t, FormatJPEG, reg[0].OutputFormat)
	assert.Equal(t, DefaultQuality, reg[0].Quality)
	assert.Equal(t, Subsampling420, reg[0].JPEG.Subsampling)
	assert.Equal(t, 10, reg[0].JPEG.Smooth)
	assert.Equal(t, DefaultAVIFParams(), reg[0].AVIF)
	assert.Nil(t, reg[0].MaxLargestSide)
	assert.True(t, reg[0].Conditions.IsEmpty())

	assert.Equal(t, SubsamplingAuto, reg[1].JPEG.Subsampling)
	assert.True(t, reg[1].WEBP.Lossless)
	assert.Equal(t, 100, reg[1].WEBP.AlphaQuality)
}

func TestLoadRejectsMalformedProfiles(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{broken`},
		{"unknown operator", `[{"name": "x", "conditions": {"smallest_side": {"op": "!=", "value": 3}}}]`},
		{"unknown format", `[{"name": "x", "output_format": "PNG"}]`},
		{"duplicate names", `[{"name": "x"}, {"name": "x"}]`},
		{"missing name", `[{"quality": 10}]`},
		{"bad orientation", `[{"name": "x", "conditions": {"orientation": "diagonal"}}]`},
		{"webp method", `[{"name": "x", "webp_params": {"method": 9}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0644))

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestParseSubsampling(t *testing.T) {
	tests := map[string]Subsampling{
		"":          SubsamplingAuto,
		"Auto (-1)": SubsamplingAuto,
		"-1":        SubsamplingAuto,
		"0":         Subsampling444,
		"4:4:4 (0)": Subsampling444,
		"1":         Subsampling422,
		"4:2:0":     Subsampling420,
	}
	for in, want := range tests {
		got, err := ParseSubsampling(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSubsampling("4:1:1")
	assert.Error(t, err)
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	require.NoError(t, reg.Validate())

	def, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "Default", def.Name)
	assert.Equal(t, FormatJPEG, def.OutputFormat)
	require.NotNil(t, def.MaxSmallestSide)
	assert.Equal(t, 1080, *def.MaxSmallestSide)
	assert.True(t, def.Conditions.IsEmpty())
}

func TestRegistryFind(t *testing.T) {
	reg := Registry{New("Default", FormatJPEG, 80), New("Small", FormatWEBP, 70)}

	p, ok := reg.Find("Small")
	require.True(t, ok)
	assert.Equal(t, FormatWEBP, p.OutputFormat)

	_, ok = reg.Find("small")
	assert.False(t, ok, "names are case-sensitive")
	_, ok = Registry{}.Find("Default")
	assert.False(t, ok)
}
