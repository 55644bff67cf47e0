package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ewasince/photo-compresser/internal/config"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

func TestFormatResults(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]bool
		want    string
	}{
		{"no conditions", nil, "(no conditions)"},
		{"sorted", map[string]bool{"smallest_side": true, "file_size": false}, "file_size=no smallest_side=ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatResults(tt.results))
		})
	}
}

func TestLoadProfilesFallsBackToDefault(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.DefaultConfig()
	cfg.ProfilesFile = filepath.Join(t.TempDir(), "absent.json")
	reg, err := loadProfiles(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"Default"}, reg.Names())

	small := profile.New("Small", profile.FormatWEBP, 80)
	require.NoError(t, profile.Save(profile.Registry{small}, cfg.ProfilesFile))
	reg, err = loadProfiles(cfg, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"Small"}, reg.Names())
}

func TestNewArchiverDisabled(t *testing.T) {
	archiver, err := newArchiver(config.DefaultConfig(), logrus.New())
	require.NoError(t, err)
	assert.Nil(t, archiver)
}

func TestProgressDisabledIsNoop(t *testing.T) {
	p := newProgress(true)
	p.update(1, 2)
	p.finish()
	assert.Nil(t, p.bar)
}

func TestShowProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	small := profile.New("Small", profile.FormatWEBP, 80)
	require.NoError(t, profile.Save(profile.Registry{profile.New("Default", profile.FormatJPEG, 75), small}, path))

	tests := []struct {
		name    string
		profile string
		wantErr string
	}{
		{name: "all profiles"},
		{name: "by name", profile: "Small"},
		{name: "unknown name", profile: "Huge", wantErr: `no profile named "Huge"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := showProfiles(path, tt.profile)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Contains(t, err.Error(), "Default, Small")
				return
			}
			assert.NoError(t, err)
		})
	}

	// An absent file is an empty registry.
	absent := filepath.Join(t.TempDir(), "absent.json")
	assert.NoError(t, showProfiles(absent, ""))
	assert.Error(t, showProfiles(absent, "Small"))
}
