package profile

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveRegistryReloadsOnChange(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, Save(Registry{New("Default", FormatJPEG, 75)}, path))

	live, err := NewLiveRegistry(path, logger)
	require.NoError(t, err)
	require.NoError(t, live.Watch())
	defer live.Close()

	assert.Equal(t, []string{"Default"}, live.Current().Names())

	require.NoError(t, Save(Registry{New("Default", FormatJPEG, 75), New("Web", FormatWEBP, 80)}, path))
	assert.Eventually(t, func() bool {
		return len(live.Current()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// A broken edit keeps the last good registry.
	reloads := live.Reloads()
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0644))
	time.Sleep(4 * reloadDebounce)
	assert.Equal(t, []string{"Default", "Web"}, live.Current().Names())
	assert.Equal(t, reloads, live.Reloads())
}

func TestNewLiveRegistryRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"A","output_format":"GIF"}]`), 0644))

	_, err := NewLiveRegistry(path, logrus.New())
	assert.ErrorIs(t, err, ErrConfig)
}
