package cache

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int) func(string) (int, error) {
	return func(key string) (int, error) {
		*calls++
		return strconv.Atoi(key)
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	calls := 0
	load := countingLoader(&calls)

	v, err := c.Get("1", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	_, _ = c.Get("2", load)
	_, _ = c.Get("1", load) // hit, 1 becomes most recent
	_, _ = c.Get("3", load) // evicts 2

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Contains("1"))
	assert.False(t, c.Contains("2"))
	assert.True(t, c.Contains("3"))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, 2, stats.Capacity)
}

func TestZeroCapacityIsUnbounded(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		t.Run(strconv.Itoa(capacity), func(t *testing.T) {
			c := New[string, int](capacity)
			calls := 0
			for i := 0; i < 100; i++ {
				_, err := c.Get(strconv.Itoa(i), countingLoader(&calls))
				require.NoError(t, err)
			}
			assert.Equal(t, 100, c.Len())
			_, _ = c.Get("0", countingLoader(&calls))
			assert.Equal(t, 100, calls)

			c.Purge()
			assert.Zero(t, c.Len())
		})
	}
}

func TestLoadErrorsAreNotCached(t *testing.T) {
	c := New[string, int](4)
	boom := errors.New("boom")

	_, err := c.Get("x", func(string) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Contains("x"))

	v, err := c.Get("x", func(string) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestConcurrentGet(t *testing.T) {
	c := New[int, int](8)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(i%16, func(k int) (int, error) { return k * 2, nil })
			assert.NoError(t, err)
			assert.Equal(t, (i%16)*2, v)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Config
		wantErr bool
	}{
		{"both limits", "max_loaded_images = 10\nmax_loaded_previews = 40\n", Config{MaxLoadedImages: 10, MaxLoadedPreviews: 40}, false},
		{"partial", "max_loaded_previews = 3\n", Config{MaxLoadedPreviews: 3}, false},
		{"negative clamps", "max_loaded_images = -1\n", Config{}, false},
		{"malformed", "max_loaded_images = \"many\"\n", Config{}, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strconv.Itoa(i)+".toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, err := LoadConfig(path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfigMissingAndSave(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, SaveConfig(Config{MaxLoadedImages: 5, MaxLoadedPreviews: 6}, path))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Config{MaxLoadedImages: 5, MaxLoadedPreviews: 6}, cfg)
}
