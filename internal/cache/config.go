package cache

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the default cache configuration file.
const ConfigFileName = "cache_config.toml"

// Config holds viewer cache capacities. Zero disables the limit.
type Config struct {
	MaxLoadedImages   int `toml:"max_loaded_images"`
	MaxLoadedPreviews int `toml:"max_loaded_previews"`
}

// LoadConfig reads a cache configuration file. A missing file yields the
// zero Config. On a malformed file the zero Config is returned together
// with the error so callers can log and carry on.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = ConfigFileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("failed to read cache config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse cache config %s: %w", path, err)
	}
	cfg.MaxLoadedImages = max(cfg.MaxLoadedImages, 0)
	cfg.MaxLoadedPreviews = max(cfg.MaxLoadedPreviews, 0)
	return cfg, nil
}

// SaveConfig writes cfg as TOML.
func SaveConfig(cfg Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode cache config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache config: %w", err)
	}
	return nil
}
