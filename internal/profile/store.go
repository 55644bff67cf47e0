package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Load reads a registry from path. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. A missing file yields an empty registry.
// Any parse or validation problem is returned as a *ConfigError.
func Load(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Registry{}, nil
		}
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}
	return Decode(data)
}

// Decode parses a JSON profile document and validates it.
func Decode(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parse profiles: %v", err)}
	}
	if reg == nil {
		reg = Registry{}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Encode renders the registry as indented JSON.
func Encode(reg Registry) ([]byte, error) {
	if reg == nil {
		reg = Registry{}
	}
	return json.MarshalIndent(reg, "", "  ")
}

// Save writes the registry to path, creating parent directories. The format
// follows the file extension like Load.
func Save(reg Registry, path string) error {
	data, err := Encode(reg)
	if err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	if isYAML(path) {
		if data, err = jsonToYAML(data); err != nil {
			return fmt.Errorf("encode profiles: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create profiles dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write profiles: %w", err)
	}
	return os.Rename(tmp, path)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// YAML documents go through a generic tree so the JSON field names stay the
// single source of truth for both encodings.
func yamlToJSON(data []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(tree)
}

func jsonToYAML(data []byte) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return yaml.Marshal(tree)
}
