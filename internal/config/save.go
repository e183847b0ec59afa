package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crucible-ai/crucible/internal/types"
)

// Save writes a configuration to path as YAML, creating parent directories
// as needed. Existing files are not overwritten unless force is set.
func Save(cfg *Config, path string, force bool) error {
	if cfg == nil {
		return types.NewError(types.CONFIG_VALIDATION_FAILED, "configuration is nil")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return types.NewErrorf(types.CONFIG_LOAD_FAILED,
				"config file already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return types.WrapError(types.CONFIG_LOAD_FAILED, "failed to marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return types.WrapError(types.CONFIG_LOAD_FAILED, "failed to create config directory", err)
	}
	header := "# Crucible event bus configuration.\n# Values not set here fall back to built-in defaults.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return types.WrapError(types.CONFIG_LOAD_FAILED, "failed to write config file", err)
	}
	return nil
}
