package paths

import (
	"os"
	"path/filepath"
)

// DefaultRegistryFile is the registry location relative to the repository root.
const DefaultRegistryFile = "registry/apps.yaml"

// ConfigFileName is the base name (without extension) viper searches for.
const ConfigFileName = ".ucli-registry"

func DefaultConfigDir() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, "ucli")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ucli")
}

func DefaultStateDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, "ucli")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "ucli")
}

func DefaultHistoryPath() string { return filepath.Join(DefaultStateDir(), "registry-history.db") }
