package config

import (
	"os"
	"path/filepath"
)

const (
	EnvConfigPath  = "HWRELAY_CONFIG"
	ConfigFileName = "hwrelay.yaml"
	ConfigDirName  = "hwrelay"
)

// SearchPaths lists the candidate config files, highest priority first.
// Unset environment variables drop their entry from the list.
func SearchPaths() []string {
	var paths []string
	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths, ConfigFileName)
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the first entry of SearchPaths naming a regular
// file, made absolute when relative, or "" when none exists
func FindConfigPath() string {
	for _, p := range SearchPaths() {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
