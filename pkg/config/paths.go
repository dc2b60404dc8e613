package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvPicoHubConfig = "PICOHUB_CONFIG"
	EnvPicoHubHome   = "PICOHUB_HOME"
)

// ResolveConfigPath picks the config file: $PICOHUB_CONFIG, else
// $PICOHUB_HOME/config.json, else ~/.picohub/config.json.
func ResolveConfigPath() string {
	if p := expandHome(strings.TrimSpace(os.Getenv(EnvPicoHubConfig))); p != "" {
		return p
	}
	home := expandHome(strings.TrimSpace(os.Getenv(EnvPicoHubHome)))
	if home == "" {
		home = defaultHome()
	}
	return filepath.Join(home, "config.json")
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".picohub"
	}
	return filepath.Join(home, ".picohub")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
