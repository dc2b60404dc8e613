package internal

import (
	"fmt"
	"runtime"

	"github.com/sipeed/picohub/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string

	configOverride string
)

// SetConfigPath overrides the config file location for this process.
func SetConfigPath(path string) {
	configOverride = path
}

func GetConfigPath() string {
	if configOverride != "" {
		return configOverride
	}
	return config.ResolveConfigPath()
}

// LoadConfig reads the config file and environment. It does not validate.
func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}
