package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the base directory for waveline state:
// WAVELINE_DATA_DIR if set, otherwise ~/.waveline.
func DefaultDataDir() string {
	if dir := os.Getenv("WAVELINE_DATA_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".waveline")
}

// GetConfigDir returns the user config directory. Prefers
// WAVELINE_CONFIG_DIR, then ~/.waveline, then ~/.config/waveline.
func GetConfigDir() string {
	if dir := os.Getenv("WAVELINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home := homeDir()
	if home != "" {
		dir := filepath.Join(home, ".waveline")
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	return XDGConfigPath()
}

// XDGConfigPath returns the XDG config directory for waveline.
func XDGConfigPath() string {
	return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "waveline")
}

// ProjectsPath returns the session transcript root under dataDir.
func ProjectsPath(dataDir string) string {
	return filepath.Join(dataDir, "projects")
}

// SyncPath returns the sync checkout directory under dataDir.
func SyncPath(dataDir string) string {
	return filepath.Join(dataDir, "sync")
}

// EnsureDir creates dir and its parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("USERPROFILE")
	}
	return os.Getenv("HOME")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(homeDir(), ".config")
}
