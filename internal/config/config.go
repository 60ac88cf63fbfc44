// Package config resolves the deskpal data directory and file paths.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/Deskpal/
//	Windows: %AppData%\Deskpal\
//	Linux:   ~/.config/deskpal/
//
// Override with DESKPAL_DATA_DIR environment variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the platform-appropriate data directory.
// Set DESKPAL_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("DESKPAL_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	// macOS/Windows: title case per platform convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "deskpal"), nil
	}
	return filepath.Join(configDir, "Deskpal"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// DocumentPath returns the path of the character store document.
func DocumentPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}

// HistoryDBPath returns the path of the trigger-history database.
func HistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "data", "deskpal.db")
}

// PromptsPath returns the path of the user prompt-template override file.
func PromptsPath(dataDir string) string {
	return filepath.Join(dataDir, "prompts.yaml")
}

// LogPath returns the path of the rotating log file.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "deskpal.log")
}
