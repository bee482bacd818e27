package clientconfig

import (
	"os"
	"path/filepath"
)

const appName = "mivhan"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appName, "config.toml")
}

// DefaultDBPath returns the default path for the local attempt store.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appName, "attempts.db")
}

// DefaultLogPath returns where the client writes its log while the TUI owns
// the terminal.
func DefaultLogPath() string {
	return filepath.Join(XDGDataHome(), appName, "examctl.log")
}
