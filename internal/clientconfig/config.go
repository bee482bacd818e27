// Package clientconfig reads and writes the learner client's TOML config.
package clientconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultServerURL is used when neither the file nor a flag names a server.
const DefaultServerURL = "http://localhost:8080"

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server ServerConfig `toml:"server"`
	Keys   KeysConfig   `toml:"keys"`
}

// ServerConfig holds the exam server address and the stored login.
type ServerConfig struct {
	URL   string `toml:"url"`
	Email string `toml:"email,omitempty"`
	Token string `toml:"token,omitempty"`
}

// KeysConfig holds the rebindable keys.
type KeysConfig struct {
	Flag string `toml:"flag,omitempty"`
}

// reservedKeys are bound by the exam screen and cannot be rebound.
const reservedKeys = "1234gqr"

func (k KeysConfig) validate() error {
	if k.Flag == "" {
		return nil
	}
	if len([]rune(k.Flag)) != 1 {
		return fmt.Errorf("keys.flag must be a single character, got %q", k.Flag)
	}
	if strings.ContainsAny(strings.ToLower(k.Flag), reservedKeys) {
		return fmt.Errorf("keys.flag %q is already bound", k.Flag)
	}
	return nil
}

// ServerURL returns the configured server URL without a trailing slash.
func (c FileConfig) ServerURL() string {
	u := strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if u == "" {
		return DefaultServerURL
	}
	return u
}

// Load reads a TOML config from the given path. Missing file is not an error.
func Load(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := cfg.Keys.validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions, since it may hold a
// token. The write goes through a temp file so a crash leaves the old file.
func Save(path string, cfg FileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
