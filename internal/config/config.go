// Package config implements layered JSON configuration (global then
// per-archive, with the archive layer winning): a Config struct, a
// DefaultConfig constructor, merge-on-load semantics, and dotted
// section.key get/set helpers for the CLI's config command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfigFileName is the name of the per-archive config file, stored
// alongside the catalog inside the archive directory.
const ConfigFileName = "config.json"

// Config holds identity and backend settings read and written by the
// flist config command. No archive operation reads them: new inodes
// are always owned by root:root, and the backend comes from the
// archive's "backend" metadata record or UPLOADBACKEND.
type Config struct {
	Identity IdentityConfig `json:"identity"`
	Backend  BackendConfig  `json:"backend"`
}

// IdentityConfig holds a default owner/group name pair. It is stored
// and listed only; it is not applied to the inodes an archive creates.
type IdentityConfig struct {
	Uname string `json:"uname"`
	Gname string `json:"gname"`
}

// BackendConfig mirrors backend.Descriptor so it round-trips through
// JSON the same way whether it came from UPLOADBACKEND, the archive's
// "backend" metadata record, or this config file.
type BackendConfig struct {
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// DefaultConfig returns a config with sensible defaults: root:root
// identity and no backend (offline dry-run mode).
func DefaultConfig() *Config {
	return &Config{
		Identity: IdentityConfig{Uname: "root", Gname: "root"},
	}
}

// globalConfigPath returns the path to the user's global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".flistconfig"), nil
}

// archiveConfigPath returns the path to an archive directory's own
// config file.
func archiveConfigPath(archiveDir string) string {
	return filepath.Join(archiveDir, ConfigFileName)
}

// LoadConfig loads configuration from the global config file, then
// layers the archive's own config.json (if archiveDir is non-empty)
// on top — archive settings take precedence.
func LoadConfig(archiveDir string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			var globalCfg Config
			if err := json.Unmarshal(data, &globalCfg); err == nil {
				mergeConfig(cfg, &globalCfg)
			}
		}
	}

	if archiveDir != "" {
		if data, err := os.ReadFile(archiveConfigPath(archiveDir)); err == nil {
			var archiveCfg Config
			if err := json.Unmarshal(data, &archiveCfg); err == nil {
				mergeConfig(cfg, &archiveCfg)
			}
		}
	}

	return cfg, nil
}

// SaveGlobalConfig writes cfg to the user's global config file.
func SaveGlobalConfig(cfg *Config) error {
	globalPath, err := globalConfigPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(globalPath, data, 0644)
}

// SaveArchiveConfig writes cfg to archiveDir's own config.json.
func SaveArchiveConfig(archiveDir string, cfg *Config) error {
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(archiveConfigPath(archiveDir), data, 0644)
}

// GetValue retrieves a configuration value by dotted key, e.g.
// "identity.uname" or "backend.host".
func GetValue(archiveDir, key string) (string, error) {
	cfg, err := LoadConfig(archiveDir)
	if err != nil {
		return "", err
	}

	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "identity":
		switch field {
		case "uname":
			return cfg.Identity.Uname, nil
		case "gname":
			return cfg.Identity.Gname, nil
		}
	case "backend":
		switch field {
		case "host":
			return cfg.Backend.Host, nil
		case "port":
			return fmt.Sprintf("%d", cfg.Backend.Port), nil
		case "namespace":
			return cfg.Backend.Namespace, nil
		}
	}
	return "", fmt.Errorf("unknown config key: %s", key)
}

// SetValue sets a configuration value by dotted key and persists it
// to either the global file or the given archive's config.json.
func SetValue(archiveDir, key, value string, global bool) error {
	var cfg *Config
	var loadErr error
	if global {
		globalPath, _ := globalConfigPath()
		cfg, loadErr = loadOrDefault(globalPath)
	} else {
		cfg, loadErr = loadOrDefault(archiveConfigPath(archiveDir))
	}
	if loadErr != nil {
		return loadErr
	}

	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "identity":
		switch field {
		case "uname":
			cfg.Identity.Uname = value
		case "gname":
			cfg.Identity.Gname = value
		default:
			return fmt.Errorf("unknown identity config field: %s", field)
		}
	case "backend":
		switch field {
		case "host":
			cfg.Backend.Host = value
		case "namespace":
			cfg.Backend.Namespace = value
		case "port":
			var port int
			if _, err := fmt.Sscanf(value, "%d", &port); err != nil {
				return fmt.Errorf("invalid port %q: %w", value, err)
			}
			cfg.Backend.Port = port
		default:
			return fmt.Errorf("unknown backend config field: %s", field)
		}
	default:
		return fmt.Errorf("unknown config section: %s", section)
	}

	if global {
		return SaveGlobalConfig(cfg)
	}
	return SaveArchiveConfig(archiveDir, cfg)
}

func loadOrDefault(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), nil
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), nil
	}
	return cfg, nil
}

func splitKey(key string) (section, field string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid config key: %s (expected format: section.key)", key)
	}
	return parts[0], parts[1], nil
}

// mergeConfig overlays non-zero fields of src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Identity.Uname != "" {
		dst.Identity.Uname = src.Identity.Uname
	}
	if src.Identity.Gname != "" {
		dst.Identity.Gname = src.Identity.Gname
	}
	if src.Backend.Host != "" {
		dst.Backend.Host = src.Backend.Host
	}
	if src.Backend.Port != 0 {
		dst.Backend.Port = src.Backend.Port
	}
	if src.Backend.Namespace != "" {
		dst.Backend.Namespace = src.Backend.Namespace
	}
}
