package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read by Load.
	EnvPrefix = "VECTORINDEX_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load builds the configuration from defaults, the YAML file at path and
// the environment, then validates it.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VECTORINDEX_STORE__BACKEND, ...)
//  2. YAML config file
//  3. Built-in defaults
//
// An empty path loads DefaultPath when that file exists and skips the file
// layer otherwise. An explicit path must exist.
//
// # Environment Variable Mapping
//
// The prefix is stripped, the rest is lowercased and a double underscore
// separates nesting levels, so single underscores stay inside key names:
//
//	VECTORINDEX_STORE__BACKEND           -> store.backend
//	VECTORINDEX_INDEX__BATCH_SIZE        -> index.batch_size
//	VECTORINDEX_EMBEDDINGS__API_KEY      -> embeddings.api_key
//
// # Security Considerations
//
// Files writable by group or others are rejected, as are files over 1MB.
//
// When the pool section sets no max_size, index.advanced.max_connections
// and min_connections size the pool.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		content, err := readConfigFile(path)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so absent keys keep their default.
	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !k.Exists("pool.max_size") {
		if n := cfg.Index.Advanced.MaxConnections; n != nil {
			cfg.Pool.MaxSize = *n
		}
	}
	if !k.Exists("pool.min_idle") {
		if n := cfg.Index.Advanced.MinConnections; n != nil {
			cfg.Pool.MinIdle = *n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps VECTORINDEX_STORE__SQLITE__BUSY_TIMEOUT to
// store.sqlite.busy_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// DefaultPath returns the per-user config file location, or "" when the
// platform has no config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "vectorindex", "config.yaml")
}

// EnsureConfigDir creates the per-user config directory with 0700
// permissions.
func EnsureConfigDir() error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	dir = filepath.Join(dir, "vectorindex")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// readConfigFile opens path once and validates it through the open
// descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: more than %d bytes", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigFileProperties checks file type, permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config file is not a regular file")
	}
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o022 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (must not be group or world writable)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
