package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cybergodev/scorehider"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read by Load.
	EnvPrefix = "SCOREHIDER_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads the YAML file at path, when given, then applies environment
// overrides and defaults and validates the result.
//
// Precedence, highest first:
//  1. Environment variables (SCOREHIDER_SERVER_PORT, SCOREHIDER_SESSIONS_IDLE_TTL, ...)
//  2. The YAML file
//  3. Built-in defaults
//
// Environment names drop the prefix and split on the first underscore:
//
//	SCOREHIDER_SERVER_PORT       -> server.port
//	SCOREHIDER_SESSIONS_IDLE_TTL -> sessions.idle_ttl
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readLimited(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps SCOREHIDER_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	return io.ReadAll(io.LimitReader(f, maxConfigFileSize))
}

// LoadSettings reads a settings file. JSON files are decoded as they are;
// YAML files are parsed with koanf first. Both the wrapped shape and a bare
// range table are accepted.
func LoadSettings(path string) (scorehider.Settings, error) {
	content, err := readLimited(path)
	if err != nil {
		return scorehider.Settings{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return scorehider.Settings{}, fmt.Errorf("%w: %v", scorehider.ErrInvalidSettings, err)
		}
		content, err = json.Marshal(k.Raw())
		if err != nil {
			return scorehider.Settings{}, fmt.Errorf("%w: %v", scorehider.ErrInvalidSettings, err)
		}
	}
	return scorehider.ParseSettings(content)
}
