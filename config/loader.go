package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file and unmarshals it into the
// specified type.
func LoadConfig[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// LoadServerConfig reads the server configuration, applies defaults and
// validates it. A missing file yields the default configuration.
func LoadServerConfig(path string) (*Config, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("path", path).Msg("config file not found, using defaults")
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info().
		Int("port", cfg.Socket.Port).
		Str("game_codes", cfg.Rooms.GameCodes).
		Bool("reactor", cfg.Reactor.Enabled).
		Msg("configuration loaded")

	return cfg, nil
}
