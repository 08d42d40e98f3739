package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if OVERUNDER_CONFIG is set
//  3. env (prefix OVERUNDER_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("OVERUNDER_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: OVERUNDER_ADDR, OVERUNDER_DB_PATH, ...
	// Flat keys preserve underscores to match the koanf tags.
	envProvider := env.Provider("OVERUNDER_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "overunder_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidConfig)
	}
	for _, src := range c.Sources {
		if src.Category != "COLLEGE" && src.Category != "PRO" {
			return fmt.Errorf("%w: source %q has unknown category %q", ErrInvalidConfig, src.Name, src.Category)
		}
	}
	if c.Projection.RampGames < c.Projection.MinGames {
		return fmt.Errorf("%w: ramp_games must be >= min_games", ErrInvalidConfig)
	}
	if c.Projection.MaxActualWeight < 0 || c.Projection.MaxActualWeight > 1 {
		return fmt.Errorf("%w: max_actual_weight must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}
