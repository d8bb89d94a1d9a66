package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "HIVE_"

// Load builds a Config from raw YAML bytes overridden by HIVE_* environment
// variables. Pass nil bytes to load defaults plus environment only.
//
// Environment variables use underscore separators and are uppercased:
//
//	HIVE_SWARM_RETRY_BUDGET      -> swarm.retry_budget
//	HIVE_LEARNING_PROMOTION_THRESHOLD -> learning.promotion_threshold
func Load(yamlBytes []byte) (*Config, error) {
	k := koanf.New(".")

	if len(yamlBytes) > 0 {
		if err := k.Load(rawbytes.Provider(yamlBytes), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}

	// Environment overrides. The transformer maps HIVE_SECTION_FIELD_NAME to
	// section.field_name: split on the first underscore after the prefix.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file, then overrides with
// environment variables. A missing file is not an error; defaults plus
// environment apply.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load(nil)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Load(content)
}
