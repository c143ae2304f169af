// Package config loads the engine configuration from a YAML or JSON file
// with environment-variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/voluntr/engine/infra/notify"
	"github.com/voluntr/engine/infra/participation"
)

type Config struct {
	Routing       RoutingConfig        `json:"routing"`
	Session       SessionConfig        `json:"session"`
	Storage       StorageConfig        `json:"storage"`
	Participation participation.Config `json:"participation"`
	MQTT          notify.Config        `json:"mqtt"`
	Metrics       MetricsConfig        `json:"metrics"`
	Logging       LoggingConfig        `json:"logging"`
}

// Load reads the configuration file at path. Environment variables prefixed
// with VE_ override file values, with __ as the nesting separator
// (VE_ROUTING__MIN_ACCEPT_SCORE=0.4 overrides routing.min_accept_score).
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("VE_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ve_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Routing.SetDefaults()
	cfg.Session.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Routing.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
