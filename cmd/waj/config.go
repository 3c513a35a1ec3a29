package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServeConfig describes a multi-archive serve topology: either host-based
// or first-path-segment-based routing. At most one of Hosts/Paths is set.
type ServeConfig struct {
	Hosts map[string]string `json:"hosts" yaml:"hosts"`
	Paths map[string]string `json:"paths" yaml:"paths"`
}

// LoadServeConfig loads a ServeConfig from a JSON or YAML file, following
// the teacher's LoadConfig/isJSONFile/isYAMLFile split in config.go.
func LoadServeConfig(path string) (*ServeConfig, error) {
	var cfg ServeConfig
	switch {
	case isJSONFile(path):
		if err := loadFromJSON(path, &cfg); err != nil {
			return nil, err
		}
	case isYAMLFile(path):
		if err := loadFromYAML(path, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("config file %q must be JSON or YAML", path)
	}
	if len(cfg.Hosts) > 0 && len(cfg.Paths) > 0 {
		return nil, fmt.Errorf("config file %q: hosts and paths cannot both be set", path)
	}
	return &cfg, nil
}

func loadFromJSON(path string, cfg *ServeConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(cfg)
}

func loadFromYAML(path string, cfg *ServeConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(cfg)
}

func isJSONFile(path string) bool {
	return strings.HasSuffix(path, ".json")
}

func isYAMLFile(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
