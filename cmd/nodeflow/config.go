package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultConfigFile is picked up from the working directory when --config is
// not given.
const defaultConfigFile = "nodeflow.yaml"

// cliConfig carries file-based defaults for flag values. Flags win when set
// explicitly.
type cliConfig struct {
	Endpoint string `yaml:"endpoint"`
	Fallback string `yaml:"fallback"`
	Model    string `yaml:"model"`
	DB       string `yaml:"db"`
	Parallel int    `yaml:"parallel"`
}

// loadConfig reads the YAML config at path. An empty path means the default
// file, which may be absent; an explicitly named file must exist.
func loadConfig(path string) (*cliConfig, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return &cliConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg cliConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
