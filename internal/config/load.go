package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses the fleet configuration from a YAML file.
// Malformed input, duplicate node keys (rejected by the YAML parser) and
// validation failures are all fatal: fix the input and rerun.
func LoadFile(path string) (*Config, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fleet configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("failed to unmarshal yaml: %v", err)}
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &cfg,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(rawConfig); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("failed to decode config: %v", err)}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Fleet.Reconfigure == "" {
		c.Fleet.Reconfigure = ReconfigureFullOnReplace
	}
	if c.Fleet.DefaultPort == 0 {
		c.Fleet.DefaultPort = 2222
	}
	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = "fleet.state.json"
	}
	if c.Probe.User == "" {
		c.Probe.User = "ansible_automaton"
	}
	if c.Probe.Port == 0 {
		c.Probe.Port = 22
	}
	if c.Probe.Interval == 0 {
		c.Probe.Interval = 5 * time.Second
	}
	if c.Probe.MaxAttempts == 0 {
		c.Probe.MaxAttempts = 30
	}
	if c.Probe.AttemptTimeout == 0 {
		c.Probe.AttemptTimeout = 10 * time.Second
	}
	if c.Configure.Playbook == "" {
		c.Configure.Playbook = "node-configure.yml"
	}
	if c.Configure.RebootPlaybook == "" {
		c.Configure.RebootPlaybook = "reboot.yml"
	}
}
