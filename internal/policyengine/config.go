package policyengine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the declarative rule-set file format, loaded from YAML.
type Config struct {
	Version       string `yaml:"version"`
	DefaultEffect Effect `yaml:"default_effect"`
	Rules         []Rule `yaml:"rules"`
}

// DefaultPolicyConfig denies nothing: every action is allowed unless a
// rule explicitly denies it. Operators wanting a deny-by-default posture
// set DefaultEffect: deny in their config file.
func DefaultPolicyConfig() Config {
	return Config{Version: "1", DefaultEffect: EffectAllow}
}

// LoadConfigFile parses a YAML policy file. A missing path returns the
// permissive default rather than an error, so agents can run without one
// configured.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return DefaultPolicyConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicyConfig(), nil
		}
		return Config{}, fmt.Errorf("policyengine: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("policyengine: parse config %s: %w", path, err)
	}
	if cfg.DefaultEffect == "" {
		cfg.DefaultEffect = EffectAllow
	}
	return cfg, nil
}
