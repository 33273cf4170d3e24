package beacon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MQTTConfig holds MQTT connection settings.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// ScannerConfig defines one scanner in the fleet.
type ScannerConfig struct {
	ID        int     `yaml:"id" json:"id"`
	Topic     string  `yaml:"topic" json:"topic"`
	Color     string  `yaml:"color,omitempty" json:"color,omitempty"`
	ReportURL *string `yaml:"reportUrl,omitempty" json:"reportUrl,omitempty"` // Optional HTTP endpoint serving the scanner's report
}

// Config represents the full configuration file.
type Config struct {
	MQTT           MQTTConfig      `yaml:"mqtt" json:"mqtt"`
	Reference      *int            `yaml:"reference,omitempty" json:"reference,omitempty"` // Optional reference scanner id
	Scanners       []ScannerConfig `yaml:"scanners" json:"scanners"`
	MatchThreshold int             `yaml:"matchThreshold,omitempty" json:"matchThreshold,omitempty"` // 0 means DefaultMatchThreshold
}

// GetScannerByID returns the scanner config for the given id, or nil.
func (c *Config) GetScannerByID(id int) *ScannerConfig {
	for i := range c.Scanners {
		if c.Scanners[i].ID == id {
			return &c.Scanners[i]
		}
	}
	return nil
}

// GetScannerByTopic returns the scanner id for a given topic.
func (c *Config) GetScannerByTopic(topic string) (int, bool) {
	for _, sc := range c.Scanners {
		if sc.Topic == topic {
			return sc.ID, true
		}
	}
	return 0, false
}

// EffectiveThreshold returns the configured match threshold or the default.
func (c *Config) EffectiveThreshold() int {
	if c.MatchThreshold > 0 {
		return c.MatchThreshold
	}
	return DefaultMatchThreshold
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.MQTT.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is required")
	}
	if len(config.Scanners) == 0 {
		return nil, fmt.Errorf("at least one scanner must be defined")
	}

	seen := make(map[int]bool, len(config.Scanners))
	for i, sc := range config.Scanners {
		if sc.ID < 0 {
			return nil, fmt.Errorf("scanner[%d].id must be non-negative", i)
		}
		if seen[sc.ID] {
			return nil, fmt.Errorf("scanner[%d]: duplicate id %d", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" {
			return nil, fmt.Errorf("scanner[%d].topic is required for id %d", i, sc.ID)
		}
	}

	if config.Reference != nil && !seen[*config.Reference] {
		return nil, fmt.Errorf("reference scanner %d is not defined", *config.Reference)
	}
	if config.MatchThreshold < 0 {
		return nil, fmt.Errorf("matchThreshold must be positive")
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
