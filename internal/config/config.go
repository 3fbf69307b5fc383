package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the overlay daemon
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	API       APIConfig       `yaml:"api"`
	Probe     ProbeConfig     `yaml:"probe"`
	Health    HealthConfig    `yaml:"health"`
	DataPlane DataPlaneConfig `yaml:"dataplane"`
	Store     StoreConfig     `yaml:"store"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Logging   LoggingConfig   `yaml:"logging"`
	Paths     []PathConfig    `yaml:"paths"`
}

type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type ProbeConfig struct {
	Strategy       string `yaml:"strategy"`
	Count          int    `yaml:"count"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	IntervalMillis int    `yaml:"interval_millis"`
	TargetPort     int    `yaml:"target_port"`
}

type HealthConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`

	// PersistEvery is the snapshot cadence: every Nth check is
	// written to the store. Omitted or 0 selects the default of 6;
	// any negative value disables persistence.
	PersistEvery int `yaml:"persist_every"`
}

type DataPlaneConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	MTU        int    `yaml:"mtu"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type AlertingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PathConfig declares one monitored path and its tunnel endpoint
type PathConfig struct {
	ID            uint64  `yaml:"id"`
	Name          string  `yaml:"name"`
	Target        string  `yaml:"target"`
	BandwidthMbps float64 `yaml:"bandwidth_mbps"`
	Remote        string  `yaml:"remote"`
	Compression   bool    `yaml:"compression"`
}

// Load reads and validates a YAML config file
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = "configs/sdwan.yaml"
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %v", filename, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file %s: %v", filename, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}

	return &config, nil
}

// Validate fills in defaults and rejects unusable values
func (c *Config) Validate() error {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Probe.Strategy == "" {
		c.Probe.Strategy = "icmp"
	}
	if c.Probe.Count <= 0 {
		c.Probe.Count = 5
	}
	if c.Probe.TimeoutSeconds <= 0 {
		c.Probe.TimeoutSeconds = 1
	}
	if c.Probe.IntervalMillis <= 0 {
		c.Probe.IntervalMillis = 200
	}
	if c.Probe.TargetPort <= 0 {
		c.Probe.TargetPort = 33434
	}
	if c.Health.CheckIntervalSeconds <= 0 {
		c.Health.CheckIntervalSeconds = 10
	}
	if c.Health.PersistEvery < 0 {
		c.Health.PersistEvery = 0
	} else if c.Health.PersistEvery == 0 {
		c.Health.PersistEvery = 6
	}
	if c.DataPlane.ListenAddr == "" {
		c.DataPlane.ListenAddr = "0.0.0.0:4500"
	}
	if c.DataPlane.MTU <= 0 {
		c.DataPlane.MTU = 1400
	}
	if c.Store.Path == "" {
		c.Store.Path = "sdwan.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	seen := make(map[uint64]bool)
	for i, p := range c.Paths {
		if p.ID == 0 {
			return fmt.Errorf("path %d: id must be non-zero", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("path %d: duplicate id %d", i, p.ID)
		}
		seen[p.ID] = true
		if _, err := netip.ParseAddr(p.Target); err != nil {
			return fmt.Errorf("path %d: bad target %q: %v", i, p.Target, err)
		}
		if p.Remote != "" {
			if _, err := netip.ParseAddrPort(p.Remote); err != nil {
				return fmt.Errorf("path %d: bad remote %q: %v", i, p.Remote, err)
			}
		}
	}
	return nil
}

// Default returns the configuration used when no file is present
func Default() *Config {
	c := &Config{}
	// Validate fills every default
	_ = c.Validate()
	return c
}
