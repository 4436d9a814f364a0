package gatt

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds file-driven Central settings.
type Config struct {
	// ScanTimeout bounds every scan, e.g. "30s". Empty disables it.
	ScanTimeout string `yaml:"scan_timeout"`

	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel string `yaml:"log_level"`

	Auto AutoConfig `yaml:"auto"`
}

// AutoConfig maps onto AutoPolicy.
type AutoConfig struct {
	DiscoverServices    bool `yaml:"discover_services"`
	DiscoverDescriptors bool `yaml:"discover_descriptors"`
	Subscribe           bool `yaml:"subscribe"`
}

// DefaultConfig returns a Config with conservative defaults: no scan
// timeout, info logging, nothing automatic.
func DefaultConfig() *Config {
	return &Config{LogLevel: "info"}
}

// LoadConfig reads a YAML config file, layering it over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Options converts the config into Central construction options.
func (cfg *Config) Options() ([]Option, error) {
	var opts []Option
	if cfg.ScanTimeout != "" {
		d, err := time.ParseDuration(cfg.ScanTimeout)
		if err != nil {
			return nil, fmt.Errorf("scan_timeout: %w", err)
		}
		opts = append(opts, WithScanTimeout(d))
	}
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log_level: %w", err)
		}
		log := logrus.New()
		log.SetLevel(level)
		opts = append(opts, WithLogger(log))
	}
	if cfg.Auto != (AutoConfig{}) {
		opts = append(opts, WithDiscoveryPolicy(AutoPolicy{
			DiscoverServices:    cfg.Auto.DiscoverServices,
			DiscoverDescriptors: cfg.Auto.DiscoverDescriptors,
			Subscribe:           cfg.Auto.Subscribe,
		}))
	}
	return opts, nil
}
