package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ykarpov/brokersim/pkg/moex"
)

// Config holds the runtime configuration of the simulator server.
type Config struct {
	Listen      string `yaml:"listen"`
	CacheDir    string `yaml:"cacheDir"`
	MoexBaseURL string `yaml:"moexBaseURL"`
	LogMode     string `yaml:"logMode"`

	// Balance strictness: whether a cash or quantity bucket may go negative.
	StrictMoneyBalance    bool `yaml:"strictMoneyBalance"`
	StrictQuantityBalance bool `yaml:"strictQuantityBalance"`
}

func DefaultConfig() Config {
	return Config{
		Listen:                ":8080",
		CacheDir:              ".cache",
		MoexBaseURL:           moex.DefaultBaseURL,
		LogMode:               "dev",
		StrictMoneyBalance:    true,
		StrictQuantityBalance: true,
	}
}

// LoadConfig reads YAML from path on top of the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if v := os.Getenv("BROKERSIM_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate ensures required fields are present.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return errors.New("listen is required")
	}
	if cfg.CacheDir == "" {
		return errors.New("cacheDir is required")
	}
	if cfg.MoexBaseURL == "" {
		return errors.New("moexBaseURL is required")
	}
	if cfg.LogMode != "dev" && cfg.LogMode != "prod" {
		return fmt.Errorf("logMode must be dev or prod, got %q", cfg.LogMode)
	}
	return nil
}
