package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration for the host drivers.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Card    CardConfig    `yaml:"card"`
}

type RuntimeConfig struct {
	ReaderIndex *int  `yaml:"reader_index"`
	Verbose     *bool `yaml:"verbose"`
}

type CardConfig struct {
	PINFile    string `yaml:"pin_file"`
	RequirePIN *bool  `yaml:"require_pin"`
}

// Load reads and validates a YAML configuration file. Relative paths are
// resolved against the directory of the config file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}

	if c.Card.RequirePIN != nil && *c.Card.RequirePIN {
		if strings.TrimSpace(c.Card.PINFile) == "" {
			return fmt.Errorf("config.card.pin_file is required when require_pin is set")
		}
	}
	if strings.TrimSpace(c.Card.PINFile) != "" {
		if err := validateReadableFile(c.Card.PINFile, "config.card.pin_file"); err != nil {
			return err
		}
	}
	return nil
}

// ReadPIN loads the PIN from the configured file, trimming surrounding
// whitespace. Returns an empty string when no PIN file is configured.
func (c *Config) ReadPIN() (string, error) {
	if strings.TrimSpace(c.Card.PINFile) == "" {
		return "", nil
	}
	content, err := os.ReadFile(c.Card.PINFile)
	if err != nil {
		return "", fmt.Errorf("read pin file: %w", err)
	}
	pin := strings.TrimSpace(string(content))
	if pin == "" {
		return "", fmt.Errorf("pin file %s is empty", c.Card.PINFile)
	}
	return pin, nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Card.PINFile = resolvePath(configDir, c.Card.PINFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
