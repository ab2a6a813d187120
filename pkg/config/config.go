package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/ancs/internal/ancs"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by OutputFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// Config holds application configuration
type Config struct {
	LogLevel           logrus.Level  `json:"log_level" yaml:"-"`
	ConnectTimeout     time.Duration `json:"connect_timeout" yaml:"connect_timeout" default:"30s"`
	OutputFormat       string        `json:"output_format" yaml:"output_format" default:"text"`
	ChannelBuffer      int           `json:"channel_buffer" yaml:"channel_buffer" default:"64"`
	FragmentTimeout    time.Duration `json:"fragment_timeout" yaml:"fragment_timeout" default:"2s"`
	MaxAttributeLength uint16        `json:"max_attribute_length" yaml:"max_attribute_length" default:"512"`
	RequestSubtitle    bool          `json:"request_subtitle" yaml:"request_subtitle" default:"true"`
	RequestDate        bool          `json:"request_date" yaml:"request_date" default:"true"`
	PrintBuffer        int           `json:"print_buffer" yaml:"print_buffer" default:"256"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	var level struct {
		LogLevel string `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(data, &level); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if level.LogLevel != "" {
		lvl, err := logrus.ParseLevel(level.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log_level in %s: %w", path, err)
		}
		cfg.LogLevel = lvl
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case FormatText, FormatJSON, FormatYAML, FormatCBOR:
	default:
		return fmt.Errorf("unsupported output format %q (supported: text, json, yaml, cbor)", c.OutputFormat)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %v", c.ConnectTimeout)
	}
	if c.FragmentTimeout < 0 {
		return fmt.Errorf("fragment_timeout must not be negative, got %v", c.FragmentTimeout)
	}
	if c.ChannelBuffer <= 0 {
		return fmt.Errorf("channel_buffer must be positive, got %d", c.ChannelBuffer)
	}
	if c.PrintBuffer <= 0 {
		return fmt.Errorf("print_buffer must be positive, got %d", c.PrintBuffer)
	}
	return nil
}

// NotificationAttributes returns the attribute IDs requested for each notification.
func (c *Config) NotificationAttributes() []ancs.NotificationAttributeID {
	ids := []ancs.NotificationAttributeID{
		ancs.NotificationAttributeAppIdentifier,
		ancs.NotificationAttributeTitle,
	}
	if c.RequestSubtitle {
		ids = append(ids, ancs.NotificationAttributeSubtitle)
	}
	ids = append(ids, ancs.NotificationAttributeMessage)
	if c.RequestDate {
		ids = append(ids, ancs.NotificationAttributeDate)
	}
	return ids
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
