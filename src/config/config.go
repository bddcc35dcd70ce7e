package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"market-relay/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Poll.IdleDivisor == 0 {
		c.Poll.IdleDivisor = 1
	}
	if c.Alerts.HistorySize == 0 {
		c.Alerts.HistorySize = 100
	}
	if c.Archive.DBType == "" {
		c.Archive.DBType = "none"
	}
	if len(c.Candles.Resolutions) == 0 {
		c.Candles.Resolutions = []string{"5m", "10m", "15m", "1h"}
	}
	if c.Candles.LookbackHours == 0 {
		c.Candles.LookbackHours = 24
	}
	// Symbols are uppercase tickers everywhere downstream
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Store configuration
	if c.Store.Addr == "" {
		return fmt.Errorf("store address cannot be empty")
	}

	// Validate Poll configuration
	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.Poll.CandleIntervalMs <= 0 {
		return fmt.Errorf("candle poll interval must be greater than 0")
	}
	if c.Poll.IdleDivisor < 1 {
		return fmt.Errorf("idle divisor must be at least 1")
	}

	// Validate tracked symbols
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol must be configured")
	}
	for i, sym := range c.Symbols {
		if sym == "" {
			return fmt.Errorf("symbol %d cannot be empty", i)
		}
	}

	// Validate candle resolutions
	for i, res := range c.Candles.Resolutions {
		if _, err := time.ParseDuration(res); err != nil {
			return fmt.Errorf("invalid candle resolution %d (%q): %w", i, res, err)
		}
	}
	if c.Candles.LookbackHours <= 0 {
		return fmt.Errorf("candle lookback hours must be greater than 0")
	}

	// Validate Archive configuration
	switch c.Archive.DBType {
	case "none":
	case "sqlite":
		if c.Archive.DBPath == "" {
			return fmt.Errorf("archive db path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Archive.DBConnectionString == "" {
			return fmt.Errorf("archive connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unknown archive db type: %s", c.Archive.DBType)
	}

	return nil
}

// -----------------------------------------------------------------------------

// PollInterval returns the slow poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// CandleInterval returns the candle aggregation interval as a duration.
func (c *Config) CandleInterval() time.Duration {
	return time.Duration(c.Poll.CandleIntervalMs) * time.Millisecond
}

// CandleLookback returns the trail scan window as a duration.
func (c *Config) CandleLookback() time.Duration {
	return time.Duration(c.Candles.LookbackHours) * time.Hour
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
