// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"optionskiller-go/internal/quote"
	"optionskiller-go/internal/risk"
	"optionskiller-go/internal/surface"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name         string
	Env          string
	MetricsAddr  string
	LogLevel     string
	RestInterval int    `yaml:"rest_interval_ms"`
	DryRun       bool   `yaml:"dry_run"`
	ExportCSV    bool   `yaml:"export_csv"`
	JournalPath  string `yaml:"journal_path"`
}

// RestDuration converts the configured wake interval to a duration, defaulting
// to one second when unset.
func (a App) RestDuration() time.Duration {
	if a.RestInterval <= 0 {
		return time.Second
	}
	return time.Duration(a.RestInterval) * time.Millisecond
}

// Broker describes the brokerage API connectivity parameters the bot expects.
type Broker struct {
	BaseURL string `yaml:"base_url"`
	Paper   bool   `yaml:"paper"`
}

// InstrumentSpec configures one underlying in the trading rotation.
type InstrumentSpec struct {
	Ticker          string     `yaml:"ticker"`
	ExpiryIndex     int        `yaml:"expiry_index"`
	OptionKind      quote.Kind `yaml:"option_kind"`
	MinOverpriced   float64    `yaml:"min_overpriced"`
	MinOpenInterest float64    `yaml:"min_open_interest"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App         App              `yaml:"app"`
	Broker      Broker           `yaml:"broker"`
	Surface     surface.Config   `yaml:"surface"`
	Risk        risk.Limits      `yaml:"risk"`
	Instruments []InstrumentSpec `yaml:"instruments"`
}

// Load reads a YAML file from disk, hydrates a Config struct, and validates it.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Config{Surface: surface.DefaultConfig()}
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations that would make the trading loop misbehave
// rather than letting them surface mid-session.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Ticker == "" {
			return fmt.Errorf("instrument %d: ticker is required", i)
		}
		if seen[inst.Ticker] {
			return fmt.Errorf("instrument %d: duplicate ticker %s", i, inst.Ticker)
		}
		seen[inst.Ticker] = true
		if !inst.OptionKind.Valid() {
			return fmt.Errorf("instrument %s: option_kind must be %q or %q, got %q", inst.Ticker, quote.Calls, quote.Puts, inst.OptionKind)
		}
		if inst.ExpiryIndex < 0 {
			return fmt.Errorf("instrument %s: expiry_index must be non-negative", inst.Ticker)
		}
	}
	if err := c.Surface.Validate(); err != nil {
		return fmt.Errorf("surface: %w", err)
	}
	return nil
}
