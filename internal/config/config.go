// Package config loads and validates the gateway's YAML configuration: the
// listener settings and the catalogue of standing offers.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"meterwire/internal/protocol"
)

// Config is the application configuration parsed from YAML.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Offers []OfferConfig `yaml:"offers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// PriceConfig mirrors the wire price shape: a base-10 integer string in the
// currency's smallest unit, per one million tokens.
type PriceConfig struct {
	Pol string `yaml:"$pol"`
}

// OfferConfig declares one standing offer.
type OfferConfig struct {
	ModelID          string       `yaml:"model_id"`
	ContextSize      int          `yaml:"context_size"`
	InputTokenPrice  PriceConfig  `yaml:"input_token_price"`
	OutputTokenPrice PriceConfig  `yaml:"output_token_price"`
	Trial            *PriceConfig `yaml:"trial"`
}

// Offer converts the configuration entry to its wire form.
func (o OfferConfig) Offer() protocol.Offer {
	offer := protocol.Offer{
		ModelID:          o.ModelID,
		ContextSize:      o.ContextSize,
		InputTokenPrice:  protocol.Price{Pol: o.InputTokenPrice.Pol},
		OutputTokenPrice: protocol.Price{Pol: o.OutputTokenPrice.Pol},
	}
	if o.Trial != nil {
		offer.Trial = &protocol.Price{Pol: o.Trial.Pol}
	}
	return offer
}

// Load reads YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if len(c.Offers) == 0 {
		return fmt.Errorf("at least one offer must be configured")
	}

	seen := make(map[string]struct{}, len(c.Offers))
	for i, oc := range c.Offers {
		if _, dup := seen[oc.ModelID]; dup {
			return fmt.Errorf("offers[%d]: duplicate model_id %q", i, oc.ModelID)
		}
		seen[oc.ModelID] = struct{}{}

		if err := oc.Offer().Validate(); err != nil {
			return fmt.Errorf("offers[%d]: %w", i, err)
		}
	}
	return nil
}
