package store

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for a Store and the collections it creates.
type Config struct {
	// TransactionsRequired makes every mutating collection call fail with
	// ErrTransactionRequired unless a transaction is open.
	// Default: false (direct writes allowed).
	TransactionsRequired bool `yaml:"transactions_required"`

	// Collections declares collections to create at store construction,
	// each with its configured constraints.
	Collections []CollectionConfig `yaml:"collections"`

	// Logger receives debug-level lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// CollectionConfig declares one collection in a configuration file.
type CollectionConfig struct {
	Name        string             `yaml:"name"`
	Constraints []ConstraintConfig `yaml:"constraints"`
}

// ConstraintConfig declares one built-in constraint in a configuration file.
type ConstraintConfig struct {
	// Kind is one of the built-in kinds: required, unique, default, from.
	Kind string `yaml:"kind"`

	// Key is the governed field key.
	Key string `yaml:"key"`

	// Default is the injected value for the default kind.
	Default any `yaml:"default,omitempty"`

	// Allowed is the value set for the from kind.
	Allowed []any `yaml:"allowed,omitempty"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		TransactionsRequired: false,
	}
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.validate()
	return cfg, nil
}

// validate fills in defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// build constructs the declared built-in constraint.
func (cc ConstraintConfig) build() (Constraint, error) {
	if cc.Key == "" {
		return nil, fmt.Errorf("lattice: constraint %q needs a key", cc.Kind)
	}
	switch cc.Kind {
	case KindRequired:
		return Required(cc.Key), nil
	case KindUnique:
		return Unique(cc.Key), nil
	case KindDefault:
		v, err := ValueOf(cc.Default)
		if err != nil {
			return nil, fmt.Errorf("lattice: default for %q: %w", cc.Key, err)
		}
		return Default(cc.Key, v), nil
	case KindFrom:
		allowed := make([]Value, 0, len(cc.Allowed))
		for _, a := range cc.Allowed {
			v, err := ValueOf(a)
			if err != nil {
				return nil, fmt.Errorf("lattice: allowed value for %q: %w", cc.Key, err)
			}
			allowed = append(allowed, v)
		}
		return From(cc.Key, allowed...), nil
	}
	return nil, fmt.Errorf("lattice: unknown constraint kind %q", cc.Kind)
}
