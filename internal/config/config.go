// Package config holds run settings for enclavecheck.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MiniZinc locates the external solver.
type MiniZinc struct {
	Binary string `yaml:"binary" validate:"required"`
	Solver string `yaml:"solver" validate:"required"`
	Model  string `yaml:"model"`
}

// Config is the run configuration. Command line flags override it.
type Config struct {
	MaxFnParams    int      `yaml:"max_fn_params" validate:"gte=0,lte=64"`
	Backend        string   `yaml:"backend" validate:"oneof=gini minizinc"`
	MinimizeCore   bool     `yaml:"minimize_core"`
	UniversalLabel string   `yaml:"universal_label" validate:"omitempty,printascii,max=128"`
	Output         string   `yaml:"output" validate:"required"`
	Format         string   `yaml:"format" validate:"oneof=text json"`
	Journal        string   `yaml:"journal"`
	Store          string   `yaml:"store"`
	LogLevel       string   `yaml:"log_level" validate:"oneof=debug info warn error"`
	MiniZinc       MiniZinc `yaml:"minizinc"`
}

// Error reports an unreadable or invalid configuration.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var validate = validator.New()

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		MaxFnParams:  64,
		Backend:      "gini",
		MinimizeCore: true,
		Output:       ".",
		Format:       "text",
		LogLevel:     "info",
		MiniZinc: MiniZinc{
			Binary: "minizinc",
			Solver: "Gecode",
			Model:  "model.mzn",
		},
	}
}

// DefaultPath is ~/.enclavecheck/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".enclavecheck", "config.yaml")
}

// LoadConfig reads path over the defaults. An empty path falls back to
// DefaultPath; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return DefaultConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, &Error{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return fmt.Errorf("field %s fails %q (value %v)", v.Namespace(), v.Tag(), v.Value())
		}
		return err
	}
	return nil
}
