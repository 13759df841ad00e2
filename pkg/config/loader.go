package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (e.g., BEANSTACK_REGION).
const EnvPrefix = "BEANSTACK_"

// LoadOptions controls how a stack file is loaded.
type LoadOptions struct {
	// Environ overrides the process environment for overrides. Nil means os.Environ.
	Environ map[string]string

	// SkipSchema disables the CUE naming schema check.
	SkipSchema bool
}

// Load reads a stack file, applies environment overrides and defaults, and
// validates the result.
func Load(path string, opts LoadOptions) (*StackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file: %w", err)
	}
	return Parse(data, opts)
}

// Parse is Load for an in-memory stack document.
func Parse(data []byte, opts LoadOptions) (*StackConfig, error) {
	cfg := &StackConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse stack file: %w", err)
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environ != nil {
		envOpts.Environment = opts.Environ
	}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !opts.SkipSchema {
		if err := NewSchemaRegistry().ValidateStack(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Validate checks struct constraints, derived name limits and that every
// template family has a certificate.
func (c *StackConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid stack configuration: %w", err)
	}

	seen := make(map[string]bool)
	for _, s := range c.Services {
		if seen[s.Prefix] {
			return fmt.Errorf("duplicate service prefix %q", s.Prefix)
		}
		seen[s.Prefix] = true

		name := c.EnvironmentName(s.Prefix)
		if len(name) < minEnvironmentNameLength || len(name) > maxEnvironmentNameLength {
			return fmt.Errorf("environment name %q must be %d to %d characters",
				name, minEnvironmentNameLength, maxEnvironmentNameLength)
		}
		if cname := c.CNAMEPrefix(s.Prefix); len(cname) > maxCNAMEPrefixLength {
			return fmt.Errorf("CNAME prefix %q exceeds %d characters", cname, maxCNAMEPrefixLength)
		}
	}

	for _, f := range c.Families() {
		if c.Certificates[f] == "" {
			return fmt.Errorf("no certificate ARN for template family %q", f)
		}
	}
	return nil
}

// LoadDotEnv loads a dotenv file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
