package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Template families shipped with every stack.
const (
	FamilyGeneric = "generic"
	FamilyPortal  = "portal"
)

// DefaultServices are the service prefixes a stack runs when the stack file
// does not list its own.
var DefaultServices = []string{"auth", "portal", "repo", "search", "rds-async", "dynamo", "file"}

// Elastic Beanstalk limits on derived names.
const (
	minEnvironmentNameLength = 4
	maxEnvironmentNameLength = 40
	maxCNAMEPrefixLength     = 63
)

// StackConfig is the declared desired state of one stack instance.
type StackConfig struct {
	// Stack is the stack name (e.g., "prod").
	Stack string `yaml:"stack" json:"stack" env:"STACK" validate:"required,lowercase,alphanum"`

	// Instance distinguishes parallel deployments of the same stack (e.g., "a").
	Instance string `yaml:"instance" json:"instance" env:"INSTANCE" validate:"required,lowercase,alphanum"`

	// Region is the AWS region.
	Region string `yaml:"region" json:"region" env:"REGION" validate:"required"`

	// Profile is an optional shared-config profile.
	Profile string `yaml:"profile,omitempty" json:"profile,omitempty" env:"PROFILE"`

	// ApplicationName is the Elastic Beanstalk application owning all environments.
	ApplicationName string `yaml:"application" json:"application" env:"APPLICATION" validate:"required"`

	// SolutionStack is used when a configuration template is first created.
	SolutionStack string `yaml:"solution_stack" json:"solution_stack" env:"SOLUTION_STACK" validate:"required"`

	// Production enables the production scaling overrides.
	Production bool `yaml:"production" json:"production" env:"PRODUCTION"`

	// CNAMESuffix is appended to every environment name to form its CNAME prefix.
	CNAMESuffix string `yaml:"cname_suffix,omitempty" json:"cname_suffix,omitempty" env:"CNAME_SUFFIX" validate:"omitempty,lowercase"`

	PollInterval time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty" env:"POLL_INTERVAL" validate:"gte=0"`
	ReadyTimeout time.Duration `yaml:"ready_timeout,omitempty" json:"ready_timeout,omitempty" env:"READY_TIMEOUT" validate:"gte=0"`

	// PropertiesFile holds the raw desired-configuration settings.
	PropertiesFile string `yaml:"properties" json:"properties" env:"PROPERTIES_FILE" validate:"required"`

	// EnvFile is an optional dotenv file loaded before AWS credentials are resolved.
	EnvFile string `yaml:"env_file,omitempty" json:"env_file,omitempty" env:"ENV_FILE"`

	// HistoryDB is the run-history database path. Empty disables history.
	HistoryDB string `yaml:"history_db,omitempty" json:"history_db,omitempty" env:"HISTORY_DB"`

	// Certificates maps template family to the SSL certificate ARN.
	Certificates map[string]string `yaml:"certificates" json:"certificates" validate:"required,min=1,dive,keys,required,endkeys,required"`

	// DefaultVersion is deployed by services that do not name their own version.
	DefaultVersion string `yaml:"version,omitempty" json:"version,omitempty" env:"VERSION"`

	// Services lists the environments of the stack.
	Services []ServiceConfig `yaml:"services" json:"services" validate:"required,min=1,dive"`

	// Policy configures settings guardrails.
	Policy PolicyConfig `yaml:"policy,omitempty" json:"policy,omitempty" envPrefix:"POLICY_"`
}

// ServiceConfig declares one environment.
type ServiceConfig struct {
	// Prefix is the service prefix (e.g., "auth").
	Prefix string `yaml:"prefix" json:"prefix" validate:"required"`

	// Family is the configuration template family. It defaults to the
	// portal family for the portal service and to generic otherwise.
	Family string `yaml:"family,omitempty" json:"family,omitempty"`

	// Version is the application version label to deploy.
	Version string `yaml:"version" json:"version" validate:"required"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`

	// Paths lists additional policy files or directories.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty" env:"PATHS"`
}

// TemplatePrefix is the prefix shared by the stack's configuration templates.
func (c *StackConfig) TemplatePrefix() string {
	return c.Stack + "-" + c.Instance
}

// EnvironmentName derives the environment name for a service prefix.
func (c *StackConfig) EnvironmentName(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, c.Stack, c.Instance)
}

// CNAMEPrefix derives the CNAME prefix for a service prefix.
func (c *StackConfig) CNAMEPrefix(prefix string) string {
	if c.CNAMESuffix == "" {
		return c.EnvironmentName(prefix)
	}
	return c.EnvironmentName(prefix) + "-" + c.CNAMESuffix
}

// FamilyOf returns the template family of a service.
func (s ServiceConfig) FamilyOf() string {
	if s.Family != "" {
		return s.Family
	}
	if s.Prefix == "portal" {
		return FamilyPortal
	}
	return FamilyGeneric
}

// EnvironmentSpecs returns the desired state of every service, in declaration order.
func (c *StackConfig) EnvironmentSpecs() []engine.EnvironmentSpec {
	specs := make([]engine.EnvironmentSpec, len(c.Services))
	for i, s := range c.Services {
		specs[i] = engine.EnvironmentSpec{
			ServicePrefix:   s.Prefix,
			EnvironmentName: c.EnvironmentName(s.Prefix),
			CNAMEPrefix:     c.CNAMEPrefix(s.Prefix),
			TemplateFamily:  s.FamilyOf(),
			Version: engine.ApplicationVersion{
				ApplicationName: c.ApplicationName,
				VersionLabel:    s.Version,
			},
		}
	}
	return specs
}

// EnvironmentNames returns the derived environment names in declaration order.
func (c *StackConfig) EnvironmentNames() []string {
	names := make([]string, len(c.Services))
	for i, s := range c.Services {
		names[i] = c.EnvironmentName(s.Prefix)
	}
	return names
}

// Families returns the sorted, distinct template families used by the services.
func (c *StackConfig) Families() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range c.Services {
		f := s.FamilyOf()
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Variables are the values available to ${name} placeholders in property files.
func (c *StackConfig) Variables() map[string]string {
	return map[string]string{
		"stack":            c.Stack,
		"instance":         c.Instance,
		"stack.instance":   c.TemplatePrefix(),
		"region":           c.Region,
		"application.name": c.ApplicationName,
		"cname.suffix":     c.CNAMESuffix,
	}
}

// ApplyDefaults fills unset optional fields.
func (c *StackConfig) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = engine.DefaultPollInterval
	}
	if len(c.Services) == 0 {
		for _, p := range DefaultServices {
			c.Services = append(c.Services, ServiceConfig{Prefix: p})
		}
	}
	for i := range c.Services {
		if c.Services[i].Version == "" {
			c.Services[i].Version = c.DefaultVersion
		}
	}
}
