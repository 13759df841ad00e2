// Package beanstalk implements engine.CloudEnvironmentService on the AWS
// Elastic Beanstalk API.
package beanstalk

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/rs/zerolog"

	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/telemetry"
)

// ProviderName labels control-plane metrics and spans.
const ProviderName = "beanstalk"

// api is the subset of the Elastic Beanstalk client the adapter uses.
type api interface {
	DescribeEnvironments(ctx context.Context, in *elasticbeanstalk.DescribeEnvironmentsInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeEnvironmentsOutput, error)
	CreateEnvironment(ctx context.Context, in *elasticbeanstalk.CreateEnvironmentInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.CreateEnvironmentOutput, error)
	UpdateEnvironment(ctx context.Context, in *elasticbeanstalk.UpdateEnvironmentInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.UpdateEnvironmentOutput, error)
	RestartAppServer(ctx context.Context, in *elasticbeanstalk.RestartAppServerInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.RestartAppServerOutput, error)
	TerminateEnvironment(ctx context.Context, in *elasticbeanstalk.TerminateEnvironmentInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.TerminateEnvironmentOutput, error)
	DescribeConfigurationOptions(ctx context.Context, in *elasticbeanstalk.DescribeConfigurationOptionsInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeConfigurationOptionsOutput, error)
	CreateConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.CreateConfigurationTemplateInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.CreateConfigurationTemplateOutput, error)
	UpdateConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.UpdateConfigurationTemplateInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.UpdateConfigurationTemplateOutput, error)
	DeleteConfigurationTemplate(ctx context.Context, in *elasticbeanstalk.DeleteConfigurationTemplateInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DeleteConfigurationTemplateOutput, error)
	DescribeConfigurationSettings(ctx context.Context, in *elasticbeanstalk.DescribeConfigurationSettingsInput, optFns ...func(*elasticbeanstalk.Options)) (*elasticbeanstalk.DescribeConfigurationSettingsOutput, error)
}

// Config selects the region and credentials of a Client.
type Config struct {
	Region string

	// Profile is a shared-config profile. Empty uses the default chain.
	Profile string

	// AccessKeyID and SecretAccessKey pin static credentials when both are set.
	AccessKeyID     string
	SecretAccessKey string

	// MaxAttempts bounds the SDK's own retries of throttled calls.
	MaxAttempts int
}

// Client adapts the Elastic Beanstalk API to engine.CloudEnvironmentService.
// It is safe for concurrent use.
type Client struct {
	api    api
	logger zerolog.Logger
}

var _ engine.CloudEnvironmentService = (*Client)(nil)

// New resolves AWS configuration and creates a client.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	logger.Debug().Str("region", awsCfg.Region).Msg("Created Elastic Beanstalk client")
	return newClient(elasticbeanstalk.NewFromConfig(awsCfg), logger), nil
}

func newClient(a api, logger zerolog.Logger) *Client {
	return &Client{
		api:    a,
		logger: logger.With().Str("provider", ProviderName).Logger(),
	}
}

// call runs one API operation with tracing, metrics and error classification.
func (c *Client) call(ctx context.Context, operation, resource string, fn func(ctx context.Context) error) error {
	return telemetry.RecordProviderOperation(ctx, ProviderName, operation, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			c.logger.Debug().Err(err).Str("operation", operation).Str("resource", resource).Msg("Control-plane call failed")
			return classify(err, operation, resource)
		}
		return nil
	})
}

// DescribeEnvironments returns every environment of the application with the
// given name, terminated ones included.
func (c *Client) DescribeEnvironments(ctx context.Context, applicationName, environmentName string) ([]engine.EnvironmentState, error) {
	var out *elasticbeanstalk.DescribeEnvironmentsOutput
	err := c.call(ctx, "describe-environments", environmentName, func(ctx context.Context) error {
		var err error
		out, err = c.api.DescribeEnvironments(ctx, &elasticbeanstalk.DescribeEnvironmentsInput{
			ApplicationName:  aws.String(applicationName),
			EnvironmentNames: []string{environmentName},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	states := make([]engine.EnvironmentState, 0, len(out.Environments))
	for _, e := range out.Environments {
		states = append(states, toState(e))
	}
	return states, nil
}

// CreateEnvironment launches an environment bound to a template.
func (c *Client) CreateEnvironment(ctx context.Context, req engine.CreateEnvironmentRequest) error {
	return c.call(ctx, "create-environment", req.EnvironmentName, func(ctx context.Context) error {
		_, err := c.api.CreateEnvironment(ctx, &elasticbeanstalk.CreateEnvironmentInput{
			ApplicationName: aws.String(req.ApplicationName),
			EnvironmentName: aws.String(req.EnvironmentName),
			TemplateName:    aws.String(req.TemplateName),
			VersionLabel:    optional(req.VersionLabel),
			CNAMEPrefix:     optional(req.CNAMEPrefix),
		})
		return err
	})
}

// UpdateEnvironment changes the template binding or the version label.
func (c *Client) UpdateEnvironment(ctx context.Context, req engine.UpdateEnvironmentRequest) error {
	return c.call(ctx, "update-environment", req.EnvironmentName, func(ctx context.Context) error {
		_, err := c.api.UpdateEnvironment(ctx, &elasticbeanstalk.UpdateEnvironmentInput{
			EnvironmentId:   aws.String(req.EnvironmentID),
			EnvironmentName: optional(req.EnvironmentName),
			TemplateName:    optional(req.TemplateName),
			VersionLabel:    optional(req.VersionLabel),
		})
		return err
	})
}

// RestartAppServer restarts the application server of an environment.
func (c *Client) RestartAppServer(ctx context.Context, environmentID string) error {
	return c.call(ctx, "restart-app-server", environmentID, func(ctx context.Context) error {
		_, err := c.api.RestartAppServer(ctx, &elasticbeanstalk.RestartAppServerInput{
			EnvironmentId: aws.String(environmentID),
		})
		return err
	})
}

// TerminateEnvironment terminates an environment.
func (c *Client) TerminateEnvironment(ctx context.Context, environmentID string, terminateResources bool) error {
	return c.call(ctx, "terminate-environment", environmentID, func(ctx context.Context) error {
		_, err := c.api.TerminateEnvironment(ctx, &elasticbeanstalk.TerminateEnvironmentInput{
			EnvironmentId:      aws.String(environmentID),
			TerminateResources: aws.Bool(terminateResources),
		})
		return err
	})
}

// DescribeConfigurationOptions probes a template.
func (c *Client) DescribeConfigurationOptions(ctx context.Context, applicationName, templateName string) (*engine.TemplateDescriptor, error) {
	var out *elasticbeanstalk.DescribeConfigurationOptionsOutput
	err := c.call(ctx, "describe-configuration-options", templateName, func(ctx context.Context) error {
		var err error
		out, err = c.api.DescribeConfigurationOptions(ctx, &elasticbeanstalk.DescribeConfigurationOptionsInput{
			ApplicationName: aws.String(applicationName),
			TemplateName:    aws.String(templateName),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &engine.TemplateDescriptor{
		SolutionStack: aws.ToString(out.SolutionStackName),
		OptionCount:   len(out.Options),
	}, nil
}

// CreateConfigurationTemplate creates a template.
func (c *Client) CreateConfigurationTemplate(ctx context.Context, applicationName, templateName, solutionStack string, settings []engine.ConfigurationSetting) error {
	return c.call(ctx, "create-configuration-template", templateName, func(ctx context.Context) error {
		_, err := c.api.CreateConfigurationTemplate(ctx, &elasticbeanstalk.CreateConfigurationTemplateInput{
			ApplicationName:   aws.String(applicationName),
			TemplateName:      aws.String(templateName),
			SolutionStackName: aws.String(solutionStack),
			OptionSettings:    toOptionSettings(settings),
		})
		return err
	})
}

// UpdateConfigurationTemplate replaces the settings of a template.
func (c *Client) UpdateConfigurationTemplate(ctx context.Context, applicationName, templateName string, settings []engine.ConfigurationSetting) error {
	return c.call(ctx, "update-configuration-template", templateName, func(ctx context.Context) error {
		_, err := c.api.UpdateConfigurationTemplate(ctx, &elasticbeanstalk.UpdateConfigurationTemplateInput{
			ApplicationName: aws.String(applicationName),
			TemplateName:    aws.String(templateName),
			OptionSettings:  toOptionSettings(settings),
		})
		return err
	})
}

// DeleteConfigurationTemplate deletes a template.
func (c *Client) DeleteConfigurationTemplate(ctx context.Context, applicationName, templateName string) error {
	return c.call(ctx, "delete-configuration-template", templateName, func(ctx context.Context) error {
		_, err := c.api.DeleteConfigurationTemplate(ctx, &elasticbeanstalk.DeleteConfigurationTemplateInput{
			ApplicationName: aws.String(applicationName),
			TemplateName:    aws.String(templateName),
		})
		return err
	})
}

// DescribeConfigurationSettings returns the effective settings of an environment.
func (c *Client) DescribeConfigurationSettings(ctx context.Context, applicationName, environmentName string) ([]engine.ConfigurationSetting, error) {
	var out *elasticbeanstalk.DescribeConfigurationSettingsOutput
	err := c.call(ctx, "describe-configuration-settings", environmentName, func(ctx context.Context) error {
		var err error
		out, err = c.api.DescribeConfigurationSettings(ctx, &elasticbeanstalk.DescribeConfigurationSettingsInput{
			ApplicationName: aws.String(applicationName),
			EnvironmentName: aws.String(environmentName),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var settings []engine.ConfigurationSetting
	for _, desc := range out.ConfigurationSettings {
		for _, o := range desc.OptionSettings {
			settings = append(settings, engine.ConfigurationSetting{
				Namespace:  aws.ToString(o.Namespace),
				OptionName: aws.ToString(o.OptionName),
				Value:      aws.ToString(o.Value),
			})
		}
	}
	return settings, nil
}

func toState(e types.EnvironmentDescription) engine.EnvironmentState {
	return engine.EnvironmentState{
		EnvironmentID:   aws.ToString(e.EnvironmentId),
		EnvironmentName: aws.ToString(e.EnvironmentName),
		Status:          engine.ParseEnvironmentStatus(string(e.Status)),
		VersionLabel:    aws.ToString(e.VersionLabel),
		TemplateName:    aws.ToString(e.TemplateName),
		CNAME:           aws.ToString(e.CNAME),
		Health:          string(e.Health),
	}
}

func toOptionSettings(settings []engine.ConfigurationSetting) []types.ConfigurationOptionSetting {
	out := make([]types.ConfigurationOptionSetting, len(settings))
	for i, s := range settings {
		out[i] = types.ConfigurationOptionSetting{
			Namespace:  aws.String(s.Namespace),
			OptionName: aws.String(s.OptionName),
			Value:      aws.String(s.Value),
		}
	}
	return out
}

// optional maps an empty string to an absent field.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
