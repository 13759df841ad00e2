package engine

import (
	"context"
)

// CloudEnvironmentService is the control-plane capability the engine consumes.
// All calls are remote and asynchronous in effect: state changes settle after
// the call returns. Implementations must be safe for concurrent use and must
// report the provider's "invalid parameter" code as a ControlPlaneError with
// Code ErrCodeInvalidParameter.
type CloudEnvironmentService interface {
	// DescribeEnvironments returns every environment of the application with
	// the given name, including terminated incarnations.
	DescribeEnvironments(ctx context.Context, applicationName, environmentName string) ([]EnvironmentState, error)

	// CreateEnvironment launches a new environment bound to a template.
	CreateEnvironment(ctx context.Context, req CreateEnvironmentRequest) error

	// UpdateEnvironment changes the template binding or the version label.
	// Empty fields in the request are left unchanged.
	UpdateEnvironment(ctx context.Context, req UpdateEnvironmentRequest) error

	// RestartAppServer restarts the application server on every instance.
	RestartAppServer(ctx context.Context, environmentID string) error

	// TerminateEnvironment terminates an environment.
	TerminateEnvironment(ctx context.Context, environmentID string, terminateResources bool) error

	// DescribeConfigurationOptions probes a template.
	DescribeConfigurationOptions(ctx context.Context, applicationName, templateName string) (*TemplateDescriptor, error)

	// CreateConfigurationTemplate creates a template with the full settings list.
	CreateConfigurationTemplate(ctx context.Context, applicationName, templateName, solutionStack string, settings []ConfigurationSetting) error

	// UpdateConfigurationTemplate replaces the settings of a template.
	UpdateConfigurationTemplate(ctx context.Context, applicationName, templateName string, settings []ConfigurationSetting) error

	// DeleteConfigurationTemplate deletes a template.
	DeleteConfigurationTemplate(ctx context.Context, applicationName, templateName string) error

	// DescribeConfigurationSettings returns the effective settings of a live
	// environment. It is only used for drift reporting.
	DescribeConfigurationSettings(ctx context.Context, applicationName, environmentName string) ([]ConfigurationSetting, error)
}

// CreateEnvironmentRequest carries the arguments of CreateEnvironment.
type CreateEnvironmentRequest struct {
	ApplicationName string
	EnvironmentName string
	TemplateName    string
	VersionLabel    string
	CNAMEPrefix     string
}

// UpdateEnvironmentRequest carries the arguments of UpdateEnvironment.
type UpdateEnvironmentRequest struct {
	EnvironmentID   string
	EnvironmentName string
	TemplateName    string
	VersionLabel    string
}

// TemplateDescriptor is what a template probe returns.
type TemplateDescriptor struct {
	SolutionStack string
	OptionCount   int
}

// RunKind distinguishes recorded batch runs.
type RunKind string

const (
	RunKindReconcile RunKind = "reconcile"
	RunKindTerminate RunKind = "terminate"
)

// RunRecorder persists the history of batch runs. Recording failures are
// logged and never fail a run.
type RunRecorder interface {
	BeginRun(ctx context.Context, kind RunKind, environments []string) (string, error)
	RecordReconciliation(ctx context.Context, runID string, result ReconciliationResult) error
	RecordTermination(ctx context.Context, runID string, result TerminationResult) error
	EndRun(ctx context.Context, runID string, runErr error) error
}

// SettingsGuard vets a template's settings before anything is mutated.
// A non-nil error aborts the batch.
type SettingsGuard interface {
	CheckSettings(ctx context.Context, family string, settings []ConfigurationSetting) error
}
