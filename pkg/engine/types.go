package engine

import (
	"time"
)

// ApplicationVersion identifies one deployable bundle. It is produced upstream
// and treated as opaque.
type ApplicationVersion struct {
	// ApplicationName is the application that owns the version.
	ApplicationName string `json:"application_name"`

	// VersionLabel is the label of the version to deploy.
	VersionLabel string `json:"version_label"`
}

// EnvironmentSpec is the desired state of one environment for a single run.
// Construct it through config.StackConfig so that EnvironmentName and
// CNAMEPrefix are always derived from the naming configuration.
type EnvironmentSpec struct {
	// ServicePrefix is the logical service (auth, portal, repo, ...).
	ServicePrefix string `json:"service_prefix"`

	// EnvironmentName is derived from ServicePrefix and the stack naming.
	EnvironmentName string `json:"environment_name"`

	// CNAMEPrefix is derived from EnvironmentName and the CNAME suffix.
	CNAMEPrefix string `json:"cname_prefix"`

	// TemplateFamily is the configuration template family (generic, portal).
	TemplateFamily string `json:"template_family"`

	// Version is the desired application version.
	Version ApplicationVersion `json:"version"`
}

// EnvironmentState is a point-in-time read of an environment. It is never
// cached; every decision re-fetches it.
type EnvironmentState struct {
	EnvironmentID   string            `json:"environment_id"`
	EnvironmentName string            `json:"environment_name"`
	Status          EnvironmentStatus `json:"status"`
	VersionLabel    string            `json:"version_label"`
	TemplateName    string            `json:"template_name,omitempty"`
	CNAME           string            `json:"cname,omitempty"`
	Health          string            `json:"health,omitempty"`
}

// ConfigurationSetting is one (namespace, option, value) triple. Settings are
// unique by (Namespace, OptionName) within a list.
type ConfigurationSetting struct {
	Namespace  string `json:"namespace"`
	OptionName string `json:"option_name"`
	Value      string `json:"value"`
}

// Key returns the identity of the setting within a list.
func (s ConfigurationSetting) Key() string {
	return s.Namespace + "/" + s.OptionName
}

// TemplateHandle names an ensured configuration template.
type TemplateHandle struct {
	// Family is the template family the handle was ensured for.
	Family string `json:"family"`

	// Name is the template name to bind environments to.
	Name string `json:"name"`

	// ApplicationName is the application owning the template.
	ApplicationName string `json:"application_name"`

	// SolutionStack is the platform the template was created for.
	SolutionStack string `json:"solution_stack"`

	// Created is true if the template was absent and has been created.
	Created bool `json:"created"`

	// Fingerprint is a digest of the settings the template was written with.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ReconciliationResult is the outcome of reconciling one environment.
type ReconciliationResult struct {
	// Environment is the environment name.
	Environment string `json:"environment"`

	// Operation is the major decision taken. It is empty if the run failed
	// before a decision was made.
	Operation Operation `json:"operation,omitempty"`

	// State is the final observed state on success.
	State *EnvironmentState `json:"state,omitempty"`

	// Err is the failure cause.
	Err error `json:"-"`

	// StartedAt is when the reconciliation started.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the reconciliation took.
	Duration time.Duration `json:"duration"`
}

// Failed returns true if the reconciliation failed.
func (r ReconciliationResult) Failed() bool {
	return r.Err != nil
}

// TerminationResult is the outcome of tearing down one environment.
type TerminationResult struct {
	Environment   string `json:"environment"`
	EnvironmentID string `json:"environment_id,omitempty"`
	Skipped       bool   `json:"skipped"`
	Err           error  `json:"-"`
}

// TemplateRequest asks the coordinator to ensure one template family.
type TemplateRequest struct {
	Family          string
	Settings        []ConfigurationSetting
	ApplicationName string
	SolutionStack   string
}

// ReconcileRequest is the full input of a batch run.
type ReconcileRequest struct {
	Templates    []TemplateRequest
	Environments []EnvironmentSpec
}
