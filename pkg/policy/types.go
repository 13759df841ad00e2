package policy

import (
	"time"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but never blocks a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"

	// SeverityCritical blocks the run.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the settings.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must define
// a "deny" set whose members are strings or objects with "message" and an
// optional "severity".
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Family is the template family whose settings were evaluated.
	Family string `json:"family"`

	// Setting is the "namespace/option" key the violation concerns, if any.
	Setting string `json:"setting,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against one
// template's settings.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations and evaluation failures.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as "input".
type Input struct {
	Family     string `json:"family"`
	Stack      string `json:"stack,omitempty"`
	Production bool   `json:"production"`

	// Settings maps "namespace/option" to value.
	Settings map[string]string `json:"settings"`

	// Options is the settings list in build order.
	Options []Option `json:"options"`
}

// Option is one configuration setting as policies see it.
type Option struct {
	Namespace string `json:"namespace"`
	Name      string `json:"option"`
	Value     string `json:"value"`
}

// NewInput builds the policy input for one template family.
func NewInput(family, stack string, production bool, settings []engine.ConfigurationSetting) *Input {
	in := &Input{
		Family:     family,
		Stack:      stack,
		Production: production,
		Settings:   make(map[string]string, len(settings)),
		Options:    make([]Option, len(settings)),
	}
	for i, s := range settings {
		in.Settings[s.Key()] = s.Value
		in.Options[i] = Option{Namespace: s.Namespace, Name: s.OptionName, Value: s.Value}
	}
	return in
}
