package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EnvironmentStatus is the lifecycle status the control plane reports for an
// environment.
type EnvironmentStatus string

const (
	// StatusLaunching indicates the environment is being created.
	StatusLaunching EnvironmentStatus = "Launching"

	// StatusUpdating indicates a configuration or version change is settling.
	StatusUpdating EnvironmentStatus = "Updating"

	// StatusReady indicates the environment accepts mutating calls.
	StatusReady EnvironmentStatus = "Ready"

	// StatusTerminating indicates the environment is being torn down.
	StatusTerminating EnvironmentStatus = "Terminating"

	// StatusTerminated indicates the environment is gone. Its name may be reused.
	StatusTerminated EnvironmentStatus = "Terminated"

	// StatusUnknown covers any status string the engine does not recognise.
	StatusUnknown EnvironmentStatus = "Unknown"
)

// ParseEnvironmentStatus maps a provider status string onto an EnvironmentStatus.
// Matching is case-insensitive; unrecognised values map to StatusUnknown.
func ParseEnvironmentStatus(s string) EnvironmentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "launching":
		return StatusLaunching
	case "updating":
		return StatusUpdating
	case "ready":
		return StatusReady
	case "terminating":
		return StatusTerminating
	case "terminated":
		return StatusTerminated
	default:
		return StatusUnknown
	}
}

// IsTerminal returns true if the environment is gone or going away.
// Terminal environments are treated as absent.
func (s EnvironmentStatus) IsTerminal() bool {
	return s == StatusTerminated || s == StatusTerminating
}

// IsLive returns true for any non-terminal status.
func (s EnvironmentStatus) IsLive() bool {
	return !s.IsTerminal()
}

// IsReady returns true if the environment can accept a mutating call.
func (s EnvironmentStatus) IsReady() bool {
	return s == StatusReady
}

// Validate checks if the status is valid.
func (s EnvironmentStatus) Validate() error {
	switch s {
	case StatusLaunching, StatusUpdating, StatusReady,
		StatusTerminating, StatusTerminated, StatusUnknown:
		return nil
	default:
		return fmt.Errorf("invalid environment status: %s", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s EnvironmentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler. Unknown values decode to
// StatusUnknown rather than failing.
func (s *EnvironmentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseEnvironmentStatus(str)
	return nil
}

// Operation is the major decision a reconciliation run took for one environment.
type Operation string

const (
	// OperationCreate indicates the environment was absent and was created.
	OperationCreate Operation = "create"

	// OperationUpdateConfiguration indicates the template binding was reapplied.
	OperationUpdateConfiguration Operation = "update-configuration"

	// OperationUpdateVersion indicates the template binding was reapplied and
	// the application version was then changed.
	OperationUpdateVersion Operation = "update-version"

	// OperationRestart indicates only the application server was restarted.
	OperationRestart Operation = "restart"

	// OperationTerminate indicates the environment was terminated.
	OperationTerminate Operation = "terminate"

	// OperationSkip indicates no call was made because the environment was absent.
	OperationSkip Operation = "skip"
)

// IsMutating returns true if the operation changes the environment.
func (o Operation) IsMutating() bool {
	return o != OperationSkip && o != ""
}

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationCreate, OperationUpdateConfiguration, OperationUpdateVersion,
		OperationRestart, OperationTerminate, OperationSkip:
		return nil
	default:
		return fmt.Errorf("invalid operation: %s", o)
	}
}

// Control-plane operation names used to tag errors, spans and metrics.
const (
	opDescribeEnvironments  = "describe-environments"
	opCreateEnvironment     = "create-environment"
	opUpdateConfiguration   = "update-configuration"
	opUpdateVersion         = "update-version"
	opRestartAppServer      = "restart-app-server"
	opTerminateEnvironment  = "terminate-environment"
	opAwaitReady            = "await-ready"
	opDescribeTemplate      = "describe-template"
	opCreateTemplate        = "create-template"
	opUpdateTemplate        = "update-template"
	opDeleteTemplate        = "delete-template"
	opDescribeConfiguration = "describe-configuration-settings"
)
