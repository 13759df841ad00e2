package stores

import (
	"context"
	"time"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// RunStatus represents the status of a recorded batch run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Outcome is how one environment fared within a run
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Run represents one setup or teardown batch
type Run struct {
	ID           string         `json:"id"`
	Kind         engine.RunKind `json:"kind"`
	Status       RunStatus      `json:"status"`
	Environments []string       `json:"environments"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Error        *string        `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// EnvironmentResult is the recorded outcome of one environment in a run
type EnvironmentResult struct {
	ID            int64         `json:"id"`
	RunID         string        `json:"run_id"`
	Environment   string        `json:"environment"`
	EnvironmentID string        `json:"environment_id,omitempty"`
	Operation     string        `json:"operation,omitempty"`
	Outcome       Outcome       `json:"outcome"`
	Status        string        `json:"status,omitempty"` // last observed environment status
	VersionLabel  string        `json:"version_label,omitempty"`
	Error         *string       `json:"error,omitempty"`
	ErrorClass    string        `json:"error_class,omitempty"`
	ErrorCode     string        `json:"error_code,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Store defines the interface for the run history persistence layer
type Store interface {
	engine.RunRecorder

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)

	// Result operations
	AddResult(ctx context.Context, result *EnvironmentResult) error
	ListResultsByRun(ctx context.Context, runID string) ([]*EnvironmentResult, error)
	ListResultsByEnvironment(ctx context.Context, environment string, limit int) ([]*EnvironmentResult, error)
}
