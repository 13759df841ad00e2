package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// BeginRun records the start of a batch and returns its ID.
func (s *SQLiteStore) BeginRun(ctx context.Context, kind engine.RunKind, environments []string) (string, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:           uuid.New().String(),
		Kind:         kind,
		Status:       RunStatusRunning,
		Environments: environments,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

// RecordReconciliation records the outcome of one environment reconciliation.
func (s *SQLiteStore) RecordReconciliation(ctx context.Context, runID string, result engine.ReconciliationResult) error {
	r := &EnvironmentResult{
		RunID:       runID,
		Environment: result.Environment,
		Operation:   string(result.Operation),
		Outcome:     OutcomeSucceeded,
		StartedAt:   result.StartedAt.UTC(),
		Duration:    result.Duration,
	}
	if result.State != nil {
		r.EnvironmentID = result.State.EnvironmentID
		r.Status = string(result.State.Status)
		r.VersionLabel = result.State.VersionLabel
	}
	if result.Err != nil {
		r.Outcome = OutcomeFailed
		setError(r, result.Err)
	}
	return s.AddResult(ctx, r)
}

// RecordTermination records the outcome of one environment termination.
func (s *SQLiteStore) RecordTermination(ctx context.Context, runID string, result engine.TerminationResult) error {
	r := &EnvironmentResult{
		RunID:         runID,
		Environment:   result.Environment,
		EnvironmentID: result.EnvironmentID,
		Operation:     string(engine.OperationTerminate),
		Outcome:       OutcomeSucceeded,
		StartedAt:     time.Now().UTC(),
	}
	switch {
	case result.Err != nil:
		r.Outcome = OutcomeFailed
		setError(r, result.Err)
	case result.Skipped:
		r.Operation = string(engine.OperationSkip)
		r.Outcome = OutcomeSkipped
	}
	return s.AddResult(ctx, r)
}

// EndRun marks a run completed, or failed when runErr is set.
func (s *SQLiteStore) EndRun(ctx context.Context, runID string, runErr error) error {
	if runErr == nil {
		return s.UpdateRunStatus(ctx, runID, RunStatusCompleted, nil)
	}
	msg := runErr.Error()
	return s.UpdateRunStatus(ctx, runID, RunStatusFailed, &msg)
}

func setError(r *EnvironmentResult, err error) {
	msg := err.Error()
	r.Error = &msg

	var cpe *engine.ControlPlaneError
	if errors.As(err, &cpe) {
		r.ErrorClass = string(cpe.Class)
		r.ErrorCode = cpe.Code
	}
}
