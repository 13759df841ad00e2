package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfroyo/beanstack/pkg/engine"
)

func TestRecorderReconcileRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	runID, err := store.BeginRun(ctx, engine.RunKindReconcile, []string{"auth-acme-dev", "repo-acme-dev"})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if runID == "" {
		t.Fatal("Expected a run ID")
	}

	ok := engine.ReconciliationResult{
		Environment: "auth-acme-dev",
		Operation:   engine.OperationUpdateVersion,
		State: &engine.EnvironmentState{
			EnvironmentID: "e-1",
			Status:        engine.StatusReady,
			VersionLabel:  "1.2.0",
		},
		StartedAt: time.Now(),
		Duration:  2 * time.Second,
	}
	failErr := engine.NewConflictError("busy", nil).WithCode(engine.ErrCodeConflict)
	failed := engine.ReconciliationResult{
		Environment: "repo-acme-dev",
		Operation:   engine.OperationUpdateConfiguration,
		Err:         failErr,
		StartedAt:   time.Now(),
	}

	for _, r := range []engine.ReconciliationResult{ok, failed} {
		if err := store.RecordReconciliation(ctx, runID, r); err != nil {
			t.Fatalf("RecordReconciliation failed: %v", err)
		}
	}
	if err := store.EndRun(ctx, runID, errors.New("1 of 2 environments failed")); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != RunStatusFailed {
		t.Errorf("Expected failed run, got %s", run.Status)
	}
	if run.Duration() < 0 {
		t.Errorf("Expected non-negative duration, got %v", run.Duration())
	}

	results, err := store.ListResultsByRun(ctx, runID)
	if err != nil {
		t.Fatalf("ListResultsByRun failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.Outcome != OutcomeSucceeded || first.EnvironmentID != "e-1" || first.VersionLabel != "1.2.0" {
		t.Errorf("Unexpected first result: %+v", first)
	}
	if first.Status != string(engine.StatusReady) {
		t.Errorf("Expected status Ready, got %s", first.Status)
	}

	second := results[1]
	if second.Outcome != OutcomeFailed {
		t.Errorf("Expected failed outcome, got %s", second.Outcome)
	}
	if second.ErrorClass != string(engine.ErrorClassConflict) || second.ErrorCode != engine.ErrCodeConflict {
		t.Errorf("Unexpected error classification: %s/%s", second.ErrorClass, second.ErrorCode)
	}
	if second.Error == nil {
		t.Error("Expected error message to be recorded")
	}
}

func TestRecorderTerminateRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	runID, err := store.BeginRun(ctx, engine.RunKindTerminate, []string{"auth-acme-dev", "repo-acme-dev"})
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	results := []engine.TerminationResult{
		{Environment: "auth-acme-dev", EnvironmentID: "e-1"},
		{Environment: "repo-acme-dev", Skipped: true},
	}
	for _, r := range results {
		if err := store.RecordTermination(ctx, runID, r); err != nil {
			t.Fatalf("RecordTermination failed: %v", err)
		}
	}
	if err := store.EndRun(ctx, runID, nil); err != nil {
		t.Fatalf("EndRun failed: %v", err)
	}

	run, _ := store.GetRun(ctx, runID)
	if run.Status != RunStatusCompleted || run.Error != nil {
		t.Errorf("Unexpected run: %+v", run)
	}

	recorded, _ := store.ListResultsByRun(ctx, runID)
	if len(recorded) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(recorded))
	}
	if recorded[0].Operation != string(engine.OperationTerminate) || recorded[0].Outcome != OutcomeSucceeded {
		t.Errorf("Unexpected first result: %+v", recorded[0])
	}
	if recorded[1].Operation != string(engine.OperationSkip) || recorded[1].Outcome != OutcomeSkipped {
		t.Errorf("Unexpected second result: %+v", recorded[1])
	}
}

func TestEndRunUnknown(t *testing.T) {
	store := setupTestStore(t)

	if err := store.EndRun(context.Background(), "missing", nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}
