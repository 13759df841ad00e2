package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// CoordinatorOptions configures optional Coordinator collaborators.
type CoordinatorOptions struct {
	// Recorder persists run history. Optional.
	Recorder RunRecorder

	// Guard vets template settings before any mutation. Optional.
	Guard SettingsGuard

	Logger zerolog.Logger
}

// Coordinator fans reconciliation out across environments and tears them down.
type Coordinator struct {
	observer   *Observer
	templates  *TemplateManager
	reconciler *Reconciler
	service    CloudEnvironmentService
	recorder   RunRecorder
	guard      SettingsGuard
	logger     zerolog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(service CloudEnvironmentService, observer *Observer, templates *TemplateManager, reconciler *Reconciler, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		observer:   observer,
		templates:  templates,
		reconciler: reconciler,
		service:    service,
		recorder:   opts.Recorder,
		guard:      opts.Guard,
		logger:     opts.Logger.With().Str("component", "coordinator").Logger(),
	}
}

// ReconcileAll ensures every template family sequentially, then reconciles
// every environment concurrently on a pool sized to the environment count.
// All tasks run to completion; if any failed a *ReconciliationFailure is
// returned alongside the full result list.
func (c *Coordinator) ReconcileAll(ctx context.Context, req ReconcileRequest) ([]ReconciliationResult, error) {
	names := make([]string, len(req.Environments))
	for i := range req.Environments {
		names[i] = req.Environments[i].EnvironmentName
	}
	runID := c.beginRun(ctx, RunKindReconcile, names)

	handles, err := c.ensureTemplates(ctx, req.Templates)
	if err != nil {
		c.endRun(ctx, runID, err)
		return nil, err
	}

	for i := range req.Environments {
		if _, ok := handles[req.Environments[i].TemplateFamily]; !ok {
			err := NewPermanentError(fmt.Sprintf("no template ensured for family %q", req.Environments[i].TemplateFamily), nil).
				WithResource(req.Environments[i].EnvironmentName).
				WithCode(ErrCodeValidation)
			c.endRun(ctx, runID, err)
			return nil, err
		}
	}

	pool := NewWorkerPool(len(req.Environments))
	defer pool.Close()

	results := make([]ReconciliationResult, len(req.Environments))
	tasks := make([]Task, len(req.Environments))
	for i := range req.Environments {
		spec := req.Environments[i]
		idx := i
		tasks[i] = func(ctx context.Context) error {
			results[idx] = c.reconciler.Run(ctx, spec, handles[spec.TemplateFamily])
			return results[idx].Err
		}
	}

	c.logger.Info().
		Int("environments", len(tasks)).
		Int("workers", pool.Size()).
		Msg("Reconciling environments")

	errs, err := pool.Run(ctx, tasks)
	if err != nil {
		c.endRun(ctx, runID, err)
		return nil, err
	}
	for i, taskErr := range errs {
		// A panicking task never filled its slot.
		if taskErr != nil && results[i].Err == nil {
			results[i].Environment = names[i]
			results[i].Err = taskErr
		}
	}

	for i := range results {
		c.recordReconciliation(ctx, runID, results[i])
	}

	failure := reconciliationFailure(names, func(i int) error { return results[i].Err })
	if failure != nil {
		c.endRun(ctx, runID, failure)
		return results, failure
	}
	c.endRun(ctx, runID, nil)
	return results, nil
}

func (c *Coordinator) ensureTemplates(ctx context.Context, requests []TemplateRequest) (map[string]TemplateHandle, error) {
	if c.guard != nil {
		for _, tr := range requests {
			if err := c.guard.CheckSettings(ctx, tr.Family, tr.Settings); err != nil {
				return nil, fmt.Errorf("settings for template family %s rejected: %w", tr.Family, err)
			}
		}
	}

	handles := make(map[string]TemplateHandle, len(requests))
	for _, tr := range requests {
		handle, err := c.templates.EnsureTemplate(ctx, tr.Family, tr.Settings, tr.ApplicationName, tr.SolutionStack)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure template family %s: %w", tr.Family, err)
		}
		handles[tr.Family] = handle
	}
	return handles, nil
}

// TerminateAll terminates the named environments one after another. Absent
// environments are skipped without error.
func (c *Coordinator) TerminateAll(ctx context.Context, names []string) ([]TerminationResult, error) {
	runID := c.beginRun(ctx, RunKindTerminate, names)
	results := make([]TerminationResult, len(names))

	for i, name := range names {
		results[i] = c.terminate(ctx, name)
		c.recordTermination(ctx, runID, results[i])
	}

	failure := reconciliationFailure(names, func(i int) error { return results[i].Err })
	if failure != nil {
		c.endRun(ctx, runID, failure)
		return results, failure
	}
	c.endRun(ctx, runID, nil)
	return results, nil
}

func (c *Coordinator) terminate(ctx context.Context, name string) TerminationResult {
	result := TerminationResult{Environment: name}

	state, err := c.observer.Describe(ctx, name)
	if err != nil {
		result.Err = err
		return result
	}
	if state == nil {
		c.logger.Info().Str("environment", name).Msg("Environment absent, skipping termination")
		result.Skipped = true
		return result
	}

	result.EnvironmentID = state.EnvironmentID
	if err := c.service.TerminateEnvironment(ctx, state.EnvironmentID, true); err != nil {
		result.Err = controlPlaneError(err, name, opTerminateEnvironment)
		return result
	}
	c.logger.Info().
		Str("environment", name).
		Str("environment_id", state.EnvironmentID).
		Msg("Terminating environment")
	return result
}

// DescribeAll returns the live state of each named environment, nil where absent.
func (c *Coordinator) DescribeAll(ctx context.Context, names []string) ([]*EnvironmentState, error) {
	states := make([]*EnvironmentState, len(names))
	for i, name := range names {
		state, err := c.observer.Describe(ctx, name)
		if err != nil {
			return nil, err
		}
		states[i] = state
	}
	return states, nil
}

// DeleteTemplates deletes the templates of the given families where present.
func (c *Coordinator) DeleteTemplates(ctx context.Context, families []string, applicationName string) error {
	for _, family := range families {
		if _, err := c.templates.DeleteTemplate(ctx, family, applicationName); err != nil {
			return err
		}
	}
	return nil
}

func reconciliationFailure(names []string, errAt func(int) error) error {
	var failure *ReconciliationFailure
	for i, name := range names {
		err := errAt(i)
		if err == nil {
			continue
		}
		if failure == nil {
			failure = &ReconciliationFailure{
				Failed: make(map[string]error),
				First:  err,
				Total:  len(names),
			}
		}
		failure.Failed[name] = err
	}
	if failure == nil {
		return nil
	}
	return failure
}

func (c *Coordinator) beginRun(ctx context.Context, kind RunKind, names []string) string {
	if c.recorder == nil {
		return ""
	}
	runID, err := c.recorder.BeginRun(ctx, kind, names)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to record run start")
		return ""
	}
	return runID
}

func (c *Coordinator) recordReconciliation(ctx context.Context, runID string, result ReconciliationResult) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.RecordReconciliation(ctx, runID, result); err != nil {
		c.logger.Warn().Err(err).Str("environment", result.Environment).Msg("Failed to record reconciliation result")
	}
}

func (c *Coordinator) recordTermination(ctx context.Context, runID string, result TerminationResult) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.RecordTermination(ctx, runID, result); err != nil {
		c.logger.Warn().Err(err).Str("environment", result.Environment).Msg("Failed to record termination result")
	}
}

func (c *Coordinator) endRun(ctx context.Context, runID string, runErr error) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.EndRun(ctx, runID, runErr); err != nil {
		c.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run end")
	}
}
