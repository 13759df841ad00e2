package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/beanstack/pkg/engine"

// Reconciler brings one environment into agreement with its spec.
type Reconciler struct {
	service  CloudEnvironmentService
	observer *Observer
	logger   zerolog.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer

	// reapplyConfiguration reissues the template binding on every live
	// environment. While it is set the restart-only branch never runs.
	reapplyConfiguration bool
}

// NewReconciler creates a reconciler. The observer gates every mutating call.
func NewReconciler(service CloudEnvironmentService, observer *Observer, logger zerolog.Logger, metrics MetricsRecorder) *Reconciler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Reconciler{
		service:              service,
		observer:             observer,
		logger:               logger.With().Str("component", "reconciler").Logger(),
		metrics:              metrics,
		tracer:               otel.Tracer(tracerName),
		reapplyConfiguration: true,
	}
}

// Reconcile runs the decision procedure once for spec and returns the final
// observed state.
func (r *Reconciler) Reconcile(ctx context.Context, spec EnvironmentSpec, handle TemplateHandle) (EnvironmentState, error) {
	result := r.Run(ctx, spec, handle)
	if result.Err != nil {
		return EnvironmentState{}, result.Err
	}
	return *result.State, nil
}

// Run is Reconcile with the decision, timing and failure captured in a result.
func (r *Reconciler) Run(ctx context.Context, spec EnvironmentSpec, handle TemplateHandle) ReconciliationResult {
	started := time.Now()

	ctx, span := r.tracer.Start(ctx, "environment.reconcile", trace.WithAttributes(
		attribute.String("environment.name", spec.EnvironmentName),
		attribute.String("template.name", handle.Name),
		attribute.String("version.label", spec.Version.VersionLabel),
	))
	defer span.End()

	state, op, err := r.reconcile(ctx, spec, handle)

	result := ReconciliationResult{
		Environment: spec.EnvironmentName,
		Operation:   op,
		Err:         err,
		StartedAt:   started,
		Duration:    time.Since(started),
	}

	status := "succeeded"
	if err != nil {
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error().Err(err).
			Str("environment", spec.EnvironmentName).
			Str("operation", string(op)).
			Msg("Reconciliation failed")
	} else {
		result.State = &state
		span.SetAttributes(attribute.String("operation", string(op)))
		span.SetStatus(codes.Ok, "")
		r.logger.Info().
			Str("environment", spec.EnvironmentName).
			Str("operation", string(op)).
			Str("status", string(state.Status)).
			Str("version", state.VersionLabel).
			Dur("duration", result.Duration).
			Msg("Reconciliation completed")
	}
	r.metrics.RecordReconciliation(string(op), status, result.Duration)

	return result
}

func (r *Reconciler) reconcile(ctx context.Context, spec EnvironmentSpec, handle TemplateHandle) (EnvironmentState, Operation, error) {
	name := spec.EnvironmentName
	log := r.logger.With().Str("environment", name).Logger()

	current, err := r.observer.Describe(ctx, name)
	if err != nil {
		return EnvironmentState{}, "", err
	}

	if current == nil {
		log.Info().
			Str("template", handle.Name).
			Str("version", spec.Version.VersionLabel).
			Str("cname_prefix", spec.CNAMEPrefix).
			Msg("Environment absent, creating")

		err := r.service.CreateEnvironment(ctx, CreateEnvironmentRequest{
			ApplicationName: spec.Version.ApplicationName,
			EnvironmentName: name,
			TemplateName:    handle.Name,
			VersionLabel:    spec.Version.VersionLabel,
			CNAMEPrefix:     spec.CNAMEPrefix,
		})
		if err != nil {
			return EnvironmentState{}, OperationCreate, controlPlaneError(err, name, opCreateEnvironment)
		}

		// Creation is not awaited; the next run or an explicit wait picks it up.
		created, err := r.observer.Describe(ctx, name)
		if err != nil {
			return EnvironmentState{}, OperationCreate, err
		}
		if created == nil {
			return EnvironmentState{
				EnvironmentName: name,
				Status:          StatusLaunching,
				VersionLabel:    spec.Version.VersionLabel,
				TemplateName:    handle.Name,
			}, OperationCreate, nil
		}
		return *created, OperationCreate, nil
	}

	ready, err := r.observer.AwaitReady(ctx, name)
	if err != nil {
		return EnvironmentState{}, "", err
	}

	updated := false
	op := OperationUpdateConfiguration

	if r.reapplyConfiguration {
		log.Info().Str("template", handle.Name).Msg("Reapplying configuration template")
		err := r.service.UpdateEnvironment(ctx, UpdateEnvironmentRequest{
			EnvironmentID:   ready.EnvironmentID,
			EnvironmentName: name,
			TemplateName:    handle.Name,
		})
		if err != nil {
			return EnvironmentState{}, op, controlPlaneError(err, name, opUpdateConfiguration)
		}
		updated = true
	}

	if ready.VersionLabel != spec.Version.VersionLabel {
		op = OperationUpdateVersion

		// The control plane rejects a second mutation while the first settles.
		ready, err = r.observer.AwaitReady(ctx, name)
		if err != nil {
			return EnvironmentState{}, op, err
		}

		log.Info().
			Str("from", ready.VersionLabel).
			Str("to", spec.Version.VersionLabel).
			Msg("Updating application version")
		err = r.service.UpdateEnvironment(ctx, UpdateEnvironmentRequest{
			EnvironmentID:   ready.EnvironmentID,
			EnvironmentName: name,
			VersionLabel:    spec.Version.VersionLabel,
		})
		if err != nil {
			return EnvironmentState{}, op, controlPlaneError(err, name, opUpdateVersion)
		}
		updated = true
	}

	// Dead while reapplyConfiguration is set: every live environment has just
	// had its template binding reissued. Kept for a settings-diff decision.
	if !updated {
		op = OperationRestart
		log.Info().Msg("Nothing to update, restarting application server")
		if err := r.service.RestartAppServer(ctx, ready.EnvironmentID); err != nil {
			return EnvironmentState{}, op, controlPlaneError(err, name, opRestartAppServer)
		}
	}

	final, err := r.observer.Describe(ctx, name)
	if err != nil {
		return EnvironmentState{}, op, err
	}
	if final == nil {
		return EnvironmentState{}, op, &EnvironmentNotFoundError{Environment: name}
	}
	return *final, op, nil
}

// Plan predicts the major decision Reconcile would take for spec, given the
// current state. A nil state means the environment is absent. Nothing is
// called on the control plane.
func (r *Reconciler) Plan(current *EnvironmentState, spec EnvironmentSpec) Operation {
	switch {
	case current == nil:
		return OperationCreate
	case current.VersionLabel != spec.Version.VersionLabel:
		return OperationUpdateVersion
	case r.reapplyConfiguration:
		return OperationUpdateConfiguration
	default:
		return OperationRestart
	}
}
