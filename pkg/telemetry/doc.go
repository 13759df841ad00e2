// Package telemetry provides logging, tracing and metrics for beanstack.
//
// # Logging
//
// Logger wraps zerolog with component, run and environment fields. Engine
// components take the underlying zerolog.Logger via Logger.Zerolog.
//
// # Metrics
//
// Metrics registers Prometheus collectors on a private registry:
//
//   - beanstack_runs_started_total / runs_completed_total / run_duration_seconds
//   - beanstack_reconciliations_total{operation,status}
//   - beanstack_ready_wait_seconds{environment}
//   - beanstack_environment_ready{environment}
//   - beanstack_provider_calls_total / provider_errors_total / provider_call_duration_seconds
//   - beanstack_errors_by_class_total{class,code}
//   - beanstack_policy_violations_total{policy,family}
//   - beanstack_environment_drifted_settings{environment}
//
// Metrics implements engine.MetricsRecorder. A Metrics built with metrics
// disabled is a no-op.
//
// # Tracing
//
// An enabled Tracer installs itself as the global OpenTelemetry provider and
// exports through OTLP gRPC or stdout. Runs and control-plane calls get
// their own spans; the engine adds one span per environment reconciliation.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	ctx = telemetry.WithRunContext(ctx, runID, "reconcile")
//	results, err := coordinator.ReconcileAll(ctx, req)
//	telemetry.EndRunContext(ctx, "reconcile", err)
package telemetry
