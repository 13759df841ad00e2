package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// runSpanKey and runStartKey carry the run span and start time.
type runSpanKey struct{}
type runStartKey struct{}

// WithRunContext starts the span and metrics of a run.
func WithRunContext(ctx context.Context, runID, kind string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartRunSpan(ctx, runID, kind)
	spanCtx = tel.Logger.WithRunID(runID).WithField("kind", kind).WithContext(spanCtx)
	tel.Metrics.RecordRunStarted(kind)

	spanCtx = context.WithValue(spanCtx, runSpanKey{}, span)
	return context.WithValue(spanCtx, runStartKey{}, time.Now())
}

// EndRunContext completes a run started with WithRunContext.
func EndRunContext(ctx context.Context, kind string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(runSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if start, ok := ctx.Value(runStartKey{}).(time.Time); ok {
		duration = time.Since(start)
	}

	status := "success"
	if err != nil {
		status = "failed"
		RecordEngineError(ctx, err)
	}
	tel.Metrics.RecordRunCompleted(kind, status, duration)
}

// RecordEngineError counts a control-plane error by class and code. Aggregate
// failures count each environment's error.
func RecordEngineError(ctx context.Context, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil || err == nil {
		return
	}

	var failure *engine.ReconciliationFailure
	if errors.As(err, &failure) {
		for _, e := range failure.Failed {
			recordOne(tel, e)
		}
		return
	}
	recordOne(tel, err)
}

func recordOne(tel *Telemetry, err error) {
	var cpe *engine.ControlPlaneError
	if errors.As(err, &cpe) {
		tel.Metrics.RecordError(string(cpe.Class), cpe.Code)
		return
	}
	tel.Metrics.RecordError("unclassified", "")
}

// RecordProviderOperation records a provider operation with metrics and tracing.
func RecordProviderOperation(ctx context.Context, providerName, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartProviderSpan(ctx, providerName, operation)
		defer span.End()
	}

	timer := NewTimer()
	err := fn(ctx)

	if tel != nil {
		tel.Metrics.RecordProviderCall(providerName, operation, timer.Duration())
		if err != nil {
			tel.Metrics.RecordProviderError(providerName, operation)
			var cpe *engine.ControlPlaneError
			if errors.As(err, &cpe) {
				span.SetAttributes(AttrErrorClass.String(string(cpe.Class)), AttrErrorCode.String(cpe.Code))
			}
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
