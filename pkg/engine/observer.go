package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is the pause between two readiness probes.
const DefaultPollInterval = 5 * time.Second

// MetricsRecorder receives engine measurements. telemetry.Metrics implements it.
type MetricsRecorder interface {
	RecordReconciliation(operation, status string, duration time.Duration)
	RecordReadyWait(environment string, duration time.Duration)
	SetEnvironmentReady(environment string, ready bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordReconciliation(string, string, time.Duration) {}
func (noopMetrics) RecordReadyWait(string, time.Duration)              {}
func (noopMetrics) SetEnvironmentReady(string, bool)                   {}

// ObserverOptions configures an Observer.
type ObserverOptions struct {
	// PollInterval is the pause between readiness probes. Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// ReadyTimeout bounds AwaitReady. Zero waits forever.
	ReadyTimeout time.Duration

	Logger  zerolog.Logger
	Metrics MetricsRecorder
}

// Observer reads environment state from the control plane.
type Observer struct {
	service         CloudEnvironmentService
	applicationName string
	pollInterval    time.Duration
	readyTimeout    time.Duration
	logger          zerolog.Logger
	metrics         MetricsRecorder
}

// NewObserver creates an observer for the environments of one application.
func NewObserver(service CloudEnvironmentService, applicationName string, opts ObserverOptions) *Observer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Observer{
		service:         service,
		applicationName: applicationName,
		pollInterval:    opts.PollInterval,
		readyTimeout:    opts.ReadyTimeout,
		logger:          opts.Logger.With().Str("component", "observer").Logger(),
		metrics:         opts.Metrics,
	}
}

// ApplicationName returns the application the observer reads from.
func (o *Observer) ApplicationName() string {
	return o.applicationName
}

// Describe returns the first live environment with the given name, or nil if
// there is none. Terminated and terminating incarnations are ignored.
func (o *Observer) Describe(ctx context.Context, name string) (*EnvironmentState, error) {
	states, err := o.service.DescribeEnvironments(ctx, o.applicationName, name)
	if err != nil {
		// The control plane reports an unknown application this way.
		if IsAbsent(err) {
			return nil, nil
		}
		return nil, controlPlaneError(err, name, opDescribeEnvironments)
	}

	for i := range states {
		if states[i].Status.IsTerminal() {
			continue
		}
		state := states[i]
		return &state, nil
	}
	return nil, nil
}

// AwaitReady blocks until the environment reports Ready. It fails with
// EnvironmentNotFoundError if the environment disappears, and with a
// ControlPlaneError if the ready timeout expires or ctx is cancelled.
func (o *Observer) AwaitReady(ctx context.Context, name string) (EnvironmentState, error) {
	start := time.Now()

	var deadline <-chan time.Time
	if o.readyTimeout > 0 {
		timer := time.NewTimer(o.readyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for attempt := 1; ; attempt++ {
		state, err := o.Describe(ctx, name)
		if err != nil {
			return EnvironmentState{}, err
		}
		if state == nil {
			return EnvironmentState{}, &EnvironmentNotFoundError{Environment: name}
		}
		if state.Status.IsReady() {
			o.metrics.RecordReadyWait(name, time.Since(start))
			o.metrics.SetEnvironmentReady(name, true)
			return *state, nil
		}
		o.metrics.SetEnvironmentReady(name, false)

		o.logger.Debug().
			Str("environment", name).
			Str("status", string(state.Status)).
			Int("attempt", attempt).
			Dur("poll_interval", o.pollInterval).
			Msg("Waiting for environment to become ready")

		wait := time.NewTimer(o.pollInterval)
		select {
		case <-wait.C:
		case <-deadline:
			wait.Stop()
			return EnvironmentState{}, NewTransientError(
				fmt.Sprintf("environment not ready after %s (last status %s)", o.readyTimeout, state.Status), nil).
				WithResource(name).
				WithOperation(opAwaitReady).
				WithCode(ErrCodeTimeout)
		case <-ctx.Done():
			wait.Stop()
			return EnvironmentState{}, NewTransientError("readiness wait cancelled", ctx.Err()).
				WithResource(name).
				WithOperation(opAwaitReady)
		}
	}
}
