package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/beanstack/pkg/config"
	"github.com/openfroyo/beanstack/pkg/policy"
)

// policyWatch holds the settings guard of a watch session. Stack reloads
// rebuild it; policy file changes swap its policies in place.
type policyWatch struct {
	logger  zerolog.Logger
	metrics policy.ViolationRecorder

	mu    sync.Mutex
	guard *policy.Engine
}

func newPolicyWatch(logger zerolog.Logger, metrics policy.ViolationRecorder) *policyWatch {
	return &policyWatch{logger: logger, metrics: metrics}
}

// reset builds the guard for cfg. It returns nil when policies are disabled.
func (w *policyWatch) reset(ctx context.Context, cfg *config.StackConfig) (*policy.Engine, error) {
	var guard *policy.Engine
	if cfg.Policy.Enabled {
		g, err := newGuard(ctx, cfg, w.logger, w.metrics)
		if err != nil {
			return nil, err
		}
		guard = g
	}

	w.mu.Lock()
	w.guard = guard
	w.mu.Unlock()
	return guard, nil
}

func (w *policyWatch) current() *policy.Engine {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.guard
}

// apply replaces the custom policies of the current guard.
func (w *policyWatch) apply(ctx context.Context, policies []policy.Policy) error {
	guard := w.current()
	if guard == nil {
		return nil
	}
	return guard.ReplacePolicies(ctx, policies)
}

// run reloads the policies under paths on every change until ctx is done.
func (w *policyWatch) run(ctx context.Context, paths []string) {
	err := policy.NewLoader(w.logger).Watch(ctx, paths, func(policies []policy.Policy) error {
		return w.apply(ctx, policies)
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("Policy watch stopped")
	}
}

// reportRunError surfaces a failed run of a watch session, which keeps
// running afterwards.
func reportRunError(w io.Writer, err error) {
	log.Error().Err(err).Msg("Reconciliation failed")
	fmt.Fprintf(w, "Error: %v\n", err)
}
