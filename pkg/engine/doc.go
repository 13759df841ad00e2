// Package engine reconciles Elastic Beanstalk style environments against the
// desired state declared for a stack.
//
// # Overview
//
// A stack is a fixed set of service environments (auth, portal, repo, ...),
// each running one application version under a named configuration template.
// The control plane has no transactional multi-resource API: every mutation
// is asynchronous and state is only observable by polling. The engine
// therefore re-reads state before every decision and waits for an
// environment to settle between mutations.
//
// # Components
//
//   - Observer: describes an environment, ignoring terminated incarnations,
//     and blocks in AwaitReady until it reports Ready.
//   - TemplateManager: ensures one configuration template per family,
//     creating it when absent and replacing its settings otherwise.
//   - Reconciler: for one environment, decides between create,
//     update-configuration, update-version and restart.
//   - Coordinator: ensures templates, then runs one Reconciler task per
//     environment on a WorkerPool and aggregates failures.
//
// # Decision Procedure
//
// An absent environment is created and re-observed without waiting. A live
// environment is awaited until Ready, has its template binding reissued, and,
// if its version label differs, is awaited again before the version update.
// The restart-only branch is kept but cannot run while the template binding
// is always reissued.
//
// # Error Classification
//
// Control-plane failures are ControlPlaneError values classified as
// transient, throttled, conflict or permanent. The provider's invalid
// parameter code is the only error downgraded to "absent". Batch runs report
// a ReconciliationFailure after every task has finished.
//
// # Example
//
//	observer := engine.NewObserver(svc, "stack", engine.ObserverOptions{Logger: logger})
//	templates := engine.NewTemplateManager(svc, "prod-a", settings.Fingerprint, logger)
//	reconciler := engine.NewReconciler(svc, observer, logger, nil)
//	coord := engine.NewCoordinator(svc, observer, templates, reconciler, engine.CoordinatorOptions{Logger: logger})
//	results, err := coord.ReconcileAll(ctx, req)
package engine
