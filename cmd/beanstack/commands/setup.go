package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/config"
	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/settings"
	"github.com/openfroyo/beanstack/pkg/telemetry"
)

func newSetupCommand() *cobra.Command {
	var (
		watch       bool
		dryRun      bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create or update every environment of the stack",
		Long: `Bring every environment of the stack into agreement with the stack file.

This command:
  - Builds the settings of each template family from the property file
  - Vets the settings against policies (if enabled)
  - Creates or updates one configuration template per family
  - Reconciles all environments concurrently: absent environments are
    created, live ones wait for Ready, are rebound to their template and
    moved to the declared version
  - Records the run in the history database (if configured)

With --watch the stack file and property file are watched and every change
triggers another run. Failed runs are reported and watching continues.
Changes to the policy paths are applied to the guard of the next run.`,
		Example: `  # Reconcile the stack
  beanstack setup -c stack.yaml

  # Show what each environment would go through
  beanstack setup --dry-run

  # Keep reconciling on every change and expose metrics
  beanstack setup --watch --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}

			tel, err := newTelemetry(cfg, metricsAddr)
			if err != nil {
				return err
			}
			ctx, stop, err := startTelemetry(cmd.Context(), tel)
			if err != nil {
				return err
			}
			defer stop()

			if dryRun {
				return runDryRun(ctx, cmd.OutOrStdout(), cfg, tel)
			}

			if !watch {
				return runSetup(ctx, cmd.OutOrStdout(), cfg, tel)
			}

			guards := newPolicyWatch(tel.Logger.Zerolog(), tel.Metrics)
			reconcile := func(ctx context.Context, cfg *config.StackConfig) error {
				guard, err := guards.reset(ctx, cfg)
				if err != nil {
					return err
				}
				return runSetup(ctx, cmd.OutOrStdout(), cfg, tel, withGuard(guard))
			}

			if err := reconcile(ctx, cfg); err != nil {
				reportRunError(cmd.ErrOrStderr(), err)
			}

			if cfg.Policy.Enabled && len(cfg.Policy.Paths) > 0 {
				policyCtx, cancel := context.WithCancel(ctx)
				done := make(chan struct{})
				go func() {
					defer close(done)
					guards.run(policyCtx, cfg.Policy.Paths)
				}()
				defer func() {
					cancel()
					<-done
				}()
			}

			files := []string{configPath, cfg.PropertiesFile}
			watcher, err := config.NewWatcher(files, config.DefaultDebounce, tel.Logger.Zerolog())
			if err != nil {
				return err
			}
			return watcher.Run(ctx, func(ctx context.Context) error {
				cfg, err := loadStack()
				if err == nil {
					err = reconcile(ctx, cfg)
				}
				if err != nil {
					reportRunError(cmd.ErrOrStderr(), err)
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run on stack or property file changes")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the planned operation per environment without mutating anything")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	return cmd
}

// runSetup runs one batch reconciliation and prints its results.
func runSetup(ctx context.Context, out io.Writer, cfg *config.StackConfig, tel *telemetry.Telemetry, opts ...appOption) error {
	requests, err := buildTemplates(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, tel, true, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	kind := string(engine.RunKindReconcile)
	ctx = telemetry.WithRunContext(ctx, uuid.NewString(), kind)

	logger := telemetry.FromContext(ctx).Zerolog()
	logger.Info().
		Str("stack", cfg.TemplatePrefix()).
		Int("environments", len(cfg.Services)).
		Int("templates", len(requests)).
		Msg("Reconciling stack")

	results, err := a.coordinator.ReconcileAll(ctx, engine.ReconcileRequest{
		Templates:    requests,
		Environments: cfg.EnvironmentSpecs(),
	})
	telemetry.EndRunContext(ctx, kind, err)

	if results != nil {
		if perr := printReconciliations(out, results); perr != nil {
			return perr
		}
	}
	return err
}

type plannedEnvironment struct {
	Environment string `json:"environment"`
	Template    string `json:"template"`
	Fingerprint string `json:"fingerprint"`
	Current     string `json:"current_version,omitempty"`
	Desired     string `json:"desired_version"`
	Status      string `json:"status"`
	Operation   string `json:"operation"`
}

// runDryRun predicts the decision of every environment from a single read.
func runDryRun(ctx context.Context, out io.Writer, cfg *config.StackConfig, tel *telemetry.Telemetry) error {
	requests, err := buildTemplates(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, tel, false)
	if err != nil {
		return err
	}
	defer a.Close()

	fingerprints := make(map[string]string, len(requests))
	for _, tr := range requests {
		if a.guard != nil {
			if err := a.guard.CheckSettings(ctx, tr.Family, tr.Settings); err != nil {
				return fmt.Errorf("settings for template family %s rejected: %w", tr.Family, err)
			}
		}
		fingerprints[tr.Family] = settings.Fingerprint(tr.Settings)
	}

	specs := cfg.EnvironmentSpecs()
	plans := make([]plannedEnvironment, len(specs))
	for i, spec := range specs {
		current, err := a.observer.Describe(ctx, spec.EnvironmentName)
		if err != nil {
			return err
		}

		plans[i] = plannedEnvironment{
			Environment: spec.EnvironmentName,
			Template:    a.templates.TemplateName(spec.TemplateFamily),
			Fingerprint: fingerprints[spec.TemplateFamily],
			Desired:     spec.Version.VersionLabel,
			Status:      "absent",
			Operation:   string(a.reconciler.Plan(current, spec)),
		}
		if current != nil {
			plans[i].Current = current.VersionLabel
			plans[i].Status = string(current.Status)
		}
	}

	if jsonOutput {
		return printJSON(out, plans)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tSTATUS\tVERSION\tTEMPLATE\tOPERATION")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s -> %s\t%s (%s)\t%s\n",
			p.Environment, p.Status, dash(p.Current), p.Desired, p.Template, shortFingerprint(p.Fingerprint), p.Operation)
	}
	return tw.Flush()
}
