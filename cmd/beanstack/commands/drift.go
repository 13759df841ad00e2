package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/config"
	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/settings"
)

// environmentDrift is the drift report of one environment.
type environmentDrift struct {
	Environment string              `json:"environment"`
	Family      string              `json:"family"`
	Absent      bool                `json:"absent"`
	Mismatches  []settings.Mismatch `json:"mismatches,omitempty"`
}

func newDriftCommand() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Compare live environment settings with the built templates",
		Long: `Compare the effective settings of every live environment with the
settings its configuration template would be built with.

Only the built settings are compared; options the control plane reports
but the property file never sets are ignored. Nothing is changed.`,
		Example: `  # Report drift
  beanstack drift

  # Fail when any environment drifted (for CI)
  beanstack drift --exit-code`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}
			requests, err := buildTemplates(cfg)
			if err != nil {
				return err
			}

			tel, err := newTelemetry(cfg, "")
			if err != nil {
				return err
			}
			ctx, stop, err := startTelemetry(cmd.Context(), tel)
			if err != nil {
				return err
			}
			defer stop()

			a, err := newApp(ctx, cfg, tel, false)
			if err != nil {
				return err
			}
			defer a.Close()

			reports, err := a.detectDrift(ctx, cfg, requests)
			if err != nil {
				return err
			}
			if err := printDrift(cmd.OutOrStdout(), reports); err != nil {
				return err
			}

			drifted := 0
			for _, r := range reports {
				if len(r.Mismatches) > 0 {
					drifted++
				}
			}
			if exitCode && drifted > 0 {
				return fmt.Errorf("%d environments drifted", drifted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "return an error when drift is found")

	return cmd
}

// detectDrift reads the live settings of every environment and compares them
// with the built settings of its family.
func (a *app) detectDrift(ctx context.Context, cfg *config.StackConfig, requests []engine.TemplateRequest) ([]environmentDrift, error) {
	expected := make(map[string][]engine.ConfigurationSetting, len(requests))
	for _, tr := range requests {
		expected[tr.Family] = tr.Settings
	}

	specs := cfg.EnvironmentSpecs()
	reports := make([]environmentDrift, len(specs))
	for i, spec := range specs {
		reports[i] = environmentDrift{Environment: spec.EnvironmentName, Family: spec.TemplateFamily}

		current, err := a.observer.Describe(ctx, spec.EnvironmentName)
		if err != nil {
			return nil, err
		}
		if current == nil {
			reports[i].Absent = true
			continue
		}

		live, err := a.service.DescribeConfigurationSettings(ctx, cfg.ApplicationName, spec.EnvironmentName)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings of %s: %w", spec.EnvironmentName, err)
		}

		reports[i].Mismatches = settings.Mismatches(expected[spec.TemplateFamily], live)
		a.tel.Metrics.SetDriftedSettings(spec.EnvironmentName, len(reports[i].Mismatches))

		a.logger.Debug().
			Str("environment", spec.EnvironmentName).
			Int("mismatches", len(reports[i].Mismatches)).
			Msg("Drift checked")
	}
	return reports, nil
}

func printDrift(w io.Writer, reports []environmentDrift) error {
	if jsonOutput {
		return printJSON(w, reports)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tNAMESPACE\tOPTION\tEXPECTED\tACTUAL")
	for _, r := range reports {
		switch {
		case r.Absent:
			fmt.Fprintf(tw, "%s\t-\t-\t-\tabsent\n", r.Environment)
		case len(r.Mismatches) == 0:
			fmt.Fprintf(tw, "%s\t-\t-\t-\tin sync\n", r.Environment)
		}
		for _, m := range r.Mismatches {
			actual := m.Actual
			if m.Missing {
				actual = "(unset)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.Environment, m.Expected.Namespace, m.Expected.OptionName, m.Expected.Value, actual)
		}
	}
	return tw.Flush()
}
