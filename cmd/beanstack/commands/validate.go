package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/policy"
)

type familyValidation struct {
	Family     string             `json:"family"`
	Settings   int                `json:"settings"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Warnings   []policy.Violation `json:"warnings,omitempty"`
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the stack file, settings and policies",
		Long: `Validate the stack without touching AWS.

This command:
  - Parses and validates the stack file (struct rules and naming schema)
  - Builds the settings of every template family
  - Evaluates the built-in and configured policies against each family,
    whether or not policy enforcement is enabled for setup`,
		Example: `  beanstack validate -c stack.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}
			requests, err := buildTemplates(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			guard, err := newGuard(ctx, cfg, log.Logger, nil)
			if err != nil {
				return err
			}

			results := make([]familyValidation, len(requests))
			denied := 0
			for i, tr := range requests {
				result, err := guard.Evaluate(ctx, policy.NewInput(tr.Family, cfg.TemplatePrefix(), cfg.Production, tr.Settings))
				if err != nil {
					return err
				}
				results[i] = familyValidation{
					Family:     tr.Family,
					Settings:   len(tr.Settings),
					Violations: result.Violations,
					Warnings:   result.Warnings,
				}
				if !result.Allowed {
					denied++
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := printJSON(out, results); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Stack %s: %d environments, %d template families\n",
					cfg.TemplatePrefix(), len(cfg.Services), len(requests))
				loaded := guard.ListPolicies()
				names := make([]string, len(loaded))
				for i, p := range loaded {
					names[i] = p.Name
				}
				fmt.Fprintf(out, "Policies: %s\n", strings.Join(names, ", "))
				for _, r := range results {
					fmt.Fprintf(out, "  %s: %d settings\n", r.Family, r.Settings)
					for _, v := range r.Violations {
						fmt.Fprintf(out, "    DENY %s: %s\n", v.Policy, v.Message)
					}
					for _, w := range r.Warnings {
						fmt.Fprintf(out, "    WARN %s: %s\n", w.Policy, w.Message)
					}
				}
			}

			if denied > 0 {
				return fmt.Errorf("%d template families denied by policy", denied)
			}
			return nil
		},
	}
}
