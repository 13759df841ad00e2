package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/telemetry"
)

func newTeardownCommand() *cobra.Command {
	var (
		deleteTemplates bool
		yes             bool
	)

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Terminate every environment of the stack",
		Long: `Terminate every environment of the stack, one after another.

Absent environments are skipped. Termination is requested but not awaited.
With --delete-templates the configuration templates of the stack are
deleted afterwards; this only succeeds once no environment uses them.`,
		Example: `  # Terminate after a confirmation prompt
  beanstack teardown

  # Terminate without asking and remove the templates
  beanstack teardown --yes --delete-templates`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}

			names := cfg.EnvironmentNames()
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Terminate %d environments of %s (%s)?", len(names), cfg.TemplatePrefix(), strings.Join(names, ", ")))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
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

			a, err := newApp(ctx, cfg, tel, true)
			if err != nil {
				return err
			}
			defer a.Close()

			kind := string(engine.RunKindTerminate)
			ctx = telemetry.WithRunContext(ctx, uuid.NewString(), kind)
			results, runErr := a.coordinator.TerminateAll(ctx, names)
			telemetry.EndRunContext(ctx, kind, runErr)

			if err := printTerminations(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if runErr != nil {
				return runErr
			}

			if deleteTemplates {
				log.Info().Strs("families", cfg.Families()).Msg("Deleting configuration templates")
				return a.coordinator.DeleteTemplates(ctx, cfg.Families(), cfg.ApplicationName)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&deleteTemplates, "delete-templates", false, "delete the stack's configuration templates afterwards")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
