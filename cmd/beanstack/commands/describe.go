package commands

import (
	"github.com/spf13/cobra"
)

func newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show the live state of every environment",
		Long: `Read the live state of every environment of the stack. Terminated
incarnations are ignored; an environment without a live incarnation is
reported as absent.`,
		Example: `  beanstack describe
  beanstack describe --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
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

			names := cfg.EnvironmentNames()
			states, err := a.coordinator.DescribeAll(ctx, names)
			if err != nil {
				return err
			}
			return printStates(cmd.OutOrStdout(), names, states)
		},
	}
}
