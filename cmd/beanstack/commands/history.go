package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		runID       string
		environment string
		limit       int
		prune       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded setup and teardown runs",
		Long: `Show the runs recorded in the stack's history database.

Without flags the most recent runs are listed. --run shows the
per-environment results of one run, --environment the latest results of
one environment. --prune deletes runs older than the given age.`,
		Example: `  # Recent runs
  beanstack history

  # Results of one run
  beanstack history --run 3f6c...

  # History of one environment
  beanstack history --environment auth-prod-a

  # Forget runs older than 30 days
  beanstack history --prune 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}
			if cfg.HistoryDB == "" {
				return fmt.Errorf("no history_db configured in %s", configPath)
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case prune > 0:
				n, err := store.DeleteRunsBefore(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted %d runs\n", n)
				return nil

			case runID != "":
				run, err := store.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				results, err := store.ListResultsByRun(ctx, runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, struct {
						Run     *stores.Run                 `json:"run"`
						Results []*stores.EnvironmentResult `json:"results"`
					}{run, results})
				}
				if err := printRuns(out, []*stores.Run{run}); err != nil {
					return err
				}
				fmt.Fprintln(out)
				return printResults(out, results)

			case environment != "":
				results, err := store.ListResultsByEnvironment(ctx, environment, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, results)
				}
				return printResults(out, results)

			default:
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, runs)
				}
				return printRuns(out, runs)
			}
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the results of one run")
	cmd.Flags().StringVarP(&environment, "environment", "e", "", "show the results of one environment")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this age")

	return cmd
}

func printRuns(w io.Writer, runs []*stores.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tSTATUS\tSTARTED\tDURATION\tENVIRONMENTS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Kind, r.Status, r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second), len(r.Environments), deref(r.Error))
	}
	return tw.Flush()
}

func printResults(w io.Writer, results []*stores.EnvironmentResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENVIRONMENT\tOPERATION\tOUTCOME\tSTATUS\tVERSION\tSTARTED\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Environment, dash(r.Operation), r.Outcome, dash(r.Status), dash(r.VersionLabel),
			r.StartedAt.Local().Format(time.DateTime), deref(r.Error))
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return dash(*s)
}
